// Package osutils holds OS integration helpers: privilege checks and the
// inbound firewall rule for the peer port.
package osutils

import (
	"fmt"
	"strings"
)

// RuleName is the display name of the firewall rule this program manages.
const RuleName = "ShareMouse Peer"

// firewallScript returns the PowerShell that replaces the rule with one
// allowing inbound traffic on port.
func firewallScript(port int, proto string) string {
	return fmt.Sprintf(
		"Remove-NetFirewallRule -DisplayName '%s' -ErrorAction SilentlyContinue; New-NetFirewallRule -DisplayName '%s' -Direction Inbound -LocalPort %d -Protocol %s -Action Allow -Profile Any",
		RuleName, RuleName, port, strings.ToUpper(proto),
	)
}

// ruleMatches reports whether netsh output shows an allow rule for port and proto.
func ruleMatches(output string, port int, proto string) bool {
	if !strings.Contains(output, RuleName) || !strings.Contains(output, "Allow") {
		return false
	}
	hasPort, hasProto := false, false
	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch key {
		case "LocalPort":
			hasPort = value == fmt.Sprint(port)
		case "Protocol":
			hasProto = strings.EqualFold(value, proto)
		}
	}
	return hasPort && hasProto
}
