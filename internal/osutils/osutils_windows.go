//go:build windows

package osutils

import (
	"fmt"
	"os/exec"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/windows"
)

// IsAdmin checks if the current process has administrative privileges
func IsAdmin() bool {
	var token windows.Token
	h, _ := windows.GetCurrentProcess()
	err := windows.OpenProcessToken(h, windows.TOKEN_QUERY, &token)
	if err != nil {
		return false
	}
	defer token.Close()

	var sid *windows.SID
	err = windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&sid,
	)
	if err != nil {
		return false
	}
	defer windows.FreeSid(sid)

	member, err := token.IsMember(sid)
	if err != nil {
		return false
	}

	return member
}

// EnsureFirewallRule checks if an inbound rule for the peer port exists,
// and if not, attempts to create it using PowerShell with admin elevation.
func EnsureFirewallRule(port int, proto string) error {
	logger := log.With().Str("module", "osutils").Str("rule", RuleName).Int("port", port).Str("proto", proto).Logger()

	checkCmd := exec.Command("netsh", "advfirewall", "firewall", "show", "rule", "name="+RuleName)
	output, err := checkCmd.CombinedOutput()
	if err == nil && ruleMatches(string(output), port, proto) {
		logger.Debug().Msg("firewall rule already present")
		return nil
	}
	logger.Info().Msg("creating firewall rule")

	psCommand := firewallScript(port, proto)

	// Execute with RunAs verb to trigger UAC if not already admin
	if !IsAdmin() {
		verbPtr, _ := syscall.UTF16PtrFromString("runas")
		exePtr, _ := syscall.UTF16PtrFromString("powershell.exe")
		argPtr, _ := syscall.UTF16PtrFromString(fmt.Sprintf("-NoProfile -WindowStyle Hidden -Command \"%s\"", psCommand))

		var showCmd int32 = 0 // SW_HIDE

		if err := windows.ShellExecute(0, verbPtr, exePtr, argPtr, nil, showCmd); err != nil {
			return fmt.Errorf("launch elevated powershell: %w", err)
		}
		logger.Warn().Msg("UAC prompt requested to create the firewall rule")
		return nil
	}

	cmd := exec.Command("powershell", "-NoProfile", "-Command", psCommand)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("create firewall rule: %w (output: %s)", err, string(output))
	}
	logger.Info().Msg("firewall rule created")
	return nil
}
