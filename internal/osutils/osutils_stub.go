//go:build !windows

package osutils

import (
	"github.com/rs/zerolog/log"
)

// IsAdmin is a stub for non-Windows platforms
func IsAdmin() bool {
	return false
}

// EnsureFirewallRule is a stub for non-Windows platforms
func EnsureFirewallRule(port int, proto string) error {
	log.Debug().Str("module", "osutils").Int("port", port).Str("proto", proto).
		Msg("firewall rule management is only supported on Windows")
	return nil
}
