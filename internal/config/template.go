package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// Template is the sample configuration written by WriteTemplate. It places a
// 2600x1440 screen to the left of a 1920x1080 peer at 192.168.1.100:5000.
const Template = `# ShareMouse configuration

# This machine's resolution.
screen:
  width: 2600
  height: 1440

# The peer's resolution.
remote_screen:
  width: 1920
  height: 1080

layout:
  # Side of the shared space this screen occupies: left, right, top or bottom.
  # The peer must use the opposite side.
  position: left
  # Where the shorter screen sits along the shared edge: start or center.
  align: start

network:
  protocol: udp          # udp or tcp
  peer_address: 192.168.1.100
  peer_port: 5000
  listen_port: 5000
  buffer_size: 1024
  tcp_mode: dial         # dial or listen; exactly one side listens

control:
  # Who owns the pointer at start. Exactly one side should say local.
  initial_owner: local
  heartbeat_interval: 250ms
  stale_multiplier: 3
  handoff_timeout: 500ms
  edge_threshold: 0
  # End the session after this much peer silence; 0s takes control back instead.
  silence_timeout: 0s

api:
  enabled: false
  listen: 127.0.0.1:18080
  token: ""

log:
  level: info            # trace, debug, info, warn or error
  format: auto           # auto, console or json
`

// WriteTemplate writes the sample configuration to path, creating parent
// directories. An existing file is only replaced when force is set.
func WriteTemplate(fs afero.Fs, path string, force bool) error {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return err
	}
	if exists && !force {
		return fmt.Errorf("%w: %s", ErrExists, path)
	}

	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := afero.WriteFile(fs, path, []byte(Template), os.FileMode(0o644)); err != nil {
		return err
	}

	log.Info().Str("module", "config").Str("path", path).Msg("template configuration written")
	return nil
}
