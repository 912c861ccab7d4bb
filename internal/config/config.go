// Package config provides configuration management for ShareMouse.
package config

import (
	"time"

	"github.com/shinamon610/ShareMouse/internal/arbiter"
	"github.com/shinamon610/ShareMouse/internal/network"
	"github.com/shinamon610/ShareMouse/internal/session"
	"github.com/shinamon610/ShareMouse/internal/space"
)

// Config represents the application configuration
type Config struct {
	// Screen is this machine's resolution
	Screen ScreenConfig `mapstructure:"screen"`

	// RemoteScreen is the peer's resolution
	RemoteScreen ScreenConfig `mapstructure:"remote_screen"`

	Layout  LayoutConfig  `mapstructure:"layout"`
	Network NetworkConfig `mapstructure:"network"`
	Control ControlConfig `mapstructure:"control"`
	API     APIConfig     `mapstructure:"api"`
	Log     LogConfig     `mapstructure:"log"`
}

// ScreenConfig is a resolution in pixels
type ScreenConfig struct {
	Width  int `mapstructure:"width" validate:"gt=0"`
	Height int `mapstructure:"height" validate:"gt=0"`
}

// LayoutConfig places the two screens side by side
type LayoutConfig struct {
	// Position is the side of the virtual space this screen occupies
	Position space.Edge `mapstructure:"position"`

	// RemotePosition must be the opposite of Position. Derived when omitted.
	RemotePosition space.Edge `mapstructure:"remote_position"`

	// Align places the shorter screen: "start" or "center"
	Align space.Align `mapstructure:"align"`
}

// NetworkConfig describes the peer and the transport
type NetworkConfig struct {
	// Protocol is "udp" (default) or "tcp"
	Protocol network.Protocol `mapstructure:"protocol" validate:"oneof=udp tcp"`

	// PeerAddress is the peer's host name or IP (e.g., "192.168.1.100")
	PeerAddress string `mapstructure:"peer_address" validate:"required"`

	PeerPort   int `mapstructure:"peer_port" validate:"gte=1,lte=65535"`
	ListenPort int `mapstructure:"listen_port" validate:"gte=0,lte=65535"`

	// BufferSize is the receive buffer in bytes (0 = minimum)
	BufferSize int `mapstructure:"buffer_size" validate:"gte=0"`

	// TCPMode is "dial" or "listen"; exactly one side of a TCP session listens
	TCPMode network.TCPMode `mapstructure:"tcp_mode" validate:"omitempty,oneof=dial listen"`
}

// ControlConfig holds the arbiter timings
type ControlConfig struct {
	// InitialOwner is who holds the pointer at start: "local" or "remote".
	// The side that starts as owner wins simultaneous claims.
	InitialOwner space.Role `mapstructure:"initial_owner"`

	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" validate:"gt=0"`

	// StaleMultiplier heartbeats of silence mark the peer stale
	StaleMultiplier int `mapstructure:"stale_multiplier" validate:"gte=2"`

	HandoffTimeout time.Duration `mapstructure:"handoff_timeout" validate:"gt=0"`

	// EdgeThreshold widens the crossing band, in pixels
	EdgeThreshold int `mapstructure:"edge_threshold" validate:"gte=0"`

	// SilenceTimeout ends the session after this much peer silence while
	// idle. 0 keeps the session running and takes control back instead.
	SilenceTimeout time.Duration `mapstructure:"silence_timeout" validate:"gte=0"`
}

// APIConfig controls the local HTTP control API
type APIConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Listen is the API address (default: 127.0.0.1:18080)
	Listen string `mapstructure:"listen" validate:"omitempty,hostname_port"`

	// Token is an optional bearer token for API requests
	Token string `mapstructure:"token"`
}

// LogConfig selects the log level and output format
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=auto console json"`
}

// defaults are applied to every key not set by the file or environment
var defaults = map[string]any{
	"layout.position":            "left",
	"layout.align":               "start",
	"network.protocol":           "udp",
	"network.peer_port":          5000,
	"network.listen_port":        5000,
	"network.buffer_size":        1024,
	"network.tcp_mode":           "dial",
	"control.initial_owner":      "local",
	"control.heartbeat_interval": arbiter.DefaultHeartbeatInterval,
	"control.stale_multiplier":   arbiter.DefaultStaleMultiplier,
	"control.handoff_timeout":    arbiter.DefaultHandoffTimeout,
	"control.edge_threshold":     0,
	"control.silence_timeout":    0,
	"api.enabled":                false,
	"api.listen":                 "127.0.0.1:18080",
	"api.token":                  "",
	"log.level":                  "info",
	"log.format":                 "auto",
}

// keys lists every configuration key so each can be overridden from the
// environment, including those without a default.
var keys = []string{
	"screen.width", "screen.height",
	"remote_screen.width", "remote_screen.height",
	"layout.position", "layout.remote_position", "layout.align",
	"network.protocol", "network.peer_address", "network.peer_port",
	"network.listen_port", "network.buffer_size", "network.tcp_mode",
	"control.initial_owner", "control.heartbeat_interval", "control.stale_multiplier",
	"control.handoff_timeout", "control.edge_threshold", "control.silence_timeout",
	"api.enabled", "api.listen", "api.token",
	"log.level", "log.format",
}

// legacyKeys maps the flat keys of older config files to their current
// names. A current key wins when both are present.
var legacyKeys = map[string]string{
	"remote_ip":     "network.peer_address",
	"remote_port":   "network.peer_port",
	"host_position": "layout.position",
}

// SpaceLayout converts the screen settings into a virtual space layout
func (c *Config) SpaceLayout() space.Layout {
	return space.Layout{
		Local:          space.Size{Width: c.Screen.Width, Height: c.Screen.Height},
		Remote:         space.Size{Width: c.RemoteScreen.Width, Height: c.RemoteScreen.Height},
		Position:       c.Layout.Position,
		RemotePosition: c.Layout.RemotePosition,
		Align:          c.Layout.Align,
	}
}

// TransportConfig converts the network settings for the transport
func (c *Config) TransportConfig() network.Config {
	return network.Config{
		Protocol:    c.Network.Protocol,
		PeerAddress: c.Network.PeerAddress,
		PeerPort:    c.Network.PeerPort,
		ListenPort:  c.Network.ListenPort,
		BufferSize:  c.Network.BufferSize,
		TCPMode:     c.Network.TCPMode,
	}
}

// Session builds the session configuration
func (c *Config) Session() session.Config {
	return session.Config{
		Layout:       c.SpaceLayout(),
		InitialOwner: c.Control.InitialOwner,
		Network:      c.TransportConfig(),
		Control: arbiter.Config{
			Primary:           c.Control.InitialOwner == space.RoleLocal,
			HeartbeatInterval: c.Control.HeartbeatInterval,
			StaleMultiplier:   c.Control.StaleMultiplier,
			HandoffTimeout:    c.Control.HandoffTimeout,
			EdgeThreshold:     c.Control.EdgeThreshold,
		},
		SilenceTimeout: c.Control.SilenceTimeout,
	}
}
