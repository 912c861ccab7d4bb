// Package autostart registers ShareMouse to start on login.
package autostart

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// ErrUnsupported is returned on platforms without a login item mechanism.
var ErrUnsupported = errors.New("autostart: unsupported platform")

const macLaunchAgentPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>com.sharemouse.agent</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.Executable}}</string>
{{- range .Args}}
        <string>{{.}}</string>
{{- end}}
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <false/>
</dict>
</plist>
`

const xdgDesktopEntry = `[Desktop Entry]
Type=Application
Name=ShareMouse
Comment=Share one mouse between two computers
Exec={{.CommandLine}}
X-GNOME-Autostart-enabled=true
NoDisplay=true
`

const windowsStartupScript = "@echo off\r\nstart \"\" {{.CommandLine}}\r\n"

var templates = map[string]*template.Template{
	"darwin":  template.Must(template.New("plist").Parse(macLaunchAgentPlist)),
	"linux":   template.Must(template.New("desktop").Parse(xdgDesktopEntry)),
	"windows": template.Must(template.New("cmd").Parse(windowsStartupScript)),
}

// Entry is the command started on login.
type Entry struct {
	Executable string
	Args       []string
}

// CommandLine renders the entry as a single quoted command line.
func (e Entry) CommandLine() string {
	parts := make([]string, 0, len(e.Args)+1)
	for _, p := range append([]string{e.Executable}, e.Args...) {
		if strings.ContainsAny(p, " \t\"") {
			p = `"` + strings.ReplaceAll(p, `"`, `\"`) + `"`
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, " ")
}

// Manager writes and removes the login item for one platform.
type Manager struct {
	fs   afero.Fs
	goos string
	path string
}

// New returns a manager for goos rooted at the user's home directory. On
// Windows the startup folder lives under appData (%APPDATA%).
func New(fs afero.Fs, goos, home, appData string) (*Manager, error) {
	var path string
	switch goos {
	case "darwin":
		path = filepath.Join(home, "Library", "LaunchAgents", "com.sharemouse.agent.plist")
	case "linux":
		path = filepath.Join(home, ".config", "autostart", "sharemouse.desktop")
	case "windows":
		if appData == "" {
			return nil, fmt.Errorf("autostart: APPDATA is not set")
		}
		path = filepath.Join(appData, "Microsoft", "Windows", "Start Menu", "Programs", "Startup", "ShareMouse.cmd")
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, goos)
	}
	return &Manager{fs: fs, goos: goos, path: path}, nil
}

// Path is the file that marks autostart as enabled.
func (m *Manager) Path() string { return m.path }

// Enable writes the login item, replacing any previous one.
func (m *Manager) Enable(e Entry) error {
	if e.Executable == "" {
		return fmt.Errorf("autostart: empty executable path")
	}

	var buf bytes.Buffer
	if err := templates[m.goos].Execute(&buf, e); err != nil {
		return err
	}
	if err := m.fs.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}
	if err := afero.WriteFile(m.fs, m.path, buf.Bytes(), 0644); err != nil {
		return err
	}

	log.Info().Str("module", "autostart").Str("path", m.path).Msg("autostart enabled")
	return nil
}

// Disable removes the login item. Removing a missing item is not an error.
func (m *Manager) Disable() error {
	if err := m.fs.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	log.Info().Str("module", "autostart").Str("path", m.path).Msg("autostart disabled")
	return nil
}

// IsEnabled checks if the login item exists
func (m *Manager) IsEnabled() bool {
	ok, err := afero.Exists(m.fs, m.path)
	return err == nil && ok
}
