package autostart

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var entry = Entry{
	Executable: "/opt/share mouse/sharemouse",
	Args:       []string{"run", "-c", "/home/me/.config/sharemouse/config.yaml", "--tray"},
}

func TestCommandLineQuotes(t *testing.T) {
	assert.Equal(t,
		`"/opt/share mouse/sharemouse" run -c /home/me/.config/sharemouse/config.yaml --tray`,
		entry.CommandLine())
}

func TestEnableDisable(t *testing.T) {
	tests := []struct {
		goos     string
		wantPath string
		contains []string
	}{
		{
			goos:     "darwin",
			wantPath: filepath.Join("/home/me", "Library", "LaunchAgents", "com.sharemouse.agent.plist"),
			contains: []string{
				"<string>com.sharemouse.agent</string>",
				"<string>/opt/share mouse/sharemouse</string>",
				"<string>--tray</string>",
			},
		},
		{
			goos:     "linux",
			wantPath: filepath.Join("/home/me", ".config", "autostart", "sharemouse.desktop"),
			contains: []string{"Exec=\"/opt/share mouse/sharemouse\" run -c"},
		},
		{
			goos:     "windows",
			wantPath: filepath.Join("/appdata", "Microsoft", "Windows", "Start Menu", "Programs", "Startup", "ShareMouse.cmd"),
			contains: []string{"start \"\" \"/opt/share mouse/sharemouse\" run"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			m, err := New(fs, tt.goos, "/home/me", "/appdata")
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, m.Path())
			assert.False(t, m.IsEnabled())

			require.NoError(t, m.Enable(entry))
			assert.True(t, m.IsEnabled())

			data, err := afero.ReadFile(fs, m.Path())
			require.NoError(t, err)
			for _, s := range tt.contains {
				assert.Contains(t, string(data), s)
			}

			require.NoError(t, m.Disable())
			assert.False(t, m.IsEnabled())
			require.NoError(t, m.Disable())
		})
	}
}

func TestNewErrors(t *testing.T) {
	_, err := New(afero.NewMemMapFs(), "plan9", "/home/me", "")
	require.ErrorIs(t, err, ErrUnsupported)

	_, err = New(afero.NewMemMapFs(), "windows", "/home/me", "")
	require.Error(t, err)
}

func TestEnableRequiresExecutable(t *testing.T) {
	m, err := New(afero.NewMemMapFs(), "linux", "/home/me", "")
	require.NoError(t, err)
	require.Error(t, m.Enable(Entry{}))
}
