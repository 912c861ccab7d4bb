package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/shinamon610/ShareMouse/internal/space"
)

const (
	// EnvPrefix prefixes environment overrides, e.g. SHAREMOUSE_NETWORK_PEER_PORT.
	EnvPrefix = "SHAREMOUSE"

	appDir   = "sharemouse"
	fileName = "config.yaml"
)

var (
	ErrNotFound = errors.New("config: file not found")
	ErrExists   = errors.New("config: file already exists")
	ErrInvalid  = errors.New("config: invalid configuration")
)

// Loader reads configuration files from a filesystem
type Loader struct {
	fs       afero.Fs
	validate *validator.Validate
}

// NewLoader creates a loader on fs. Tests pass afero.NewMemMapFs().
func NewLoader(fs afero.Fs) *Loader {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report mapstructure key names instead of Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Loader{fs: fs, validate: v}
}

// DefaultPath returns the per-user configuration file path
func DefaultPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", appDir)
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(appData, appDir)
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, ".config", appDir)
	}

	return filepath.Join(configDir, fileName), nil
}

// Load reads path, applies environment overrides and defaults, and validates
// the result.
func (l *Loader) Load(path string) (*Config, error) {
	exists, err := afero.Exists(l.fs, path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	v := viper.New()
	v.SetFs(l.fs)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	for old, key := range legacyKeys {
		// IsSet is true for keys with defaults, so ask the sources directly
		if v.InConfig(old) && !v.InConfig(key) && !envSet(key) {
			v.Set(key, v.Get(old))
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !v.IsSet("layout.remote_position") {
		cfg.Layout.RemotePosition = cfg.Layout.Position.Opposite()
	}

	if err := l.Validate(&cfg); err != nil {
		return nil, err
	}

	log.Info().Str("module", "config").Str("path", path).
		Str("position", cfg.Layout.Position.String()).
		Str("peer", cfg.TransportConfig().PeerEndpoint()).
		Msg("configuration loaded")
	return &cfg, nil
}

// Validate checks field constraints and that the two screens form a valid
// virtual space.
func (l *Loader) Validate(cfg *Config) error {
	if err := l.validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", strings.ToLower(stripRoot(fe.Namespace())), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if _, err := space.NewVirtualSpace(cfg.SpaceLayout()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if cfg.API.Enabled && cfg.API.Listen == "" {
		return fmt.Errorf("%w: api.listen is required when the api is enabled", ErrInvalid)
	}
	return nil
}

// stripRoot drops the leading struct name from a validator namespace.
func stripRoot(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

// envSet reports whether key is overridden from the environment.
func envSet(key string) bool {
	_, ok := os.LookupEnv(EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	return ok
}
