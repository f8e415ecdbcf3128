package model

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig locates the Liman API.
type ServerConfig struct {
	// BaseURL is the root URL of the Liman instance (e.g., https://liman.corp.example.com).
	BaseURL string `mapstructure:"base_url" yaml:"base_url" validate:"required,url"`

	// APIPrefix is prepended to notification and broadcasting paths.
	APIPrefix string `mapstructure:"api_prefix" yaml:"api_prefix" validate:"startswith=/"`

	// AuthPrefix is prepended to login, logout and change_password.
	AuthPrefix string `mapstructure:"auth_prefix" yaml:"auth_prefix" validate:"startswith=/"`

	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`

	// TimeoutSec bounds every REST call.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec" validate:"gte=1"`
}

// PushConfig configures the Pusher-protocol websocket.
type PushConfig struct {
	AppKey string `mapstructure:"app_key" yaml:"app_key" validate:"required"`

	// WSURL overrides the websocket endpoint. Empty derives
	// wss://<host>/app/<app_key> from the server base URL.
	WSURL string `mapstructure:"ws_url" yaml:"ws_url" validate:"omitempty,url"`

	// AuthPath is the private-channel authorization endpoint.
	AuthPath string `mapstructure:"auth_path" yaml:"auth_path" validate:"startswith=/"`
}

// SeenConfig tunes the acknowledgement debounce.
type SeenConfig struct {
	DelayMs    int     `mapstructure:"delay_ms" yaml:"delay_ms" validate:"gte=0"`
	RatePerSec float64 `mapstructure:"rate_per_sec" yaml:"rate_per_sec" validate:"gt=0"`
	Burst      int     `mapstructure:"burst" yaml:"burst" validate:"gte=1"`
}

// Delay returns the debounce as a duration. A configured 0 acknowledges
// immediately, which the seen marker expresses as a negative delay.
func (c SeenConfig) Delay() time.Duration {
	if c.DelayMs == 0 {
		return -1
	}
	return time.Duration(c.DelayMs) * time.Millisecond
}

// AlertConfig controls the desktop and sound side channels.
type AlertConfig struct {
	Desktop   bool   `mapstructure:"desktop" yaml:"desktop"`
	Sound     bool   `mapstructure:"sound" yaml:"sound"`
	SoundFile string `mapstructure:"sound_file" yaml:"sound_file"`
	Player    string `mapstructure:"player" yaml:"player"`
}

// JournalConfig locates the local delivery journal.
type JournalConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	RetentionDays int    `mapstructure:"retention_days" yaml:"retention_days" validate:"gte=0"`
}

// LogConfig controls the rotating log file.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level" validate:"oneof=trace debug info warn warning error"`
	File  string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Push    PushConfig    `mapstructure:"push" yaml:"push"`
	Seen    SeenConfig    `mapstructure:"seen" yaml:"seen"`
	Alerts  AlertConfig   `mapstructure:"alerts" yaml:"alerts"`
	Journal JournalConfig `mapstructure:"journal" yaml:"journal"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// ConfigDir returns ~/.config/liman-notify.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "liman-notify")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/liman-notify/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.api_prefix", "/api")
	v.SetDefault("server.auth_prefix", "/api/auth")
	v.SetDefault("server.timeout_sec", 30)
	v.SetDefault("push.app_key", "liman-key")
	v.SetDefault("push.auth_path", "/api/broadcasting/auth")
	v.SetDefault("seen.delay_ms", 1000)
	v.SetDefault("seen.rate_per_sec", 10.0)
	v.SetDefault("seen.burst", 5)
	v.SetDefault("alerts.desktop", true)
	v.SetDefault("alerts.sound", true)
	v.SetDefault("alerts.player", "paplay")
	v.SetDefault("journal.path", filepath.Join(ConfigDir(), "journal.db"))
	v.SetDefault("journal.retention_days", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", filepath.Join(ConfigDir(), "logs", "liman-notify.log"))
}

var validate = validator.New()

// LoadConfig reads and validates the configuration at path. A missing file
// is not an error, but the result must still validate (server.base_url has
// no default).
func LoadConfig(path string) (*AppConfig, error) {
	cfg, err := ReadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadConfig reads configuration from the given YAML file path using Viper
// without validating it. A .env file in the working directory and LIMAN_*
// environment variables override file values.
func ReadConfig(path string) (*AppConfig, error) {
	// .env is optional; a missing file is the common case.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("liman")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	// AutomaticEnv only applies to keys viper already knows about.
	v.SetDefault("server.base_url", "")
	v.SetDefault("push.ws_url", "")
	v.SetDefault("alerts.sound_file", "")

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.Server.BaseURL = strings.TrimRight(cfg.Server.BaseURL, "/")

	return cfg, nil
}

// Validate checks struct tags and returns a readable error.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return fmt.Errorf("validating config: %w", err)
		}
		msgs := make([]string, 0, len(ve))
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("%s failed '%s'", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// PushURL returns the websocket endpoint, deriving it from the base URL
// when no explicit override is configured.
func (c *AppConfig) PushURL() (string, error) {
	if c.Push.WSURL != "" {
		return c.Push.WSURL, nil
	}

	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	u.Path = "/app/" + c.Push.AppKey
	u.RawQuery = ""

	return u.String(), nil
}

// Host returns the host part of the base URL; it keys the stored session.
func (c *AppConfig) Host() string {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || u.Host == "" {
		return c.Server.BaseURL
	}
	return u.Host
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("push", cfg.Push)
	v.Set("seen", cfg.Seen)
	v.Set("alerts", cfg.Alerts)
	v.Set("journal", cfg.Journal)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
