package app

import (
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// KeySourceType selects where the installation secret for store
// encryption lives.
type KeySourceType string

const (
	KeySourceTypeFile    KeySourceType = "file"
	KeySourceTypeKeyring KeySourceType = "keyring"
)

// Default configuration values
const (
	DefaultConfigLogFormat     = LogFormatText
	DefaultConfigAPIBaseURL    = "https://api.anymoment.sineways.tech"
	DefaultConfigAPITimeout    = 30 * time.Second
	DefaultConfigMaxAttempts   = 3
	DefaultConfigRefreshMargin = 30 * time.Second
	DefaultConfigLockTimeout   = 5 * time.Second
	DefaultConfigKeySource     = KeySourceTypeFile
	DefaultConfigTimezone      = "UTC"

	// keyringService identifies this installation's secret in the OS
	// credential store.
	keyringService = "anymoment-cli"
)

// APIConfig holds upstream API configuration.
type APIConfig struct {
	BaseURL string `json:"base_url" validate:"required,url"`
	// Timeout bounds a single request (connect + read).
	Timeout time.Duration `json:"timeout"`
	// MaxAttempts is the try ceiling for 5xx/transport failures.
	MaxAttempts int `json:"max_attempts" validate:"min=1,max=10"`
}

// AuthConfig holds credential lifecycle configuration.
type AuthConfig struct {
	// RefreshMargin is subtracted from token expiry when deciding
	// whether to refresh proactively.
	RefreshMargin time.Duration `json:"refresh_margin"`

	// KeySource selects the installation-secret backend.
	KeySource KeySourceType `json:"key_source" validate:"required,oneof=file keyring"`

	// KeyringUser identifies the secret in the OS keyring (keyring
	// backend only).
	KeyringUser string `json:"keyring_user,omitempty"`
}

// StorageConfig holds token store location and locking configuration.
// All paths default under the per-user config directory.
type StorageConfig struct {
	Dir        string `json:"dir" validate:"required"`
	TokensFile string `json:"tokens_file" validate:"required"`
	SaltFile   string `json:"salt_file" validate:"required"`
	SecretFile string `json:"secret_file,omitempty"`

	// LockTimeout bounds the wait for the store's interprocess lock.
	LockTimeout time.Duration `json:"lock_timeout"`
}

// DefaultsConfig holds user-preference defaults applied by the CLI.
type DefaultsConfig struct {
	Timezone   string `json:"timezone"`
	CalendarID string `json:"calendar_id,omitempty"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level     `json:"log_level"`
	LogFormat LogFormat      `json:"log_format" validate:"oneof=text json"`
	API       APIConfig      `json:"api"`
	Auth      AuthConfig     `json:"auth"`
	Storage   StorageConfig  `json:"storage"`
	Defaults  DefaultsConfig `json:"defaults"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultConfigAPIBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultConfigAPITimeout
	}
	if c.API.MaxAttempts == 0 {
		c.API.MaxAttempts = DefaultConfigMaxAttempts
	}
	if c.Auth.RefreshMargin == 0 {
		c.Auth.RefreshMargin = DefaultConfigRefreshMargin
	}
	if c.Auth.KeySource == "" {
		c.Auth.KeySource = DefaultConfigKeySource
	}
	if c.Storage.LockTimeout == 0 {
		c.Storage.LockTimeout = DefaultConfigLockTimeout
	}
	if c.Defaults.Timezone == "" {
		c.Defaults.Timezone = DefaultConfigTimezone
	}

	if c.Storage.Dir == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("storage.dir required (auto-detect failed: %w)", err)
		}
		c.Storage.Dir = filepath.Join(configDir, "anymoment")
	}
	if c.Storage.TokensFile == "" {
		c.Storage.TokensFile = filepath.Join(c.Storage.Dir, "tokens.json")
	}
	if c.Storage.SaltFile == "" {
		c.Storage.SaltFile = filepath.Join(c.Storage.Dir, "salt")
	}

	// Dynamic defaults based on the key-source backend
	switch c.Auth.KeySource {
	case KeySourceTypeFile:
		if c.Storage.SecretFile == "" {
			c.Storage.SecretFile = filepath.Join(c.Storage.Dir, "install_id")
		}
	case KeySourceTypeKeyring:
		if c.Auth.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("auth.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Auth.KeyringUser = currentUser.Username
		}
	}

	return nil
}

// Validate validates the configuration using struct tags and
// backend-specific rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Auth.KeySource {
	case KeySourceTypeFile:
		if c.Storage.SecretFile == "" {
			return fmt.Errorf("storage.secret_file required for file key source")
		}
	case KeySourceTypeKeyring:
		if c.Auth.KeyringUser == "" {
			return fmt.Errorf("auth.keyring_user required for keyring key source")
		}
	}

	if c.Storage.LockTimeout < 0 {
		return fmt.Errorf("storage.lock_timeout must be positive")
	}

	return nil
}
