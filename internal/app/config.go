package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/florianilch/zmsession/internal/credstore"
	"github.com/florianilch/zmsession/internal/monitors"
	"github.com/florianilch/zmsession/internal/observability"
	"github.com/florianilch/zmsession/internal/session"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// StorageType represents the backends supported for the persisted session.
type StorageType string

const (
	StorageTypeFile    StorageType = "file"
	StorageTypeKeyring StorageType = "keyring"
	StorageTypeRedis   StorageType = "redis"
	StorageTypeMemory  StorageType = "memory"
)

// Default configuration values
const (
	DefaultConfigLogFormat       = LogFormatText
	DefaultConfigLogExporter     = observability.ExporterNone
	DefaultConfigAPIBaseURL      = "http://localhost/zm/api"
	DefaultConfigAPITimeout      = 30 * time.Second
	DefaultConfigAuthStorage     = StorageTypeFile
	DefaultConfigAuthKey         = credstore.DefaultKey
	DefaultConfigRedisAddr       = "localhost:6379"
	DefaultConfigRefreshMargin   = session.DefaultMargin
	DefaultConfigServerHost      = "127.0.0.1"
	DefaultConfigServerPort      = 4000
	DefaultConfigShutdownTimeout = 5 * time.Second
	DefaultConfigPollInterval    = monitors.DefaultPollInterval
)

// APIConfig holds remote API settings.
type APIConfig struct {
	BaseURL string        `json:"base_url" validate:"required,url"`
	Timeout time.Duration `json:"timeout" validate:"gte=0"`
}

// AuthConfig describes where the session is persisted and when it is renewed.
type AuthConfig struct {
	Storage StorageType `json:"storage" validate:"required,oneof=file keyring redis memory"`

	// Storage-specific settings (only the one matching Storage is used)
	File        string `json:"file,omitempty"`
	KeyringUser string `json:"keyring_user,omitempty"`
	RedisAddr   string `json:"redis_addr,omitempty" validate:"omitempty,hostname_port"`

	// Key names the persisted entry: the redis key and the keyring service.
	Key string `json:"key" validate:"required"`

	// RefreshMargin is how long before access expiry a token counts as stale.
	RefreshMargin time.Duration `json:"refresh_margin" validate:"gte=0"`
}

// NewSlot creates the storage slot selected by Storage. The returned close
// function releases backend connections and is never nil.
func (a *AuthConfig) NewSlot() (credstore.Slot, func() error, error) {
	noop := func() error { return nil }

	switch a.Storage {
	case StorageTypeFile:
		slot, err := credstore.NewFileSlot(a.File)
		return slot, noop, err
	case StorageTypeKeyring:
		slot, err := credstore.NewKeyringSlot(a.Key, a.KeyringUser)
		return slot, noop, err
	case StorageTypeRedis:
		client := redis.NewClient(&redis.Options{Addr: a.RedisAddr})
		slot, err := credstore.NewRedisSlot(client, a.Key)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return slot, client.Close, nil
	case StorageTypeMemory:
		return credstore.NewMemorySlot(), noop, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage type: %s", a.Storage)
	}
}

// ServerConfig holds local proxy server configuration.
type ServerConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// PollConfig holds monitor polling configuration.
type PollConfig struct {
	Interval time.Duration `json:"interval" validate:"gte=0"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel    slog.Level     `json:"log_level"`
	LogFormat   LogFormat      `json:"log_format" validate:"oneof=text json"`
	LogExporter string         `json:"log_exporter" validate:"oneof=none stdout otlp-http otlp-grpc"`
	API         APIConfig      `json:"api"`
	Auth        AuthConfig     `json:"auth"`
	Server      ServerConfig   `json:"server"`
	Shutdown    ShutdownConfig `json:"shutdown"`
	Poll        PollConfig     `json:"poll"`
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
	if c.LogExporter == "" {
		c.LogExporter = DefaultConfigLogExporter
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultConfigAPIBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultConfigAPITimeout
	}
	if c.Auth.Storage == "" {
		c.Auth.Storage = DefaultConfigAuthStorage
	}
	if c.Auth.Key == "" {
		c.Auth.Key = DefaultConfigAuthKey
	}
	if c.Auth.RefreshMargin == 0 {
		c.Auth.RefreshMargin = DefaultConfigRefreshMargin
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfigServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultConfigServerPort
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.Poll.Interval == 0 {
		c.Poll.Interval = DefaultConfigPollInterval
	}

	// Dynamic defaults based on storage type
	switch c.Auth.Storage {
	case StorageTypeFile:
		if c.Auth.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("auth.file required (auto-detect failed: %w)", err)
			}
			c.Auth.File = filepath.Join(configDir, "zmsession", "session.json")
		}
	case StorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("auth.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Auth.KeyringUser = currentUser.Username
		}
	case StorageTypeRedis:
		if c.Auth.RedisAddr == "" {
			c.Auth.RedisAddr = DefaultConfigRedisAddr
		}
	case StorageTypeMemory:
		// nothing to configure
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Auth.Storage {
	case StorageTypeFile:
		if c.Auth.File == "" {
			return errors.New("file path required for file storage")
		}
	case StorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	case StorageTypeRedis:
		if c.Auth.RedisAddr == "" {
			return errors.New("redis_addr required for redis storage")
		}
	}

	return nil
}
