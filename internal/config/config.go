// Package config provides configuration loading and management for the
// synchronization server.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openbridge/objectsync/internal/store"
	"github.com/openbridge/objectsync/internal/telemetry"
)

// DatabasePasswordEnv names the environment variable consulted when no
// password file is configured.
const DatabasePasswordEnv = "OBJECTSYNC_DATABASE_PASSWORD"

// Defaults applied when the configuration leaves fields empty.
const (
	DefaultListenAddress = ":8080"
	DefaultSyncInterval  = 5 * time.Minute
	DefaultLogRetention  = 7 * 24 * time.Hour
)

// Option defines the interface for configuration options.
type Option func(*loaderConfig) error

type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file.
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure.
type Config struct {
	// Server holds the HTTP API settings
	Server *ServerConfig `yaml:"server,omitempty"`

	// Storage selects the persistence backend
	Storage *StorageConfig `yaml:"storage,omitempty"`

	// Database holds connection settings, required when storage is
	// "database"
	Database *DatabaseConfig `yaml:"database,omitempty"`

	// Sync holds scheduler settings
	Sync *SyncConfig `yaml:"sync,omitempty"`

	// Telemetry holds tracing and metrics settings
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`

	// DefinitionsPath points to a YAML file, or a directory of YAML
	// files, holding synchronization definitions loaded at startup
	DefinitionsPath string `yaml:"definitionsPath,omitempty"`
}

// ServerConfig defines the HTTP API settings.
type ServerConfig struct {
	// ListenAddress is the address the API listens on; defaults to ":8080"
	ListenAddress string `yaml:"listenAddress,omitempty"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Type is "database" or "memory"; defaults to "memory"
	Type string `yaml:"type,omitempty"`
}

// SyncConfig defines scheduler settings.
type SyncConfig struct {
	// Interval between automatic runs of each synchronization (e.g.
	// "5m", "1h")
	Interval string `yaml:"interval,omitempty"`

	// LogRetention is how long run and contract logs are kept (e.g.
	// "168h"); empty means the default, "0" disables expiry
	LogRetention string `yaml:"logRetention,omitempty"`
}

// DatabaseConfig defines database connection settings.
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database
	// password. The file should contain only the password with optional
	// trailing whitespace.
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require,
	// verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g.
	// "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// GetPassword returns the database password, preferring the password file
// over the OBJECTSYNC_DATABASE_PASSWORD environment variable. Passwords
// read from file have surrounding whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		data, err := os.ReadFile(filepath.Clean(d.PasswordFile))
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(DatabasePasswordEnv); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or the %s environment variable",
		DatabasePasswordEnv,
	)
}

// GetConnectionString builds a PostgreSQL connection string. The password
// is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User,
		url.QueryEscape(password),
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	), nil
}

// LoadConfig loads and parses configuration from a YAML file.
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetListenAddress returns the API listen address, using the default when
// unset.
func (c *Config) GetListenAddress() string {
	if c.Server == nil || c.Server.ListenAddress == "" {
		return DefaultListenAddress
	}
	return c.Server.ListenAddress
}

// GetStorageType returns the storage backend type, defaulting to memory.
func (c *Config) GetStorageType() string {
	if c.Storage == nil || c.Storage.Type == "" {
		return store.StorageTypeMemory
	}
	return c.Storage.Type
}

// GetSyncInterval returns the scheduler interval.
func (c *Config) GetSyncInterval() time.Duration {
	if c.Sync == nil || c.Sync.Interval == "" {
		return DefaultSyncInterval
	}
	interval, err := time.ParseDuration(c.Sync.Interval)
	if err != nil {
		return DefaultSyncInterval
	}
	return interval
}

// GetLogRetention returns how long audit logs are kept. Zero disables
// expiry.
func (c *Config) GetLogRetention() time.Duration {
	if c.Sync == nil || c.Sync.LogRetention == "" {
		return DefaultLogRetention
	}
	retention, err := time.ParseDuration(c.Sync.LogRetention)
	if err != nil {
		return DefaultLogRetention
	}
	return retention
}

func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	switch c.GetStorageType() {
	case store.StorageTypeMemory:
	case store.StorageTypeDatabase:
		if c.Database == nil {
			return fmt.Errorf("database configuration is required when storage type is database")
		}
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database.database is required")
		}
	default:
		return fmt.Errorf("storage.type must be %q or %q, got %q",
			store.StorageTypeDatabase, store.StorageTypeMemory, c.Storage.Type)
	}

	if c.Sync != nil {
		if c.Sync.Interval != "" {
			if _, err := time.ParseDuration(c.Sync.Interval); err != nil {
				return fmt.Errorf("sync.interval must be a valid duration (e.g. '5m', '1h'): %w", err)
			}
		}
		if c.Sync.LogRetention != "" {
			if _, err := time.ParseDuration(c.Sync.LogRetention); err != nil {
				return fmt.Errorf("sync.logRetention must be a valid duration: %w", err)
			}
		}
	}

	if c.Telemetry != nil {
		if err := c.Telemetry.Validate(); err != nil {
			return err
		}
	}

	return nil
}
