package config

import (
	"fmt"
	"time"

	"github.com/muurk/filecloud/internal/server"
)

// CurrentVersion is the config file format version.
const CurrentVersion = 1

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Config is the filecloud-server configuration file.
type Config struct {
	Version   int             `yaml:"version" toml:"version"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Store     StoreConfig     `yaml:"store" toml:"store"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
	Discovery DiscoveryConfig `yaml:"discovery" toml:"discovery"`
}

// ServerConfig holds the listener settings. They are applied through the
// server's guarded setters.
type ServerConfig struct {
	Host        string `yaml:"host" toml:"host"`
	Port        int    `yaml:"port" toml:"port"`
	BufferSize  int    `yaml:"buffer_size" toml:"buffer_size"`
	IdleTimeout string `yaml:"idle_timeout,omitempty" toml:"idle_timeout,omitempty"` // e.g. "5m"; empty disables
}

// LoggingConfig selects the log level. Empty keeps logging silent unless
// FILECLOUD_LOG_LEVEL is set.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty" toml:"level,omitempty"`
}

// StoreConfig selects the user and file stores.
type StoreConfig struct {
	Driver     string `yaml:"driver" toml:"driver"`
	Path       string `yaml:"path,omitempty" toml:"path,omitempty"` // sqlite database file
	UsersTable string `yaml:"users_table" toml:"users_table"`
	FilesTable string `yaml:"files_table" toml:"files_table"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty" toml:"addr,omitempty"`
}

// DiscoveryConfig controls mDNS advertisement and browsing.
type DiscoveryConfig struct {
	Advertise     bool   `yaml:"advertise" toml:"advertise"`
	Instance      string `yaml:"instance,omitempty" toml:"instance,omitempty"`
	BrowseTimeout int    `yaml:"browse_timeout" toml:"browse_timeout"` // seconds
}

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Server: ServerConfig{
			Port:       server.DefaultPort,
			BufferSize: server.DefaultBufferSize,
		},
		Store: StoreConfig{
			Driver:     DriverMemory,
			UsersTable: "users",
			FilesTable: "files",
		},
		Discovery: DiscoveryConfig{
			BrowseTimeout: 5,
		},
	}
}

// IdleTimeoutDuration parses Server.IdleTimeout.
func (c *Config) IdleTimeoutDuration() (time.Duration, error) {
	if c.Server.IdleTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Server.IdleTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid idle_timeout %q: %w", c.Server.IdleTimeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid idle_timeout %q: must not be negative", c.Server.IdleTimeout)
	}
	return d, nil
}

// Validate checks the configuration before the server is built. An
// out-of-range port is not an error here: the server falls back to its
// default port.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("unsupported config version: %d (expected %d)", c.Version, CurrentVersion)
	}
	if c.Server.BufferSize != 0 {
		if err := server.ValidateBufferSize(c.Server.BufferSize); err != nil {
			return fmt.Errorf("server.buffer_size: %w", err)
		}
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the %s driver", DriverSQLite)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.UsersTable == "" || c.Store.FilesTable == "" {
		return fmt.Errorf("store table names must not be empty")
	}
	if c.Discovery.BrowseTimeout < 0 {
		return fmt.Errorf("discovery.browse_timeout must not be negative")
	}
	if _, err := c.IdleTimeoutDuration(); err != nil {
		return err
	}
	return nil
}
