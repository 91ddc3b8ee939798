// Package config handles Charla configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the root configuration structure.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Store settings
	Store StoreConfig `yaml:"store" mapstructure:"store"`

	// Server settings (charlad)
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Engine settings
	Engine EngineConfig `yaml:"engine" mapstructure:"engine"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Session is the CLI's signed-in identity.
	Session SessionConfig `yaml:"session" mapstructure:"session"`
}

// GlobalConfig contains global settings.
type GlobalConfig struct {
	// DataDir is where Charla stores its data (default: ~/.local/share/charla).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`
}

// StoreConfig selects and configures the backing store.
type StoreConfig struct {
	// Driver is one of memory, sqlite, postgres.
	Driver string `yaml:"driver" mapstructure:"driver"`

	// SQLitePath is the database file path (default: DataDir/charla.db).
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`

	// PostgresDSN is the connection string for the postgres driver.
	PostgresDSN string `yaml:"postgres_dsn" mapstructure:"postgres_dsn"`

	// PollInterval is the minimum change-poll cadence for drivers without
	// native change notification (sqlite).
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`

	// PollMax caps the poll backoff for idle subscriptions.
	PollMax time.Duration `yaml:"poll_max" mapstructure:"poll_max"`
}

// ServerConfig contains charlad settings.
type ServerConfig struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// EngineConfig contains reconciliation engine settings.
type EngineConfig struct {
	// PlaceholderName is shown when a display name cannot be resolved.
	PlaceholderName string `yaml:"placeholder_name" mapstructure:"placeholder_name"`

	// EventBuffer is the engine's internal event channel capacity.
	EventBuffer int `yaml:"event_buffer" mapstructure:"event_buffer"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`
}

// SessionConfig identifies the CLI user.
type SessionConfig struct {
	Email string `yaml:"email" mapstructure:"email"`
	Name  string `yaml:"name" mapstructure:"name"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Global: GlobalConfig{
			DataDir: filepath.Join(homeDir, ".local", "share", "charla"),
		},
		Store: StoreConfig{
			Driver:       DriverSQLite,
			PollInterval: 100 * time.Millisecond,
			PollMax:      2 * time.Second,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8483",
		},
		Engine: EngineConfig{
			PlaceholderName: "Unknown",
			EventBuffer:     64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("store.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("store.driver must be one of memory, sqlite, postgres")
	}

	if c.Store.PollInterval < 10*time.Millisecond {
		return fmt.Errorf("store.poll_interval must be at least 10ms")
	}
	if c.Store.PollMax < c.Store.PollInterval {
		return fmt.Errorf("store.poll_max must be at least store.poll_interval")
	}
	if c.Engine.EventBuffer < 1 {
		return fmt.Errorf("engine.event_buffer must be at least 1")
	}
	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Global.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", c.Global.DataDir, err)
	}
	return nil
}

// SQLitePath returns the full sqlite database path.
func (c *Config) SQLitePath() string {
	if c.Store.SQLitePath != "" {
		return c.Store.SQLitePath
	}
	return filepath.Join(c.Global.DataDir, "charla.db")
}
