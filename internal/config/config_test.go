package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, DriverSQLite, cfg.Store.Driver)
	require.Equal(t, "127.0.0.1:8483", cfg.Server.Addr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults pass",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "unknown driver rejected",
			mutate:  func(c *Config) { c.Store.Driver = "redis" },
			wantErr: true,
		},
		{
			name:    "postgres requires dsn",
			mutate:  func(c *Config) { c.Store.Driver = DriverPostgres },
			wantErr: true,
		},
		{
			name: "postgres with dsn passes",
			mutate: func(c *Config) {
				c.Store.Driver = DriverPostgres
				c.Store.PostgresDSN = "postgres://localhost/charla"
			},
			wantErr: false,
		},
		{
			name:    "poll interval too small rejected",
			mutate:  func(c *Config) { c.Store.PollInterval = time.Millisecond },
			wantErr: true,
		},
		{
			name:    "poll max below interval rejected",
			mutate:  func(c *Config) { c.Store.PollMax = 10 * time.Millisecond },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSQLitePathDefaultsToDataDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Global.DataDir = "/tmp/charla-test"
	cfg.Store.SQLitePath = ""
	require.Equal(t, filepath.Join("/tmp/charla-test", "charla.db"), cfg.SQLitePath())

	cfg.Store.SQLitePath = "/elsewhere/db.sqlite"
	require.Equal(t, "/elsewhere/db.sqlite", cfg.SQLitePath())
}

func TestLoader_FileAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := []byte(`
store:
  driver: memory
session:
  email: ana@example.com
  name: Ana
`)
	require.NoError(t, os.WriteFile(path, contents, 0o644))

	loader := NewLoader()
	loader.SetConfigFile(path)
	cfg, err := loader.Load()
	require.NoError(t, err)
	require.Equal(t, DriverMemory, cfg.Store.Driver)
	require.Equal(t, "ana@example.com", cfg.Session.Email)

	// Environment overrides the file.
	t.Setenv("CHARLA_SESSION_EMAIL", "bruno@example.com")
	loader = NewLoader()
	loader.SetConfigFile(path)
	cfg, err = loader.Load()
	require.NoError(t, err)
	require.Equal(t, "bruno@example.com", cfg.Session.Email)
}

func TestLoader_MissingExplicitFileFails(t *testing.T) {
	loader := NewLoader()
	loader.SetConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := loader.Load()
	require.Error(t, err)
}
