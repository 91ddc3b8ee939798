// Package main is the entry point for the charlad daemon.
// charlad serves the chat API: JSON endpoints for profile and message
// writes, plus websocket streams for live conversation lists.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmvargas/charla/internal/config"
	"github.com/jmvargas/charla/internal/engine"
	"github.com/jmvargas/charla/internal/logging"
	"github.com/jmvargas/charla/internal/server"
	"github.com/jmvargas/charla/internal/store"
	"github.com/jmvargas/charla/internal/store/memstore"
	"github.com/jmvargas/charla/internal/store/pgstore"
	"github.com/jmvargas/charla/internal/store/sqlitestore"
)

// Version information (set by goreleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var _ = []string{version, commit, date}

func main() {
	addr := flag.String("addr", "", "listen address (overrides config)")
	configFile := flag.String("config", "", "config file (default is $HOME/.config/charla/config.yaml)")
	logLevel := flag.String("log-level", "", "override logging level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "override logging format (json, console)")
	flag.Parse()

	loader := config.NewLoader()
	if *configFile != "" {
		loader.SetConfigFile(*configFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logger := logging.Component("charlad")

	if err := cfg.EnsureDirectories(); err != nil {
		logger.Warn().Err(err).Msg("failed to create directories")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer func() { _ = st.Close() }()

	if *addr == "" {
		*addr = cfg.Server.Addr
	}

	opts := engine.DefaultOptions()
	opts.PlaceholderName = cfg.Engine.PlaceholderName
	opts.EventBuffer = cfg.Engine.EventBuffer

	srv := server.New(*addr, st, opts)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("server exited")
	}
	logger.Info().Msg("shutdown complete")
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return memstore.New(), nil
	case config.DriverSQLite:
		return sqlitestore.Open(cfg.SQLitePath(), sqlitestore.Options{
			PollInterval: cfg.Store.PollInterval,
			PollMax:      cfg.Store.PollMax,
		})
	case config.DriverPostgres:
		return pgstore.Open(ctx, cfg.Store.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
