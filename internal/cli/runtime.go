package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmvargas/charla/internal/config"
	"github.com/jmvargas/charla/internal/session"
	"github.com/jmvargas/charla/internal/store"
	"github.com/jmvargas/charla/internal/store/memstore"
	"github.com/jmvargas/charla/internal/store/pgstore"
	"github.com/jmvargas/charla/internal/store/sqlitestore"
)

// runtime bundles everything a command needs: loaded config, an open
// store, and the acting identity. Callers must Close it.
type runtime struct {
	cfg      *config.Config
	store    store.Store
	identity session.Identity
}

func (rt *runtime) Close() {
	if rt.store != nil {
		_ = rt.store.Close()
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	loader := config.NewLoader()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loader.SetConfigFile(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openStore(cmd *cobra.Command, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return memstore.New(), nil
	case config.DriverSQLite:
		return sqlitestore.Open(cfg.SQLitePath(), sqlitestore.Options{
			PollInterval: cfg.Store.PollInterval,
			PollMax:      cfg.Store.PollMax,
		})
	case config.DriverPostgres:
		return pgstore.Open(cmd.Context(), cfg.Store.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// openRuntime loads config, opens the configured store, and resolves
// the acting identity from the --user flag or the configured session.
func openRuntime(cmd *cobra.Command) (*runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	st, err := openStore(cmd, cfg)
	if err != nil {
		return nil, err
	}

	email := cfg.Session.Email
	name := cfg.Session.Name
	if flagUser, _ := cmd.Flags().GetString("user"); flagUser != "" {
		email = flagUser
		name = ""
	}
	if email == "" {
		_ = st.Close()
		return nil, fmt.Errorf("no session configured: set session.email or pass --user")
	}

	provider := session.NewStatic("", email, name)
	id, err := provider.Current()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &runtime{cfg: cfg, store: st, identity: id}, nil
}
