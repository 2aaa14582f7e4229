// roadsync coordinates roadside assistance requests between stranded
// drivers and mechanics.
package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/openrescue/roadsync/internal/config"
	"github.com/openrescue/roadsync/internal/engine"
	"github.com/openrescue/roadsync/internal/session"
	"github.com/openrescue/roadsync/internal/storage"
	"github.com/openrescue/roadsync/internal/storage/sqlstore"
	"github.com/openrescue/roadsync/internal/ui"
)

var (
	cfgFile      string
	stateDirFlag string
)

var rootCmd = &cobra.Command{
	Use:   "roadsync",
	Short: "Coordinate roadside assistance requests",
	Long: `roadsync synchronizes roadside assistance requests between drivers,
mechanics, and a shared backend.

Requests move through a guarded lifecycle: open -> assigned ->
in_progress -> completed. Each transition is an atomic conditional
write, so two mechanics racing for the same request resolve cleanly
with exactly one winner.

By default roadsync works against a local database under ~/.roadsync.
Configure backend.url and backend.key to run against a shared Postgres
backend instead.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.RenderErr("Error: "+err.Error()))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default roadsync.yaml)")
	rootCmd.PersistentFlags().StringVar(&stateDirFlag, "state-dir", "", "state directory (default ~/.roadsync)")
}

// app bundles the wired application services for one command
// invocation.
type app struct {
	cfg    *config.Config
	store  storage.Store
	auth   *session.Authenticator
	engine *engine.Engine
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".roadsync"
	}
	return filepath.Join(home, ".roadsync")
}

func loadConfig() (*config.Config, error) {
	stateDir := stateDirFlag
	if stateDir == "" {
		stateDir = defaultStateDir()
	}
	return config.Load(cfgFile, stateDir)
}

// newApp opens the configured store and wires the engine and session
// layers. The caller closes it.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	var store *sqlstore.Store
	if cfg.Online() {
		dsn, err := backendDSN(cfg.Backend.URL, cfg.Backend.Key)
		if err != nil {
			return nil, err
		}
		store, err = sqlstore.OpenPostgres(dsn)
		if err != nil {
			return nil, err
		}
	} else {
		store, err = sqlstore.Open(cfg.DatabasePath())
		if err != nil {
			return nil, err
		}
		// The local database is created on demand.
		if err := store.InitSchema(cmd.Context()); err != nil {
			store.Close()
			return nil, err
		}
	}

	return &app{
		cfg:   cfg,
		store: store,
		auth:  session.NewAuthenticator(store, cfg.StateDir, cfg.Auth.Secret),
		engine: engine.New(store, &engine.Config{
			ReadTimeout:  cfg.Timeout.Read,
			WriteTimeout: cfg.Timeout.Write,
		}),
	}, nil
}

func (a *app) Close() {
	_ = a.store.Close()
}

// backendDSN injects the service key as the connection password when
// the URL does not already carry one.
func backendDSN(rawURL, key string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse backend url: %w", err)
	}
	if u.User == nil {
		u.User = url.UserPassword("roadsync", key)
	} else if _, has := u.User.Password(); !has {
		u.User = url.UserPassword(u.User.Username(), key)
	}
	return u.String(), nil
}
