package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Veraticus/claimflow/internal/backend"
	"github.com/Veraticus/claimflow/internal/cli"
	"github.com/Veraticus/claimflow/internal/common"
	"github.com/Veraticus/claimflow/internal/config"
	"github.com/Veraticus/claimflow/internal/identity"
	"github.com/Veraticus/claimflow/internal/service"
	"github.com/Veraticus/claimflow/internal/storage"
	"github.com/Veraticus/claimflow/internal/workflow"
	"github.com/mattn/go-isatty"
	"github.com/spf13/viper"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

// session bundles everything a workflow command needs.
type session struct {
	cfg        *config.Config
	store      service.Store
	controller *workflow.Controller
}

func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// initStore opens the configured store and brings the sqlite schema up to date.
func initStore(ctx context.Context, cfg *config.Config) (service.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverRedis:
		store, err := storage.NewRedisStorage(ctx, storage.RedisOptions{
			Addr:      cfg.Redis.Addr,
			Username:  cfg.Redis.Username,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			TTL:       cfg.Redis.TTL,
			Namespace: cfg.Storage.Namespace,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		store, err := storage.NewSQLiteStorage(cfg.Storage.Path, cfg.Storage.Namespace)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return store, nil
	}
}

// openSession loads config, opens the store and resumes the controller.
func openSession(ctx context.Context) (*session, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	store, err := initStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			common.LogError(err, "Failed to close store", common.Fields{"driver": cfg.Storage.Driver})
		}
	}

	client, err := backend.NewClient(cfg.Backend.URL, cfg.Backend.Timeout)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	users := identity.NewStoreProvider(store)
	controller, err := workflow.Open(ctx, store, client, workflow.Options{
		Identity: identity.Chain{identity.Static(cfg.UserID), users},
		OnTransition: func(from, to workflow.Phase) {
			slog.Debug("Workflow transition", "from", from, "to", to)
		},
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return &session{
		cfg:        cfg,
		store:      store,
		controller: controller,
	}, cleanup, nil
}

// step runs fn behind a spinner and prints the log entries it produced.
func (s *session) step(w io.Writer, description string, fn func() error) error {
	mark := s.controller.Log().Len()

	spinner := cli.StartSpinner(os.Stderr, description, isatty.IsTerminal(os.Stderr.Fd()))
	err := fn()
	spinner.Stop()

	printEntries(w, s.controller, mark)
	return err
}

func printEntries(w io.Writer, c *workflow.Controller, since int) {
	for _, entry := range c.Log().Since(since) {
		if _, err := fmt.Fprintln(w, cli.FormatLogEntry(entry)); err != nil {
			slog.Error("failed to write output", "error", err)
			return
		}
	}
}

func writeLine(w io.Writer, line string) {
	if _, err := fmt.Fprintln(w, line); err != nil {
		slog.Error("failed to write output", "error", err)
	}
}
