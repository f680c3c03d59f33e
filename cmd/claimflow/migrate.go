package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/claimflow/internal/cli"
	"github.com/Veraticus/claimflow/internal/config"
	"github.com/Veraticus/claimflow/internal/storage"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the sqlite schema to the latest version.

Other commands migrate automatically; use --status to inspect the schema
without changing it.`,
		RunE: runMigrate,
	}

	cmd.Flags().Bool("status", false, "Show current migration status without applying changes")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	status, _ := cmd.Flags().GetBool("status")
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Storage.Driver != config.DriverSQLite {
		writeLine(out, cli.FormatInfo(fmt.Sprintf("Storage driver %s has no schema to migrate", cfg.Storage.Driver)))
		return nil
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.Path, cfg.Storage.Namespace)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	current, err := store.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	if status {
		body := fmt.Sprintf("%s\nschema version %d of %d",
			cfg.Storage.Path, current, storage.ExpectedSchemaVersion)
		if current > 0 {
			keys, err := store.Keys(ctx)
			if err != nil {
				return err
			}
			stored := "none"
			if len(keys) > 0 {
				stored = strings.Join(keys, ", ")
			}
			body += fmt.Sprintf("\nnamespace %s keys: %s", cfg.Storage.Namespace, stored)
		}
		writeLine(out, cli.RenderBox("Database", body))
		return nil
	}

	slog.Info("Running database migrations", "database", cfg.Storage.Path, "from", current)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	writeLine(out, cli.FormatSuccess(fmt.Sprintf("Database at schema version %d", storage.ExpectedSchemaVersion)))
	return nil
}
