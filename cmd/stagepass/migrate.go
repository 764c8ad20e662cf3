// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stagepass Contributors

package main

import (
	"log/slog"
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/stagepass/stagepass/internal/store"
)

// migrateConfig holds configuration for the migrate subcommand.
type migrateConfig struct {
	down  bool
	steps int
	force int
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cfg := &migrateConfig{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Apply database migrations against the PostgreSQL database.
By default all pending migrations are applied.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateCmd(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.down, "down", false, "roll back all migrations")
	cmd.Flags().IntVar(&cfg.steps, "steps", 0, "apply n migrations up (negative = down), 0 = all pending")
	cmd.Flags().IntVar(&cfg.force, "force", -1, "force the schema version without running migrations (recovery only)")

	return cmd
}

func runMigrateCmd(cmd *cobra.Command, cfg *migrateConfig) error {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL environment variable is required")
	}

	migrator, err := store.NewMigrator(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("error closing migrator", "error", closeErr)
		}
	}()

	switch {
	case cfg.force >= 0:
		cmd.Printf("Forcing schema version to %d...\n", cfg.force)
		if err := migrator.Force(cfg.force); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "force version").Wrap(err)
		}
	case cfg.down:
		cmd.Println("Rolling back all migrations...")
		if err := migrator.Down(); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "migrate down").Wrap(err)
		}
	case cfg.steps != 0:
		cmd.Printf("Applying %d migration step(s)...\n", cfg.steps)
		if err := migrator.Steps(cfg.steps); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "migrate steps").Wrap(err)
		}
	default:
		cmd.Println("Running migrations...")
		if err := migrator.Up(); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "migrate up").Wrap(err)
		}
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "read version").Wrap(err)
	}
	cmd.Printf("Migrations completed (version %d, dirty=%v)\n", version, dirty)
	return nil
}

// runMigrations applies all pending migrations. Used by serve at startup.
func runMigrations(databaseURL string) error {
	migrator, err := store.NewMigrator(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("error closing migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "migrate up").Wrap(err)
	}
	slog.Info("migrations applied")
	return nil
}
