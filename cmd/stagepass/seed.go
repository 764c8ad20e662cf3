// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stagepass Contributors

package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/stagepass/stagepass/internal/auth"
	authpg "github.com/stagepass/stagepass/internal/auth/postgres"
	"github.com/stagepass/stagepass/internal/store"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	password string
	timeout  time.Duration
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the admin credential",
		Long: `Creates the admin account credential used for admin login.
This command is idempotent - it will not overwrite an existing credential.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, args, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.password, "password", "", "initial admin password (default: ADMIN_PASSWORD environment variable)")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")

	return cmd
}

func runSeed(cmd *cobra.Command, _ []string, cfg *seedConfig) error {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("DATABASE_URL environment variable is required")
	}

	password := cfg.password
	if password == "" {
		password = os.Getenv("ADMIN_PASSWORD")
	}
	if password == "" {
		return oops.Code("CONFIG_INVALID").Errorf("--password or ADMIN_PASSWORD environment variable is required")
	}
	if len(password) < auth.MinPasswordLength {
		return oops.Code("SEED_FAILED").
			Errorf("admin password must be at least %d characters", auth.MinPasswordLength)
	}

	// Use cmd.Context() to respect SIGINT/SIGTERM signals
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()

	cmd.Println("Connecting to database...")
	pool, err := store.Connect(ctx, databaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	cmd.Println("Running migrations...")
	if err := runMigrations(databaseURL); err != nil {
		return err
	}

	digest, err := auth.NewLegacyHasher().Hash(password)
	if err != nil {
		return oops.Code("SEED_FAILED").With("operation", "hash admin password").Wrap(err)
	}

	if err := authpg.NewAdminRepository(pool).Seed(ctx, digest); err != nil {
		if errors.Is(err, auth.ErrDuplicate) {
			cmd.Println("Admin credential already exists, skipping seed")
			return nil
		}
		return oops.Code("SEED_FAILED").With("operation", "insert admin credential").Wrap(err)
	}

	cmd.Println("Admin credential seeded")
	return nil
}
