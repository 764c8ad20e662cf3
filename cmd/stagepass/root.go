// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stagepass Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Stagepass CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stagepass",
		Short: "Stagepass - account and session service",
		Long: `Stagepass provides user registration, login sessions, admin access
and password recovery over an HTTP/JSON API backed by PostgreSQL.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}
