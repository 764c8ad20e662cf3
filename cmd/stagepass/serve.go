// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stagepass Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/stagepass/stagepass/internal/auth"
	authpg "github.com/stagepass/stagepass/internal/auth/postgres"
	"github.com/stagepass/stagepass/internal/config"
	"github.com/stagepass/stagepass/internal/httpapi"
	"github.com/stagepass/stagepass/internal/logging"
	"github.com/stagepass/stagepass/internal/mail"
	"github.com/stagepass/stagepass/internal/observability"
	"github.com/stagepass/stagepass/internal/store"
	"github.com/stagepass/stagepass/internal/xdg"
	"github.com/stagepass/stagepass/pkg/errutil"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the auth API server",
		Long: `Start the HTTP API server that handles registration, login,
sessions, admin access and password recovery.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := configFile
			if path == "" {
				path = xdg.DefaultConfigFile()
			}
			cfg, err := config.Load(path, cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	// Flag names follow config keys so they merge over the config file.
	cmd.Flags().String("database.url", "", "PostgreSQL DSN (default: DATABASE_URL)")
	cmd.Flags().String("api.addr", ":8080", "API listen address")
	cmd.Flags().String("metrics.addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log.format", "json", "log format (json or text)")
	cmd.Flags().String("log.level", "info", "log level (debug, info, warn, error)")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logging.SetDefault("stagepass", version, cfg.Log.Format, logging.ParseLevel(cfg.Log.Level))

	slog.Info("starting auth service",
		"api_addr", cfg.API.Addr,
		"log_format", cfg.Log.Format,
	)

	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	slog.Info("connected to database")

	if err := runMigrations(cfg.Database.URL); err != nil {
		return err
	}

	services, err := buildServices(pool, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start observability server if configured
	var obsServer *observability.Server
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = observability.NewServer(cfg.Metrics.Addr, func() bool {
			pingCtx, pingCancel := context.WithTimeout(context.Background(), time.Second)
			defer pingCancel()
			return pool.Ping(pingCtx) == nil
		})
		metrics = obsServer.Metrics()
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
	}

	apiServer, err := httpapi.NewServer(cfg.API.Addr, services.accounts, services.admin, services.resets, metrics)
	if err != nil {
		return oops.Code("API_INIT_FAILED").Wrap(err)
	}

	apiErrChan, err := apiServer.Start()
	if err != nil {
		return oops.Code("API_START_FAILED").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	slog.Info("auth service ready", "api_addr", apiServer.Addr())

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		slog.Warn("error stopping api server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	slog.Info("shutdown complete")
	return nil
}

// services bundles the wired domain services.
type services struct {
	accounts *auth.Service
	admin    *auth.AdminService
	resets   *auth.PasswordResetService
}

// buildServices wires repositories, hasher and mailer into the services.
func buildServices(pool authpg.DB, cfg *config.Config) (*services, error) {
	hasher := auth.NewLegacyHasher()

	limiter := auth.NewRegistrationLimiter(authpg.NewAttemptRepository(pool), auth.RatePolicy{
		MaxAttempts:   cfg.Auth.MaxAttempts,
		Window:        cfg.Auth.AttemptWindow,
		BlockDuration: cfg.Auth.BlockDuration,
	})

	accounts, err := auth.NewService(
		authpg.NewUserRepository(pool),
		authpg.NewSessionRepository(pool),
		limiter,
		hasher,
		auth.ServiceConfig{SessionTTL: cfg.Auth.SessionTTL},
	)
	if err != nil {
		return nil, oops.Code("SERVICE_INIT_FAILED").With("service", "accounts").Wrap(err)
	}

	admin, err := auth.NewAdminService(
		authpg.NewAdminRepository(pool),
		hasher,
		auth.PrefixTokenVerifier{},
		auth.ServiceConfig{},
	)
	if err != nil {
		return nil, oops.Code("SERVICE_INIT_FAILED").With("service", "admin").Wrap(err)
	}

	mailer, err := buildMailer(cfg)
	if err != nil {
		return nil, err
	}

	resets, err := auth.NewPasswordResetService(
		authpg.NewAdminRepository(pool),
		authpg.NewResetTokenRepository(pool),
		hasher,
		mailer,
		auth.ResetConfig{
			RecipientEmail: cfg.Reset.RecoveryEmail,
			TokenTTL:       cfg.Reset.TokenTTL,
		},
	)
	if err != nil {
		return nil, oops.Code("SERVICE_INIT_FAILED").With("service", "resets").Wrap(err)
	}

	return &services{accounts: accounts, admin: admin, resets: resets}, nil
}

// buildMailer returns the SMTP mailer, or a disabled one when password reset
// is not configured. The disabled mailer is unreachable in practice because
// reset requests are refused before mailing when no recovery email is set.
func buildMailer(cfg *config.Config) (auth.ResetMailer, error) {
	if cfg.Reset.RecoveryEmail == "" {
		return disabledMailer{}, nil
	}
	mailer, err := mail.NewSMTPMailer(mail.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		SiteURL:  cfg.Reset.SiteURL,
	})
	if err != nil {
		return nil, oops.Code("SERVICE_INIT_FAILED").With("service", "mailer").Wrap(err)
	}
	return mailer, nil
}

type disabledMailer struct{}

func (disabledMailer) SendPasswordReset(context.Context, string, string) error {
	return oops.Code("EMAIL_DELIVERY_FAILED").Errorf("smtp is not configured")
}

// monitorServerErrors monitors a server's error channel and cancels the
// context on error so a failing server triggers graceful shutdown.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			// Channel closed, server stopped gracefully
			return
		}
		if err != nil {
			errutil.LogError(slog.Default().With("server", serverName),
				"server error, triggering shutdown", err)
			cancel()
		}
	case <-ctx.Done():
		// Context cancelled, exit monitoring
	}
}
