// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stagepass Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"
)

// ResetMailer delivers the password-reset email.
type ResetMailer interface {
	// SendPasswordReset mails the reset token to the recipient. The call must
	// be time-bounded by the implementation; it runs on the request path.
	SendPasswordReset(ctx context.Context, recipient, token string) error
}

// ResetConfig holds password-reset tunables injected at construction.
type ResetConfig struct {
	// RecipientEmail is the only address reset requests are honored for.
	RecipientEmail string

	// TokenTTL is the reset-token lifetime. Zero means DefaultResetTokenTTL.
	TokenTTL time.Duration

	// StoreTimeout bounds repository calls. Zero means DefaultStoreTimeout.
	StoreTimeout time.Duration
}

func (c *ResetConfig) applyDefaults() {
	if c.TokenTTL <= 0 {
		c.TokenTTL = DefaultResetTokenTTL
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = DefaultStoreTimeout
	}
}

// PasswordResetService handles the password reset flow for the admin account.
type PasswordResetService struct {
	admins AdminRepository
	resets ResetTokenRepository
	hasher PasswordHasher
	mailer ResetMailer
	cfg    ResetConfig
	logger *slog.Logger
}

// NewPasswordResetService creates a new PasswordResetService.
func NewPasswordResetService(admins AdminRepository, resets ResetTokenRepository, hasher PasswordHasher, mailer ResetMailer, cfg ResetConfig) (*PasswordResetService, error) {
	return NewPasswordResetServiceWithLogger(admins, resets, hasher, mailer, cfg, slog.Default())
}

// NewPasswordResetServiceWithLogger creates a new PasswordResetService with an
// explicit logger.
func NewPasswordResetServiceWithLogger(admins AdminRepository, resets ResetTokenRepository, hasher PasswordHasher, mailer ResetMailer, cfg ResetConfig, logger *slog.Logger) (*PasswordResetService, error) {
	if admins == nil {
		return nil, oops.Errorf("admin repository is required")
	}
	if resets == nil {
		return nil, oops.Errorf("reset token repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if mailer == nil {
		return nil, oops.Errorf("reset mailer is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	cfg.applyDefaults()
	return &PasswordResetService{
		admins: admins,
		resets: resets,
		hasher: hasher,
		mailer: mailer,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// RequestReset issues a reset token and mails it to the configured recipient.
//
// The acknowledgement is identical whether or not the supplied email matches
// the recipient, so callers cannot probe which address is configured. For a
// non-matching email nothing is stored and nothing is sent. A mail-delivery
// failure is surfaced, but the stored token stays valid for its full
// lifetime so a transient outage does not burn the request.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	if s.cfg.RecipientEmail == "" {
		return oops.Code(CodeAdminNotConfigured).Errorf("recovery email not configured")
	}

	if !strings.EqualFold(strings.TrimSpace(email), s.cfg.RecipientEmail) {
		return nil
	}

	token, err := GenerateToken()
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "generate reset token").
			Wrap(err)
	}

	reset, err := NewPasswordResetToken(AdminUsername, token, time.Now().Add(s.cfg.TokenTTL))
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "create reset token").
			Wrap(err)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	if err := s.resets.Create(storeCtx, reset); err != nil {
		return mapStoreErr(oops.Code("RESET_REQUEST_FAILED").
			With("operation", "persist reset token").
			Wrap(err), "persist reset token")
	}

	if err := s.mailer.SendPasswordReset(ctx, s.cfg.RecipientEmail, token); err != nil {
		s.logger.Warn("reset email delivery failed, token remains valid",
			"operation", "send_reset_email",
			"error", err)
		return oops.Code(CodeEmailDelivery).
			With("operation", "send reset email").
			Wrap(err)
	}

	return nil
}

// ConfirmReset changes the admin password using a valid, unused, unexpired
// reset token. Marking the token used and writing the new digest commit
// together; a token authorizes exactly one successful reset.
func (s *PasswordResetService) ConfirmReset(ctx context.Context, token, newPassword string) error {
	if token == "" || newPassword == "" {
		return oops.Code(CodeInvalidInput).Errorf("token and new password required")
	}
	if len(newPassword) < MinPasswordLength {
		return oops.Code(CodePasswordTooShort).
			With("min", MinPasswordLength).
			Errorf("password must be at least %d characters", MinPasswordLength)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	reset, err := s.resets.GetByToken(storeCtx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeResetTokenInvalid).Errorf("invalid or expired token")
		}
		return mapStoreErr(oops.Code("RESET_CONFIRM_FAILED").
			With("operation", "get reset token").
			Wrap(err), "get reset token")
	}
	if reset.Used || reset.IsExpired() {
		return oops.Code(CodeResetTokenInvalid).Errorf("invalid or expired token")
	}

	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_CONFIRM_FAILED").
			With("operation", "hash new password").
			Wrap(err)
	}

	if err := s.resets.Consume(storeCtx, token, digest); err != nil {
		if errors.Is(err, ErrNotFound) {
			// Lost a race with a concurrent confirmation.
			return oops.Code(CodeResetTokenInvalid).Errorf("invalid or expired token")
		}
		return mapStoreErr(oops.Code("RESET_CONFIRM_FAILED").
			With("operation", "consume reset token").
			Wrap(err), "consume reset token")
	}

	return nil
}
