// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stagepass Contributors

package auth

import (
	"context"
	"time"

	"github.com/samber/oops"
)

// DefaultResetTokenTTL is how long a password-reset token stays valid.
const DefaultResetTokenTTL = time.Hour

// PasswordResetToken authorizes exactly one password change for an account.
type PasswordResetToken struct {
	Token     string
	Username  string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// NewPasswordResetToken creates a validated PasswordResetToken.
func NewPasswordResetToken(username, token string, expiresAt time.Time) (*PasswordResetToken, error) {
	if username == "" {
		return nil, oops.Code("RESET_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if token == "" {
		return nil, oops.Code("RESET_INVALID_TOKEN").Errorf("token cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("RESET_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}

	return &PasswordResetToken{
		Token:     token,
		Username:  username,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}, nil
}

// IsExpired returns true if the reset token has expired.
func (r *PasswordResetToken) IsExpired() bool {
	return !time.Now().Before(r.ExpiresAt)
}

// ResetTokenRepository manages password-reset token persistence.
type ResetTokenRepository interface {
	// Create stores a new reset token.
	Create(ctx context.Context, reset *PasswordResetToken) error

	// GetByToken retrieves a reset token by exact token match.
	GetByToken(ctx context.Context, token string) (*PasswordResetToken, error)

	// Consume marks the token used and writes the new admin digest in a
	// single transaction. It succeeds only while the token is unused and
	// unexpired; a concurrent consume loses and gets ErrNotFound. No state is
	// observable where one write landed without the other.
	Consume(ctx context.Context, token, digest string) error
}
