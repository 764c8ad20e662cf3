// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stagepass Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/stagepass/stagepass/internal/auth"
)

// ResetTokenRepository implements auth.ResetTokenRepository using PostgreSQL.
type ResetTokenRepository struct {
	db DB
}

// NewResetTokenRepository creates a new ResetTokenRepository.
func NewResetTokenRepository(db DB) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

// Create stores a new reset token.
func (r *ResetTokenRepository) Create(ctx context.Context, reset *auth.PasswordResetToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO password_reset_tokens (token, username, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		reset.Token,
		reset.Username,
		reset.ExpiresAt,
		reset.Used,
		reset.CreatedAt,
	)
	if err != nil {
		return oops.Code("RESET_CREATE_FAILED").
			With("operation", "insert reset token").
			With("username", reset.Username).
			Wrap(err)
	}
	return nil
}

// GetByToken retrieves a reset token by exact token match.
func (r *ResetTokenRepository) GetByToken(ctx context.Context, token string) (*auth.PasswordResetToken, error) {
	row := r.db.QueryRow(ctx, `
		SELECT token, username, expires_at, used, created_at
		FROM password_reset_tokens
		WHERE token = $1
	`, token)

	var (
		tok       string
		username  string
		expiresAt time.Time
		used      bool
		createdAt time.Time
	)
	err := row.Scan(&tok, &username, &expiresAt, &used, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RESET_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("RESET_GET_BY_TOKEN_FAILED").
			With("operation", "get reset token").
			Wrap(err)
	}

	return &auth.PasswordResetToken{
		Token:     tok,
		Username:  username,
		ExpiresAt: expiresAt,
		Used:      used,
		CreatedAt: createdAt,
	}, nil
}

// Consume marks the token used and writes the new admin digest in one
// transaction. The used flag flips only while the token is unused and
// unexpired, so the update statement itself arbitrates concurrent
// confirmations: exactly one wins, the rest see auth.ErrNotFound.
func (r *ResetTokenRepository) Consume(ctx context.Context, token, digest string) error {
	now := time.Now()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return oops.Code("RESET_CONSUME_FAILED").
			With("operation", "begin transaction").
			Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var username string
	err = tx.QueryRow(ctx, `
		UPDATE password_reset_tokens
		SET used = TRUE
		WHERE token = $1 AND used = FALSE AND expires_at > $2
		RETURNING username
	`, token, now).Scan(&username)
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.Code("RESET_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return oops.Code("RESET_CONSUME_FAILED").
			With("operation", "mark token used").
			Wrap(err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE admin_credentials
		SET password_hash = $1, updated_at = $2
		WHERE username = $3
	`, digest, now, username)
	if err != nil {
		return oops.Code("RESET_CONSUME_FAILED").
			With("operation", "update password").
			With("username", username).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("RESET_CONSUME_FAILED").
			With("username", username).
			Wrap(auth.ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("RESET_CONSUME_FAILED").
			With("operation", "commit transaction").
			Wrap(err)
	}

	return nil
}
