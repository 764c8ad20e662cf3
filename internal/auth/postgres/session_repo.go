// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stagepass Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/stagepass/stagepass/internal/auth"
)

// SessionRepository implements auth.SessionRepository using PostgreSQL.
type SessionRepository struct {
	db DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO sessions (token, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
	`,
		session.Token,
		session.UserID.String(),
		session.ExpiresAt,
		session.CreatedAt,
	)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByToken retrieves a session by exact token match.
func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*auth.Session, error) {
	row := r.db.QueryRow(ctx, `
		SELECT token, user_id, expires_at, created_at
		FROM sessions
		WHERE token = $1
	`, token)

	var (
		tok       string
		userIDStr string
		expiresAt time.Time
		createdAt time.Time
	)
	err := row.Scan(&tok, &userIDStr, &expiresAt, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "get session by token").
			Wrap(err)
	}

	userID, err := ulid.Parse(userIDStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_USER_ID").
			With("operation", "parse user id").
			With("user_id", userIDStr).
			Wrap(err)
	}

	return &auth.Session{
		Token:     tok,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: createdAt,
	}, nil
}

// Revoke sets the session expiry to the given instant. Sessions are kept for
// audit; an unknown or already-revoked token is a no-op.
func (r *SessionRepository) Revoke(ctx context.Context, token string, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE sessions SET expires_at = $2
		WHERE token = $1 AND expires_at > $2
	`, token, at)
	if err != nil {
		return oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "revoke session").
			Wrap(err)
	}
	return nil
}
