// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stagepass Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultSessionTTL is how long an issued session token stays valid.
const DefaultSessionTTL = 30 * 24 * time.Hour

// Session represents an issued bearer token for a user.
//
// The token is stored verbatim and looked up by exact match; revocation sets
// ExpiresAt to the revocation instant rather than deleting the row, so the
// record stays available for audit.
type Session struct {
	Token     string
	UserID    ulid.ULID
	ExpiresAt time.Time
	CreatedAt time.Time
}

// NewSession creates a validated Session.
func NewSession(userID ulid.ULID, token string, expiresAt time.Time) (*Session, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if token == "" {
		return nil, oops.Code("SESSION_INVALID_TOKEN").Errorf("token cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}

	return &Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}, nil
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return !time.Now().Before(s.ExpiresAt)
}

// IsExpiredAt returns true if the session would be expired at the given time.
// Useful for testing with deterministic time values.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetByToken retrieves a session by exact token match.
	GetByToken(ctx context.Context, token string) (*Session, error)

	// Revoke sets the session expiry to the given instant. Revoking an
	// unknown or already-revoked token is a no-op, not an error.
	Revoke(ctx context.Context, token string, at time.Time) error
}
