// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stagepass Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/stagepass/stagepass/internal/auth"
)

// AdminRepository implements auth.AdminRepository using PostgreSQL.
type AdminRepository struct {
	db DB
}

// NewAdminRepository creates a new AdminRepository.
func NewAdminRepository(db DB) *AdminRepository {
	return &AdminRepository{db: db}
}

// Get retrieves the singleton admin credential.
func (r *AdminRepository) Get(ctx context.Context) (*auth.AdminCredential, error) {
	row := r.db.QueryRow(ctx, `
		SELECT username, password_hash, updated_at
		FROM admin_credentials
		WHERE username = $1
	`, auth.AdminUsername)

	var (
		username     string
		passwordHash string
		updatedAt    time.Time
	)
	err := row.Scan(&username, &passwordHash, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ADMIN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ADMIN_GET_FAILED").
			With("operation", "get admin credential").
			Wrap(err)
	}

	return &auth.AdminCredential{
		Username:     username,
		PasswordHash: passwordHash,
		UpdatedAt:    updatedAt,
	}, nil
}

// UpdatePassword replaces the admin digest.
func (r *AdminRepository) UpdatePassword(ctx context.Context, digest string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE admin_credentials
		SET password_hash = $1, updated_at = $2
		WHERE username = $3
	`, digest, time.Now(), auth.AdminUsername)
	if err != nil {
		return oops.Code("ADMIN_UPDATE_PASSWORD_FAILED").
			With("operation", "update admin password").
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("ADMIN_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	return nil
}

// Seed inserts the admin credential. An existing record surfaces as
// auth.ErrDuplicate so callers can treat re-seeding as a no-op.
func (r *AdminRepository) Seed(ctx context.Context, digest string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO admin_credentials (username, password_hash, updated_at)
		VALUES ($1, $2, $3)
	`, auth.AdminUsername, digest, time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("ADMIN_DUPLICATE").Wrap(auth.ErrDuplicate)
		}
		return oops.Code("ADMIN_SEED_FAILED").
			With("operation", "insert admin credential").
			Wrap(err)
	}
	return nil
}
