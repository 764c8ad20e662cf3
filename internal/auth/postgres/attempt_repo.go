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

// AttemptRepository implements auth.AttemptRepository using PostgreSQL.
type AttemptRepository struct {
	db DB
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(db DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// Record applies one attempt transition for ip inside a transaction. The
// per-IP row is locked with FOR UPDATE so concurrent attempts from the same
// address serialize and none can slip past the counter.
func (r *AttemptRepository) Record(ctx context.Context, ip string, now time.Time, policy auth.RatePolicy) (auth.RateDecision, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return auth.RateDecision{}, oops.Code("ATTEMPT_RECORD_FAILED").
			With("operation", "begin transaction").
			Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	// Ensure the row exists with a zero count, then lock it. The zero count
	// means the current attempt is the one Advance accounts for.
	_, err = tx.Exec(ctx, `
		INSERT INTO registration_attempts (ip_address, attempt_count, first_attempt_at, last_attempt_at)
		VALUES ($1, 0, $2, $2)
		ON CONFLICT (ip_address) DO NOTHING
	`, ip, now)
	if err != nil {
		return auth.RateDecision{}, oops.Code("ATTEMPT_RECORD_FAILED").
			With("operation", "upsert attempt row").
			With("ip", ip).
			Wrap(err)
	}

	row := tx.QueryRow(ctx, `
		SELECT attempt_count, first_attempt_at, last_attempt_at, blocked_until
		FROM registration_attempts
		WHERE ip_address = $1
		FOR UPDATE
	`, ip)

	rec := auth.RegistrationAttempt{IPAddress: ip}
	err = row.Scan(&rec.AttemptCount, &rec.FirstAttemptAt, &rec.LastAttemptAt, &rec.BlockedUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Row vanished between upsert and lock; treat as storage fault.
			return auth.RateDecision{}, oops.Code("ATTEMPT_RECORD_FAILED").
				With("operation", "lock attempt row").
				With("ip", ip).
				Errorf("attempt row missing after upsert")
		}
		return auth.RateDecision{}, oops.Code("ATTEMPT_RECORD_FAILED").
			With("operation", "scan attempt row").
			With("ip", ip).
			Wrap(err)
	}

	next, decision := policy.Advance(&rec, ip, now)

	_, err = tx.Exec(ctx, `
		UPDATE registration_attempts
		SET attempt_count = $2, first_attempt_at = $3, last_attempt_at = $4, blocked_until = $5
		WHERE ip_address = $1
	`, ip, next.AttemptCount, next.FirstAttemptAt, next.LastAttemptAt, next.BlockedUntil)
	if err != nil {
		return auth.RateDecision{}, oops.Code("ATTEMPT_RECORD_FAILED").
			With("operation", "update attempt row").
			With("ip", ip).
			Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return auth.RateDecision{}, oops.Code("ATTEMPT_RECORD_FAILED").
			With("operation", "commit transaction").
			With("ip", ip).
			Wrap(err)
	}

	return decision, nil
}
