// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stagepass Contributors

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagepass/stagepass/internal/auth"
)

func TestRatePolicyAdvance(t *testing.T) {
	policy := auth.DefaultRatePolicy()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("first attempt creates record and allows", func(t *testing.T) {
		rec, decision := policy.Advance(nil, "203.0.113.7", base)
		assert.True(t, decision.Allowed)
		require.NotNil(t, rec)
		assert.Equal(t, "203.0.113.7", rec.IPAddress)
		assert.Equal(t, 1, rec.AttemptCount)
		assert.Equal(t, base, rec.FirstAttemptAt)
		assert.Equal(t, base, rec.LastAttemptAt)
		assert.Nil(t, rec.BlockedUntil)
	})

	t.Run("allows up to max attempts within window", func(t *testing.T) {
		rec, decision := policy.Advance(nil, "203.0.113.7", base)
		require.True(t, decision.Allowed)

		rec, decision = policy.Advance(rec, "203.0.113.7", base.Add(time.Minute))
		assert.True(t, decision.Allowed)
		assert.Equal(t, 2, rec.AttemptCount)

		rec, decision = policy.Advance(rec, "203.0.113.7", base.Add(2*time.Minute))
		assert.True(t, decision.Allowed)
		assert.Equal(t, 3, rec.AttemptCount)
	})

	t.Run("blocks on attempt past the limit", func(t *testing.T) {
		rec, _ := policy.Advance(nil, "203.0.113.7", base)
		rec, _ = policy.Advance(rec, "203.0.113.7", base.Add(time.Minute))
		rec, _ = policy.Advance(rec, "203.0.113.7", base.Add(2*time.Minute))

		at := base.Add(3 * time.Minute)
		rec, decision := policy.Advance(rec, "203.0.113.7", at)
		assert.False(t, decision.Allowed)
		assert.Equal(t, auth.DefaultBlockDuration, decision.RetryAfter)
		require.NotNil(t, rec.BlockedUntil)
		assert.Equal(t, at.Add(auth.DefaultBlockDuration), *rec.BlockedUntil)
	})

	t.Run("denies while block in force without touching counter", func(t *testing.T) {
		blockedUntil := base.Add(time.Hour)
		rec := &auth.RegistrationAttempt{
			IPAddress:      "203.0.113.7",
			AttemptCount:   4,
			FirstAttemptAt: base.Add(-30 * time.Minute),
			LastAttemptAt:  base,
			BlockedUntil:   &blockedUntil,
		}

		rec, decision := policy.Advance(rec, "203.0.113.7", base.Add(20*time.Minute))
		assert.False(t, decision.Allowed)
		assert.Equal(t, 40*time.Minute, decision.RetryAfter)
		assert.Equal(t, 4, rec.AttemptCount)
	})

	t.Run("window elapsed resets the counter", func(t *testing.T) {
		rec := &auth.RegistrationAttempt{
			IPAddress:      "203.0.113.7",
			AttemptCount:   3,
			FirstAttemptAt: base,
			LastAttemptAt:  base.Add(2 * time.Minute),
		}

		at := base.Add(auth.DefaultAttemptWindow + time.Second)
		rec, decision := policy.Advance(rec, "203.0.113.7", at)
		assert.True(t, decision.Allowed)
		assert.Equal(t, 1, rec.AttemptCount)
		assert.Equal(t, at, rec.FirstAttemptAt)
		assert.Nil(t, rec.BlockedUntil)
	})

	t.Run("expired block falls through to window check", func(t *testing.T) {
		blockedUntil := base.Add(-time.Minute)
		rec := &auth.RegistrationAttempt{
			IPAddress:      "203.0.113.7",
			AttemptCount:   4,
			FirstAttemptAt: base.Add(-2 * time.Hour),
			LastAttemptAt:  base.Add(-time.Hour),
			BlockedUntil:   &blockedUntil,
		}

		rec, decision := policy.Advance(rec, "203.0.113.7", base)
		assert.True(t, decision.Allowed)
		assert.Equal(t, 1, rec.AttemptCount)
		assert.Nil(t, rec.BlockedUntil)
	})

	t.Run("boundary attempt at window edge still counts", func(t *testing.T) {
		rec := &auth.RegistrationAttempt{
			IPAddress:      "203.0.113.7",
			AttemptCount:   3,
			FirstAttemptAt: base,
			LastAttemptAt:  base.Add(2 * time.Minute),
		}

		// Exactly at the window edge the record is still inside it.
		rec, decision := policy.Advance(rec, "203.0.113.7", base.Add(auth.DefaultAttemptWindow))
		assert.False(t, decision.Allowed)
		assert.Equal(t, 4, rec.AttemptCount)
	})
}

func TestRateDecisionRetryMinutes(t *testing.T) {
	tests := []struct {
		name       string
		retryAfter time.Duration
		want       int
	}{
		{"full hour", time.Hour, 60},
		{"rounds down", 59*time.Minute + 59*time.Second, 59},
		{"under a minute", 30 * time.Second, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := auth.RateDecision{RetryAfter: tt.retryAfter}
			assert.Equal(t, tt.want, decision.RetryMinutes())
		})
	}
}

type recordingAttemptRepo struct {
	ip       string
	decision auth.RateDecision
	err      error
}

func (r *recordingAttemptRepo) Record(_ context.Context, ip string, _ time.Time, _ auth.RatePolicy) (auth.RateDecision, error) {
	r.ip = ip
	return r.decision, r.err
}

func TestRegistrationLimiter(t *testing.T) {
	t.Run("passes IP through to repository", func(t *testing.T) {
		repo := &recordingAttemptRepo{decision: auth.RateDecision{Allowed: true}}
		limiter := auth.NewRegistrationLimiter(repo, auth.DefaultRatePolicy())

		decision, err := limiter.Allow(context.Background(), "198.51.100.9")
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, "198.51.100.9", repo.ip)
	})

	t.Run("propagates repository decision", func(t *testing.T) {
		repo := &recordingAttemptRepo{decision: auth.RateDecision{RetryAfter: 45 * time.Minute}}
		limiter := auth.NewRegistrationLimiter(repo, auth.DefaultRatePolicy())

		decision, err := limiter.Allow(context.Background(), "198.51.100.9")
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, 45, decision.RetryMinutes())
	})
}
