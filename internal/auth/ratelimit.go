// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stagepass Contributors

package auth

import (
	"context"
	"time"
)

// Default registration rate-limit parameters.
const (
	// DefaultMaxAttempts is the number of registration attempts allowed per
	// source IP inside one window.
	DefaultMaxAttempts = 3

	// DefaultAttemptWindow is the counting window, anchored at the first
	// attempt.
	DefaultAttemptWindow = time.Hour

	// DefaultBlockDuration is how long an IP stays blocked after exceeding
	// the limit.
	DefaultBlockDuration = time.Hour
)

// RegistrationAttempt tracks registration attempts from one source IP.
type RegistrationAttempt struct {
	IPAddress      string
	AttemptCount   int
	FirstAttemptAt time.Time
	LastAttemptAt  time.Time
	BlockedUntil   *time.Time
}

// RatePolicy holds sliding-window rate-limit parameters.
type RatePolicy struct {
	MaxAttempts   int
	Window        time.Duration
	BlockDuration time.Duration
}

// DefaultRatePolicy returns the standard registration policy.
func DefaultRatePolicy() RatePolicy {
	return RatePolicy{
		MaxAttempts:   DefaultMaxAttempts,
		Window:        DefaultAttemptWindow,
		BlockDuration: DefaultBlockDuration,
	}
}

// RateDecision is the outcome of one attempt against the policy.
type RateDecision struct {
	// Allowed reports whether the attempt may proceed.
	Allowed bool

	// RetryAfter is the remaining block time when denied.
	RetryAfter time.Duration
}

// Advance applies one registration attempt at now to the given record and
// returns the decision. A nil record means no attempts were seen from this
// IP yet; the returned record is the state to persist.
//
// Transitions:
//   - no record: new record, count=1, allow
//   - blocked and block still in force: deny, count untouched
//   - window elapsed (or stale block): reset to count=1, allow
//   - within window, count+1 <= max: increment, allow
//   - within window, count+1 > max: increment, set block, deny
func (p RatePolicy) Advance(rec *RegistrationAttempt, ip string, now time.Time) (*RegistrationAttempt, RateDecision) {
	if rec == nil {
		fresh := &RegistrationAttempt{
			IPAddress:      ip,
			AttemptCount:   1,
			FirstAttemptAt: now,
			LastAttemptAt:  now,
		}
		return fresh, RateDecision{Allowed: true}
	}

	if rec.BlockedUntil != nil && rec.BlockedUntil.After(now) {
		return rec, RateDecision{RetryAfter: rec.BlockedUntil.Sub(now)}
	}

	if now.Sub(rec.FirstAttemptAt) > p.Window {
		rec.AttemptCount = 1
		rec.FirstAttemptAt = now
		rec.LastAttemptAt = now
		rec.BlockedUntil = nil
		return rec, RateDecision{Allowed: true}
	}

	rec.AttemptCount++
	rec.LastAttemptAt = now

	if rec.AttemptCount > p.MaxAttempts {
		blockedUntil := now.Add(p.BlockDuration)
		rec.BlockedUntil = &blockedUntil
		return rec, RateDecision{RetryAfter: p.BlockDuration}
	}

	return rec, RateDecision{Allowed: true}
}

// RetryMinutes returns the denial wait rounded down to whole minutes,
// matching the wording of the client-facing message.
func (d RateDecision) RetryMinutes() int {
	return int(d.RetryAfter.Minutes())
}

// AttemptRepository records registration attempts per source IP.
type AttemptRepository interface {
	// Record applies one attempt transition atomically: the read-modify-write
	// on the per-IP row must be serialized (row lock or equivalent) so that
	// concurrent attempts from one IP cannot both pass the counter.
	Record(ctx context.Context, ip string, now time.Time, policy RatePolicy) (RateDecision, error)
}

// RegistrationLimiter throttles registrations per source IP.
//
// The limiter is advisory: it throttles bursts but is no defense against
// address spoofing.
type RegistrationLimiter struct {
	attempts AttemptRepository
	policy   RatePolicy
}

// NewRegistrationLimiter creates a RegistrationLimiter.
func NewRegistrationLimiter(attempts AttemptRepository, policy RatePolicy) *RegistrationLimiter {
	return &RegistrationLimiter{attempts: attempts, policy: policy}
}

// Allow records one attempt from ip and returns the decision.
func (l *RegistrationLimiter) Allow(ctx context.Context, ip string) (RateDecision, error) {
	return l.attempts.Record(ctx, ip, time.Now(), l.policy)
}
