// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stagepass Contributors

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stagepass/stagepass/internal/auth"
	"github.com/stagepass/stagepass/pkg/errutil"
)

func newTestService(t *testing.T, users *MockUserRepository, sessions *MockSessionRepository, attempts *MockAttemptRepository) *auth.Service {
	t.Helper()
	limiter := auth.NewRegistrationLimiter(attempts, auth.DefaultRatePolicy())
	svc, err := auth.NewService(users, sessions, limiter, auth.NewLegacyHasher(), auth.ServiceConfig{})
	require.NoError(t, err)
	return svc
}

func TestNewService_NilDependencies(t *testing.T) {
	limiter := auth.NewRegistrationLimiter(&MockAttemptRepository{}, auth.DefaultRatePolicy())

	tests := []struct {
		name        string
		users       auth.UserRepository
		sessions    auth.SessionRepository
		limiter     *auth.RegistrationLimiter
		hasher      auth.PasswordHasher
		expectError string
	}{
		{
			name:        "nil user repository",
			sessions:    &MockSessionRepository{},
			limiter:     limiter,
			hasher:      auth.NewLegacyHasher(),
			expectError: "users repository is required",
		},
		{
			name:        "nil session repository",
			users:       &MockUserRepository{},
			limiter:     limiter,
			hasher:      auth.NewLegacyHasher(),
			expectError: "sessions repository is required",
		},
		{
			name:        "nil limiter",
			users:       &MockUserRepository{},
			sessions:    &MockSessionRepository{},
			hasher:      auth.NewLegacyHasher(),
			expectError: "registration limiter is required",
		},
		{
			name:        "nil hasher",
			users:       &MockUserRepository{},
			sessions:    &MockSessionRepository{},
			limiter:     limiter,
			expectError: "password hasher is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := auth.NewService(tt.users, tt.sessions, tt.limiter, tt.hasher, auth.ServiceConfig{})
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestServiceRegister(t *testing.T) {
	ctx := context.Background()

	input := auth.RegisterInput{
		Email:       "fan@example.com",
		Username:    "fan",
		DisplayName: "Fan",
		Password:    "secret123",
		IPAddress:   "203.0.113.7",
	}

	t.Run("creates user and session", func(t *testing.T) {
		users := &MockUserRepository{}
		sessions := &MockSessionRepository{}
		svc := newTestService(t, users, sessions, allowAll())

		users.On("Create", mock.Anything, mock.AnythingOfType("*auth.User")).Return(nil)
		sessions.On("Create", mock.Anything, mock.AnythingOfType("*auth.Session")).Return(nil)

		user, token, err := svc.Register(ctx, input)
		require.NoError(t, err)
		assert.Equal(t, "fan@example.com", user.Email)
		assert.Equal(t, "fan", user.Username)
		assert.Len(t, token, 43)
		users.AssertExpectations(t)
		sessions.AssertExpectations(t)
	})

	t.Run("display name falls back to username", func(t *testing.T) {
		users := &MockUserRepository{}
		sessions := &MockSessionRepository{}
		svc := newTestService(t, users, sessions, allowAll())

		users.On("Create", mock.Anything, mock.AnythingOfType("*auth.User")).Return(nil)
		sessions.On("Create", mock.Anything, mock.AnythingOfType("*auth.Session")).Return(nil)

		in := input
		in.DisplayName = ""
		user, _, err := svc.Register(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, "fan", user.DisplayName)
	})

	t.Run("rejects blocked IP before anything else", func(t *testing.T) {
		users := &MockUserRepository{}
		sessions := &MockSessionRepository{}
		attempts := &MockAttemptRepository{}
		attempts.On("Record", mock.Anything, "203.0.113.7", mock.Anything, mock.Anything).
			Return(auth.RateDecision{RetryAfter: 45 * time.Minute}, nil)
		svc := newTestService(t, users, sessions, attempts)

		_, _, err := svc.Register(ctx, input)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeRateLimited)
		assert.Contains(t, err.Error(), "45 min")
		users.AssertNotCalled(t, "Create")
	})

	t.Run("invalid input still counts as an attempt", func(t *testing.T) {
		users := &MockUserRepository{}
		sessions := &MockSessionRepository{}
		attempts := &MockAttemptRepository{}
		attempts.On("Record", mock.Anything, "203.0.113.7", mock.Anything, mock.Anything).
			Return(auth.RateDecision{Allowed: true}, nil).Once()
		svc := newTestService(t, users, sessions, attempts)

		in := input
		in.Email = ""
		_, _, err := svc.Register(ctx, in)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidInput)
		attempts.AssertExpectations(t)
	})

	t.Run("duplicate account maps constraint violation", func(t *testing.T) {
		users := &MockUserRepository{}
		sessions := &MockSessionRepository{}
		svc := newTestService(t, users, sessions, allowAll())

		users.On("Create", mock.Anything, mock.Anything).Return(auth.ErrDuplicate)

		_, _, err := svc.Register(ctx, input)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeDuplicateAccount)
		sessions.AssertNotCalled(t, "Create")
	})

	t.Run("store timeout maps to storage unavailable", func(t *testing.T) {
		users := &MockUserRepository{}
		sessions := &MockSessionRepository{}
		svc := newTestService(t, users, sessions, allowAll())

		users.On("Create", mock.Anything, mock.Anything).Return(context.DeadlineExceeded)

		_, _, err := svc.Register(ctx, input)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeStorageUnavailable)
	})
}

func TestServiceLogin(t *testing.T) {
	ctx := context.Background()
	hasher := auth.NewLegacyHasher()

	digest, err := hasher.Hash("secret123")
	require.NoError(t, err)

	user := &auth.User{
		ID:           ulid.Make(),
		Email:        "fan@example.com",
		Username:     "fan",
		PasswordHash: digest,
	}

	t.Run("valid credentials issue session", func(t *testing.T) {
		users := &MockUserRepository{}
		sessions := &MockSessionRepository{}
		svc := newTestService(t, users, sessions, allowAll())

		users.On("GetByEmail", mock.Anything, "fan@example.com").Return(user, nil)
		sessions.On("Create", mock.Anything, mock.AnythingOfType("*auth.Session")).Return(nil)

		got, token, err := svc.Login(ctx, "fan@example.com", "secret123")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.Len(t, token, 43)
	})

	t.Run("wrong password returns invalid credentials", func(t *testing.T) {
		users := &MockUserRepository{}
		sessions := &MockSessionRepository{}
		svc := newTestService(t, users, sessions, allowAll())

		users.On("GetByEmail", mock.Anything, "fan@example.com").Return(user, nil)

		_, _, err := svc.Login(ctx, "fan@example.com", "wrongpass")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
	})

	t.Run("unknown email returns the same invalid credentials", func(t *testing.T) {
		users := &MockUserRepository{}
		sessions := &MockSessionRepository{}
		svc := newTestService(t, users, sessions, allowAll())

		users.On("GetByEmail", mock.Anything, "ghost@example.com").Return(nil, auth.ErrNotFound)

		_, _, wrongErr := svc.Login(ctx, "ghost@example.com", "whatever")
		require.Error(t, wrongErr)
		errutil.AssertErrorCode(t, wrongErr, auth.CodeInvalidCredentials)

		users.On("GetByEmail", mock.Anything, "fan@example.com").Return(user, nil)
		_, _, knownErr := svc.Login(ctx, "fan@example.com", "whatever")
		require.Error(t, knownErr)
		assert.Equal(t, wrongErr.Error(), knownErr.Error())
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		svc := newTestService(t, &MockUserRepository{}, &MockSessionRepository{}, allowAll())

		_, _, err := svc.Login(ctx, "", "secret123")
		errutil.AssertErrorCode(t, err, auth.CodeInvalidInput)

		_, _, err = svc.Login(ctx, "fan@example.com", "")
		errutil.AssertErrorCode(t, err, auth.CodeInvalidInput)
	})

	t.Run("lookup timeout maps to storage unavailable", func(t *testing.T) {
		users := &MockUserRepository{}
		sessions := &MockSessionRepository{}
		svc := newTestService(t, users, sessions, allowAll())

		users.On("GetByEmail", mock.Anything, "fan@example.com").Return(nil, context.DeadlineExceeded)

		_, _, err := svc.Login(ctx, "fan@example.com", "secret123")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeStorageUnavailable)
	})
}

func TestServiceLogout(t *testing.T) {
	ctx := context.Background()

	t.Run("revokes session", func(t *testing.T) {
		users := &MockUserRepository{}
		sessions := &MockSessionRepository{}
		svc := newTestService(t, users, sessions, allowAll())

		sessions.On("Revoke", mock.Anything, "some-token", mock.AnythingOfType("time.Time")).Return(nil)

		require.NoError(t, svc.Logout(ctx, "some-token"))
		sessions.AssertExpectations(t)
	})

	t.Run("unknown token still succeeds", func(t *testing.T) {
		users := &MockUserRepository{}
		sessions := &MockSessionRepository{}
		svc := newTestService(t, users, sessions, allowAll())

		sessions.On("Revoke", mock.Anything, "unknown-token", mock.Anything).Return(nil)

		require.NoError(t, svc.Logout(ctx, "unknown-token"))
	})

	t.Run("missing token rejected", func(t *testing.T) {
		svc := newTestService(t, &MockUserRepository{}, &MockSessionRepository{}, allowAll())

		err := svc.Logout(ctx, "")
		errutil.AssertErrorCode(t, err, auth.CodeTokenMissing)
	})
}

func TestServiceResolve(t *testing.T) {
	ctx := context.Background()

	user := &auth.User{ID: ulid.Make(), Email: "fan@example.com", Username: "fan"}

	t.Run("resolves valid session to user", func(t *testing.T) {
		users := &MockUserRepository{}
		sessions := &MockSessionRepository{}
		svc := newTestService(t, users, sessions, allowAll())

		session := &auth.Session{
			Token:     "valid-token",
			UserID:    user.ID,
			ExpiresAt: time.Now().Add(time.Hour),
		}
		sessions.On("GetByToken", mock.Anything, "valid-token").Return(session, nil)
		users.On("GetByID", mock.Anything, user.ID).Return(user, nil)

		got, err := svc.Resolve(ctx, "valid-token")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
	})

	t.Run("unknown token is invalid session", func(t *testing.T) {
		users := &MockUserRepository{}
		sessions := &MockSessionRepository{}
		svc := newTestService(t, users, sessions, allowAll())

		sessions.On("GetByToken", mock.Anything, "bogus").Return(nil, auth.ErrNotFound)

		_, err := svc.Resolve(ctx, "bogus")
		errutil.AssertErrorCode(t, err, auth.CodeSessionInvalid)
	})

	t.Run("expired session rejected", func(t *testing.T) {
		users := &MockUserRepository{}
		sessions := &MockSessionRepository{}
		svc := newTestService(t, users, sessions, allowAll())

		session := &auth.Session{
			Token:     "stale-token",
			UserID:    user.ID,
			ExpiresAt: time.Now().Add(-time.Minute),
		}
		sessions.On("GetByToken", mock.Anything, "stale-token").Return(session, nil)

		_, err := svc.Resolve(ctx, "stale-token")
		errutil.AssertErrorCode(t, err, auth.CodeSessionExpired)
		users.AssertNotCalled(t, "GetByID")
	})

	t.Run("session for vanished user is invalid", func(t *testing.T) {
		users := &MockUserRepository{}
		sessions := &MockSessionRepository{}
		svc := newTestService(t, users, sessions, allowAll())

		session := &auth.Session{
			Token:     "orphan-token",
			UserID:    user.ID,
			ExpiresAt: time.Now().Add(time.Hour),
		}
		sessions.On("GetByToken", mock.Anything, "orphan-token").Return(session, nil)
		users.On("GetByID", mock.Anything, user.ID).Return(nil, auth.ErrNotFound)

		_, err := svc.Resolve(ctx, "orphan-token")
		errutil.AssertErrorCode(t, err, auth.CodeSessionInvalid)
	})

	t.Run("missing token rejected", func(t *testing.T) {
		svc := newTestService(t, &MockUserRepository{}, &MockSessionRepository{}, allowAll())

		_, err := svc.Resolve(ctx, "")
		errutil.AssertErrorCode(t, err, auth.CodeTokenMissing)
	})
}
