// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stagepass Contributors

package auth_test

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/stagepass/stagepass/internal/auth"
)

// MockUserRepository is a testify mock for auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.User), args.Error(1)
}

// MockSessionRepository is a testify mock for auth.SessionRepository.
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Create(ctx context.Context, session *auth.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) GetByToken(ctx context.Context, token string) (*auth.Session, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Session), args.Error(1)
}

func (m *MockSessionRepository) Revoke(ctx context.Context, token string, at time.Time) error {
	args := m.Called(ctx, token, at)
	return args.Error(0)
}

// MockAttemptRepository is a testify mock for auth.AttemptRepository.
type MockAttemptRepository struct {
	mock.Mock
}

func (m *MockAttemptRepository) Record(ctx context.Context, ip string, now time.Time, policy auth.RatePolicy) (auth.RateDecision, error) {
	args := m.Called(ctx, ip, now, policy)
	return args.Get(0).(auth.RateDecision), args.Error(1)
}

// MockAdminRepository is a testify mock for auth.AdminRepository.
type MockAdminRepository struct {
	mock.Mock
}

func (m *MockAdminRepository) Get(ctx context.Context) (*auth.AdminCredential, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.AdminCredential), args.Error(1)
}

func (m *MockAdminRepository) UpdatePassword(ctx context.Context, digest string) error {
	args := m.Called(ctx, digest)
	return args.Error(0)
}

func (m *MockAdminRepository) Seed(ctx context.Context, digest string) error {
	args := m.Called(ctx, digest)
	return args.Error(0)
}

// MockResetTokenRepository is a testify mock for auth.ResetTokenRepository.
type MockResetTokenRepository struct {
	mock.Mock
}

func (m *MockResetTokenRepository) Create(ctx context.Context, reset *auth.PasswordResetToken) error {
	args := m.Called(ctx, reset)
	return args.Error(0)
}

func (m *MockResetTokenRepository) GetByToken(ctx context.Context, token string) (*auth.PasswordResetToken, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.PasswordResetToken), args.Error(1)
}

func (m *MockResetTokenRepository) Consume(ctx context.Context, token, digest string) error {
	args := m.Called(ctx, token, digest)
	return args.Error(0)
}

// MockResetMailer is a testify mock for auth.ResetMailer.
type MockResetMailer struct {
	mock.Mock
}

func (m *MockResetMailer) SendPasswordReset(ctx context.Context, recipient, token string) error {
	args := m.Called(ctx, recipient, token)
	return args.Error(0)
}

// allowAll returns an attempt repository that always permits registration.
func allowAll() *MockAttemptRepository {
	repo := &MockAttemptRepository{}
	repo.On("Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(auth.RateDecision{Allowed: true}, nil).Maybe()
	return repo
}
