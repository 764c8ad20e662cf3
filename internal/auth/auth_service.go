// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stagepass Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// DefaultStoreTimeout bounds every repository call made by the services.
const DefaultStoreTimeout = 5 * time.Second

// ServiceConfig holds tunables injected at construction.
type ServiceConfig struct {
	// SessionTTL is the lifetime of issued session tokens.
	// Zero means DefaultSessionTTL.
	SessionTTL time.Duration

	// StoreTimeout bounds individual repository calls.
	// Zero means DefaultStoreTimeout.
	StoreTimeout time.Duration
}

func (c *ServiceConfig) applyDefaults() {
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = DefaultStoreTimeout
	}
}

// Service provides registration, login, logout and session resolution.
type Service struct {
	users    UserRepository
	sessions SessionRepository
	limiter  *RegistrationLimiter
	hasher   PasswordHasher
	cfg      ServiceConfig
	logger   *slog.Logger
}

// NewService creates a new Service.
func NewService(users UserRepository, sessions SessionRepository, limiter *RegistrationLimiter, hasher PasswordHasher, cfg ServiceConfig) (*Service, error) {
	return NewServiceWithLogger(users, sessions, limiter, hasher, cfg, slog.Default())
}

// NewServiceWithLogger creates a new Service with an explicit logger.
func NewServiceWithLogger(users UserRepository, sessions SessionRepository, limiter *RegistrationLimiter, hasher PasswordHasher, cfg ServiceConfig, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("sessions repository is required")
	}
	if limiter == nil {
		return nil, oops.Errorf("registration limiter is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	cfg.applyDefaults()
	return &Service{
		users:    users,
		sessions: sessions,
		limiter:  limiter,
		hasher:   hasher,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// dummyDigest is verified when a user doesn't exist so that response time
// does not reveal whether the email is registered. It is a constant with no
// known preimage, never a real credential.
const dummyDigest = "0000000000000000000000000000000000000000000000000000000000000000"

// RegisterInput carries the registration request fields.
type RegisterInput struct {
	Email       string
	Username    string
	DisplayName string
	Password    string
	IPAddress   string
}

// Register creates a user account and an initial session.
//
// Every attempt counts against the source IP's registration window, valid or
// not; a blocked IP is rejected before anything else runs. Duplicate email or
// username is detected by the storage layer's uniqueness constraints only, so
// concurrent duplicate registrations yield exactly one success.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, string, error) {
	decision, err := s.limiter.Allow(ctx, in.IPAddress)
	if err != nil {
		return nil, "", mapStoreErr(oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "record registration attempt").
			Wrap(err), "record registration attempt")
	}
	if !decision.Allowed {
		return nil, "", oops.Code(CodeRateLimited).
			With("retry_after", decision.RetryAfter).
			Errorf("too many registration attempts, try again in %d min", decision.RetryMinutes())
	}

	if in.Email == "" || in.Password == "" || in.Username == "" {
		return nil, "", oops.Code(CodeInvalidInput).Errorf("email, password and username are required")
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, "", oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(in.Email, in.Username, in.DisplayName, digest)
	if err != nil {
		return nil, "", err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	if err := s.users.Create(storeCtx, user); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, "", oops.Code(CodeDuplicateAccount).
				Errorf("user with this email or username already exists")
		}
		return nil, "", mapStoreErr(err, "create user")
	}

	token, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, "", err
	}

	return user, token, nil
}

// Login authenticates a user by email and password and creates a session.
// Verification runs against a dummy digest when the email is unknown so both
// failures take the same path and return the same error.
func (s *Service) Login(ctx context.Context, email, password string) (*User, string, error) {
	if email == "" || password == "" {
		return nil, "", oops.Code(CodeInvalidInput).Errorf("email and password are required")
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	user, lookupErr := s.users.GetByEmail(storeCtx, email)

	targetDigest := dummyDigest
	userExists := false
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, "", mapStoreErr(oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get user by email").
				Wrap(lookupErr), "get user by email")
		}
	} else {
		targetDigest = user.PasswordHash
		userExists = true
	}

	valid, verifyErr := s.hasher.Verify(password, targetDigest)
	if verifyErr != nil {
		if !userExists {
			return nil, "", oops.Code(CodeInvalidCredentials).Errorf("invalid credentials")
		}
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}

	if !userExists || !valid {
		return nil, "", oops.Code(CodeInvalidCredentials).Errorf("invalid credentials")
	}

	token, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, "", err
	}

	return user, token, nil
}

// Logout revokes the session behind the given token. Revoking an unknown
// token succeeds; the absence of a token does not.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return oops.Code(CodeTokenMissing).Errorf("no auth token provided")
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	if err := s.sessions.Revoke(storeCtx, token, time.Now()); err != nil {
		return mapStoreErr(oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "revoke session").
			Wrap(err), "revoke session")
	}
	return nil
}

// Resolve turns a session token into the user it authenticates. It is the
// only sanctioned way for collaborators to answer "who is this caller".
func (s *Service) Resolve(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, oops.Code(CodeTokenMissing).Errorf("no auth token provided")
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	session, err := s.sessions.GetByToken(storeCtx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeSessionInvalid).Errorf("invalid or expired token")
		}
		return nil, mapStoreErr(oops.Code("SESSION_RESOLVE_FAILED").
			With("operation", "get session by token").
			Wrap(err), "get session by token")
	}

	if session.IsExpired() {
		return nil, oops.Code(CodeSessionExpired).Errorf("invalid or expired token")
	}

	user, err := s.users.GetByID(storeCtx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Session points at a vanished user; treat as invalid rather
			// than leaking storage detail.
			return nil, oops.Code(CodeSessionInvalid).Errorf("invalid or expired token")
		}
		return nil, mapStoreErr(oops.Code("SESSION_RESOLVE_FAILED").
			With("operation", "get user by id").
			Wrap(err), "get user by id")
	}

	return user, nil
}

// issueSession generates and persists a fresh session token for user.
func (s *Service) issueSession(ctx context.Context, user *User) (string, error) {
	token, err := GenerateToken()
	if err != nil {
		return "", oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "generate session token").
			Wrap(err)
	}

	session, err := NewSession(user.ID, token, time.Now().Add(s.cfg.SessionTTL))
	if err != nil {
		return "", oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "create session").
			Wrap(err)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	if err := s.sessions.Create(storeCtx, session); err != nil {
		return "", mapStoreErr(oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "persist session").
			Wrap(err), "persist session")
	}

	return token, nil
}
