// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stagepass Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"
)

// MinPasswordLength is the minimum accepted length for new passwords.
const MinPasswordLength = 6

// AdminService handles admin login and password management.
type AdminService struct {
	admins   AdminRepository
	hasher   PasswordHasher
	verifier AdminTokenVerifier
	cfg      ServiceConfig
	logger   *slog.Logger
}

// NewAdminService creates a new AdminService.
func NewAdminService(admins AdminRepository, hasher PasswordHasher, verifier AdminTokenVerifier, cfg ServiceConfig) (*AdminService, error) {
	return NewAdminServiceWithLogger(admins, hasher, verifier, cfg, slog.Default())
}

// NewAdminServiceWithLogger creates a new AdminService with an explicit logger.
func NewAdminServiceWithLogger(admins AdminRepository, hasher PasswordHasher, verifier AdminTokenVerifier, cfg ServiceConfig, logger *slog.Logger) (*AdminService, error) {
	if admins == nil {
		return nil, oops.Errorf("admin repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if verifier == nil {
		return nil, oops.Errorf("admin token verifier is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	cfg.applyDefaults()
	return &AdminService{
		admins:   admins,
		hasher:   hasher,
		verifier: verifier,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Login checks the password against the singleton admin credential and
// issues an admin bearer token. The token is not persisted anywhere.
func (s *AdminService) Login(ctx context.Context, password string) (token, username string, err error) {
	if password == "" {
		return "", "", oops.Code(CodeInvalidInput).Errorf("password is required")
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	admin, err := s.admins.Get(storeCtx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", "", oops.Code(CodeAdminNotConfigured).Errorf("admin not found")
		}
		return "", "", mapStoreErr(oops.Code("ADMIN_LOGIN_FAILED").
			With("operation", "get admin credential").
			Wrap(err), "get admin credential")
	}

	valid, err := s.hasher.Verify(password, admin.PasswordHash)
	if err != nil {
		return "", "", oops.Code("ADMIN_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(err)
	}
	if !valid {
		return "", "", oops.Code(CodeInvalidCredentials).Errorf("invalid password")
	}

	token, err = GenerateAdminToken()
	if err != nil {
		return "", "", oops.Code("ADMIN_LOGIN_FAILED").
			With("operation", "generate admin token").
			Wrap(err)
	}

	return token, admin.Username, nil
}

// ChangePassword rotates the admin digest after checking the bearer token
// and the current password. New passwords must meet the minimum length.
func (s *AdminService) ChangePassword(ctx context.Context, token, currentPassword, newPassword string) error {
	if !s.verifier.Verify(token) {
		return oops.Code(CodeAdminUnauthorized).Errorf("unauthorized")
	}
	if currentPassword == "" || newPassword == "" {
		return oops.Code(CodeInvalidInput).Errorf("current and new password required")
	}
	if len(newPassword) < MinPasswordLength {
		return oops.Code(CodePasswordTooShort).
			With("min", MinPasswordLength).
			Errorf("password must be at least %d characters", MinPasswordLength)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	admin, err := s.admins.Get(storeCtx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeAdminNotConfigured).Errorf("admin not found")
		}
		return mapStoreErr(oops.Code("ADMIN_CHANGE_PASSWORD_FAILED").
			With("operation", "get admin credential").
			Wrap(err), "get admin credential")
	}

	valid, err := s.hasher.Verify(currentPassword, admin.PasswordHash)
	if err != nil {
		return oops.Code("ADMIN_CHANGE_PASSWORD_FAILED").
			With("operation", "verify current password").
			Wrap(err)
	}
	if !valid {
		return oops.Code(CodeInvalidCredentials).Errorf("invalid current password")
	}

	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("ADMIN_CHANGE_PASSWORD_FAILED").
			With("operation", "hash new password").
			Wrap(err)
	}

	if err := s.admins.UpdatePassword(storeCtx, digest); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeAdminNotConfigured).Errorf("admin not found")
		}
		return mapStoreErr(oops.Code("ADMIN_CHANGE_PASSWORD_FAILED").
			With("operation", "update admin password").
			Wrap(err), "update admin password")
	}

	return nil
}
