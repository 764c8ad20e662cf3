// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stagepass Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// User represents a registered listener or artist account.
type User struct {
	ID           ulid.ULID
	Email        string
	Username     string
	DisplayName  string
	PasswordHash string
	AvatarURL    string
	CreatedAt    time.Time
}

// NewUser creates a validated User. DisplayName falls back to the username
// when empty, matching the registration form behavior.
func NewUser(email, username, displayName, passwordHash string) (*User, error) {
	email = strings.TrimSpace(email)
	username = strings.TrimSpace(username)
	if email == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("email is required")
	}
	if username == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("username is required")
	}
	if passwordHash == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("password hash is required")
	}
	if displayName == "" {
		displayName = username
	}

	return &User{
		ID:           ulid.Make(),
		Email:        email,
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}, nil
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user. The storage layer's uniqueness constraints on
	// email and username are the sole duplicate check; a violation is reported
	// by wrapping ErrDuplicate.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// AdminCredential is the singleton credential record of the admin account.
type AdminCredential struct {
	Username     string
	PasswordHash string
	UpdatedAt    time.Time
}

// AdminUsername is the fixed username of the singleton admin credential.
const AdminUsername = "admin"

// AdminRepository manages the singleton admin credential.
type AdminRepository interface {
	// Get retrieves the admin credential. Returns ErrNotFound when the
	// record was never seeded.
	Get(ctx context.Context) (*AdminCredential, error)

	// UpdatePassword replaces the admin digest. Returns ErrNotFound when no
	// row was changed.
	UpdatePassword(ctx context.Context, digest string) error

	// Seed inserts the admin credential. Wraps ErrDuplicate when the record
	// already exists.
	Seed(ctx context.Context, digest string) error
}
