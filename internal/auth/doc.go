// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stagepass Contributors

// Package auth provides authentication primitives for Stagepass.
//
// # Domain Types
//
// Domain types (User, Session, PasswordResetToken, RegistrationAttempt)
// should be created using their respective constructors:
//   - NewUser - creates a User with validated registration fields
//   - NewSession - creates a Session with validated user and expiry
//   - NewPasswordResetToken - creates a reset token with validated expiry
//
// Direct struct initialization bypasses validation and may create invalid
// state. Repository implementations receive pre-validated types from these
// constructors.
//
// # Services
//
// Service types coordinate domain operations:
//   - Service - registration, login, logout, session resolution
//   - AdminService - admin login and password change
//   - PasswordResetService - password reset flow
//
// Services are created with New*Service constructors that validate
// dependencies.
package auth
