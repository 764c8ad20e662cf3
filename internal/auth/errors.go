// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stagepass Contributors

package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a uniqueness constraint rejects a write.
var ErrDuplicate = errors.New("duplicate key")

// Stable error codes carried by oops errors at the service boundary.
// The HTTP layer maps these to status classes.
const (
	CodeInvalidInput       = "AUTH_INVALID_INPUT"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeDuplicateAccount   = "AUTH_DUPLICATE_ACCOUNT"
	CodeRateLimited        = "AUTH_RATE_LIMITED"
	CodeTokenMissing       = "AUTH_TOKEN_MISSING"
	CodePasswordTooShort   = "AUTH_PASSWORD_TOO_SHORT"
	CodeSessionInvalid     = "SESSION_INVALID"
	CodeSessionExpired     = "SESSION_EXPIRED"
	CodeAdminUnauthorized  = "ADMIN_UNAUTHORIZED"
	CodeAdminNotConfigured = "ADMIN_NOT_CONFIGURED"
	CodeResetTokenInvalid  = "RESET_TOKEN_INVALID"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	CodeEmailDelivery      = "EMAIL_DELIVERY_FAILED"
)

// mapStoreErr classifies repository failures. Timeouts and cancellations
// become STORAGE_UNAVAILABLE so callers never see raw driver errors.
func mapStoreErr(err error, operation string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return oops.Code(CodeStorageUnavailable).
			With("operation", operation).
			Wrap(err)
	}
	return err
}

// ErrCode extracts the oops code from err, or "" when err carries none.
func ErrCode(err error) string {
	if oopsErr, ok := oops.AsOops(err); ok {
		return oopsErr.Code()
	}
	return ""
}
