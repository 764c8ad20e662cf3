// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stagepass Contributors

package auth

import (
	"crypto/rand"
	"encoding/base64"
	"strings"

	"github.com/samber/oops"
)

// Token configuration.
const (
	// TokenBytes is the entropy of session and reset tokens.
	// 32 bytes = 256 bits = 43 URL-safe base64 chars.
	TokenBytes = 32

	// AdminTokenPrefix marks admin bearer tokens.
	AdminTokenPrefix = "admin_"
)

// GenerateToken creates a secure random URL-safe token.
func GenerateToken() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", TokenBytes).
			Wrap(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateAdminToken creates an admin bearer token: the fixed prefix plus a
// random token. Admin tokens are never persisted.
func GenerateAdminToken() (string, error) {
	token, err := GenerateToken()
	if err != nil {
		return "", err
	}
	return AdminTokenPrefix + token, nil
}

// AdminTokenVerifier validates an admin bearer token.
//
// The verifier is an interface so the prefix-only scheme below can be
// replaced with signed, server-validated tokens without touching callers.
type AdminTokenVerifier interface {
	Verify(token string) bool
}

// PrefixTokenVerifier accepts any token carrying AdminTokenPrefix.
//
// This matches the deployed contract exactly: there is no server-side state
// behind admin tokens, so possession of the prefix is the whole check. It is
// not real authentication and must not be treated as an authorization
// boundary.
type PrefixTokenVerifier struct{}

// Verify reports whether token carries the admin prefix.
func (PrefixTokenVerifier) Verify(token string) bool {
	return token != "" && strings.HasPrefix(token, AdminTokenPrefix)
}
