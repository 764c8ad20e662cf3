// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stagepass Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2SaltLen = 16        // salt length in bytes
	argon2KeyLen  = 32        // output length in bytes
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a digest of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the digest.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid digest.
	Verify(password, digest string) (bool, error)

	// NeedsUpgrade returns true if the digest should be re-hashed with a
	// stronger algorithm.
	NeedsUpgrade(digest string) bool
}

// LegacyHasher implements PasswordHasher as unsalted hex SHA-256.
//
// This reproduces the digest format already present in production data:
// deterministic, no per-user salt, so identical passwords yield identical
// digests. It must stay the default until stored digests are migrated;
// Argon2idHasher plus NeedsUpgrade is the migration path.
type LegacyHasher struct{}

// NewLegacyHasher creates a new LegacyHasher.
func NewLegacyHasher() *LegacyHasher {
	return &LegacyHasher{}
}

// Hash produces the hex SHA-256 digest of the password.
func (h *LegacyHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:]), nil
}

// Verify checks the password against a stored digest in constant time.
func (h *LegacyHasher) Verify(password, digest string) (bool, error) {
	if digest == "" {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("empty digest")
	}
	sum := sha256.Sum256([]byte(password))
	computed := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1, nil
}

// NeedsUpgrade always reports true: every legacy digest should move to
// argon2id once a migration window exists.
func (h *LegacyHasher) NeedsUpgrade(string) bool {
	return true
}

// Argon2idHasher implements PasswordHasher using argon2id with a per-user
// salt. It verifies legacy hex SHA-256 digests transparently so that stored
// credentials remain valid during migration.
type Argon2idHasher struct{}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

// Hash produces an argon2id digest of the password in PHC string format.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)

	return encoded, nil
}

// Verify checks if the password matches the digest. Legacy hex SHA-256
// digests are delegated to LegacyHasher.
func (h *Argon2idHasher) Verify(password, encodedDigest string) (bool, error) {
	if !strings.HasPrefix(encodedDigest, "$argon2id$") {
		legacy := LegacyHasher{}
		return legacy.Verify(password, encodedDigest)
	}

	parts := strings.Split(encodedDigest, "$")
	if len(parts) != 6 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid digest format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	if threads > 255 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("threads value %d exceeds uint8 max", threads)
	}

	keyLen := len(expected)
	if keyLen <= 0 || keyLen > 1<<30 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid digest key length: %d", keyLen)
	}

	computed := argon2.IDKey([]byte(password), salt, time, memory, uint8(threads), uint32(keyLen))

	if subtle.ConstantTimeCompare(computed, expected) == 1 {
		return true, nil
	}

	return false, nil
}

// NeedsUpgrade returns true if the digest is not argon2id (e.g. legacy SHA-256).
func (h *Argon2idHasher) NeedsUpgrade(digest string) bool {
	return !strings.HasPrefix(digest, "$argon2id$")
}
