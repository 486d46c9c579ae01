// Package auth - password.go implements salted PBKDF2-SHA512 password hashing.
// Stored hashes have the form "<hex-salt>:<hex-key>".
package auth

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// PasswordSaltLength is the number of random bytes in a password salt
	PasswordSaltLength = 16

	// PasswordKeyLength is the derived key length in bytes
	PasswordKeyLength = 64

	// MinPasswordIterations is the lowest accepted PBKDF2 iteration count.
	// Hashes written by earlier deployments use exactly this value.
	MinPasswordIterations = 10000

	passwordHashSeparator = ":"
)

// PasswordHasher hashes and verifies passwords with a fixed iteration count.
type PasswordHasher struct {
	iterations int
}

// NewPasswordHasher returns a hasher using the given iteration count, raised to
// MinPasswordIterations when lower.
func NewPasswordHasher(iterations int) *PasswordHasher {
	if iterations < MinPasswordIterations {
		iterations = MinPasswordIterations
	}
	return &PasswordHasher{iterations: iterations}
}

var defaultHasher = NewPasswordHasher(MinPasswordIterations)

// HashPassword hashes a password with the default iteration count.
func HashPassword(password string) (string, error) {
	return defaultHasher.Hash(password)
}

// VerifyPassword checks a password against a stored hash using the default iteration count.
func VerifyPassword(password, stored string) bool {
	return defaultHasher.Verify(password, stored)
}

// Hash generates a fresh random salt and returns "<hex-salt>:<hex-key>".
func (h *PasswordHasher) Hash(password string) (string, error) {
	saltBytes := make([]byte, PasswordSaltLength)
	if _, err := rand.Read(saltBytes); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	salt := hex.EncodeToString(saltBytes)

	key := h.derive(password, salt)
	return salt + passwordHashSeparator + hex.EncodeToString(key), nil
}

// Verify reports whether password matches the stored hash. Malformed stored
// values never match.
func (h *PasswordHasher) Verify(password, stored string) bool {
	salt, keyHex, ok := strings.Cut(stored, passwordHashSeparator)
	if !ok || salt == "" || keyHex == "" {
		return false
	}

	want, err := hex.DecodeString(keyHex)
	if err != nil || len(want) != PasswordKeyLength {
		return false
	}

	got := h.derive(password, salt)
	return subtle.ConstantTimeCompare(got, want) == 1
}

// derive runs PBKDF2 over the hex salt string itself, not its decoded bytes,
// so stored hashes stay interchangeable with existing records.
func (h *PasswordHasher) derive(password, salt string) []byte {
	return pbkdf2.Key([]byte(password), []byte(salt), h.iterations, PasswordKeyLength, sha512.New)
}
