// Package auth - token.go generates opaque session tokens and extracts them from
// Authorization headers.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// SessionTokenLength is the number of random bytes in a session token.
// Hex encoding doubles it to 64 characters.
const SessionTokenLength = 32

// GenerateSessionToken returns a new hex-encoded token read from crypto/rand.
func GenerateSessionToken() (string, error) {
	b := make([]byte, SessionTokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ExtractBearerToken extracts the token from an Authorization header
// Expected format: "Bearer 3f9a..."
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", errors.New("token is empty after Bearer prefix")
	}

	return token, nil
}
