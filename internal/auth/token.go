// Package auth guards the observer's control endpoints with a bearer token.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const tokenFileName = "control-token"

// LoadOrCreateToken reads the control token from dir, or generates and
// persists a new 256-bit hex-encoded token if the file is missing or empty.
func LoadOrCreateToken(dir string) (string, error) {
	path := filepath.Join(dir, tokenFileName)

	data, err := os.ReadFile(path)
	if err == nil {
		if token := strings.TrimSpace(string(data)); token != "" {
			return token, nil
		}
	}

	return RotateToken(dir)
}

// RotateToken replaces the persisted control token with a fresh one.
func RotateToken(dir string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(b)

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, tokenFileName), []byte(token), 0600); err != nil {
		return "", fmt.Errorf("write token: %w", err)
	}
	return token, nil
}

// HashToken returns the hex sha256 of token, the form stored in config.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// TokenValidator checks presented tokens against a stored sha256 hash.
type TokenValidator struct {
	hash []byte
}

// NewTokenValidator builds a validator from a hex sha256 hash.
func NewTokenValidator(hashHex string) (*TokenValidator, error) {
	hash, err := hex.DecodeString(strings.TrimSpace(hashHex))
	if err != nil {
		return nil, fmt.Errorf("decoding token hash: %w", err)
	}
	if len(hash) != sha256.Size {
		return nil, errors.New("token hash must be a hex sha256 digest")
	}
	return &TokenValidator{hash: hash}, nil
}

// NewTokenValidatorForToken builds a validator accepting exactly token.
func NewTokenValidatorForToken(token string) *TokenValidator {
	sum := sha256.Sum256([]byte(token))
	return &TokenValidator{hash: sum[:]}
}

// Validate reports whether token matches, in constant time.
func (v *TokenValidator) Validate(token string) bool {
	if token == "" {
		return false
	}
	sum := sha256.Sum256([]byte(token))
	return subtle.ConstantTimeCompare(sum[:], v.hash) == 1
}
