package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

// MinOpaqueBytes is the smallest entropy accepted by RandomToken.
const MinOpaqueBytes = 16

// RandomToken returns size random bytes encoded as base64url without padding.
func RandomToken(size int) (string, error) {
	if size < MinOpaqueBytes {
		return "", errors.New("opaque token too small")
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken returns the hex sha256 fingerprint used to persist and key
// tokens without storing the raw value.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// NormalizeEmail lowercases and trims an address. Emails are unique
// case-insensitively, so every lookup goes through this.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
