// Package auth hashes and verifies account passwords with PBKDF2-SHA256.
package auth

import (
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	DefaultIterations = 120000
	saltLen           = 16
	keyLen            = 32
)

var ErrEmptyPassword = errors.New("empty password")

// Hasher implements world.Credentials. Hash and salt are stored base64.
type Hasher struct {
	Iterations int
}

func NewHasher() *Hasher { return &Hasher{Iterations: DefaultIterations} }

func (h *Hasher) iterations() int {
	if h == nil || h.Iterations <= 0 {
		return DefaultIterations
	}
	return h.Iterations
}

func (h *Hasher) Hash(password string) (hash, salt string, err error) {
	if password == "" {
		return "", "", ErrEmptyPassword
	}
	raw := make([]byte, saltLen)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("salt: %w", err)
	}
	key, err := pbkdf2.Key(sha256.New, password, raw, h.iterations(), keyLen)
	if err != nil {
		return "", "", fmt.Errorf("pbkdf2: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), base64.StdEncoding.EncodeToString(raw), nil
}

func (h *Hasher) Verify(password, hash, salt string) bool {
	want, err := base64.StdEncoding.DecodeString(hash)
	if err != nil || len(want) == 0 {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return false
	}
	got, err := pbkdf2.Key(sha256.New, password, raw, h.iterations(), len(want))
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(got, want) == 1
}
