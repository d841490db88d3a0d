package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrSecretMismatch is returned by Verify when the secret does not match.
var ErrSecretMismatch = errors.New("secret does not match")

// SecretHasher hashes and verifies client secrets.
type SecretHasher interface {
	Hash(secret string) (string, error)
	Verify(hash, secret string) error
}

// BcryptSecretHasher implements SecretHasher using bcrypt.
type BcryptSecretHasher struct {
	Cost int
}

// NewBcryptSecretHasher creates a new BcryptSecretHasher.
// Default cost is bcrypt.DefaultCost if cost <= 0.
func NewBcryptSecretHasher(cost int) *BcryptSecretHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptSecretHasher{Cost: cost}
}

// Hash generates a bcrypt hash for the given secret.
func (h *BcryptSecretHasher) Hash(secret string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(secret), h.Cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash generation failed: %w", err)
	}
	return string(hashedBytes), nil
}

// Verify compares a bcrypt hashed secret with its possible plaintext equivalent.
func (h *BcryptSecretHasher) Verify(hash, secret string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrSecretMismatch
	}
	return err
}

var _ SecretHasher = (*BcryptSecretHasher)(nil)
