package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Token lengths per credential kind.
const (
	RefreshTokenLength       = 40
	OneTimeAccessTokenLength = 16
	SignupTokenLength        = 16
	APIKeyLength             = 32
	ClientSecretLength       = 32
)

// APIKeyPrefix is prepended to generated API keys so they are recognisable in
// logs and secret scanners.
const APIKeyPrefix = "idk_"

// GenerateRandomAlphanumericString returns a uniformly random string of the
// given length drawn from [A-Za-z0-9].
func GenerateRandomAlphanumericString(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid length %d", length)
	}

	maxIdx := big.NewInt(int64(len(alphanumeric)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, maxIdx)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		out[i] = alphanumeric[n.Int64()]
	}

	return string(out), nil
}
