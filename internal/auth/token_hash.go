package auth

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken returns the hex sha256 of a token. API keys are stored and looked
// up by this value only.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
