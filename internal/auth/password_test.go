package auth_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go.pilab.hu/idcore/internal/auth"
)

func TestSecretHasher(t *testing.T) {
	hasher := auth.NewBcryptSecretHasher(bcrypt.MinCost)

	hash, err := hasher.Hash("w2mUeZISmEvIDMEDvpY0PnxQIpj1m3zY")
	require.NoError(t, err)
	assert.NoError(t, hasher.Verify(hash, "w2mUeZISmEvIDMEDvpY0PnxQIpj1m3zY"))
	assert.ErrorIs(t, hasher.Verify(hash, "wrong"), auth.ErrSecretMismatch)

	t.Run("TooLongSecret", func(t *testing.T) {
		tooLong := make([]byte, 73)
		_, _ = rand.Read(tooLong)

		_, err := hasher.Hash(string(tooLong))
		assert.Error(t, err)
	})

	t.Run("DefaultCost", func(t *testing.T) {
		assert.Equal(t, bcrypt.DefaultCost, auth.NewBcryptSecretHasher(0).Cost)
	})
}
