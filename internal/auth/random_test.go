package auth_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/idcore/internal/auth"
)

var alnum = regexp.MustCompile(`^[A-Za-z0-9]+$`)

func TestGenerateRandomAlphanumericString(t *testing.T) {
	seen := make(map[string]struct{})
	for range 100 {
		s, err := auth.GenerateRandomAlphanumericString(auth.SignupTokenLength)
		require.NoError(t, err)
		assert.Len(t, s, auth.SignupTokenLength)
		assert.Regexp(t, alnum, s)
		seen[s] = struct{}{}
	}
	assert.Len(t, seen, 100)

	_, err := auth.GenerateRandomAlphanumericString(0)
	assert.Error(t, err)
}

func TestHashToken(t *testing.T) {
	assert.Equal(t,
		"9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		auth.HashToken("test"))
	assert.Len(t, auth.HashToken("idk_whatever"), 64)
}
