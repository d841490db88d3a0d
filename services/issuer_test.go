package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/idcore/domain"
	"go.pilab.hu/idcore/internal/auth"
	"go.pilab.hu/idcore/internal/fixtures"
)

func TestTokenIssuer_IssueRefreshToken(t *testing.T) {
	store := seededStore(t)
	issuer := NewTokenIssuer(store, testOptions())
	ctx := context.Background()

	rt, err := issuer.IssueRefreshToken(ctx, fixtures.Tim.ID, fixtures.Nextcloud.ID, time.Hour)
	require.NoError(t, err)
	assert.Len(t, rt.Token, auth.RefreshTokenLength)
	assert.False(t, rt.Expired)
	assert.Equal(t, testNow.Add(time.Hour), rt.ExpiresAt)

	stored, err := store.GetRefreshToken(ctx, rt.Token)
	require.NoError(t, err)
	assert.Equal(t, fixtures.Nextcloud.ID, stored.ClientID)

	_, err = issuer.IssueRefreshToken(ctx, fixtures.NewID(), fixtures.Nextcloud.ID, time.Hour)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = issuer.IssueRefreshToken(ctx, fixtures.Tim.ID, "unknown-client", time.Hour)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = issuer.IssueRefreshToken(ctx, fixtures.Tim.ID, fixtures.Nextcloud.ID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestTokenIssuer_IssueSignupToken(t *testing.T) {
	issuer := NewTokenIssuer(seededStore(t), testOptions())
	ctx := context.Background()

	st, err := issuer.IssueSignupToken(ctx, 24*time.Hour, 5)
	require.NoError(t, err)
	assert.Len(t, st.Token, auth.SignupTokenLength)
	assert.Equal(t, 0, st.UsageCount)
	assert.Equal(t, 5, st.UsageLimit)
	assert.Equal(t, domain.SignupStateActive, st.State(testNow))

	_, err = issuer.IssueSignupToken(ctx, 24*time.Hour, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = issuer.IssueSignupToken(ctx, -time.Hour, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestTokenIssuer_IssueOneTimeAccessToken(t *testing.T) {
	issuer := NewTokenIssuer(seededStore(t), testOptions())

	ot, err := issuer.IssueOneTimeAccessToken(context.Background(), fixtures.Craig.ID, 15*time.Minute)
	require.NoError(t, err)
	assert.Len(t, ot.Token, auth.OneTimeAccessTokenLength)
	assert.Equal(t, fixtures.Craig.ID, ot.UserID)
}

func TestTokenIssuer_CreateAPIKey(t *testing.T) {
	store := seededStore(t)
	issuer := NewTokenIssuer(store, testOptions())
	ctx := context.Background()

	key, plaintext, err := issuer.CreateAPIKey(ctx, "deploy bot", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(plaintext, auth.APIKeyPrefix))
	assert.Len(t, plaintext, len(auth.APIKeyPrefix)+auth.APIKeyLength)
	assert.Equal(t, auth.HashToken(plaintext), key.KeyHash)

	stored, err := store.GetAPIKeyByHash(ctx, auth.HashToken(plaintext))
	require.NoError(t, err)
	assert.Equal(t, key.ID, stored.ID)

	_, _, err = issuer.CreateAPIKey(ctx, "x", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	past := testNow.Add(-time.Minute)
	_, _, err = issuer.CreateAPIKey(ctx, "expired key", &past)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestTokenIssuer_RetriesOnCollision(t *testing.T) {
	store := seededStore(t)
	issuer := NewTokenIssuer(store, testOptions())

	values := []string{fixtures.SignupValid, fixtures.SignupExpired, "FRESHTOKEN000001"}
	calls := 0
	issuer.random = func(int) (string, error) {
		v := values[calls]
		calls++
		return v, nil
	}

	st, err := issuer.IssueSignupToken(context.Background(), time.Hour, 1)
	require.NoError(t, err)
	assert.Equal(t, "FRESHTOKEN000001", st.Token)
	assert.Equal(t, 3, calls)
}

func TestTokenIssuer_GivesUpAfterMaxAttempts(t *testing.T) {
	issuer := NewTokenIssuer(seededStore(t), testOptions())

	calls := 0
	issuer.random = func(int) (string, error) {
		calls++
		return fixtures.RefreshTokenValid, nil
	}

	_, err := issuer.IssueRefreshToken(context.Background(), fixtures.Tim.ID, fixtures.Nextcloud.ID, time.Hour)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, maxIssueAttempts, calls)
}
