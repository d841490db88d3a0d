package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/idcore/cache"
	"go.pilab.hu/idcore/domain"
	"go.pilab.hu/idcore/internal/auth"
	"go.pilab.hu/idcore/internal/fixtures"
)

func TestTokenValidator_Fixtures(t *testing.T) {
	store := seededStore(t)
	v := NewTokenValidator(store, nil, nil, testOptions())
	ctx := context.Background()

	tests := []struct {
		name   string
		kind   domain.TokenKind
		token  string
		status domain.TokenStatus
	}{
		{"valid refresh token", domain.KindRefreshToken, fixtures.RefreshTokenValid, domain.StatusValid},
		{"expired refresh token", domain.KindRefreshToken, fixtures.RefreshTokenExpired, domain.StatusExpired},
		{"unknown refresh token", domain.KindRefreshToken, "nope", domain.StatusNotFound},
		{"valid one-time token", domain.KindOneTimeAccessToken, fixtures.OneTimeTokenValid, domain.StatusValid},
		{"expired one-time token", domain.KindOneTimeAccessToken, fixtures.OneTimeTokenExpired, domain.StatusExpired},
		{"valid signup token", domain.KindSignupToken, fixtures.SignupValid, domain.StatusValid},
		{"partially used signup token", domain.KindSignupToken, fixtures.SignupPartiallyUsed, domain.StatusValid},
		{"expired signup token", domain.KindSignupToken, fixtures.SignupExpired, domain.StatusExpired},
		{"fully used signup token", domain.KindSignupToken, fixtures.SignupFullyUsed, domain.StatusExhausted},
		{"empty token", domain.KindSignupToken, "", domain.StatusNotFound},
		{"unknown api key", domain.KindAPIKey, "idk_unknown", domain.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := v.Validate(ctx, tt.kind, tt.token)
			require.NoError(t, err)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.kind, res.Kind)
		})
	}

	t.Run("read only", func(t *testing.T) {
		before, err := store.GetSignupToken(ctx, fixtures.SignupPartiallyUsed)
		require.NoError(t, err)

		res, err := v.Validate(ctx, domain.KindSignupToken, fixtures.SignupPartiallyUsed)
		require.NoError(t, err)
		require.NotNil(t, res.Remaining)
		assert.Equal(t, 3, *res.Remaining)

		_, err = v.Validate(ctx, domain.KindOneTimeAccessToken, fixtures.OneTimeTokenValid)
		require.NoError(t, err)

		after, err := store.GetSignupToken(ctx, fixtures.SignupPartiallyUsed)
		require.NoError(t, err)
		assert.Equal(t, before.UsageCount, after.UsageCount)

		ot, err := store.GetOneTimeAccessToken(ctx, fixtures.OneTimeTokenValid)
		require.NoError(t, err)
		assert.False(t, ot.Expired)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := v.Validate(ctx, domain.TokenKind("session"), "x")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestTokenValidator_ExpiredWinsOverExhausted(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	both := domain.SignupToken{
		ID: fixtures.NewID(), Token: "BOTHEXPIREDUSED1",
		ExpiresAt: testNow.Add(-time.Hour), UsageLimit: 2, UsageCount: 2, CreatedAt: testNow.Add(-48 * time.Hour),
	}
	require.NoError(t, store.CreateSignupToken(ctx, &both))

	res, err := NewTokenValidator(store, nil, nil, testOptions()).Validate(ctx, domain.KindSignupToken, both.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, res.Status)
}

func TestTokenValidator_RevocationList(t *testing.T) {
	store := seededStore(t)
	revocations := cache.NewMemoryRevocationList()
	defer revocations.Close()
	ctx := context.Background()

	require.NoError(t, revocations.Revoke(ctx, auth.HashToken(fixtures.RefreshTokenValid), time.Hour))

	res, err := NewTokenValidator(store, revocations, nil, testOptions()).Validate(ctx, domain.KindRefreshToken, fixtures.RefreshTokenValid)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRevoked, res.Status)
}

func TestTokenValidator_RevocationListUnavailable(t *testing.T) {
	store := seededStore(t)
	revocations := new(MockRevocationList)
	revocations.On("IsRevoked", mock.Anything, auth.HashToken(fixtures.RefreshTokenValid)).
		Return(false, errors.New("connection refused"))

	res, err := NewTokenValidator(store, revocations, nil, testOptions()).
		Validate(context.Background(), domain.KindRefreshToken, fixtures.RefreshTokenValid)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusValid, res.Status)
	revocations.AssertExpectations(t)
}

func TestTokenValidator_APIKeys(t *testing.T) {
	store := seededStore(t)
	issuer := NewTokenIssuer(store, testOptions())
	keyCache := cache.NewAPIKeyCache(time.Minute)
	defer keyCache.Close()
	v := NewTokenValidator(store, nil, keyCache, testOptions())
	ctx := context.Background()

	key, plaintext, err := issuer.CreateAPIKey(ctx, "ci pipeline", nil)
	require.NoError(t, err)

	got, err := v.ValidateAPIKey(ctx, plaintext)
	require.NoError(t, err)
	assert.Equal(t, key.ID, got.ID)

	cached, ok := keyCache.Get(key.KeyHash)
	require.True(t, ok)
	assert.Equal(t, key.ID, cached.ID)

	_, err = store.RevokeAPIKey(ctx, key.ID)
	require.NoError(t, err)
	keyCache.Delete(key.KeyHash)

	_, err = v.ValidateAPIKey(ctx, plaintext)
	assert.ErrorIs(t, err, domain.ErrRevoked)

	soon := testNow.Add(time.Minute)
	expiring, expiringPlain, err := issuer.CreateAPIKey(ctx, "short lived", &soon)
	require.NoError(t, err)

	later := NewTokenValidator(store, nil, nil, Options{Now: func() time.Time { return soon.Add(time.Second) }})
	res, err := later.Validate(ctx, domain.KindAPIKey, expiringPlain)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, res.Status)
	assert.Equal(t, expiring.ID, res.KeyID)
}
