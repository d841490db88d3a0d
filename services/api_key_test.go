package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/idcore/cache"
	"go.pilab.hu/idcore/domain"
)

func TestAPIKeyService(t *testing.T) {
	store := seededStore(t)
	opts := testOptions()
	keyCache := cache.NewAPIKeyCache(time.Minute)
	defer keyCache.Close()
	revocations := cache.NewMemoryRevocationList()
	defer revocations.Close()

	validator := NewTokenValidator(store, revocations, keyCache, opts)
	svc := NewAPIKeyService(store, NewTokenIssuer(store, opts), validator, revocations, keyCache, opts)
	ctx := context.Background()

	key, plaintext, err := svc.Create(ctx, "admin", nil)
	require.NoError(t, err)

	got, err := svc.Authenticate(ctx, plaintext)
	require.NoError(t, err)
	assert.Equal(t, key.ID, got.ID)

	stored, err := store.GetAPIKey(ctx, key.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastUsedAt)
	assert.Equal(t, testNow, *stored.LastUsedAt)

	revoked, err := svc.Revoke(domain.ContextWithAPIKey(ctx, got), key.ID)
	require.NoError(t, err)
	assert.True(t, revoked.Revoked)

	_, ok := keyCache.Get(key.KeyHash)
	assert.False(t, ok)
	assert.Equal(t, 1, revocations.Count(ctx))

	_, err = svc.Authenticate(ctx, plaintext)
	assert.ErrorIs(t, err, domain.ErrRevoked)

	_, err = svc.Revoke(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Authenticate(ctx, "idk_wrong")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAPIKeyService_RevokeUsesKeyExpiry(t *testing.T) {
	store := seededStore(t)
	opts := testOptions()
	revocations := new(MockRevocationList)
	svc := NewAPIKeyService(store, NewTokenIssuer(store, opts), nil, revocations, nil, opts)
	ctx := context.Background()

	expiresAt := time.Now().Add(2 * time.Hour)
	key, _, err := svc.Create(ctx, "temporary", &expiresAt)
	require.NoError(t, err)

	revocations.On("Revoke", mock.Anything, key.KeyHash, mock.MatchedBy(func(ttl time.Duration) bool {
		return ttl > time.Hour && ttl <= 2*time.Hour
	})).Return(nil)

	_, err = svc.Revoke(ctx, key.ID)
	require.NoError(t, err)
	revocations.AssertExpectations(t)
}
