package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/idcore/domain"
)

func TestMemoryRevocationList(t *testing.T) {
	ctx := context.Background()
	list := NewMemoryRevocationList()
	defer list.Close()

	revoked, err := list.IsRevoked(ctx, "hash")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, list.Revoke(ctx, "hash", time.Hour))
	revoked, err = list.IsRevoked(ctx, "hash")
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Equal(t, 1, list.Count(ctx))

	require.NoError(t, list.Revoke(ctx, "short", 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)
	revoked, err = list.IsRevoked(ctx, "short")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, list.Clear(ctx))
	assert.Equal(t, 0, list.Count(ctx))
}

func TestAPIKeyCache(t *testing.T) {
	c := NewAPIKeyCache(time.Minute)
	defer c.Close()

	key := &domain.APIKey{ID: "5f1fa856-c164-4295-961e-175a0d22d725", KeyHash: "h1", Name: "Test API Key"}
	c.Set(key)

	got, ok := c.Get("h1")
	require.True(t, ok)
	assert.Equal(t, key.ID, got.ID)

	got.Name = "mutated"
	again, _ := c.Get("h1")
	assert.Equal(t, "Test API Key", again.Name, "callers get copies")

	c.Delete("h1")
	_, ok = c.Get("h1")
	assert.False(t, ok)

	past := time.Now().Add(-time.Second)
	c.Set(&domain.APIKey{ID: "old", KeyHash: "h2", ExpiresAt: &past})
	_, ok = c.Get("h2")
	assert.False(t, ok, "expired keys are not cached")
}
