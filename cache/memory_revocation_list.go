package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryRevocationList implements RevocationList using ttlcache.
type MemoryRevocationList struct {
	cache *ttlcache.Cache[string, struct{}]
}

// NewMemoryRevocationList creates an in-memory revocation list with automatic
// cleanup of lapsed entries.
func NewMemoryRevocationList() *MemoryRevocationList {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, struct{}](DefaultRevocationTTL),
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	)

	go cache.Start()

	return &MemoryRevocationList{cache: cache}
}

// Revoke implements RevocationList.Revoke.
func (l *MemoryRevocationList) Revoke(_ context.Context, tokenHash string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultRevocationTTL
	}
	l.cache.Set(tokenHash, struct{}{}, ttl)

	return nil
}

// IsRevoked implements RevocationList.IsRevoked.
func (l *MemoryRevocationList) IsRevoked(_ context.Context, tokenHash string) (bool, error) {
	return l.cache.Get(tokenHash) != nil, nil
}

// Clear implements RevocationList.Clear.
func (l *MemoryRevocationList) Clear(_ context.Context) error {
	l.cache.DeleteAll()

	return nil
}

// Count implements RevocationList.Count.
func (l *MemoryRevocationList) Count(_ context.Context) int {
	return l.cache.Len()
}

// Close stops the cleanup goroutine.
func (l *MemoryRevocationList) Close() error {
	l.cache.Stop()

	return nil
}

var _ RevocationList = (*MemoryRevocationList)(nil)
