package cache

import (
	"time"

	"github.com/jellydator/ttlcache/v3"

	"go.pilab.hu/idcore/domain"
)

// APIKeyCache keeps recently validated API keys keyed by key hash, so the
// admin API does not hit the store on every request.
type APIKeyCache struct {
	cache *ttlcache.Cache[string, *domain.APIKey]
	ttl   time.Duration
}

// NewAPIKeyCache creates a cache whose entries live for ttl.
func NewAPIKeyCache(ttl time.Duration) *APIKeyCache {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *domain.APIKey](ttl),
		ttlcache.WithDisableTouchOnHit[string, *domain.APIKey](),
	)

	go cache.Start()

	return &APIKeyCache{cache: cache, ttl: ttl}
}

// Get returns a copy of the cached key, if present.
func (c *APIKeyCache) Get(keyHash string) (*domain.APIKey, bool) {
	item := c.cache.Get(keyHash)
	if item == nil {
		return nil, false
	}
	key := *item.Value()

	return &key, true
}

// Set caches key. Entries never outlive the key's own expiry.
func (c *APIKeyCache) Set(key *domain.APIKey) {
	ttl := ttlcache.DefaultTTL
	if key.ExpiresAt != nil {
		remaining := time.Until(*key.ExpiresAt)
		if remaining <= 0 {
			return
		}
		if remaining < c.ttl {
			ttl = remaining
		}
	}
	stored := *key
	c.cache.Set(key.KeyHash, &stored, ttl)
}

// Delete evicts a key, used on revocation.
func (c *APIKeyCache) Delete(keyHash string) {
	c.cache.Delete(keyHash)
}

// Close stops the cleanup goroutine.
func (c *APIKeyCache) Close() {
	c.cache.Stop()
}
