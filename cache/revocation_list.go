package cache

import (
	"context"
	"time"
)

// DefaultRevocationTTL bounds how long a revocation without a natural expiry
// is remembered. The store stays the source of truth after that.
const DefaultRevocationTTL = 24 * time.Hour

// RevocationList remembers revoked credentials by the hash of their value so
// validators can reject them without a store round trip.
type RevocationList interface {
	Revoke(ctx context.Context, tokenHash string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenHash string) (bool, error)
	Clear(ctx context.Context) error
	Count(ctx context.Context) int
}
