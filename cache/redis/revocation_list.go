package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/idcore/cache"
)

// RevocationList implements cache.RevocationList on Redis, so revocations
// are visible to every instance of the server.
type RevocationList struct {
	client *redis.Client
	prefix string
}

// NewRevocationList creates a new [RevocationList] instance.
func NewRevocationList(client *redis.Client, prefix string) *RevocationList {
	return &RevocationList{
		client: client,
		prefix: prefix,
	}
}

func (r *RevocationList) redisKey(tokenHash string) string {
	return fmt.Sprintf("%s:revoked:%s", r.prefix, tokenHash)
}

// Revoke marks tokenHash as revoked for ttl.
func (r *RevocationList) Revoke(ctx context.Context, tokenHash string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cache.DefaultRevocationTTL
	}
	if err := r.client.Set(ctx, r.redisKey(tokenHash), time.Now().Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to store revocation in Redis: %w", err)
	}

	return nil
}

// IsRevoked reports whether tokenHash is on the list.
func (r *RevocationList) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	n, err := r.client.Exists(ctx, r.redisKey(tokenHash)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to query revocation in Redis: %w", err)
	}

	return n > 0, nil
}

// Clear removes every revocation under the prefix.
func (r *RevocationList) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.redisKey("*"), 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan revocations: %w", err)
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete revocations: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Count returns the number of revocations under the prefix.
func (r *RevocationList) Count(ctx context.Context) int {
	var (
		count  int
		cursor uint64
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.redisKey("*"), 100).Result()
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("failed to scan revocations")
			return count
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			return count
		}
	}
}

var _ cache.RevocationList = (*RevocationList)(nil)
