package server

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"go.pilab.hu/idcore/cache"
	redisrl "go.pilab.hu/idcore/cache/redis"
	"go.pilab.hu/idcore/config"
	"go.pilab.hu/idcore/domain"
	"go.pilab.hu/idcore/memory"
	"go.pilab.hu/idcore/mongodb"
	"go.pilab.hu/idcore/postgres"
)

// OpenStore connects the store selected by STORE_DRIVER. The mongodb and
// postgres stores prepare their indexes and schema before returning.
func OpenStore(ctx context.Context, cfg *config.ServerConfig) (domain.RepositoryProvider, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return memory.NewStore(), nil
	case config.DriverMongoDB:
		p, err := mongodb.NewRepositoryProvider(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, fmt.Errorf("open mongodb store: %w", err)
		}
		return p, nil
	case config.DriverPostgres:
		s, err := postgres.NewStore(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// RevocationList is a cache.RevocationList that releases its resources on
// Close.
type RevocationList interface {
	cache.RevocationList
	Close() error
}

type redisRevocationList struct {
	*redisrl.RevocationList
	client *redis.Client
}

func (r redisRevocationList) Close() error { return r.client.Close() }

// OpenRevocationList returns a Redis backed list when REDIS_ADDR is set and
// an in-process one otherwise.
func OpenRevocationList(ctx context.Context, cfg *config.ServerConfig) (RevocationList, error) {
	if cfg.RedisAddr == "" {
		return cache.NewMemoryRevocationList(), nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	return redisRevocationList{
		RevocationList: redisrl.NewRevocationList(client, cfg.RedisPrefix),
		client:         client,
	}, nil
}
