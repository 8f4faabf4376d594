package redis

import (
	"context"
	"time"

	"github.com/floralens/server/internal/port/outbound"
	"github.com/redis/go-redis/v9"
)

// resultCache implements outbound.ResultCachePort.
type resultCache struct {
	client *redis.Client
}

// NewResultCache creates a new identification result cache adapter.
func NewResultCache(client *redis.Client) outbound.ResultCachePort {
	return &resultCache{client: client}
}

func (c *resultCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, outbound.ErrCacheMiss
		}
		return nil, err
	}
	return val, nil
}

func (c *resultCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Compile-time check
var _ outbound.ResultCachePort = (*resultCache)(nil)
