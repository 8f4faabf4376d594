package redis

import (
	"context"
	"time"

	"github.com/floralens/server/internal/port/outbound"
	"github.com/redis/go-redis/v9"
)

// counter implements outbound.CounterPort.
type counter struct {
	client *redis.Client
}

// NewCounter creates a new shared counter adapter.
func NewCounter(client *redis.Client) outbound.CounterPort {
	return &counter{client: client}
}

func (c *counter) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	val, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}

	// Only the increment that created the key sets the expiry. Refreshing
	// it on every increment would push the reset forward forever.
	if val == 1 && ttl > 0 {
		if err := c.client.Expire(ctx, key, ttl).Err(); err != nil {
			return val, err
		}
	}

	return val, nil
}

func (c *counter) Get(ctx context.Context, key string) (int64, error) {
	val, err := c.client.Get(ctx, key).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	return val, nil
}

// Compile-time check
var _ outbound.CounterPort = (*counter)(nil)
