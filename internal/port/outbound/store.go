package outbound

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned when a key is not present in the cache.
var ErrCacheMiss = errors.New("cache miss")

// CounterPort defines atomic period counters backed by a shared store.
type CounterPort interface {
	// Increment atomically increments the counter and returns the new value.
	// The TTL is applied only when the increment created the counter, so a
	// counter's expiry is fixed at the start of its period.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Get returns the current counter value, or 0 if the key does not exist.
	Get(ctx context.Context, key string) (int64, error)
}

// LockPort defines a token-based distributed lock.
type LockPort interface {
	// Acquire attempts to take the lock in a single non-blocking step.
	// Returns false when another holder owns the key. The lock auto-expires
	// after expireAfter so a crashed holder cannot wedge the key.
	Acquire(ctx context.Context, key, token string, expireAfter time.Duration) (bool, error)

	// Release frees the lock only if token still owns it.
	// Returns false when the lock had already expired or changed hands.
	Release(ctx context.Context, key, token string) (bool, error)
}

// ResultCachePort defines the identification result cache.
type ResultCachePort interface {
	// Get retrieves a cached value. Returns ErrCacheMiss when absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RateLimiterPort defines inbound request rate limiting.
type RateLimiterPort interface {
	// Allow reports whether one more request fits under the limit.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	// GetRemaining returns how many requests remain in the current window.
	GetRemaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)
}
