package redis

import (
	"context"
	"time"

	"github.com/floralens/server/internal/port/outbound"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only when the stored token matches the
// caller's, so an expired lock re-acquired by someone else is never freed
// by the previous holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// lock implements outbound.LockPort using SET NX PX plus a token check on release.
type lock struct {
	client *redis.Client
}

// NewLock creates a new distributed lock adapter.
func NewLock(client *redis.Client) outbound.LockPort {
	return &lock{client: client}
}

func (l *lock) Acquire(ctx context.Context, key, token string, expireAfter time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, token, expireAfter).Result()
}

func (l *lock) Release(ctx context.Context, key, token string) (bool, error) {
	res, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// Compile-time check
var _ outbound.LockPort = (*lock)(nil)
