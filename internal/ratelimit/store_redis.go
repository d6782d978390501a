package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindowStore implements WindowStore on Redis. This is the production
// implementation: INCR is atomic server-side, so concurrent callers across
// instances cannot undercount.
type RedisWindowStore struct {
	client *redis.Client
}

// NewRedisWindowStore constructs a Redis-backed window store.
func NewRedisWindowStore(client *redis.Client) *RedisWindowStore {
	return &RedisWindowStore{client: client}
}

// Incr increments the counter for key. EXPIRE NX applies the TTL only when
// the key has none, so the window length is fixed by its first increment.
func (s *RedisWindowStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	ttl := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}

	remaining := ttl.Val()
	if remaining < 0 {
		remaining = window
	}
	return incr.Val(), remaining, nil
}
