package authz

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const pinFailPrefix = "pinfail:v1:"

// AttemptLimiter tracks consecutive failed PIN attempts per wallet within a
// cool-down window.
type AttemptLimiter interface {
	// Fail records a failed attempt and returns the running count.
	Fail(ctx context.Context, walletID string) (int64, error)
	// Reset clears the counter after a successful authorization.
	Reset(ctx context.Context, walletID string) error
}

// RedisLimiter counts failures in Redis with a TTL acting as the cool-down.
type RedisLimiter struct {
	cache  *redis.Client
	window time.Duration
}

// NewRedisLimiter builds a Redis-backed attempt limiter.
func NewRedisLimiter(cache *redis.Client, window time.Duration) *RedisLimiter {
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &RedisLimiter{cache: cache, window: window}
}

// Fail increments the wallet's failure counter, starting the cool-down on
// the first failure.
func (l *RedisLimiter) Fail(ctx context.Context, walletID string) (int64, error) {
	key := pinFailPrefix + walletID
	count, err := l.cache.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		l.cache.Expire(ctx, key, l.window)
	}
	return count, nil
}

// Reset clears the wallet's failure counter.
func (l *RedisLimiter) Reset(ctx context.Context, walletID string) error {
	return l.cache.Del(ctx, pinFailPrefix+walletID).Err()
}

// MemoryLimiter is an in-process limiter for tests.
type MemoryLimiter struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewMemoryLimiter builds an in-memory attempt limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{counts: make(map[string]int64)}
}

// Fail increments the counter for a wallet.
func (l *MemoryLimiter) Fail(_ context.Context, walletID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[walletID]++
	return l.counts[walletID], nil
}

// Reset clears the counter for a wallet.
func (l *MemoryLimiter) Reset(_ context.Context, walletID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.counts, walletID)
	return nil
}
