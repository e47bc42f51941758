package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter keyed by caller. The window resets
// when it elapses; this is not a sliding log.
type RateLimiter interface {
	// Allow reports whether the key may proceed, and if not, how long until
	// the window resets.
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// RedisRateLimiter counts in Redis so the limit survives restarts and is
// shared across replicas.
type RedisRateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration, prefix string) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: prefix,
	}
}

func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	fullKey := fmt.Sprintf("%s:%s", rl.prefix, key)

	pipe := rl.client.Pipeline()
	incrCmd := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, rl.window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("rate limit check: %w", err)
	}

	count := int(incrCmd.Val())
	if count > rl.limit {
		ttl, err := rl.client.TTL(ctx, fullKey).Result()
		if err != nil || ttl < 0 {
			ttl = rl.window
		}
		return false, ttl, nil
	}
	return true, 0, nil
}

// MemoryRateLimiter is the in-process variant used in tests and single-node
// deployments.
type MemoryRateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	counts map[string]*windowCount
	now    func() time.Time
}

type windowCount struct {
	count int
	start time.Time
}

func NewMemoryRateLimiter(limit int, window time.Duration) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		limit:  limit,
		window: window,
		counts: make(map[string]*windowCount),
		now:    time.Now,
	}
}

func (rl *MemoryRateLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	wc := rl.counts[key]
	if wc == nil || now.Sub(wc.start) >= rl.window {
		rl.counts[key] = &windowCount{count: 1, start: now}
		return true, 0, nil
	}

	wc.count++
	if wc.count > rl.limit {
		return false, wc.start.Add(rl.window).Sub(now), nil
	}
	return true, 0, nil
}

// Reset clears all counters. Intended for tests.
func (rl *MemoryRateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.counts = make(map[string]*windowCount)
}
