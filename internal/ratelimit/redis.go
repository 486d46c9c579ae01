package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces limiter keys in a shared Redis.
const DefaultKeyPrefix = "erp:ratelimit:"

// RedisFixedWindow is a fixed-window counter stored in Redis so every replica
// shares one count per key. Each check runs SET NX, INCR and PTTL in one
// MULTI/EXEC transaction, which makes the increment atomic.
type RedisFixedWindow struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisFixedWindow creates a limiter over client.
func NewRedisFixedWindow(client redis.UniversalClient, prefix string) *RedisFixedWindow {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisFixedWindow{client: client, prefix: prefix, now: time.Now}
}

// Check implements Limiter. Rejected requests are still counted; the count only
// needs to stay above Max until the key expires.
func (r *RedisFixedWindow) Check(ctx context.Context, key string, limit Limit) (Result, error) {
	now := r.now()
	if limit.Max <= 0 {
		return Result{Allowed: false, ResetAt: now.Add(limit.Window)}, nil
	}

	k := r.prefix + key

	pipe := r.client.TxPipeline()
	pipe.SetNX(ctx, k, 0, limit.Window)
	incr := pipe.Incr(ctx, k)
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	remainingTTL := ttl.Val()
	if remainingTTL <= 0 {
		// Key lost its expiry; restart the window rather than counting forever.
		if err := r.client.PExpire(ctx, k, limit.Window).Err(); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		remainingTTL = limit.Window
	}

	count := int(incr.Val())
	remaining := limit.Max - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= limit.Max,
		Remaining: remaining,
		ResetAt:   now.Add(remainingTTL),
	}, nil
}

// RedisGCRA is a shared token-bucket style limiter using the generic cell rate
// algorithm from redis_rate. It suits the smoothed per-user API throttle.
type RedisGCRA struct {
	limiter *redis_rate.Limiter
	prefix  string
	now     func() time.Time
}

// NewRedisGCRA creates a GCRA limiter over client.
func NewRedisGCRA(client redis.UniversalClient, prefix string) *RedisGCRA {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisGCRA{limiter: redis_rate.NewLimiter(client), prefix: prefix, now: time.Now}
}

// Check implements Limiter.
func (g *RedisGCRA) Check(ctx context.Context, key string, limit Limit) (Result, error) {
	now := g.now()
	if limit.Max <= 0 || limit.Window <= 0 {
		return Result{Allowed: false, ResetAt: now.Add(limit.Window)}, nil
	}

	res, err := g.limiter.Allow(ctx, g.prefix+key, redis_rate.Limit{
		Rate:   limit.Max,
		Burst:  limit.burst(),
		Period: limit.Window,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if res.Allowed == 0 {
		return Result{Allowed: false, Remaining: 0, ResetAt: now.Add(res.RetryAfter)}, nil
	}
	return Result{Allowed: true, Remaining: res.Remaining, ResetAt: now.Add(res.ResetAfter)}, nil
}
