package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucketEntry struct {
	limiter  *rate.Limiter
	limit    Limit
	lastSeen time.Time
}

// TokenBucket is an in-process per-key token bucket built on x/time/rate.
// It smooths request bursts for the general API throttle.
type TokenBucket struct {
	mu       sync.Mutex
	entries  map[string]*bucketEntry
	entryTTL time.Duration
	// lastPrune limits idle-key sweeps to one per entryTTL
	lastPrune time.Time
	now       func() time.Time
}

// NewTokenBucket creates a limiter that forgets keys idle for longer than entryTTL.
func NewTokenBucket(entryTTL time.Duration) *TokenBucket {
	if entryTTL <= 0 {
		entryTTL = 10 * time.Minute
	}
	return &TokenBucket{
		entries:  make(map[string]*bucketEntry),
		entryTTL: entryTTL,
		now:      time.Now,
	}
}

// Check implements Limiter. Max requests refill evenly over Window.
func (tb *TokenBucket) Check(_ context.Context, key string, limit Limit) (Result, error) {
	now := tb.now()
	if limit.Max <= 0 || limit.Window <= 0 {
		return Result{Allowed: false, ResetAt: now.Add(limit.Window)}, nil
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()

	if now.Sub(tb.lastPrune) >= tb.entryTTL {
		tb.prune(now)
		tb.lastPrune = now
	}

	entry, ok := tb.entries[key]
	if !ok || entry.limit != limit {
		every := limit.Window / time.Duration(limit.Max)
		entry = &bucketEntry{
			limiter: rate.NewLimiter(rate.Every(every), limit.burst()),
			limit:   limit,
		}
		tb.entries[key] = entry
	}
	entry.lastSeen = now

	if !entry.limiter.AllowN(now, 1) {
		missing := 1 - entry.limiter.TokensAt(now)
		wait := time.Duration(missing / float64(entry.limiter.Limit()) * float64(time.Second))
		return Result{Allowed: false, Remaining: 0, ResetAt: now.Add(wait)}, nil
	}

	remaining := int(entry.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Remaining: remaining, ResetAt: now.Add(limit.Window / time.Duration(limit.Max))}, nil
}

func (tb *TokenBucket) prune(now time.Time) {
	for k, e := range tb.entries {
		if now.Sub(e.lastSeen) > tb.entryTTL {
			delete(tb.entries, k)
		}
	}
}
