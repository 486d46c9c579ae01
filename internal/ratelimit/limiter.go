// Package ratelimit provides keyed request throttles behind one Limiter interface:
// an in-memory fixed window, a Redis fixed window shared across replicas, a local
// token bucket and a Redis GCRA limiter.
//
// Keys are opaque strings such as "login:203.0.113.7" or "user:<id>". Callers pick
// the backend at startup and pass the Limiter to middleware; nothing here is global.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrBackendUnavailable wraps failures talking to a shared counter store.
var ErrBackendUnavailable = errors.New("rate limit backend unavailable")

// Limit describes how many requests a key may make per window.
type Limit struct {
	Max    int
	Window time.Duration
	// Burst applies to the token bucket and GCRA limiters only; zero means Max.
	Burst int
}

// PerMinute returns a Limit of n requests per minute with the given burst.
func PerMinute(n, burst int) Limit {
	return Limit{Max: n, Window: time.Minute, Burst: burst}
}

func (l Limit) burst() int {
	if l.Burst > 0 {
		return l.Burst
	}
	return l.Max
}

// Result is the outcome of one Check.
type Result struct {
	Allowed   bool
	Remaining int
	// ResetAt is when the current window ends, or when the next request would be
	// admitted for the token-based limiters.
	ResetAt time.Time
}

// RetryAfter returns how long a rejected caller should wait, at least one second.
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetAt.Sub(now)
	if d < time.Second {
		return time.Second
	}
	return d.Round(time.Second)
}

// Limiter counts a request against key and reports whether it is allowed.
type Limiter interface {
	Check(ctx context.Context, key string, limit Limit) (Result, error)
}

// Backend names accepted by the security.rate_limiting.backend setting.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)
