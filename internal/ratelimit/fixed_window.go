package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/YASSERRMD/nexusERP/internal/safego"
)

type window struct {
	count   int
	resetAt time.Time
}

// FixedWindow is an in-process fixed-window counter. Counts are lost on restart
// and are not shared between replicas; use RedisFixedWindow for that.
type FixedWindow struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
	stopCh  chan struct{}
	stopped sync.Once
}

// NewFixedWindow creates a limiter. When cleanupInterval is positive a background
// goroutine evicts windows that have ended; call Stop to end it.
func NewFixedWindow(cleanupInterval time.Duration) *FixedWindow {
	fw := &FixedWindow{
		windows: make(map[string]*window),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	if cleanupInterval > 0 {
		safego.Go("ratelimit-janitor", func() { fw.cleanup(cleanupInterval) })
	}
	return fw
}

// Check implements Limiter. A new window starts when none exists for key or the
// previous one has ended; a full window rejects without counting the request.
func (fw *FixedWindow) Check(_ context.Context, key string, limit Limit) (Result, error) {
	now := fw.now()
	if limit.Max <= 0 {
		return Result{Allowed: false, ResetAt: now.Add(limit.Window)}, nil
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	w, ok := fw.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(limit.Window)}
		fw.windows[key] = w
		return Result{Allowed: true, Remaining: limit.Max - 1, ResetAt: w.resetAt}, nil
	}

	if w.count >= limit.Max {
		return Result{Allowed: false, Remaining: 0, ResetAt: w.resetAt}, nil
	}

	w.count++
	return Result{Allowed: true, Remaining: limit.Max - w.count, ResetAt: w.resetAt}, nil
}

// Len returns the number of tracked keys.
func (fw *FixedWindow) Len() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return len(fw.windows)
}

func (fw *FixedWindow) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fw.evictExpired()
		case <-fw.stopCh:
			return
		}
	}
}

func (fw *FixedWindow) evictExpired() {
	now := fw.now()
	fw.mu.Lock()
	defer fw.mu.Unlock()
	for key, w := range fw.windows {
		if now.After(w.resetAt) {
			delete(fw.windows, key)
		}
	}
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (fw *FixedWindow) Stop() {
	fw.stopped.Do(func() { close(fw.stopCh) })
}
