// session_reaper.go implements the SessionReaper background job, which deletes sessions
// whose expiry has passed. Validation already rejects expired sessions, so the reaper
// only bounds table growth; a missed run has no effect on correctness.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/YASSERRMD/nexusERP/internal/safego"
	"github.com/YASSERRMD/nexusERP/internal/telemetry"
)

// DefaultReaperSchedule runs the reaper every fifteen minutes
const DefaultReaperSchedule = "@every 15m"

// ExpiredSessionDeleter removes every session expiring at or before now.
type ExpiredSessionDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SessionReaper periodically deletes expired sessions on a cron schedule.
type SessionReaper struct {
	store    ExpiredSessionDeleter
	schedule cron.Schedule
	spec     string
	timeout  time.Duration
	now      func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
	// initial tracks the pass launched by Start outside the cron schedule
	initial sync.WaitGroup
}

// NewSessionReaper creates a reaper for the given cron spec. An empty spec selects
// DefaultReaperSchedule.
func NewSessionReaper(store ExpiredSessionDeleter, spec string) (*SessionReaper, error) {
	if spec == "" {
		spec = DefaultReaperSchedule
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid session reaper schedule %q: %w", spec, err)
	}
	return &SessionReaper{
		store:    store,
		schedule: schedule,
		spec:     spec,
		timeout:  time.Minute,
		now:      time.Now,
	}, nil
}

// Start schedules the reaper and runs one pass immediately. Calling Start on a
// running reaper is a no-op.
func (r *SessionReaper) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(r.schedule, cron.FuncJob(func() { r.RunOnce(ctx) }))
	c.Start()
	r.cron = c

	slog.Info("session reaper started", "schedule", r.spec)
	r.initial.Add(1)
	safego.Go("session-reaper-initial", func() {
		defer r.initial.Done()
		r.RunOnce(ctx)
	})
}

// Stop halts scheduling and waits for a running pass to finish.
func (r *SessionReaper) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	r.initial.Wait()
	slog.Info("session reaper stopped")
}

// RunOnce deletes expired sessions and returns how many were removed.
func (r *SessionReaper) RunOnce(ctx context.Context) int64 {
	if ctx.Err() != nil {
		return 0
	}
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	n, err := r.store.DeleteExpired(runCtx, r.now().UTC())
	if err != nil {
		slog.Error("session reaper: failed to delete expired sessions", "error", err)
		return 0
	}
	if n > 0 {
		telemetry.SessionsReapedTotal.Add(float64(n))
		slog.Info("session reaper: deleted expired sessions", "count", n)
	}
	return n
}
