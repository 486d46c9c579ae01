package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YASSERRMD/nexusERP/internal/telemetry"
)

type fakeDeleter struct {
	mu    sync.Mutex
	calls []time.Time
	n     int64
	err   error
	ran   chan struct{}
}

func newFakeDeleter(n int64) *fakeDeleter {
	return &fakeDeleter{n: n, ran: make(chan struct{}, 16)}
}

func (f *fakeDeleter) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	f.calls = append(f.calls, now)
	f.mu.Unlock()
	f.ran <- struct{}{}
	return f.n, f.err
}

func (f *fakeDeleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestNewSessionReaper_Schedule(t *testing.T) {
	r, err := NewSessionReaper(newFakeDeleter(0), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultReaperSchedule, r.spec)

	_, err = NewSessionReaper(newFakeDeleter(0), "0 * * * *")
	assert.NoError(t, err)

	_, err = NewSessionReaper(newFakeDeleter(0), "whenever")
	assert.Error(t, err)
}

func TestRunOnce_DeletesAndCounts(t *testing.T) {
	store := newFakeDeleter(3)
	r, err := NewSessionReaper(store, "")
	require.NoError(t, err)

	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	r.now = func() time.Time { return fixed }

	before := counterValue(t, telemetry.SessionsReapedTotal)
	assert.Equal(t, int64(3), r.RunOnce(context.Background()))
	assert.Equal(t, before+3, counterValue(t, telemetry.SessionsReapedTotal))

	require.Equal(t, 1, store.callCount())
	assert.True(t, store.calls[0].Equal(fixed))
	assert.Equal(t, time.UTC, store.calls[0].Location())
}

func TestRunOnce_StoreError(t *testing.T) {
	store := newFakeDeleter(5)
	store.err = errors.New("db down")
	r, err := NewSessionReaper(store, "")
	require.NoError(t, err)

	before := counterValue(t, telemetry.SessionsReapedTotal)
	assert.Equal(t, int64(0), r.RunOnce(context.Background()))
	assert.Equal(t, before, counterValue(t, telemetry.SessionsReapedTotal))
}

func TestRunOnce_CancelledContext(t *testing.T) {
	store := newFakeDeleter(1)
	r, err := NewSessionReaper(store, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, int64(0), r.RunOnce(ctx))
	assert.Equal(t, 0, store.callCount())
}

func TestStartStop(t *testing.T) {
	store := newFakeDeleter(0)
	r, err := NewSessionReaper(store, "@every 1h")
	require.NoError(t, err)

	r.Start(context.Background())
	r.Start(context.Background())

	select {
	case <-store.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not run on start")
	}

	r.Stop()
	r.Stop()
	assert.Equal(t, 1, store.callCount())
}

// blockingDeleter holds DeleteExpired until release is closed.
type blockingDeleter struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingDeleter) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	close(b.entered)
	<-b.release
	return 0, nil
}

func TestStopWaitsForInitialPass(t *testing.T) {
	store := &blockingDeleter{entered: make(chan struct{}), release: make(chan struct{})}
	r, err := NewSessionReaper(store, "@every 1h")
	require.NoError(t, err)

	r.Start(context.Background())
	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("initial pass did not start")
	}

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while the initial pass was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the initial pass finished")
	}
}
