package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExpirer hands out the queued batch results in order, then zero
type fakeExpirer struct {
	mu      sync.Mutex
	results []int
	err     error
	calls   int
	limits  []int
}

func (f *fakeExpirer) ExpireHolds(ctx context.Context, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return 0, f.err
	}
	if len(f.results) == 0 {
		return 0, nil
	}
	n := f.results[0]
	f.results = f.results[1:]
	return n, nil
}

func (f *fakeExpirer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestHoldReclaimer_RunOnceDrainsFullBatches(t *testing.T) {
	expirer := &fakeExpirer{results: []int{10, 10, 3}}
	w := NewHoldReclaimer(expirer, &HoldReclaimerConfig{ScanInterval: time.Hour, BatchSize: 10})

	n := w.RunOnce(context.Background())

	assert.Equal(t, 23, n)
	assert.Equal(t, 3, expirer.calls)
	assert.Equal(t, []int{10, 10, 10}, expirer.limits)

	stats := w.GetStats()
	assert.Equal(t, int64(23), stats.TotalExpired)
	assert.Equal(t, 3, stats.LastExpiredCount)
	assert.False(t, stats.IsRunning)
}

func TestHoldReclaimer_RunOnceError(t *testing.T) {
	expirer := &fakeExpirer{err: errors.New("connection reset")}
	w := NewHoldReclaimer(expirer, nil)

	assert.Equal(t, 0, w.RunOnce(context.Background()))
	assert.Equal(t, 1, expirer.calls)
	assert.Equal(t, "connection reset", w.GetStats().LastError)
}

func TestHoldReclaimer_Defaults(t *testing.T) {
	w := NewHoldReclaimer(&fakeExpirer{}, &HoldReclaimerConfig{})
	assert.Equal(t, 30*time.Second, w.config.ScanInterval)
	assert.Equal(t, 100, w.config.BatchSize)
}

func TestHoldReclaimer_StartStop(t *testing.T) {
	expirer := &fakeExpirer{results: []int{2}}
	w := NewHoldReclaimer(expirer, &HoldReclaimerConfig{ScanInterval: 10 * time.Millisecond, BatchSize: 5})

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()), "second start is rejected")
	assert.True(t, w.GetStats().IsRunning)

	assert.Eventually(t, func() bool { return expirer.callCount() >= 3 }, time.Second, 5*time.Millisecond)

	w.Stop()
	w.Stop()
	stopped := expirer.callCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, expirer.callCount(), "no scans after stop")
	assert.Equal(t, int64(2), w.GetStats().TotalExpired)
	assert.False(t, w.GetStats().IsRunning)
}

func TestHoldReclaimer_StopsWithContext(t *testing.T) {
	expirer := &fakeExpirer{}
	w := NewHoldReclaimer(expirer, &HoldReclaimerConfig{ScanInterval: 5 * time.Millisecond, BatchSize: 5})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	assert.Eventually(t, func() bool { return expirer.callCount() >= 1 }, time.Second, time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reclaimer loop did not exit after context cancel")
	}
}
