package responder

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/awayreply/internal/logging"
)

// instantWait records requested delays and returns immediately.
type instantWait struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (w *instantWait) wait(ctx context.Context, d time.Duration) bool {
	w.mu.Lock()
	w.delays = append(w.delays, d)
	w.mu.Unlock()
	return ctx.Err() == nil
}

func TestScheduler_RunsSequentially(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var active, maxActive, runs atomic.Int32
	run := func(ctx context.Context) {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		if runs.Add(1) == 5 {
			cancel()
		}
	}

	w := &instantWait{}
	s := NewScheduler(DefaultInterval, run, logging.Discard())
	s.wait = w.wait

	require.True(t, s.Start(ctx))

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}

	assert.Equal(t, int32(5), runs.Load())
	assert.Equal(t, int32(1), maxActive.Load(), "cycles must never overlap")

	w.mu.Lock()
	defer w.mu.Unlock()
	// One delay before each run, plus the one interrupted by cancel.
	assert.Len(t, w.delays, 6)
	for _, d := range w.delays {
		assert.GreaterOrEqual(t, d, DefaultInterval.Min)
		assert.Less(t, d, DefaultInterval.Max)
	}
}

func TestScheduler_StartIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	s := NewScheduler(DefaultInterval, func(context.Context) { runs.Add(1) }, logging.Discard())

	// Block in the delay until the test releases it.
	release := make(chan struct{})
	var waits atomic.Int32
	s.wait = func(ctx context.Context, d time.Duration) bool {
		waits.Add(1)
		select {
		case <-release:
			return false
		case <-ctx.Done():
			return false
		}
	}

	assert.False(t, s.Started())
	assert.True(t, s.Start(ctx))
	assert.False(t, s.Start(ctx))
	assert.False(t, s.Start(ctx))
	assert.True(t, s.Started())

	close(release)
	<-s.Done()

	assert.Equal(t, int32(1), waits.Load(), "only one loop may run")
	assert.Zero(t, runs.Load())
}

func TestScheduler_StopsOnCancelDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var runs atomic.Int32
	s := NewScheduler(Interval{Min: time.Hour, Max: 2 * time.Hour}, func(context.Context) { runs.Add(1) }, logging.Discard())
	require.True(t, s.Start(ctx))

	cancel()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Zero(t, runs.Load())
}

func TestScheduler_WaitsBeforeFirstRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ran := make(chan time.Time, 1)
	s := NewScheduler(Interval{Min: 20 * time.Millisecond, Max: 30 * time.Millisecond}, func(context.Context) {
		select {
		case ran <- time.Now():
		default:
		}
		cancel()
	}, logging.Discard())

	start := time.Now()
	require.True(t, s.Start(ctx))

	select {
	case at := <-ran:
		assert.GreaterOrEqual(t, at.Sub(start), 20*time.Millisecond)
	case <-time.After(5 * time.Second):
		t.Fatal("cycle never ran")
	}
	<-s.Done()
}

func TestSleepContext(t *testing.T) {
	assert.True(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleepContext(ctx, time.Hour))
}
