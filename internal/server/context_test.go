package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/awayreply/internal/logging"
)

func TestServerContext_StartPollingOnce(t *testing.T) {
	var calls atomic.Int32
	sc := NewServerContext(context.Background(), func(context.Context) error {
		calls.Add(1)
		return nil
	}, logging.Discard())

	assert.Equal(t, StateUnauthenticated, sc.State())

	started, err := sc.StartPolling()
	require.NoError(t, err)
	assert.True(t, started)
	assert.True(t, sc.IsPolling())

	started, err = sc.StartPolling()
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, int32(1), calls.Load())
}

func TestServerContext_ConcurrentStartPolling(t *testing.T) {
	var calls atomic.Int32
	sc := NewServerContext(context.Background(), func(context.Context) error {
		calls.Add(1)
		return nil
	}, logging.Discard())

	var wg sync.WaitGroup
	var startedCount atomic.Int32
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := sc.StartPolling(); err == nil && ok {
				startedCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(1), startedCount.Load())
}

func TestServerContext_ActivationFailureKeepsState(t *testing.T) {
	fail := true
	sc := NewServerContext(context.Background(), func(context.Context) error {
		if fail {
			return errors.New("profile unavailable")
		}
		return nil
	}, logging.Discard())

	started, err := sc.StartPolling()
	require.Error(t, err)
	assert.False(t, started)
	assert.Contains(t, err.Error(), "failed to start polling")
	assert.Equal(t, StateUnauthenticated, sc.State())

	fail = false
	started, err = sc.StartPolling()
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, StatePolling, sc.State())
}

func TestServerContext_Shutdown(t *testing.T) {
	var gotCtx context.Context
	sc := NewServerContext(context.Background(), func(ctx context.Context) error {
		gotCtx = ctx
		return nil
	}, logging.Discard())

	_, err := sc.StartPolling()
	require.NoError(t, err)
	require.NotNil(t, gotCtx)

	require.NoError(t, sc.Shutdown())
	require.NoError(t, sc.Shutdown(), "second shutdown is a no-op")

	assert.True(t, sc.IsShutdown())
	assert.ErrorIs(t, gotCtx.Err(), context.Canceled)
	assert.ErrorIs(t, sc.Context().Err(), context.Canceled)
}

func TestServerContext_StartAfterShutdown(t *testing.T) {
	sc := NewServerContext(context.Background(), func(context.Context) error { return nil }, logging.Discard())
	require.NoError(t, sc.Shutdown())

	started, err := sc.StartPolling()
	assert.False(t, started)
	assert.ErrorIs(t, err, ErrShutdown)
}
