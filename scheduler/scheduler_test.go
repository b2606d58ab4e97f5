package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KOMKZ/opsfeed/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := New(DefaultConfig(), WithLogger(logger.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

func TestScheduler_Every(t *testing.T) {
	s := newScheduler(t)
	var runs atomic.Int32
	require.NoError(t, s.Every("cache.sweep", 10*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return nil
	}))
	assert.Zero(t, runs.Load())

	s.Start()
	s.Start()
	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_FailingJobKeepsRunning(t *testing.T) {
	log, logs := logger.NewTestLogger()
	s, err := New(DefaultConfig(), WithLogger(log))
	require.NoError(t, err)
	defer s.Shutdown()

	var runs atomic.Int32
	require.NoError(t, s.Every("refresh", 10*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return errors.New("upstream down")
	}))
	s.Start()

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return logs.FilterMessage("⚠️ [Scheduler] job failed").Len() >= 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_ReplaceAndRemove(t *testing.T) {
	s := newScheduler(t)
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Every("b", time.Hour, noop))
	require.NoError(t, s.Every("a", time.Hour, noop))
	require.NoError(t, s.Every("a", 2*time.Hour, noop))
	assert.Equal(t, []string{"a", "b"}, s.Jobs())

	s.Start()
	next, ok := s.NextRun("a")
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), next, time.Minute)

	require.NoError(t, s.Remove("a"))
	require.NoError(t, s.Remove("a"))
	assert.Equal(t, []string{"b"}, s.Jobs())
	_, ok = s.NextRun("a")
	assert.False(t, ok)
}

func TestScheduler_InvalidInterval(t *testing.T) {
	s := newScheduler(t)
	err := s.Every("x", 0, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestScheduler_ShutdownCancelsJobs(t *testing.T) {
	s, err := New(DefaultConfig(), WithLogger(logger.NewNop()))
	require.NoError(t, err)

	started := make(chan struct{}, 1)
	var cancelled atomic.Bool
	require.NoError(t, s.Every("long", 10*time.Millisecond, func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}))
	s.Start()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}
	require.NoError(t, s.Shutdown())
	assert.True(t, cancelled.Load())
	assert.NoError(t, s.Shutdown())

	err = s.Every("late", time.Second, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrStopped)
}
