package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(threshold int, reset time.Duration) (*Breaker, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	return New("wss://x/topic", ResourceConfig{FailureThreshold: threshold, ResetTimeout: reset}, clock), clock
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, 10*time.Second)

	for i := 0; i < 2; i++ {
		require.NoError(t, b.Allow())
		b.RecordFailure()
		assert.Equal(t, StateClosed, b.State())
	}
	require.NoError(t, b.Allow())
	b.RecordFailure()

	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
	assert.True(t, b.Rejecting())
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(3, time.Second)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 2, b.Snapshot().Failures)
}

func TestBreaker_HalfOpenSingleProbe(t *testing.T) {
	b, clock := newTestBreaker(1, 10*time.Second)
	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())

	clock.Advance(9999 * time.Millisecond)
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	clock.Advance(time.Millisecond)
	assert.False(t, b.Rejecting())
	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())

	// probe already claimed
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
	assert.True(t, b.Rejecting())

	t.Run("probe success closes", func(t *testing.T) {
		b.RecordSuccess()
		assert.Equal(t, StateClosed, b.State())
		assert.NoError(t, b.Allow())
		assert.Equal(t, 0, b.Snapshot().Failures)
	})
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(1, 10*time.Second)
	b.RecordFailure()
	clock.Advance(10 * time.Second)
	require.NoError(t, b.Allow())

	b.RecordFailure()

	assert.Equal(t, StateOpen, b.State())
	snap := b.Snapshot()
	assert.Equal(t, clock.Now().Add(10*time.Second), snap.RetryAt)

	clock.Advance(5 * time.Second)
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
	clock.Advance(5 * time.Second)
	assert.NoError(t, b.Allow())
}

func TestBreaker_CancelProbe(t *testing.T) {
	b, clock := newTestBreaker(1, time.Second)
	b.RecordFailure()
	clock.Advance(time.Second)
	require.NoError(t, b.Allow())

	b.CancelProbe()

	assert.Equal(t, StateHalfOpen, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreaker_Execute(t *testing.T) {
	b, _ := newTestBreaker(2, time.Minute)
	boom := errors.New("boom")

	assert.ErrorIs(t, b.Execute(context.Background(), func(context.Context) error { return boom }), boom)
	assert.ErrorIs(t, b.Execute(context.Background(), func(context.Context) error { return boom }), boom)

	called := false
	err := b.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	t.Run("cancelled context is not a failure", func(t *testing.T) {
		b2, _ := newTestBreaker(1, time.Minute)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_ = b2.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
		assert.Equal(t, StateClosed, b2.State())
	})
}

func TestBreaker_Reset(t *testing.T) {
	b, clock := newTestBreaker(1, time.Hour)
	var changes []transition
	b.hooks.onChange = func(_ string, from, to State, reason string) {
		changes = append(changes, transition{from: from, to: to, reason: reason})
	}
	b.RecordFailure()
	require.False(t, canTransition(StateOpen, StateClosed))

	// open goes straight to closed
	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.Zero(t, b.Snapshot().Failures)
	assert.NoError(t, b.Allow())

	// a pending probe is abandoned
	b.RecordFailure()
	clock.Advance(time.Hour)
	require.NoError(t, b.Allow())
	require.Equal(t, StateHalfOpen, b.State())
	b.Reset()
	assert.Equal(t, StateClosed, b.State())

	// closed stays quiet
	b.Reset()

	require.Len(t, changes, 5)
	assert.Equal(t, transition{from: StateOpen, to: StateClosed, reason: "manual reset"}, changes[1])
	assert.Equal(t, transition{from: StateHalfOpen, to: StateClosed, reason: "manual reset"}, changes[4])
}

func TestState_Transitions(t *testing.T) {
	assert.True(t, canTransition(StateClosed, StateOpen))
	assert.True(t, canTransition(StateOpen, StateHalfOpen))
	assert.True(t, canTransition(StateHalfOpen, StateClosed))
	assert.True(t, canTransition(StateHalfOpen, StateOpen))
	assert.False(t, canTransition(StateClosed, StateHalfOpen))
	assert.False(t, canTransition(StateOpen, StateClosed))
	assert.Equal(t, "half-open", StateHalfOpen.String())
}

func TestConfig(t *testing.T) {
	t.Run("defaults valid", func(t *testing.T) {
		cfg := Config{}
		cfg.ApplyDefaults()
		assert.NoError(t, cfg.Validate())
		assert.Equal(t, 5, cfg.Default.FailureThreshold)
	})

	t.Run("override merged", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Resources["wss://slow"] = ResourceConfig{ResetTimeout: time.Minute}
		rc := cfg.ForResource("wss://slow")
		assert.Equal(t, 5, rc.FailureThreshold)
		assert.Equal(t, time.Minute, rc.ResetTimeout)
		assert.Equal(t, cfg.Default, cfg.ForResource("other"))
	})

	t.Run("invalid", func(t *testing.T) {
		rc := ResourceConfig{FailureThreshold: 0, ResetTimeout: time.Second}
		assert.Error(t, rc.Validate())
	})
}
