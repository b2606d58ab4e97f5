package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestLimiter(t *testing.T, cfg Config, opts ...Option) (*Limiter, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	l, err := New(cfg, append([]Option{WithClock(clock)}, opts...)...)
	require.NoError(t, err)
	return l, clock
}

func enabled(rate float64, capacity int64) Config {
	return Config{Enabled: true, Rate: rate, Capacity: capacity}
}

func TestLimiter_DisabledAllowsEverything(t *testing.T) {
	l, _ := newTestLimiter(t, Config{})
	for i := 0; i < 1000; i++ {
		assert.True(t, l.Allow(context.Background(), "https://a").Allowed)
	}
	assert.NoError(t, l.WaitN(context.Background(), "https://a", 1<<20))
	assert.Empty(t, l.Resources())
}

func TestLimiter_BurstThenRefill(t *testing.T) {
	l, clock := newTestLimiter(t, enabled(10, 2))
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "https://a").Allowed)
	assert.True(t, l.Allow(ctx, "https://a").Allowed)

	resp := l.Allow(ctx, "https://a")
	assert.False(t, resp.Allowed)
	assert.Equal(t, 100*time.Millisecond, resp.RetryAfter)
	assert.Equal(t, int64(2), resp.Limit)

	// other hosts have their own bucket
	assert.True(t, l.Allow(ctx, "https://b").Allowed)

	clock.Advance(100 * time.Millisecond)
	assert.True(t, l.Allow(ctx, "https://a").Allowed)

	// refill never exceeds capacity
	clock.Advance(time.Hour)
	assert.Equal(t, int64(2), l.Snapshot("https://a").Tokens)
}

func TestLimiter_InitTokens(t *testing.T) {
	cfg := enabled(1, 5)
	cfg.InitTokens = 1
	l, _ := newTestLimiter(t, cfg)

	assert.True(t, l.Allow(context.Background(), "x").Allowed)
	assert.False(t, l.Allow(context.Background(), "x").Allowed)
}

func TestLimiter_WaitBlocksUntilToken(t *testing.T) {
	l, clock := newTestLimiter(t, enabled(10, 1))
	ctx := context.Background()
	require.True(t, l.Allow(ctx, "x").Allowed)

	done := make(chan error, 1)
	go func() { done <- l.Wait(ctx, "x") }()

	tctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(tctx, 1))
	select {
	case <-done:
		t.Fatal("wait returned before the bucket refilled")
	default:
	}

	clock.Advance(100 * time.Millisecond)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait did not return")
	}
}

func TestLimiter_WaitTimeout(t *testing.T) {
	cfg := enabled(10, 1)
	cfg.MaxWait = 50 * time.Millisecond
	l, _ := newTestLimiter(t, cfg)
	ctx := context.Background()
	require.True(t, l.Allow(ctx, "x").Allowed)

	err := l.Wait(ctx, "x")
	assert.ErrorIs(t, err, ErrWaitTimeout)
}

func TestLimiter_WaitCancelled(t *testing.T) {
	cfg := enabled(1, 1)
	cfg.MaxWait = 0
	l, clock := newTestLimiter(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, l.Allow(ctx, "x").Allowed)

	done := make(chan error, 1)
	go func() { done <- l.Wait(ctx, "x") }()
	tctx, tcancel := context.WithTimeout(context.Background(), time.Second)
	defer tcancel()
	require.NoError(t, clock.BlockUntilContext(tctx, 1))
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("wait did not return")
	}
}

func TestLimiter_WaitMoreThanCapacity(t *testing.T) {
	l, _ := newTestLimiter(t, enabled(10, 2))
	err := l.WaitN(context.Background(), "x", 3)
	assert.ErrorIs(t, err, ErrLimitExceeded)
}

func TestLimiter_SnapshotAndReset(t *testing.T) {
	l, _ := newTestLimiter(t, enabled(10, 1))
	ctx := context.Background()
	l.Allow(ctx, "b")
	l.Allow(ctx, "a")
	l.Allow(ctx, "a")

	s := l.Snapshot("a")
	assert.Equal(t, int64(1), s.Allowed)
	assert.Equal(t, int64(1), s.Rejected)
	assert.Equal(t, []string{"a", "b"}, l.Resources())

	l.Reset("a")
	assert.Equal(t, Snapshot{Resource: "a", Capacity: 1}, l.Snapshot("a"))
	assert.True(t, l.Allow(ctx, "a").Allowed)
}

func TestLimiter_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics := NewOTelMetrics(true)
	require.NoError(t, metrics.RegisterMetrics(mp.Meter("limiter")))

	l, _ := newTestLimiter(t, enabled(10, 1), WithMetrics(metrics))
	l.Allow(context.Background(), "x")
	l.Allow(context.Background(), "x")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	values := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			switch data := md.Data.(type) {
			case metricdata.Sum[int64]:
				require.Len(t, data.DataPoints, 1)
				values[md.Name] = data.DataPoints[0].Value
			case metricdata.Gauge[int64]:
				require.Len(t, data.DataPoints, 1)
				values[md.Name] = data.DataPoints[0].Value
			}
		}
	}
	assert.Equal(t, int64(1), values["limiter_allowed_total"])
	assert.Equal(t, int64(1), values["limiter_rejected_total"])
	assert.Equal(t, int64(0), values["limiter_tokens"])
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplyDefaults()
	assert.NoError(t, cfg.Validate())

	cfg.Enabled = true
	assert.NoError(t, cfg.Validate())

	cfg.InitTokens = cfg.Capacity + 1
	assert.ErrorIs(t, cfg.Validate(), ErrConfigInvalid)

	_, err := New(cfg)
	assert.ErrorIs(t, err, ErrConfigInvalid)
}
