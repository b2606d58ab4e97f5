package redis

import (
	"context"
	"testing"

	"github.com/KOMKZ/opsfeed/logger"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()

	client, err := NewClient(context.Background(), cfg, logger.NewNop(), nil)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewClient_NoAddress(t *testing.T) {
	_, err := NewClient(context.Background(), DefaultConfig(), logger.NewNop(), nil)
	assert.ErrorIs(t, err, ErrConfigInvalid)
}

func TestNewClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := DefaultConfig()
	cfg.Addr = addr
	cfg.MaxRetries = -1
	_, err := NewClient(context.Background(), cfg, logger.NewNop(), nil)
	assert.ErrorIs(t, err, ErrConnect)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplyDefaults()
	assert.ErrorIs(t, cfg.Validate(), ErrConfigInvalid)

	cfg.Addr = "localhost:6379"
	cfg.ApplyDefaults()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"localhost:6379"}, cfg.Addrs)

	cfg.Mode = "sentinel"
	assert.ErrorIs(t, cfg.Validate(), ErrConfigInvalid)
}

func TestMetricsHook(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	metrics := NewMetrics(true)
	require.NoError(t, metrics.RegisterMetrics(mp.Meter("redis")))

	mr := miniredis.RunT(t)
	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()
	client, err := NewClient(context.Background(), cfg, logger.NewNop(), metrics)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.Set(ctx, "k", "v", 0).Err())
	assert.ErrorIs(t, client.Get(ctx, "missing").Err(), goredis.Nil)
	_, err = client.Pipelined(ctx, func(p goredis.Pipeliner) error {
		p.Get(ctx, "k")
		p.Get(ctx, "k")
		return nil
	})
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				counts[m.Name] += dp.Value
			}
		}
	}
	assert.GreaterOrEqual(t, counts["redis_commands_total"], int64(4))
	assert.Zero(t, counts["redis_errors_total"])
}
