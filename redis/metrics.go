package redis

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics implements component.MetricsProvider for the store client.
type Metrics struct {
	enabled    bool
	registered bool
	mu         sync.RWMutex

	commandsTotal     metric.Int64Counter
	commandDuration   metric.Float64Histogram
	errorsTotal       metric.Int64Counter
	connectionsActive metric.Int64ObservableGauge
	connectionsIdle   metric.Int64ObservableGauge

	pool func() PoolStats
}

// PoolStats connection pool counts
type PoolStats struct {
	ActiveCount int64
	IdleCount   int64
}

func NewMetrics(enabled bool) *Metrics {
	return &Metrics{enabled: enabled}
}

func (m *Metrics) MetricsName() string { return "redis" }

func (m *Metrics) IsMetricsEnabled() bool { return m.enabled }

// RegisterMetrics idempotent
func (m *Metrics) RegisterMetrics(meter metric.Meter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registered {
		return nil
	}

	var err error
	if m.commandsTotal, err = meter.Int64Counter("redis_commands_total",
		metric.WithDescription("Redis commands executed"),
		metric.WithUnit("{command}")); err != nil {
		return err
	}
	if m.commandDuration, err = meter.Float64Histogram("redis_command_duration_seconds",
		metric.WithDescription("Redis command latency"),
		metric.WithUnit("s")); err != nil {
		return err
	}
	if m.errorsTotal, err = meter.Int64Counter("redis_errors_total",
		metric.WithDescription("Redis commands that failed, cache misses excluded"),
		metric.WithUnit("{error}")); err != nil {
		return err
	}
	if m.connectionsActive, err = meter.Int64ObservableGauge("redis_connections_active",
		metric.WithDescription("Connections in use"),
		metric.WithUnit("{connection}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			if s, ok := m.poolStats(); ok {
				o.Observe(s.ActiveCount)
			}
			return nil
		})); err != nil {
		return err
	}
	if m.connectionsIdle, err = meter.Int64ObservableGauge("redis_connections_idle",
		metric.WithDescription("Idle pooled connections"),
		metric.WithUnit("{connection}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			if s, ok := m.poolStats(); ok {
				o.Observe(s.IdleCount)
			}
			return nil
		})); err != nil {
		return err
	}

	m.registered = true
	return nil
}

func (m *Metrics) bindPool(fn func() PoolStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pool = fn
}

func (m *Metrics) poolStats() (PoolStats, bool) {
	m.mu.RLock()
	fn := m.pool
	m.mu.RUnlock()
	if fn == nil {
		return PoolStats{}, false
	}
	return fn(), true
}

func (m *Metrics) ok() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registered
}

// RecordCommand failed is false for redis.Nil.
func (m *Metrics) RecordCommand(ctx context.Context, command string, d time.Duration, failed bool) {
	if !m.ok() {
		return
	}
	attrs := metric.WithAttributes(attribute.String("command", command))
	m.commandsTotal.Add(ctx, 1, attrs)
	m.commandDuration.Record(ctx, d.Seconds(), attrs)
	if failed {
		m.errorsTotal.Add(ctx, 1, attrs)
	}
}
