package limiter

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics implements component.MetricsProvider for the limiter.
type OTelMetrics struct {
	enabled    bool
	registered bool
	mu         sync.RWMutex

	allowed  metric.Int64Counter
	rejected metric.Int64Counter
	gauge    metric.Int64ObservableGauge

	tokens func() map[string]int64
}

func NewOTelMetrics(enabled bool) *OTelMetrics {
	return &OTelMetrics{enabled: enabled}
}

func (m *OTelMetrics) MetricsName() string { return "limiter" }

func (m *OTelMetrics) IsMetricsEnabled() bool { return m.enabled }

// RegisterMetrics idempotent
func (m *OTelMetrics) RegisterMetrics(meter metric.Meter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registered {
		return nil
	}

	var err error
	if m.allowed, err = meter.Int64Counter("limiter_allowed_total",
		metric.WithDescription("Requests that got a token"),
		metric.WithUnit("{request}")); err != nil {
		return err
	}
	if m.rejected, err = meter.Int64Counter("limiter_rejected_total",
		metric.WithDescription("Token requests that found the bucket short"),
		metric.WithUnit("{request}")); err != nil {
		return err
	}
	if m.gauge, err = meter.Int64ObservableGauge("limiter_tokens",
		metric.WithDescription("Tokens currently in each bucket"),
		metric.WithInt64Callback(m.collectTokens)); err != nil {
		return err
	}

	m.registered = true
	return nil
}

func (m *OTelMetrics) bindTokens(fn func() map[string]int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = fn
}

func (m *OTelMetrics) collectTokens(_ context.Context, o metric.Int64Observer) error {
	m.mu.RLock()
	fn := m.tokens
	m.mu.RUnlock()
	if fn == nil {
		return nil
	}
	for resource, n := range fn() {
		o.Observe(n, metric.WithAttributes(attribute.String("resource", resource)))
	}
	return nil
}

// RecordDecision counts one AllowN outcome
func (m *OTelMetrics) RecordDecision(ctx context.Context, resource string, allowed bool) {
	m.mu.RLock()
	registered := m.registered
	m.mu.RUnlock()
	if !registered {
		return
	}
	attrs := metric.WithAttributes(attribute.String("resource", resource))
	if allowed {
		m.allowed.Add(ctx, 1, attrs)
	} else {
		m.rejected.Add(ctx, 1, attrs)
	}
}
