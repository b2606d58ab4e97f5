package breaker

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics implements component.MetricsProvider for breakers.
type OTelMetrics struct {
	enabled    bool
	registered bool
	mu         sync.RWMutex

	transitions metric.Int64Counter
	rejections  metric.Int64Counter
	failures    metric.Int64Counter
	stateGauge  metric.Int64ObservableGauge

	states func() map[string]State
}

// NewOTelMetrics creates the provider; instruments exist after RegisterMetrics.
func NewOTelMetrics(enabled bool) *OTelMetrics {
	return &OTelMetrics{enabled: enabled}
}

func (m *OTelMetrics) MetricsName() string { return "breaker" }

func (m *OTelMetrics) IsMetricsEnabled() bool { return m.enabled }

// RegisterMetrics idempotent
func (m *OTelMetrics) RegisterMetrics(meter metric.Meter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registered {
		return nil
	}

	var err error
	if m.transitions, err = meter.Int64Counter("breaker_transitions_total",
		metric.WithDescription("Circuit breaker state transitions"),
		metric.WithUnit("{transition}")); err != nil {
		return err
	}
	if m.rejections, err = meter.Int64Counter("breaker_rejections_total",
		metric.WithDescription("Calls rejected while the circuit was open"),
		metric.WithUnit("{call}")); err != nil {
		return err
	}
	if m.failures, err = meter.Int64Counter("breaker_failures_total",
		metric.WithDescription("Failures recorded by circuit breakers"),
		metric.WithUnit("{call}")); err != nil {
		return err
	}
	if m.stateGauge, err = meter.Int64ObservableGauge("breaker_state",
		metric.WithDescription("Current state (0=closed, 1=open, 2=half-open)"),
		metric.WithInt64Callback(m.collectState)); err != nil {
		return err
	}

	m.registered = true
	return nil
}

func (m *OTelMetrics) bindStates(fn func() map[string]State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = fn
}

func (m *OTelMetrics) collectState(_ context.Context, o metric.Int64Observer) error {
	m.mu.RLock()
	fn := m.states
	m.mu.RUnlock()
	if fn == nil {
		return nil
	}
	for resource, st := range fn() {
		o.Observe(int64(st), metric.WithAttributes(attribute.String("resource", resource)))
	}
	return nil
}

func (m *OTelMetrics) isRegistered() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registered
}

// RecordTransition counts a state change
func (m *OTelMetrics) RecordTransition(ctx context.Context, resource string, from, to State) {
	if !m.isRegistered() {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("resource", resource),
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	))
}

// RecordRejection counts a fast-fail
func (m *OTelMetrics) RecordRejection(ctx context.Context, resource string) {
	if !m.isRegistered() {
		return
	}
	m.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("resource", resource)))
}

// RecordFailure counts a failed attempt
func (m *OTelMetrics) RecordFailure(ctx context.Context, resource string) {
	if !m.isRegistered() {
		return
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("resource", resource)))
}
