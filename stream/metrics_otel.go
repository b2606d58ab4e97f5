package stream

import (
	"context"
	"sync"

	"github.com/KOMKZ/opsfeed/errcode"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics implements component.MetricsProvider for the multiplexer.
type OTelMetrics struct {
	enabled    bool
	registered bool
	mu         sync.RWMutex

	messages    metric.Int64Counter
	dials       metric.Int64Counter
	errors      metric.Int64Counter
	batchSize   metric.Int64Histogram
	connections metric.Int64ObservableGauge

	statuses func() map[Status]int
}

func NewOTelMetrics(enabled bool) *OTelMetrics {
	return &OTelMetrics{enabled: enabled}
}

func (m *OTelMetrics) MetricsName() string { return "stream" }

func (m *OTelMetrics) IsMetricsEnabled() bool { return m.enabled }

// RegisterMetrics idempotent
func (m *OTelMetrics) RegisterMetrics(meter metric.Meter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registered {
		return nil
	}

	var err error
	if m.messages, err = meter.Int64Counter("stream_messages_total",
		metric.WithDescription("Messages by direction (in, out)"),
		metric.WithUnit("{message}")); err != nil {
		return err
	}
	if m.dials, err = meter.Int64Counter("stream_dials_total",
		metric.WithDescription("Connection attempts by outcome"),
		metric.WithUnit("{dial}")); err != nil {
		return err
	}
	if m.errors, err = meter.Int64Counter("stream_connection_errors_total",
		metric.WithDescription("Background connection errors by kind"),
		metric.WithUnit("{error}")); err != nil {
		return err
	}
	if m.batchSize, err = meter.Int64Histogram("stream_batch_size",
		metric.WithDescription("Messages per flushed batch"),
		metric.WithUnit("{message}")); err != nil {
		return err
	}
	if m.connections, err = meter.Int64ObservableGauge("stream_connections",
		metric.WithDescription("Connections by status"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			m.mu.RLock()
			fn := m.statuses
			m.mu.RUnlock()
			if fn == nil {
				return nil
			}
			for st, n := range fn() {
				o.Observe(int64(n), metric.WithAttributes(attribute.String("status", st.String())))
			}
			return nil
		})); err != nil {
		return err
	}

	m.registered = true
	return nil
}

func (m *OTelMetrics) bindStatuses(fn func() map[Status]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = fn
}

func (m *OTelMetrics) ok() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registered
}

func (m *OTelMetrics) recordMessage(endpoint, direction string) {
	if !m.ok() {
		return
	}
	m.messages.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("direction", direction)))
}

func (m *OTelMetrics) recordDial(endpoint, outcome string) {
	if !m.ok() {
		return
	}
	m.dials.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("outcome", outcome)))
}

func (m *OTelMetrics) recordError(endpoint string, kind errcode.Kind) {
	if !m.ok() {
		return
	}
	m.errors.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("kind", string(kind))))
}

func (m *OTelMetrics) recordBatch(n int) {
	if !m.ok() {
		return
	}
	m.batchSize.Record(context.Background(), int64(n))
}
