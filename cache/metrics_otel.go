package cache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics implements component.MetricsProvider for the cache engine.
type OTelMetrics struct {
	enabled    bool
	registered bool
	mu         sync.RWMutex

	requests      metric.Int64Counter
	fetches       metric.Int64Counter
	fetchDuration metric.Float64Histogram
	entries       metric.Int64ObservableGauge

	entryCount func() int
}

// NewOTelMetrics creates the provider
func NewOTelMetrics(enabled bool) *OTelMetrics {
	return &OTelMetrics{enabled: enabled}
}

func (m *OTelMetrics) MetricsName() string { return "cache" }

func (m *OTelMetrics) IsMetricsEnabled() bool { return m.enabled }

// RegisterMetrics idempotent
func (m *OTelMetrics) RegisterMetrics(meter metric.Meter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registered {
		return nil
	}

	var err error
	if m.requests, err = meter.Int64Counter("cache_requests_total",
		metric.WithDescription("Cache lookups by result (hit, stale, miss)"),
		metric.WithUnit("{request}")); err != nil {
		return err
	}
	if m.fetches, err = meter.Int64Counter("cache_fetches_total",
		metric.WithDescription("Fetcher executions by outcome"),
		metric.WithUnit("{fetch}")); err != nil {
		return err
	}
	if m.fetchDuration, err = meter.Float64Histogram("cache_fetch_duration_seconds",
		metric.WithDescription("Fetch latency including retries"),
		metric.WithUnit("s")); err != nil {
		return err
	}
	if m.entries, err = meter.Int64ObservableGauge("cache_entries",
		metric.WithDescription("Entries held in memory"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			m.mu.RLock()
			fn := m.entryCount
			m.mu.RUnlock()
			if fn != nil {
				o.Observe(int64(fn()))
			}
			return nil
		})); err != nil {
		return err
	}

	m.registered = true
	return nil
}

func (m *OTelMetrics) bindEntries(fn func() int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entryCount = fn
}

func (m *OTelMetrics) ok() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registered
}

func (m *OTelMetrics) recordRequest(result string) {
	if !m.ok() {
		return
	}
	m.requests.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *OTelMetrics) recordFetch(outcome string, background bool, d time.Duration) {
	if !m.ok() {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Bool("background", background),
	)
	m.fetches.Add(context.Background(), 1, attrs)
	m.fetchDuration.Record(context.Background(), d.Seconds(), attrs)
}
