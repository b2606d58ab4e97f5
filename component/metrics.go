package component

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsProvider is implemented by components that export metrics through
// the central registry.
//
//	func (m *OTelMetrics) MetricsName() string { return "cache" }
//
//	func (m *OTelMetrics) RegisterMetrics(meter metric.Meter) error {
//	    m.requests, err = meter.Int64Counter("cache_requests_total")
//	    return err
//	}
type MetricsProvider interface {
	// MetricsName short lowercase group name, used for Meter naming
	MetricsName() string

	// RegisterMetrics creates the instruments on meter
	RegisterMetrics(meter metric.Meter) error

	IsMetricsEnabled() bool
}

// MetricsCollector central metrics registry, see telemetry.MetricsRegistry
type MetricsCollector interface {
	Register(provider MetricsProvider) error

	// GetMeter returns the Meter for a component name.
	GetMeter(name string) metric.Meter

	// GetBaseLabels global labels (env, region, ...)
	GetBaseLabels() []attribute.KeyValue

	IsEnabled() bool
}
