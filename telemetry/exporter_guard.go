package telemetry

import (
	"context"
	"sync/atomic"

	"github.com/KOMKZ/opsfeed/breaker"
	"github.com/KOMKZ/opsfeed/logger"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// guard drops exports while the exporter's circuit is open.
type guard struct {
	br      *breaker.Breaker
	logger  *logger.CtxZapLogger
	dropped atomic.Int64
}

func (g *guard) export(ctx context.Context, items int, fn func(context.Context) error) error {
	if err := g.br.Allow(); err != nil {
		g.dropped.Add(int64(items))
		return nil
	}
	if err := fn(ctx); err != nil {
		g.br.RecordFailure()
		g.logger.WarnCtx(ctx, "⚠️ [Telemetry] export failed",
			zap.String("resource", g.br.Resource()), zap.Int("items", items), zap.Error(err))
		return err
	}
	g.br.RecordSuccess()
	return nil
}

// Dropped items skipped while the circuit was open
func (g *guard) Dropped() int64 { return g.dropped.Load() }

type guardedSpanExporter struct {
	sdktrace.SpanExporter
	guard *guard
}

func (e *guardedSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	return e.guard.export(ctx, len(spans), func(ctx context.Context) error {
		return e.SpanExporter.ExportSpans(ctx, spans)
	})
}

type guardedMetricExporter struct {
	sdkmetric.Exporter
	guard *guard
}

func (e *guardedMetricExporter) Export(ctx context.Context, rm *metricdata.ResourceMetrics) error {
	n := 0
	for _, sm := range rm.ScopeMetrics {
		n += len(sm.Metrics)
	}
	return e.guard.export(ctx, n, func(ctx context.Context) error {
		return e.Exporter.Export(ctx, rm)
	})
}
