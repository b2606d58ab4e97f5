// Package telemetry builds the OpenTelemetry meter and tracer providers and
// the registry every component's metrics hang off.
package telemetry

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/KOMKZ/opsfeed/breaker"
	"github.com/KOMKZ/opsfeed/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Breaker resources guarding the exporters
const (
	TraceExportResource  = "telemetry.traces"
	MetricExportResource = "telemetry.metrics"
)

// Providers configured meter and tracer providers
type Providers struct {
	cfg    Config
	meter  *sdkmetric.MeterProvider
	tracer *sdktrace.TracerProvider
	guards []*guard
	logger *logger.CtxZapLogger
}

type setupOptions struct {
	writer   io.Writer
	breakers *breaker.Manager
	readers  []sdkmetric.Reader
	logger   *logger.CtxZapLogger
	global   bool
}

// Option setup option
type Option func(*setupOptions)

// WithWriter output of the stdout exporters, default os.Stdout
func WithWriter(w io.Writer) Option {
	return func(o *setupOptions) { o.writer = w }
}

// WithBreakers guards exporters with breakers from m instead of standalone
// ones; thresholds then come from m's config.
func WithBreakers(m *breaker.Manager) Option {
	return func(o *setupOptions) { o.breakers = m }
}

// WithReader adds a metric reader next to the configured exporter.
func WithReader(r sdkmetric.Reader) Option {
	return func(o *setupOptions) { o.readers = append(o.readers, r) }
}

func WithSetupLogger(l *logger.CtxZapLogger) Option {
	return func(o *setupOptions) { o.logger = l }
}

// WithoutGlobal leaves the otel global providers untouched.
func WithoutGlobal() Option {
	return func(o *setupOptions) { o.global = false }
}

// Setup builds the providers described by cfg and, unless WithoutGlobal is
// given, installs them as the otel globals. A disabled config yields no-op
// providers.
func Setup(ctx context.Context, cfg Config, opts ...Option) (*Providers, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &setupOptions{
		writer: os.Stdout,
		logger: logger.GetLogger("telemetry"),
		global: true,
	}
	for _, opt := range opts {
		opt(o)
	}

	p := &Providers{cfg: cfg, logger: o.logger}
	if !cfg.Enabled {
		return p, nil
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Metrics.Enabled {
		if err := p.setupMetrics(ctx, res, o); err != nil {
			return nil, err
		}
	}
	if cfg.Tracing.Enabled {
		if err := p.setupTracing(ctx, res, o); err != nil {
			_ = p.Shutdown(ctx)
			return nil, err
		}
	}

	if o.global {
		if p.meter != nil {
			otel.SetMeterProvider(p.meter)
		}
		if p.tracer != nil {
			otel.SetTracerProvider(p.tracer)
		}
	}
	p.logger.InfoCtx(ctx, "✅ [Telemetry] providers ready",
		zap.String("exporter", cfg.Exporter.Type),
		zap.Bool("metrics", p.meter != nil),
		zap.Bool("tracing", p.tracer != nil))
	return p, nil
}

func (p *Providers) setupMetrics(ctx context.Context, res *resource.Resource, o *setupOptions) error {
	mopts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range o.readers {
		mopts = append(mopts, sdkmetric.WithReader(r))
	}

	var exporter sdkmetric.Exporter
	switch p.cfg.Exporter.Type {
	case ExporterOTLP:
		eopts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpoint(p.cfg.Exporter.Endpoint),
			otlpmetricgrpc.WithTimeout(p.cfg.Exporter.Timeout),
		}
		if p.cfg.Exporter.Insecure {
			eopts = append(eopts, otlpmetricgrpc.WithInsecure())
		}
		if len(p.cfg.Exporter.Headers) > 0 {
			eopts = append(eopts, otlpmetricgrpc.WithHeaders(p.cfg.Exporter.Headers))
		}
		exp, err := otlpmetricgrpc.New(ctx, eopts...)
		if err != nil {
			return ErrExporter.WithData("signal", "metrics").Wrap(err)
		}
		exporter = exp
	case ExporterStdout:
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(o.writer))
		if err != nil {
			return ErrExporter.WithData("signal", "metrics").Wrap(err)
		}
		exporter = exp
	}

	if exporter != nil {
		if g := p.guard(MetricExportResource, o); g != nil {
			exporter = &guardedMetricExporter{Exporter: exporter, guard: g}
		}
		mopts = append(mopts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(p.cfg.Metrics.ExportInterval),
			sdkmetric.WithTimeout(p.cfg.Metrics.ExportTimeout),
		)))
	}
	p.meter = sdkmetric.NewMeterProvider(mopts...)
	return nil
}

func (p *Providers) setupTracing(ctx context.Context, res *resource.Resource, o *setupOptions) error {
	var exporter sdktrace.SpanExporter
	switch p.cfg.Exporter.Type {
	case ExporterOTLP:
		eopts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(p.cfg.Exporter.Endpoint),
			otlptracegrpc.WithTimeout(p.cfg.Exporter.Timeout),
		}
		if p.cfg.Exporter.Insecure {
			eopts = append(eopts, otlptracegrpc.WithInsecure())
		}
		if len(p.cfg.Exporter.Headers) > 0 {
			eopts = append(eopts, otlptracegrpc.WithHeaders(p.cfg.Exporter.Headers))
		}
		exp, err := otlptrace.New(ctx, otlptracegrpc.NewClient(eopts...))
		if err != nil {
			return ErrExporter.WithData("signal", "traces").Wrap(err)
		}
		exporter = exp
	case ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(o.writer))
		if err != nil {
			return ErrExporter.WithData("signal", "traces").Wrap(err)
		}
		exporter = exp
	}

	topts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(p.cfg.Tracing.SampleRatio))),
	}
	if exporter != nil {
		if g := p.guard(TraceExportResource, o); g != nil {
			exporter = &guardedSpanExporter{SpanExporter: exporter, guard: g}
		}
		if p.cfg.Tracing.Batch {
			topts = append(topts, sdktrace.WithBatcher(exporter))
		} else {
			topts = append(topts, sdktrace.WithSyncer(exporter))
		}
	}
	p.tracer = sdktrace.NewTracerProvider(topts...)
	return nil
}

func (p *Providers) guard(resource string, o *setupOptions) *guard {
	if p.cfg.GuardThreshold <= 0 {
		return nil
	}
	rc := breaker.ResourceConfig{
		FailureThreshold: p.cfg.GuardThreshold,
		ResetTimeout:     p.cfg.GuardResetTimeout,
	}
	var br *breaker.Breaker
	if o.breakers != nil {
		br = o.breakers.Get(resource)
	} else {
		br = breaker.New(resource, rc, nil)
	}
	g := &guard{br: br, logger: p.logger}
	p.guards = append(p.guards, g)
	return g
}

// MeterProvider the SDK provider, or a no-op one when metrics are off.
func (p *Providers) MeterProvider() metric.MeterProvider {
	if p == nil || p.meter == nil {
		return noop.NewMeterProvider()
	}
	return p.meter
}

// TracerProvider the SDK provider, or a no-op one when tracing is off.
func (p *Providers) TracerProvider() trace.TracerProvider {
	if p == nil || p.tracer == nil {
		return tracenoop.NewTracerProvider()
	}
	return p.tracer
}

// Enabled reports whether any SDK provider was built.
func (p *Providers) Enabled() bool {
	return p != nil && (p.meter != nil || p.tracer != nil)
}

// Dropped telemetry items skipped by open export circuits
func (p *Providers) Dropped() int64 {
	var n int64
	for _, g := range p.guards {
		n += g.Dropped()
	}
	return n
}

// ForceFlush exports everything buffered.
func (p *Providers) ForceFlush(ctx context.Context) error {
	var errs []error
	if p.tracer != nil {
		errs = append(errs, p.tracer.ForceFlush(ctx))
	}
	if p.meter != nil {
		errs = append(errs, p.meter.ForceFlush(ctx))
	}
	return errors.Join(errs...)
}

// Shutdown flushes and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tracer != nil {
		errs = append(errs, p.tracer.Shutdown(ctx))
	}
	if p.meter != nil {
		errs = append(errs, p.meter.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		return ErrShutdown.Wrap(err)
	}
	return nil
}
