package telemetry

import (
	"sort"
	"sync"

	"github.com/KOMKZ/opsfeed/component"
	"github.com/KOMKZ/opsfeed/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// MetricsRegistry hands each MetricsProvider its own namespaced Meter.
type MetricsRegistry struct {
	meterProvider metric.MeterProvider
	meters        map[string]metric.Meter
	providers     []component.MetricsProvider
	baseLabels    []attribute.KeyValue
	namespace     string
	enabled       bool
	logger        *logger.CtxZapLogger
	mu            sync.RWMutex
}

// MetricsRegistryOption configures the MetricsRegistry.
type MetricsRegistryOption func(*MetricsRegistry)

// WithNamespace meter name prefix
func WithNamespace(namespace string) MetricsRegistryOption {
	return func(r *MetricsRegistry) {
		r.namespace = namespace
	}
}

// WithBaseLabels sets the global base labels.
func WithBaseLabels(labels []attribute.KeyValue) MetricsRegistryOption {
	return func(r *MetricsRegistry) {
		r.baseLabels = labels
	}
}

// WithLabels base labels from a config map, sorted by key
func WithLabels(labels map[string]string) MetricsRegistryOption {
	return func(r *MetricsRegistry) {
		keys := make([]string, 0, len(labels))
		for k := range labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			r.baseLabels = append(r.baseLabels, attribute.String(k, labels[k]))
		}
	}
}

func WithLogger(l *logger.CtxZapLogger) MetricsRegistryOption {
	return func(r *MetricsRegistry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewMetricsRegistry creates a registry over mp; nil uses the otel global.
func NewMetricsRegistry(mp metric.MeterProvider, opts ...MetricsRegistryOption) *MetricsRegistry {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	r := &MetricsRegistry{
		meterProvider: mp,
		meters:        make(map[string]metric.Meter),
		namespace:     "opsfeed",
		enabled:       true,
		logger:        logger.GetLogger("telemetry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register calls provider.RegisterMetrics with the provider's Meter.
// Disabled providers, or any provider while the registry is disabled, are
// skipped without error.
func (r *MetricsRegistry) Register(provider component.MetricsProvider) error {
	if provider == nil {
		return ErrProviderInvalid.WithMsgf("metrics provider is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.enabled {
		return nil
	}
	name := provider.MetricsName()
	if !provider.IsMetricsEnabled() {
		r.logger.Debug("[Telemetry] metrics disabled for provider", zap.String("provider", name))
		return nil
	}
	if name == "" {
		return ErrProviderInvalid.WithMsgf("metrics provider name is empty")
	}
	for _, p := range r.providers {
		if p.MetricsName() == name {
			return ErrDuplicateProvider.WithData("provider", name)
		}
	}

	if err := provider.RegisterMetrics(r.getMeterLocked(name)); err != nil {
		return ErrRegisterMetrics.WithData("provider", name).Wrap(err)
	}

	r.providers = append(r.providers, provider)
	r.logger.Debug("[Telemetry] metrics provider registered", zap.String("provider", name))
	return nil
}

// RegisterAll registers providers in order, stopping at the first error.
func (r *MetricsRegistry) RegisterAll(providers ...component.MetricsProvider) error {
	for _, p := range providers {
		if err := r.Register(p); err != nil {
			return err
		}
	}
	return nil
}

// GetMeter returns the Meter named {namespace}_{name}.
func (r *MetricsRegistry) GetMeter(name string) metric.Meter {
	r.mu.RLock()
	if meter, ok := r.meters[name]; ok {
		r.mu.RUnlock()
		return meter
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getMeterLocked(name)
}

// getMeterLocked must hold mu
func (r *MetricsRegistry) getMeterLocked(name string) metric.Meter {
	if meter, ok := r.meters[name]; ok {
		return meter
	}
	meterName := name
	if r.namespace != "" {
		meterName = r.namespace + "_" + name
	}
	meter := r.meterProvider.Meter(meterName, metric.WithInstrumentationAttributes(r.baseLabels...))
	r.meters[name] = meter
	return meter
}

func (r *MetricsRegistry) GetBaseLabels() []attribute.KeyValue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]attribute.KeyValue{}, r.baseLabels...)
}

func (r *MetricsRegistry) IsEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

func (r *MetricsRegistry) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

// GetProviders registered providers, in registration order
func (r *MetricsRegistry) GetProviders() []component.MetricsProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]component.MetricsProvider{}, r.providers...)
}

var _ component.MetricsCollector = (*MetricsRegistry)(nil)
