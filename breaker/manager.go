package breaker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/KOMKZ/opsfeed/logger"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Manager registry of breakers keyed by resource. A breaker outlives whatever
// connection or request created it, so a quarantine survives entry teardown.
type Manager struct {
	config   Config
	clock    clockwork.Clock
	logger   *logger.CtxZapLogger
	eventBus EventBus
	metrics  *OTelMetrics

	breakers map[string]*Breaker
	mu       sync.RWMutex
}

// ManagerOption manager option
type ManagerOption func(*Manager)

// WithClock time source for every breaker
func WithClock(c clockwork.Clock) ManagerOption {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithLogger logger
func WithLogger(l *logger.CtxZapLogger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics attaches an OTel provider
func WithMetrics(metrics *OTelMetrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// NewManager validates cfg and creates an empty registry.
func NewManager(cfg Config, opts ...ManagerOption) (*Manager, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		config:   cfg,
		clock:    clockwork.NewRealClock(),
		logger:   logger.GetLogger("breaker"),
		breakers: make(map[string]*Breaker),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.eventBus = NewEventBus(cfg.EventBusBuffer)
	if m.metrics != nil {
		m.metrics.bindStates(m.States)
	}
	return m, nil
}

// Get returns the breaker for resource, creating it on first use.
func (m *Manager) Get(resource string) *Breaker {
	m.mu.RLock()
	if b, ok := m.breakers[resource]; ok {
		m.mu.RUnlock()
		return b
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[resource]; ok {
		return b
	}
	b := New(resource, m.config.ForResource(resource), m.clock)
	b.hooks = hooks{
		onChange:  m.onStateChange,
		onReject:  m.onReject,
		onFailure: m.onFailure,
	}
	m.breakers[resource] = b
	return b
}

// Lookup returns an existing breaker without creating one.
func (m *Manager) Lookup(resource string) (*Breaker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.breakers[resource]
	return b, ok
}

// Resources sorted resource names
func (m *Manager) Resources() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.breakers))
	for r := range m.breakers {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// States current state per resource
func (m *Manager) States() map[string]State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]State, len(m.breakers))
	for r, b := range m.breakers {
		out[r] = b.State()
	}
	return out
}

// Snapshots snapshot per resource
func (m *Manager) Snapshots() []Snapshot {
	names := m.Resources()
	out := make([]Snapshot, 0, len(names))
	for _, r := range names {
		if b, ok := m.Lookup(r); ok {
			out = append(out, b.Snapshot())
		}
	}
	return out
}

// Reset forces resource closed. Unknown resources are ignored.
func (m *Manager) Reset(resource string) {
	if b, ok := m.Lookup(resource); ok {
		b.Reset()
	}
}

// GetEventBus event bus for StateChanged / Rejected events
func (m *Manager) GetEventBus() EventBus {
	return m.eventBus
}

// Shutdown closes the event bus.
func (m *Manager) Shutdown() error {
	m.eventBus.Close()
	return nil
}

func (m *Manager) onStateChange(resource string, from, to State, reason string) {
	fields := []zap.Field{
		zap.String("resource", resource),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.String("reason", reason),
	}
	switch to {
	case StateOpen:
		m.logger.Warn("🔴 [CircuitBreaker] circuit opened", fields...)
	case StateHalfOpen:
		m.logger.Info("🟡 [CircuitBreaker] circuit half-open, probing", fields...)
	default:
		m.logger.Info("🟢 [CircuitBreaker] circuit closed", fields...)
	}

	if m.metrics != nil {
		m.metrics.RecordTransition(context.Background(), resource, from, to)
	}
	m.eventBus.Publish(&StateChangedEvent{
		BaseEvent: BaseEvent{eventType: EventStateChanged, resource: resource, timestamp: m.clock.Now()},
		FromState: from,
		ToState:   to,
		Reason:    reason,
	})
}

func (m *Manager) onReject(resource string, retryAt time.Time) {
	m.logger.Debug("⛔ [CircuitBreaker] call rejected",
		zap.String("resource", resource), zap.Time("retry_at", retryAt))
	if m.metrics != nil {
		m.metrics.RecordRejection(context.Background(), resource)
	}
	m.eventBus.Publish(&RejectedEvent{
		BaseEvent: BaseEvent{eventType: EventCallRejected, resource: resource, timestamp: m.clock.Now()},
		RetryAt:   retryAt,
	})
}

func (m *Manager) onFailure(resource string) {
	if m.metrics != nil {
		m.metrics.RecordFailure(context.Background(), resource)
	}
}
