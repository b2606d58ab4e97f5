package stream

import (
	"github.com/KOMKZ/opsfeed/auth"
	"github.com/KOMKZ/opsfeed/breaker"
	"github.com/KOMKZ/opsfeed/logger"
	"github.com/jonboulle/clockwork"
)

// AcquireOption configures one subscriber
type AcquireOption func(*subscriber)

// OnMessage per-message delivery
func OnMessage(fn func(Message)) AcquireOption {
	return func(s *subscriber) {
		s.onMessage = fn
	}
}

// OnBatch batched delivery; batches are shared per endpoint and flushed on
// BatchSize or BatchInterval
func OnBatch(fn func([]Message)) AcquireOption {
	return func(s *subscriber) {
		s.onBatch = fn
	}
}

// WithChannels channels joined while this subscriber holds the connection
func WithChannels(channels ...string) AcquireOption {
	return func(s *subscriber) {
		s.channels = append(s.channels, channels...)
	}
}

// WithTypes restricts delivery to these message types
func WithTypes(types ...string) AcquireOption {
	return func(s *subscriber) {
		if s.types == nil {
			s.types = make(map[string]struct{}, len(types))
		}
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}
}

type subscriber struct {
	id        string
	onMessage func(Message)
	onBatch   func([]Message)
	channels  []string
	types     map[string]struct{}
}

func newSubscriber(id string, opts []AcquireOption) *subscriber {
	s := &subscriber{id: id}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *subscriber) accepts(typ string) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[typ]
	return ok
}

// Option multiplexer option
type Option func(*Multiplexer)

func WithClock(c clockwork.Clock) Option {
	return func(m *Multiplexer) {
		if c != nil {
			m.clock = c
		}
	}
}

func WithLogger(l *logger.CtxZapLogger) Option {
	return func(m *Multiplexer) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithDialer transport, default WebsocketDialer
func WithDialer(d Dialer) Option {
	return func(m *Multiplexer) {
		if d != nil {
			m.dialer = d
		}
	}
}

// WithTokenSource bearer credential sent on every dial
func WithTokenSource(src auth.TokenSource) Option {
	return func(m *Multiplexer) {
		m.tokens = src
	}
}

// WithBreakers shares a breaker registry; quarantine state then outlives
// the multiplexer
func WithBreakers(b *breaker.Manager) Option {
	return func(m *Multiplexer) {
		m.breakers = b
	}
}

func WithMetrics(metrics *OTelMetrics) Option {
	return func(m *Multiplexer) {
		m.otel = metrics
	}
}
