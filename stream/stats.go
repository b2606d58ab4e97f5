package stream

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/KOMKZ/opsfeed/breaker"
	"github.com/KOMKZ/opsfeed/event"
)

// EndpointStats per-connection counters
type EndpointStats struct {
	Endpoint     string           `json:"endpoint"`
	Status       Status           `json:"status"`
	Subscribers  int              `json:"subscribers"`
	Channels     []string         `json:"channels,omitempty"`
	LastActivity time.Time        `json:"last_activity"`
	LastError    string           `json:"last_error,omitempty"`
	MessagesIn   int64            `json:"messages_in"`
	MessagesOut  int64            `json:"messages_out"`
	Dials        int64            `json:"dials"`
	Pending      int              `json:"pending"`
	Breaker      breaker.Snapshot `json:"breaker"`
}

// Stats multiplexer snapshot
type Stats struct {
	Connections int             `json:"connections"`
	Connected   int             `json:"connected"`
	Subscribers int             `json:"subscribers"`
	Endpoints   []EndpointStats `json:"endpoints"`
}

// Stats returns a snapshot sorted by endpoint.
func (m *Multiplexer) Stats() Stats {
	m.mu.Lock()
	ents := make([]*entry, 0, len(m.entries))
	out := Stats{Endpoints: make([]EndpointStats, 0, len(m.entries))}
	for _, ent := range m.entries {
		ents = append(ents, ent)
		es := EndpointStats{
			Endpoint:     ent.endpoint,
			Status:       ent.status,
			Subscribers:  len(ent.subs),
			LastActivity: ent.lastActivity,
			MessagesIn:   ent.in.Load(),
			MessagesOut:  ent.out.Load(),
			Dials:        ent.dials.Load(),
		}
		if ent.lastErr != nil {
			es.LastError = ent.lastErr.Error()
		}
		for ch := range ent.channels {
			es.Channels = append(es.Channels, ch)
		}
		sort.Strings(es.Channels)
		out.Endpoints = append(out.Endpoints, es)
		out.Subscribers += es.Subscribers
		if es.Status == StatusConnected {
			out.Connected++
		}
	}
	m.mu.Unlock()

	// batcher locks are never taken under m.mu
	for i, ent := range ents {
		out.Endpoints[i].Pending = ent.batch.pending()
		out.Endpoints[i].Breaker = ent.breaker.Snapshot()
	}
	out.Connections = len(out.Endpoints)
	sort.Slice(out.Endpoints, func(i, j int) bool {
		return out.Endpoints[i].Endpoint < out.Endpoints[j].Endpoint
	})
	return out
}

// Closed reports whether Close has run.
func (m *Multiplexer) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Events dispatcher carrying EventStatusChanged and EventConnectionError.
func (m *Multiplexer) Events() *event.Dispatcher {
	return m.events
}

// OnStatusChange subscribes fn to status transitions.
func (m *Multiplexer) OnStatusChange(fn func(*StatusChangedEvent), opts ...event.SubscribeOption) event.UnsubscribeFunc {
	return m.events.Subscribe(EventStatusChanged, event.ListenerFunc(func(_ context.Context, ev event.Event) error {
		if e, ok := ev.(*StatusChangedEvent); ok {
			fn(e)
		}
		return nil
	}), opts...)
}

// OnError subscribes fn to background connection errors.
func (m *Multiplexer) OnError(fn func(*ConnectionError), opts ...event.SubscribeOption) event.UnsubscribeFunc {
	return m.events.Subscribe(EventConnectionError, event.ListenerFunc(func(_ context.Context, ev event.Event) error {
		if e, ok := ev.(*ConnectionError); ok {
			fn(e)
		}
		return nil
	}), opts...)
}

// Errors exposes background errors as a channel. Errors are dropped while the
// buffer is full. The returned func unsubscribes and closes the channel.
func (m *Multiplexer) Errors(buffer int) (<-chan *ConnectionError, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan *ConnectionError, buffer)
	var (
		mu     sync.Mutex
		closed bool
	)
	unsubscribe := m.OnError(func(e *ConnectionError) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- e:
		default:
		}
	})
	return ch, func() {
		unsubscribe()
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			close(ch)
		}
	}
}
