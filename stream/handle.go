package stream

import (
	"context"
	"sync"
)

// Handle one subscriber's reference to a shared connection.
type Handle struct {
	m            *Multiplexer
	endpoint     string
	subscriberID string
	once         sync.Once
}

func (h *Handle) Endpoint() string {
	return h.endpoint
}

func (h *Handle) SubscriberID() string {
	return h.subscriberID
}

// Status connection status, Disconnected after Release
func (h *Handle) Status() Status {
	s, _ := h.m.Status(h.endpoint)
	return s
}

// Send see Multiplexer.Send
func (h *Handle) Send(ctx context.Context, msg Message, priority Priority) error {
	return h.m.Send(ctx, h.endpoint, msg, priority)
}

func (h *Handle) Subscribe(channel string) error {
	return h.m.Subscribe(h.endpoint, channel)
}

func (h *Handle) Unsubscribe(channel string) error {
	return h.m.Unsubscribe(h.endpoint, channel)
}

// Release is idempotent.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.m.Release(h.endpoint, h.subscriberID)
	})
}
