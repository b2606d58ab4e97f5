package breaker

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// eventBus buffered bus with one dispatch goroutine. Listeners are called in
// publish order; a panicking listener is isolated.
type eventBus struct {
	listeners map[SubscriptionID]*subscription
	buffer    chan Event
	mu        sync.RWMutex
	done      chan struct{}
	wg        sync.WaitGroup
	closed    atomic.Bool
	dropped   atomic.Int64
}

type subscription struct {
	listener EventListener
	filters  map[EventType]bool
}

// NewEventBus creates a bus. Publish drops events when the buffer is full.
func NewEventBus(bufferSize int) EventBus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	bus := &eventBus{
		listeners: make(map[SubscriptionID]*subscription),
		buffer:    make(chan Event, bufferSize),
		done:      make(chan struct{}),
	}
	bus.wg.Add(1)
	go bus.dispatch()
	return bus
}

func (eb *eventBus) Subscribe(listener EventListener, filters ...EventType) SubscriptionID {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	id := SubscriptionID(uuid.NewString())
	fm := make(map[EventType]bool, len(filters))
	for _, f := range filters {
		fm[f] = true
	}
	eb.listeners[id] = &subscription{listener: listener, filters: fm}
	return id
}

func (eb *eventBus) Unsubscribe(id SubscriptionID) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	delete(eb.listeners, id)
}

func (eb *eventBus) Publish(event Event) {
	if eb.closed.Load() {
		return
	}
	select {
	case eb.buffer <- event:
	case <-eb.done:
	default:
		eb.dropped.Add(1)
	}
}

// Close drains buffered events, then stops. Safe to call twice.
func (eb *eventBus) Close() {
	if !eb.closed.CompareAndSwap(false, true) {
		return
	}
	close(eb.done)
	eb.wg.Wait()
}

func (eb *eventBus) dispatch() {
	defer eb.wg.Done()
	for {
		select {
		case event := <-eb.buffer:
			eb.notify(event)
		case <-eb.done:
			for {
				select {
				case event := <-eb.buffer:
					eb.notify(event)
				default:
					return
				}
			}
		}
	}
}

func (eb *eventBus) notify(event Event) {
	eb.mu.RLock()
	subs := make([]*subscription, 0, len(eb.listeners))
	for _, s := range eb.listeners {
		subs = append(subs, s)
	}
	eb.mu.RUnlock()

	for _, s := range subs {
		if len(s.filters) > 0 && !s.filters[event.Type()] {
			continue
		}
		func() {
			defer func() { _ = recover() }()
			s.listener.OnEvent(event)
		}()
	}
}
