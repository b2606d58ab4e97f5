package event

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KOMKZ/opsfeed/logger"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// UnsubscribeFunc removes the listener it was returned for
type UnsubscribeFunc func()

// Dispatcher routes events by name to subscribed listeners.
type Dispatcher struct {
	mu           sync.RWMutex
	listeners    map[string][]listenerEntry
	interceptors []Interceptor
	nextID       atomic.Uint64
	closed       atomic.Bool

	pool     *ants.Pool
	poolSize int
	logger   *logger.CtxZapLogger
}

// NewDispatcher creates a dispatcher and its worker pool.
func NewDispatcher(opts ...DispatcherOption) (*Dispatcher, error) {
	d := &Dispatcher{
		listeners: make(map[string][]listenerEntry),
		poolSize:  16,
		logger:    logger.GetLogger("event"),
	}
	for _, opt := range opts {
		opt(d)
	}

	pool, err := ants.NewPool(d.poolSize, ants.WithPanicHandler(func(p any) {
		d.logger.Error("❌ [Event] async listener panicked", zap.Any("panic", p))
	}))
	if err != nil {
		return nil, fmt.Errorf("create event pool: %w", err)
	}
	d.pool = pool
	return d, nil
}

// Subscribe registers listener for eventName.
func (d *Dispatcher) Subscribe(eventName string, listener Listener, opts ...SubscribeOption) UnsubscribeFunc {
	if eventName == "" || listener == nil {
		return func() {}
	}
	entry := listenerEntry{id: d.nextID.Add(1), listener: listener}
	for _, opt := range opts {
		opt(&entry)
	}

	d.mu.Lock()
	list := append(d.listeners[eventName], entry)
	sort.SliceStable(list, func(i, j int) bool { return list[i].priority < list[j].priority })
	d.listeners[eventName] = list
	d.mu.Unlock()

	return func() { d.remove(eventName, entry.id) }
}

func (d *Dispatcher) remove(eventName string, ids ...uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries := d.listeners[eventName]
	kept := make([]listenerEntry, 0, len(entries))
	for _, e := range entries {
		drop := false
		for _, id := range ids {
			if e.id == id {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(d.listeners, eventName)
		return
	}
	d.listeners[eventName] = kept
}

// Use appends an interceptor
func (d *Dispatcher) Use(interceptor Interceptor) {
	d.mu.Lock()
	d.interceptors = append(d.interceptors, interceptor)
	d.mu.Unlock()
}

// Dispatch delivers event on the calling goroutine. Async listeners are
// handed to the pool and do not affect the returned error.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	if event == nil {
		return nil
	}
	if d.closed.Load() {
		return ErrClosed
	}

	d.mu.RLock()
	interceptors := append([]Interceptor(nil), d.interceptors...)
	entries := append([]listenerEntry(nil), d.listeners[event.Name()]...)
	d.mu.RUnlock()

	handler := Next(func(ctx context.Context, event Event) error {
		return d.run(ctx, event, entries)
	})
	for i := len(interceptors) - 1; i >= 0; i-- {
		ic, next := interceptors[i], handler
		handler = func(ctx context.Context, event Event) error {
			return ic(ctx, event, next)
		}
	}

	err := handler(ctx, event)

	var once []uint64
	for _, e := range entries {
		if e.once {
			once = append(once, e.id)
		}
	}
	if len(once) > 0 {
		d.remove(event.Name(), once...)
	}

	if errors.Is(err, ErrStopPropagation) {
		return nil
	}
	return err
}

// DispatchAsync runs the whole dispatch on the pool.
func (d *Dispatcher) DispatchAsync(ctx context.Context, event Event) {
	if event == nil || d.closed.Load() {
		return
	}
	name := event.Name()
	if err := d.pool.Submit(func() {
		if err := d.Dispatch(ctx, event); err != nil {
			d.logger.WarnCtx(ctx, "⚠️ [Event] async dispatch failed", zap.String("event", name), zap.Error(err))
		}
	}); err != nil {
		d.logger.WarnCtx(ctx, "⚠️ [Event] submit failed", zap.String("event", name), zap.Error(err))
	}
}

func (d *Dispatcher) run(ctx context.Context, event Event, entries []listenerEntry) error {
	for _, e := range entries {
		if e.async {
			l := e.listener
			if err := d.pool.Submit(func() {
				if err := l.Handle(ctx, event); err != nil && !errors.Is(err, ErrStopPropagation) {
					d.logger.WarnCtx(ctx, "⚠️ [Event] async listener failed",
						zap.String("event", event.Name()), zap.Error(err))
				}
			}); err != nil {
				d.logger.WarnCtx(ctx, "⚠️ [Event] submit failed", zap.String("event", event.Name()), zap.Error(err))
			}
			continue
		}
		if err := e.listener.Handle(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// ListenerCount listeners registered for eventName
func (d *Dispatcher) ListenerCount(eventName string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[eventName])
}

// Running async tasks currently executing
func (d *Dispatcher) Running() int {
	return d.pool.Running()
}

// Close stops accepting events and waits up to 5s for running async work.
func (d *Dispatcher) Close() {
	if !d.closed.CompareAndSwap(false, true) {
		return
	}
	if err := d.pool.ReleaseTimeout(5 * time.Second); err != nil {
		d.logger.Warn("⚠️ [Event] pool release timed out", zap.Error(err))
	}
}
