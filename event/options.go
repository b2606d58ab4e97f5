package event

import "github.com/KOMKZ/opsfeed/logger"

type listenerEntry struct {
	id       uint64
	listener Listener
	priority int
	async    bool
	once     bool
}

// SubscribeOption listener option
type SubscribeOption func(*listenerEntry)

// WithPriority lower runs first, default 0
func WithPriority(priority int) SubscribeOption {
	return func(e *listenerEntry) {
		e.priority = priority
	}
}

// WithAsync runs the listener on the worker pool; its errors are logged only.
func WithAsync() SubscribeOption {
	return func(e *listenerEntry) {
		e.async = true
	}
}

// WithOnce unsubscribes after the first delivery
func WithOnce() SubscribeOption {
	return func(e *listenerEntry) {
		e.once = true
	}
}

// DispatcherOption dispatcher option
type DispatcherOption func(*Dispatcher)

// WithPoolSize async worker pool size, default 16
func WithPoolSize(size int) DispatcherOption {
	return func(d *Dispatcher) {
		if size > 0 {
			d.poolSize = size
		}
	}
}

// WithLogger logger for async failures
func WithLogger(l *logger.CtxZapLogger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}
