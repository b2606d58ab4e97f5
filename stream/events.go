package stream

import (
	"time"

	"github.com/KOMKZ/opsfeed/errcode"
	"github.com/KOMKZ/opsfeed/event"
)

// Event names published on the multiplexer dispatcher
const (
	EventStatusChanged   = "stream.status_changed"
	EventConnectionError = "stream.connection_error"
)

// StatusChangedEvent connection status transition
type StatusChangedEvent struct {
	event.BaseEvent
	Endpoint string
	From     Status
	To       Status
}

// ConnectionError background failure on an endpoint. Kind is one of
// errcode.KindTransient, KindAuth, KindCircuit or KindProtocol.
type ConnectionError struct {
	event.BaseEvent
	Endpoint string
	Kind     errcode.Kind
	Err      error
	// Attempt consecutive failed attempts, 0 for protocol errors
	Attempt int
	// RetryAt next scheduled attempt, zero when none is scheduled
	RetryAt time.Time
}

func (e *ConnectionError) Error() string {
	return e.Endpoint + ": " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
