package breaker

import "time"

// EventType event type
type EventType string

const (
	// EventStateChanged state transition
	EventStateChanged EventType = "state_changed"
	// EventCallRejected a call was refused while open
	EventCallRejected EventType = "call_rejected"
)

// Event breaker event
type Event interface {
	Type() EventType
	Resource() string
	Timestamp() time.Time
}

// BaseEvent common fields
type BaseEvent struct {
	eventType EventType
	resource  string
	timestamp time.Time
}

func (e *BaseEvent) Type() EventType      { return e.eventType }
func (e *BaseEvent) Resource() string     { return e.resource }
func (e *BaseEvent) Timestamp() time.Time { return e.timestamp }

// StateChangedEvent state transition
type StateChangedEvent struct {
	BaseEvent
	FromState State
	ToState   State
	Reason    string
}

// RejectedEvent call refused by an open circuit
type RejectedEvent struct {
	BaseEvent
	RetryAt time.Time
}

// EventListener receives events
type EventListener interface {
	OnEvent(event Event)
}

// EventListenerFunc function adapter
type EventListenerFunc func(event Event)

func (f EventListenerFunc) OnEvent(event Event) {
	f(event)
}

// SubscriptionID subscription handle
type SubscriptionID string

// EventBus publish/subscribe for breaker events
type EventBus interface {
	// Subscribe registers listener, optionally filtered by event type
	Subscribe(listener EventListener, filters ...EventType) SubscriptionID
	Unsubscribe(id SubscriptionID)
	Publish(event Event)
	Close()
}
