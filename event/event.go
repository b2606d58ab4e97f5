// Package event is an in-process publish/subscribe dispatcher. Listeners run
// synchronously in priority order or asynchronously on an ants worker pool.
package event

import "time"

// Event anything with a routing name, e.g. "stream.status_changed"
type Event interface {
	Name() string
}

// BaseEvent embeddable name + occurrence time
type BaseEvent struct {
	name       string
	occurredAt time.Time
}

// NewEvent stamps the event with at
func NewEvent(name string, at time.Time) BaseEvent {
	return BaseEvent{name: name, occurredAt: at}
}

func (e BaseEvent) Name() string {
	return e.name
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.occurredAt
}
