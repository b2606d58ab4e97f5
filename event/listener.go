package event

import "context"

// Listener handles one event. Returning an error from a synchronous listener
// stops the remaining listeners; ErrStopPropagation does so silently.
type Listener interface {
	Handle(ctx context.Context, event Event) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, event Event) error

func (f ListenerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}
