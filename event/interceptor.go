package event

import "context"

// Next continues the chain
type Next func(ctx context.Context, event Event) error

// Interceptor wraps every synchronous dispatch, e.g. for logging or filtering.
type Interceptor func(ctx context.Context, event Event, next Next) error
