package cache

import (
	"context"
	"encoding/json"
)

// Fetch is the typed form of Engine.Get.
func Fetch[T any](ctx context.Context, e *Engine, key string, fetch func(ctx context.Context) (T, error), opts ...CallOption) (T, error) {
	v, err := e.Get(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return As[T](v)
}

// As converts a cached value to T. Values hydrated from a durable store are
// decoded JSON and are converted by re-encoding.
func As[T any](v any) (T, error) {
	var out T
	if v == nil {
		return out, nil
	}
	if t, ok := v.(T); ok {
		return t, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return out, ErrDecode.Wrap(err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, ErrDecode.Wrap(err)
	}
	return out, nil
}
