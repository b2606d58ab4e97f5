package adapters

import (
	"context"

	"github.com/KOMKZ/opsfeed/cache"
)

// Query binds one cache key, its fetcher and call options onto an engine.
type Query[T any] struct {
	engine *cache.Engine
	key    string
	fetch  func(ctx context.Context) (T, error)
	opts   []cache.CallOption
}

func NewQuery[T any](engine *cache.Engine, key string, fetch func(ctx context.Context) (T, error), opts ...cache.CallOption) *Query[T] {
	return &Query[T]{engine: engine, key: key, fetch: fetch, opts: opts}
}

func (q *Query[T]) Key() string {
	return q.key
}

// Load reads through the engine, fetching when the entry is missing or
// expired, and returns the resulting state. With stale-while-revalidate the
// stale value comes back immediately with IsLoading set.
func (q *Query[T]) Load(ctx context.Context) Result[T] {
	data, err := cache.Fetch(ctx, q.engine, q.key, q.fetch, q.opts...)
	r := q.Result()
	if err != nil {
		r.Err = err
		return r
	}
	r.Data = data
	if r.LastUpdated.IsZero() {
		// invalidated between the read and the snapshot
		r.IsStale = true
	}
	return r
}

// Result current state without fetching.
func (q *Query[T]) Result() Result[T] {
	st, _ := q.engine.Peek(q.key)
	return fromState[T](st, q.refreshErr)
}

// Refresh bypasses freshness and waits for a new value.
func (q *Query[T]) Refresh(ctx context.Context) (T, error) {
	v, err := q.engine.Refresh(ctx, q.key, func(ctx context.Context) (any, error) {
		return q.fetch(ctx)
	}, q.opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return cache.As[T](v)
}

func (q *Query[T]) refreshErr(ctx context.Context) error {
	_, err := q.Refresh(ctx)
	return err
}

// Watch calls fn on every state change of the key until the returned
// function is called. fn must not block.
func (q *Query[T]) Watch(fn func(Result[T])) func() {
	return q.engine.Subscribe(q.key, func(st cache.EntryState) {
		fn(fromState[T](st, q.refreshErr))
	})
}

// Invalidate drops the key and every key containing it.
func (q *Query[T]) Invalidate() int {
	return q.engine.Invalidate(q.key)
}
