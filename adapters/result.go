// Package adapters binds feature-level data sources onto the cache engine and
// the stream multiplexer. Every adapter exposes the same Result shape and
// reads only through the engines.
package adapters

import (
	"context"
	"errors"
	"time"

	"github.com/KOMKZ/opsfeed/auth"
	"github.com/KOMKZ/opsfeed/cache"
)

// Result consumer view of one data source.
type Result[T any] struct {
	Data        T
	IsLoading   bool
	Err         error
	LastUpdated time.Time
	IsStale     bool

	refresh func(ctx context.Context) error
}

// Refresh forces the source to reload and waits for the outcome. A zero
// Result refreshes nothing.
func (r Result[T]) Refresh(ctx context.Context) error {
	if r.refresh == nil {
		return nil
	}
	return r.refresh(ctx)
}

// HasData reports whether LastUpdated refers to a successful load.
func (r Result[T]) HasData() bool {
	return !r.LastUpdated.IsZero()
}

// NeedsAuth the last failure was a missing, expired or rejected credential;
// retrying without a new one will not help.
func (r Result[T]) NeedsAuth() bool {
	if r.Err == nil {
		return false
	}
	return errors.Is(r.Err, auth.ErrUnauthorized) ||
		errors.Is(r.Err, auth.ErrCredentialMissing) ||
		errors.Is(r.Err, auth.ErrCredentialExpired)
}

func fromState[T any](st cache.EntryState, refresh func(context.Context) error) Result[T] {
	r := Result[T]{
		IsLoading: st.IsLoading,
		Err:       st.Err,
		IsStale:   st.IsStale,
		refresh:   refresh,
	}
	if !st.HasData {
		return r
	}
	data, err := cache.As[T](st.Data)
	if err != nil {
		if r.Err == nil {
			r.Err = err
		}
		return r
	}
	r.Data = data
	r.LastUpdated = st.LastUpdated
	return r
}
