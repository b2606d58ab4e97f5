package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Store durable backing for cache entries. Values are opaque records produced
// by the engine.
type Store interface {
	// Name backend name
	Name() string

	// Get returns ErrCacheMiss when the key is absent or expired
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value; ttl bounds how long the backend keeps it
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	// DeleteMatching removes every key containing substr and returns how many
	// were removed. An empty substr removes everything.
	DeleteMatching(ctx context.Context, substr string) (int, error)

	Close() error
}

// record persisted layout: {"data": ..., "timestamp": <unix ms>, "ttl": <ms>}
type record struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	TTL       int64           `json:"ttl,omitempty"`
}

func encodeRecord(data any, fetchedAt time.Time, ttl time.Duration) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, ErrDecode.Wrap(err)
	}
	return json.Marshal(record{
		Data:      raw,
		Timestamp: fetchedAt.UnixMilli(),
		TTL:       ttl.Milliseconds(),
	})
}

// decodeRecord returns the payload, its fetch time and recorded TTL.
func decodeRecord(b []byte) (any, time.Time, time.Duration, error) {
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, time.Time{}, 0, ErrDecode.Wrap(err)
	}
	var data any
	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &data); err != nil {
			return nil, time.Time{}, 0, ErrDecode.Wrap(err)
		}
	}
	return data, time.UnixMilli(r.Timestamp), time.Duration(r.TTL) * time.Millisecond, nil
}
