package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsSnapshot process-wide counters since ResetAt
type MetricsSnapshot struct {
	Hits          int64     `json:"hits"`
	Misses        int64     `json:"misses"`
	HitRatio      float64   `json:"hit_ratio"`
	StaleServed   int64     `json:"stale_served"`
	Revalidations int64     `json:"revalidations"`
	FetchErrors   int64     `json:"fetch_errors"`
	Coalesced     int64     `json:"coalesced"`
	Invalidations int64     `json:"invalidations"`
	Evictions     int64     `json:"evictions"`
	Entries       int       `json:"entries"`
	ResetAt       time.Time `json:"reset_at"`
}

type counters struct {
	hits          atomic.Int64
	misses        atomic.Int64
	staleServed   atomic.Int64
	revalidations atomic.Int64
	fetchErrors   atomic.Int64
	coalesced     atomic.Int64
	invalidations atomic.Int64
	evictions     atomic.Int64

	mu      sync.RWMutex
	resetAt time.Time
}

func (c *counters) reset(now time.Time) {
	c.hits.Store(0)
	c.misses.Store(0)
	c.staleServed.Store(0)
	c.revalidations.Store(0)
	c.fetchErrors.Store(0)
	c.coalesced.Store(0)
	c.invalidations.Store(0)
	c.evictions.Store(0)
	c.mu.Lock()
	c.resetAt = now
	c.mu.Unlock()
}

func (c *counters) snapshot(entries int) MetricsSnapshot {
	s := MetricsSnapshot{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		StaleServed:   c.staleServed.Load(),
		Revalidations: c.revalidations.Load(),
		FetchErrors:   c.fetchErrors.Load(),
		Coalesced:     c.coalesced.Load(),
		Invalidations: c.invalidations.Load(),
		Evictions:     c.evictions.Load(),
		Entries:       entries,
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRatio = float64(s.Hits) / float64(total)
	}
	c.mu.RLock()
	s.ResetAt = c.resetAt
	c.mu.RUnlock()
	return s
}
