package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/KOMKZ/opsfeed/logger"
	"github.com/jonboulle/clockwork"
)

// CallOption per-call option for Get / Fetch / Refresh
type CallOption func(*callOptions)

type callOptions struct {
	ttl               time.Duration
	swr               bool
	maxRetries        int           // extra attempts after the first
	retryDelay        time.Duration // base of the exponential schedule
	backgroundRefresh bool
	threshold         float64 // fraction of ttl after which a fresh read revalidates
	force             bool    // bypass freshness, used by Refresh
}

// WithTTL freshness window. Zero makes every call a miss.
func WithTTL(ttl time.Duration) CallOption {
	return func(o *callOptions) {
		if ttl >= 0 {
			o.ttl = ttl
		}
	}
}

// WithStaleWhileRevalidate serve stale data while refreshing in the background (default true)
func WithStaleWhileRevalidate(enabled bool) CallOption {
	return func(o *callOptions) {
		o.swr = enabled
	}
}

// WithRetries retries after the first attempt and the first retry delay
func WithRetries(maxRetries int, retryDelay time.Duration) CallOption {
	return func(o *callOptions) {
		if maxRetries >= 0 {
			o.maxRetries = maxRetries
		}
		if retryDelay > 0 {
			o.retryDelay = retryDelay
		}
	}
}

// WithBackgroundRefresh refreshes a fresh entry once its age passes
// threshold×TTL. threshold <= 0 keeps the engine default (0.8).
func WithBackgroundRefresh(threshold float64) CallOption {
	return func(o *callOptions) {
		o.backgroundRefresh = true
		if threshold > 0 && threshold <= 1 {
			o.threshold = threshold
		}
	}
}

func withForce() CallOption {
	return func(o *callOptions) {
		o.force = true
	}
}

// EngineOption engine construction option
type EngineOption func(*Engine)

// WithClock time source
func WithClock(c clockwork.Clock) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithLogger logger
func WithLogger(l *logger.CtxZapLogger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithStore durable backing store
func WithStore(s Store) EngineOption {
	return func(e *Engine) {
		e.store = s
	}
}

// WithMetrics OTel provider
func WithMetrics(m *OTelMetrics) EngineOption {
	return func(e *Engine) {
		e.otel = m
	}
}

type hintKey struct{}

// CacheControlHint returns the Cache-Control value a fetcher should send:
// "no-cache" for forced fetches, otherwise "stale-while-revalidate=<seconds>".
// Empty outside an engine fetch.
func CacheControlHint(ctx context.Context) string {
	if v, ok := ctx.Value(hintKey{}).(string); ok {
		return v
	}
	return ""
}

func cacheControl(force bool, ttl time.Duration) string {
	if force || ttl <= 0 {
		return "no-cache"
	}
	return fmt.Sprintf("stale-while-revalidate=%d", int64(ttl.Seconds()))
}
