package health

import (
	"context"
	"strings"

	"github.com/KOMKZ/opsfeed/breaker"
	"github.com/KOMKZ/opsfeed/cache"
	"github.com/KOMKZ/opsfeed/errcode"
	"github.com/KOMKZ/opsfeed/stream"
)

// ModuleCode health module code
const ModuleCode = 90

var (
	ErrStreamClosed = errcode.Register(errcode.New(ModuleCode, 1,
		"health", "error.health.stream_closed", "multiplexer closed"))

	ErrEndpointsDown = errcode.Register(errcode.New(ModuleCode, 2,
		"health", "error.health.endpoints_down", "stream endpoints unavailable"))

	ErrCircuitsOpen = errcode.Register(errcode.New(ModuleCode, 3,
		"health", "error.health.circuits_open", "circuits open"))

	ErrStoreUnreachable = errcode.Register(errcode.New(ModuleCode, 4,
		"health", "error.health.store_unreachable", "cache store unreachable"))
)

// StreamChecker degraded while any endpoint is in error or quarantined;
// unhealthy once the multiplexer is closed.
type StreamChecker struct {
	mux *stream.Multiplexer
}

func NewStreamChecker(mux *stream.Multiplexer) *StreamChecker {
	return &StreamChecker{mux: mux}
}

func (c *StreamChecker) Name() string { return "stream" }

func (c *StreamChecker) Check(context.Context) error {
	if c.mux.Closed() {
		return ErrStreamClosed
	}
	var down []string
	for _, es := range c.mux.Stats().Endpoints {
		if es.Status == stream.StatusError || es.Breaker.State == breaker.StateOpen {
			down = append(down, es.Endpoint)
		}
	}
	if len(down) > 0 {
		return Degraded(ErrEndpointsDown.WithMsgf("stream endpoints unavailable: %s", strings.Join(down, ", ")))
	}
	return nil
}

// BreakerChecker degraded while any circuit is open
type BreakerChecker struct {
	breakers *breaker.Manager
}

func NewBreakerChecker(m *breaker.Manager) *BreakerChecker {
	return &BreakerChecker{breakers: m}
}

func (c *BreakerChecker) Name() string { return "breakers" }

func (c *BreakerChecker) Check(context.Context) error {
	var open []string
	for _, s := range c.breakers.Snapshots() {
		if s.State == breaker.StateOpen {
			open = append(open, s.Resource)
		}
	}
	if len(open) > 0 {
		return Degraded(ErrCircuitsOpen.WithMsgf("circuits open: %s", strings.Join(open, ", ")))
	}
	return nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// CacheStoreChecker pings the durable store when it supports it. The engine
// keeps serving from memory without its store, so failures are degraded.
type CacheStoreChecker struct {
	engine *cache.Engine
}

func NewCacheStoreChecker(e *cache.Engine) *CacheStoreChecker {
	return &CacheStoreChecker{engine: e}
}

func (c *CacheStoreChecker) Name() string { return "cache.store" }

func (c *CacheStoreChecker) Check(ctx context.Context) error {
	p, ok := c.engine.Store().(pinger)
	if !ok {
		return nil
	}
	if err := p.Ping(ctx); err != nil {
		return Degraded(ErrStoreUnreachable.WithData("store", c.engine.Store().Name()).Wrap(err))
	}
	return nil
}
