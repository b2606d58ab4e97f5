// Package cache implements the request cache engine: fresh/stale serving,
// request coalescing, background revalidation and an optional durable store.
package cache

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/KOMKZ/opsfeed/errcode"
	"github.com/KOMKZ/opsfeed/logger"
	"github.com/KOMKZ/opsfeed/retry"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("github.com/KOMKZ/opsfeed/cache")

// Fetcher loads the value for one key. ctx carries the Cache-Control hint
// (see CacheControlHint) and is cancelled when a forced fetch supersedes it or
// the engine closes.
type Fetcher func(ctx context.Context) (any, error)

// EntryState consumer-facing view of one key
type EntryState struct {
	Key         string
	Data        any
	HasData     bool
	IsLoading   bool
	Err         error
	LastUpdated time.Time
	IsStale     bool
}

type entry struct {
	key        string
	data       any
	hasData    bool          // data may legitimately be nil
	fetchedAt  time.Time     // zero until the first successful fetch
	lastAccess time.Time     // eviction order
	ttl        time.Duration // of the call that last wrote data
	err        error         // last fetch error, cleared on success
	inflight   *call
}

func (ent *entry) state(now time.Time) EntryState {
	return EntryState{
		Key:         ent.key,
		Data:        ent.data,
		HasData:     ent.hasData,
		IsLoading:   ent.inflight != nil,
		Err:         ent.err,
		LastUpdated: ent.fetchedAt,
		IsStale:     ent.hasData && now.Sub(ent.fetchedAt) >= ent.ttl,
	}
}

// call one in-flight fetch. next is set when a forced fetch supersedes this
// one; waiters follow it so they receive the newest result.
type call struct {
	done       chan struct{}
	cancel     context.CancelFunc
	background bool
	next       *call
	val        any
	err        error
}

// Engine request cache. Safe for concurrent use; every registry mutation
// happens under mu.
type Engine struct {
	cfg    Config
	clock  clockwork.Clock
	logger *logger.CtxZapLogger
	store  Store
	otel   *OTelMetrics
	loads  singleflight.Group

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	entries map[string]*entry
	subs    map[string]map[uint64]func(EntryState)
	nextSub uint64
	closed  bool

	// storeMu orders store writes against invalidation so a late write-back
	// cannot resurrect an invalidated key in the store. Taken before mu.
	storeMu sync.Mutex

	metrics counters
}

// NewEngine creates an engine.
func NewEngine(cfg Config, opts ...EngineOption) (*Engine, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:     cfg,
		clock:   clockwork.NewRealClock(),
		logger:  logger.GetLogger("cache"),
		baseCtx: ctx,
		cancel:  cancel,
		entries: make(map[string]*entry),
		subs:    make(map[string]map[uint64]func(EntryState)),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.metrics.reset(e.clock.Now())
	if e.otel != nil {
		e.otel.bindEntries(e.Len)
	}
	return e, nil
}

func (e *Engine) callOptions(opts []CallOption) callOptions {
	o := callOptions{
		ttl:        e.cfg.DefaultTTL,
		swr:        true,
		maxRetries: e.cfg.MaxRetries,
		retryDelay: e.cfg.RetryDelay,
		threshold:  e.cfg.BackgroundRefreshThreshold,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Get returns the value for key.
//
//   - fresh: cached value, no fetch
//   - stale with stale-while-revalidate: cached value, one background refresh
//   - miss, or stale without stale-while-revalidate: waits for a fetch, sharing
//     one already in flight for the key
//
// When the fetch finally fails and a cached value exists, the cached value is
// returned without error and the failure is recorded on the entry. Values
// loaded from a durable store are decoded JSON; use Fetch for typed results.
func (e *Engine) Get(ctx context.Context, key string, fetch Fetcher, opts ...CallOption) (any, error) {
	o := e.callOptions(opts)
	if e.store != nil {
		e.hydrate(key)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	now := e.clock.Now()
	ent := e.entryLocked(key, now)
	ent.lastAccess = now
	ent.ttl = o.ttl
	force := o.force || o.ttl == 0

	if !force && ent.hasData {
		age := now.Sub(ent.fetchedAt)
		if age < o.ttl {
			e.metrics.hits.Add(1)
			e.otel.recordRequest("hit")
			var notify func()
			if o.backgroundRefresh && ent.inflight == nil && float64(age) >= o.threshold*float64(o.ttl) {
				e.startLocked(ent, fetch, o, false, true)
				notify = e.notifierLocked(ent, now)
			}
			data := ent.data
			e.mu.Unlock()
			if notify != nil {
				notify()
			}
			return data, nil
		}
		if o.swr {
			e.metrics.hits.Add(1)
			e.metrics.staleServed.Add(1)
			e.otel.recordRequest("stale")
			var notify func()
			if ent.inflight == nil {
				e.startLocked(ent, fetch, o, false, true)
				notify = e.notifierLocked(ent, now)
			}
			data := ent.data
			e.mu.Unlock()
			if notify != nil {
				notify()
			}
			return data, nil
		}
	}

	e.metrics.misses.Add(1)
	e.otel.recordRequest("miss")
	c := ent.inflight
	var notify func()
	if c == nil || force {
		c = e.startLocked(ent, fetch, o, force, false)
		notify = e.notifierLocked(ent, now)
	} else {
		e.metrics.coalesced.Add(1)
	}
	fallback, hasFallback := ent.data, ent.hasData
	e.mu.Unlock()
	if notify != nil {
		notify()
	}

	val, err := e.wait(ctx, c)
	if err != nil {
		if hasFallback && ctx.Err() == nil {
			e.logger.WarnCtx(ctx, "⚠️ [CacheEngine] fetch failed, serving cached data",
				zap.String("key", key), zap.Error(err))
			return fallback, nil
		}
		return nil, err
	}
	return val, nil
}

// Refresh forces a fetch for key. An in-flight fetch for the key is aborted
// first and its waiters receive this fetch's result.
func (e *Engine) Refresh(ctx context.Context, key string, fetch Fetcher, opts ...CallOption) (any, error) {
	return e.Get(ctx, key, fetch, append(opts, withForce())...)
}

// entryLocked returns the live entry for key, replacing one that has been
// idle for 2×TTL.
func (e *Engine) entryLocked(key string, now time.Time) *entry {
	if ent, ok := e.entries[key]; ok {
		if ent.inflight != nil || now.Sub(ent.lastAccess) < 2*ent.ttl {
			return ent
		}
		e.metrics.evictions.Add(1)
	}
	ent := &entry{key: key, lastAccess: now}
	e.entries[key] = ent
	return ent
}

func (e *Engine) startLocked(ent *entry, fetch Fetcher, o callOptions, force, background bool) *call {
	hint := cacheControl(force, o.ttl)
	fctx, cancel := context.WithCancel(context.WithValue(e.baseCtx, hintKey{}, hint))
	c := &call{done: make(chan struct{}), cancel: cancel, background: background}
	if old := ent.inflight; old != nil {
		old.next = c
		old.cancel()
	}
	ent.inflight = c
	if background {
		e.metrics.revalidations.Add(1)
	}

	e.wg.Add(1)
	go e.run(fctx, ent, c, fetch, o)
	return c
}

func (e *Engine) run(ctx context.Context, ent *entry, c *call, fetch Fetcher, o callOptions) {
	defer e.wg.Done()
	defer c.cancel()

	ctx, span := tracer.Start(ctx, "cache.fetch", trace.WithAttributes(
		attribute.String("cache.key", ent.key),
		attribute.Bool("cache.background", c.background),
	))
	defer span.End()

	start := e.clock.Now()
	val, err := retry.DoWithData(ctx, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	},
		retry.MaxAttempts(o.maxRetries+1),
		retry.Backoff(retry.ExponentialBackoff(o.retryDelay,
			retry.WithJitter(e.cfg.RetryJitter),
			retry.WithMaxDelay(e.cfg.RetryMaxDelay))),
		retry.Condition(retry.SkipKinds(errcode.KindAuth, errcode.KindCircuit)),
		retry.Clock(e.clock),
	)
	if err != nil {
		err = ErrFetchFailed.WithData("key", ent.key).Wrap(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	e.mu.Lock()
	now := e.clock.Now()
	current := e.entries[ent.key] == ent && ent.inflight == c
	superseded := c.next != nil
	if ent.inflight == c {
		ent.inflight = nil
	}
	var notify func()
	if current {
		if err == nil {
			ent.data = val
			ent.hasData = true
			ent.fetchedAt = now
			ent.err = nil
		} else {
			ent.err = err
		}
		notify = e.notifierLocked(ent, now)
	}
	if err != nil && !superseded {
		e.metrics.fetchErrors.Add(1)
	}
	c.val, c.err = val, err
	e.mu.Unlock()

	switch {
	case superseded:
		e.otel.recordFetch("superseded", c.background, now.Sub(start))
	case err != nil:
		e.otel.recordFetch("error", c.background, now.Sub(start))
	default:
		e.otel.recordFetch("success", c.background, now.Sub(start))
	}

	if current && err == nil && e.store != nil && o.ttl > 0 {
		e.persist(ent, val, now, o.ttl)
	}
	close(c.done)

	if notify != nil {
		notify()
	}
	if err != nil && c.background && !superseded {
		e.logger.Warn("⚠️ [CacheEngine] background refresh failed",
			zap.String("key", ent.key), zap.Error(err))
	}
}

func (e *Engine) wait(ctx context.Context, c *call) (any, error) {
	for {
		select {
		case <-c.done:
			if c.next != nil {
				c = c.next
				continue
			}
			return c.val, c.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// persist writes the record unless the entry was invalidated or rewritten
// in the meantime.
func (e *Engine) persist(ent *entry, val any, fetchedAt time.Time, ttl time.Duration) {
	b, err := encodeRecord(val, fetchedAt, ttl)
	if err != nil {
		e.logger.Debug("[CacheEngine] value not persistable", zap.String("key", ent.key), zap.Error(err))
		return
	}

	e.storeMu.Lock()
	defer e.storeMu.Unlock()

	e.mu.Lock()
	still := e.entries[ent.key] == ent && ent.fetchedAt.Equal(fetchedAt)
	e.mu.Unlock()
	if !still {
		return
	}

	ctx, cancel := context.WithTimeout(e.baseCtx, e.cfg.StoreTimeout)
	defer cancel()
	if err := e.store.Set(ctx, ent.key, b, 2*ttl); err != nil {
		e.logger.Warn("⚠️ [CacheEngine] store write failed",
			zap.String("store", e.store.Name()), zap.String("key", ent.key), zap.Error(err))
	}
}

// hydrate loads key from the durable store when it is not in memory. Records
// older than their TTL are discarded.
func (e *Engine) hydrate(key string) {
	e.mu.Lock()
	_, exists := e.entries[key]
	e.mu.Unlock()
	if exists {
		return
	}

	_, _, _ = e.loads.Do(key, func() (any, error) {
		e.storeMu.Lock()
		defer e.storeMu.Unlock()

		ctx, cancel := context.WithTimeout(e.baseCtx, e.cfg.StoreTimeout)
		defer cancel()

		b, err := e.store.Get(ctx, key)
		if err != nil {
			if !errors.Is(err, ErrCacheMiss) {
				e.logger.Warn("⚠️ [CacheEngine] store read failed",
					zap.String("store", e.store.Name()), zap.String("key", key), zap.Error(err))
			}
			return nil, nil
		}
		data, fetchedAt, ttl, err := decodeRecord(b)
		now := e.clock.Now()
		if err != nil || ttl <= 0 || now.Sub(fetchedAt) >= ttl {
			e.logger.Debug("[CacheEngine] discarding persisted record",
				zap.String("key", key), zap.Error(err))
			_ = e.store.Delete(ctx, key)
			return nil, nil
		}

		e.mu.Lock()
		if _, ok := e.entries[key]; !ok && !e.closed {
			e.entries[key] = &entry{
				key:        key,
				data:       data,
				hasData:    true,
				fetchedAt:  fetchedAt,
				lastAccess: now,
				ttl:        ttl,
			}
		}
		e.mu.Unlock()
		return nil, nil
	})
}

// Invalidate removes every entry whose key contains pattern, in memory and in
// the store, and returns how many in-memory entries were removed. In-flight
// fetches for removed keys still answer their waiters but never write back.
func (e *Engine) Invalidate(pattern string) int {
	e.storeMu.Lock()
	defer e.storeMu.Unlock()

	e.mu.Lock()
	var notifies []func()
	for k, ent := range e.entries {
		if !strings.Contains(k, pattern) {
			continue
		}
		delete(e.entries, k)
		notifies = append(notifies, e.notifierFor(k, EntryState{Key: k, IsLoading: ent.inflight != nil}))
	}
	e.mu.Unlock()

	if e.store != nil {
		ctx, cancel := context.WithTimeout(e.baseCtx, e.cfg.StoreTimeout)
		if _, err := e.store.DeleteMatching(ctx, pattern); err != nil {
			e.logger.Warn("⚠️ [CacheEngine] store invalidate failed",
				zap.String("pattern", pattern), zap.Error(err))
		}
		cancel()
	}

	e.metrics.invalidations.Add(int64(len(notifies)))
	if len(notifies) > 0 {
		e.logger.Debug("[CacheEngine] invalidated", zap.String("pattern", pattern), zap.Int("entries", len(notifies)))
	}
	for _, n := range notifies {
		n()
	}
	return len(notifies)
}

// Clear drops every entry, empties the store and resets metrics.
func (e *Engine) Clear() {
	e.storeMu.Lock()
	defer e.storeMu.Unlock()

	e.mu.Lock()
	e.entries = make(map[string]*entry)
	e.mu.Unlock()

	if e.store != nil {
		ctx, cancel := context.WithTimeout(e.baseCtx, e.cfg.StoreTimeout)
		if _, err := e.store.DeleteMatching(ctx, ""); err != nil {
			e.logger.Warn("⚠️ [CacheEngine] store clear failed", zap.Error(err))
		}
		cancel()
	}
	e.metrics.reset(e.clock.Now())
}

// Sweep hard-deletes entries idle for 2×TTL with no fetch in flight and
// returns how many were removed.
func (e *Engine) Sweep() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock.Now()
	n := 0
	for k, ent := range e.entries {
		if ent.inflight == nil && now.Sub(ent.lastAccess) >= 2*ent.ttl {
			delete(e.entries, k)
			n++
		}
	}
	e.metrics.evictions.Add(int64(n))
	return n
}

// Peek returns the state of key without fetching or touching its access time.
func (e *Engine) Peek(key string) (EntryState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entries[key]
	if !ok {
		return EntryState{Key: key}, false
	}
	return ent.state(e.clock.Now()), true
}

// Subscribe calls fn whenever key starts loading, receives data, fails or is
// invalidated. fn runs on the engine's goroutines and must not block. The
// returned function unsubscribes.
func (e *Engine) Subscribe(key string, fn func(EntryState)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextSub++
	id := e.nextSub
	if e.subs[key] == nil {
		e.subs[key] = make(map[uint64]func(EntryState))
	}
	e.subs[key][id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs[key], id)
		if len(e.subs[key]) == 0 {
			delete(e.subs, key)
		}
	}
}

func (e *Engine) notifierLocked(ent *entry, now time.Time) func() {
	return e.notifierFor(ent.key, ent.state(now))
}

// notifierFor must hold mu; the returned func runs without it.
func (e *Engine) notifierFor(key string, st EntryState) func() {
	subs := e.subs[key]
	if len(subs) == 0 {
		return func() {}
	}
	fns := make([]func(EntryState), 0, len(subs))
	for _, fn := range subs {
		fns = append(fns, fn)
	}
	return func() {
		for _, fn := range fns {
			fn(st)
		}
	}
}

// Keys sorted keys currently in memory
func (e *Engine) Keys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.entries))
	for k := range e.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Len entries in memory
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}

// Metrics counters since the last reset
func (e *Engine) Metrics() MetricsSnapshot {
	return e.metrics.snapshot(e.Len())
}

// ResetMetrics zeroes counters without touching entries.
func (e *Engine) ResetMetrics() {
	e.metrics.reset(e.clock.Now())
}

// Store configured durable store, nil when none
func (e *Engine) Store() Store {
	return e.store
}

// SweepInterval configured sweep period
func (e *Engine) SweepInterval() time.Duration {
	return e.cfg.SweepInterval
}

// Close aborts in-flight fetches and waits for them to return. Later calls
// fail with ErrClosed. The store is owned by the caller and left open.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
}

// Shutdown implements do.Shutdowner.
func (e *Engine) Shutdown() error {
	e.Close()
	return nil
}
