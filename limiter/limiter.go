// Package limiter is a client-side token bucket keyed by resource. It paces
// outbound requests so a burst of refreshes cannot flood one upstream host.
package limiter

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/KOMKZ/opsfeed/logger"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Response outcome of one Allow
type Response struct {
	Allowed bool

	// RetryAfter until enough tokens exist, set when Allowed is false
	RetryAfter time.Duration

	// Remaining whole tokens left after this call
	Remaining int64

	Limit int64
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
	allowed    int64
	rejected   int64
}

// Snapshot counters of one resource
type Snapshot struct {
	Resource string
	Tokens   int64
	Allowed  int64
	Rejected int64
	Capacity int64
}

// Limiter token buckets keyed by resource
type Limiter struct {
	config  Config
	clock   clockwork.Clock
	logger  *logger.CtxZapLogger
	metrics *OTelMetrics

	mu      sync.Mutex
	buckets map[string]*bucket
}

// Option limiter option
type Option func(*Limiter)

func WithClock(c clockwork.Clock) Option {
	return func(l *Limiter) {
		if c != nil {
			l.clock = c
		}
	}
}

func WithLogger(lg *logger.CtxZapLogger) Option {
	return func(l *Limiter) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// WithMetrics attaches an OTel provider
func WithMetrics(m *OTelMetrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// New validates cfg. A disabled limiter allows everything.
func New(cfg Config, opts ...Option) (*Limiter, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Limiter{
		config:  cfg,
		clock:   clockwork.NewRealClock(),
		logger:  logger.GetLogger("limiter"),
		buckets: make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.metrics != nil {
		l.metrics.bindTokens(l.tokens)
	}
	return l, nil
}

func (l *Limiter) IsEnabled() bool { return l != nil && l.config.Enabled }

func (l *Limiter) Allow(ctx context.Context, resource string) Response {
	return l.AllowN(ctx, resource, 1)
}

// AllowN takes n tokens if available; otherwise nothing is taken and
// RetryAfter says when n would be.
func (l *Limiter) AllowN(ctx context.Context, resource string, n int64) Response {
	if !l.IsEnabled() {
		return Response{Allowed: true, Remaining: math.MaxInt64, Limit: math.MaxInt64}
	}
	if n <= 0 {
		n = 1
	}

	l.mu.Lock()
	b := l.refill(resource)
	resp := Response{Limit: l.config.Capacity}
	if b.tokens >= float64(n) {
		b.tokens -= float64(n)
		b.allowed++
		resp.Allowed = true
	} else {
		b.rejected++
		missing := float64(n) - b.tokens
		resp.RetryAfter = time.Duration(math.Ceil(missing / l.config.Rate * float64(time.Second)))
	}
	resp.Remaining = int64(b.tokens)
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.RecordDecision(ctx, resource, resp.Allowed)
	}
	return resp
}

// refill tops up the bucket for the time elapsed since its last use. Caller
// holds l.mu.
func (l *Limiter) refill(resource string) *bucket {
	now := l.clock.Now()
	b, ok := l.buckets[resource]
	if !ok {
		tokens := l.config.InitTokens
		if tokens == 0 {
			tokens = l.config.Capacity
		}
		b = &bucket{tokens: float64(tokens), lastRefill: now}
		l.buckets[resource] = b
		return b
	}
	if elapsed := now.Sub(b.lastRefill); elapsed > 0 {
		b.tokens = math.Min(b.tokens+elapsed.Seconds()*l.config.Rate, float64(l.config.Capacity))
		b.lastRefill = now
	}
	return b
}

func (l *Limiter) Wait(ctx context.Context, resource string) error {
	return l.WaitN(ctx, resource, 1)
}

// WaitN blocks until n tokens are taken. It fails with ErrWaitTimeout when
// the tokens are further away than MaxWait, and ErrLimitExceeded when n can
// never fit in the bucket.
func (l *Limiter) WaitN(ctx context.Context, resource string, n int64) error {
	if !l.IsEnabled() {
		return nil
	}
	if n > l.config.Capacity {
		return ErrLimitExceeded.WithData("resource", resource).WithMsgf("%d tokens exceed capacity %d", n, l.config.Capacity)
	}

	var waited time.Duration
	for {
		resp := l.AllowN(ctx, resource, n)
		if resp.Allowed {
			if waited > 0 {
				l.logger.DebugCtx(ctx, "[Limiter] waited for token",
					zap.String("resource", resource), zap.Duration("waited", waited))
			}
			return nil
		}
		if budget := l.config.MaxWait; budget > 0 && waited+resp.RetryAfter > budget {
			l.logger.WarnCtx(ctx, "⚠️ [Limiter] wait budget exceeded",
				zap.String("resource", resource), zap.Duration("retry_after", resp.RetryAfter))
			return ErrWaitTimeout.WithData("resource", resource).WithData("retry_after", resp.RetryAfter.String())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(resp.RetryAfter):
			waited += resp.RetryAfter
		}
	}
}

// Reset forgets resource; its next call starts a fresh bucket.
func (l *Limiter) Reset(resource string) {
	l.mu.Lock()
	delete(l.buckets, resource)
	l.mu.Unlock()
}

// Snapshot counters of resource, zero if it was never used
func (l *Limiter) Snapshot(resource string) Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Snapshot{Resource: resource, Capacity: l.config.Capacity}
	b, ok := l.buckets[resource]
	if !ok {
		return s
	}
	l.refill(resource)
	s.Tokens = int64(b.tokens)
	s.Allowed = b.allowed
	s.Rejected = b.rejected
	return s
}

// Resources sorted names of every bucket
func (l *Limiter) Resources() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, 0, len(l.buckets))
	for name := range l.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (l *Limiter) tokens() map[string]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int64, len(l.buckets))
	for name := range l.buckets {
		out[name] = int64(l.refill(name).tokens)
	}
	return out
}
