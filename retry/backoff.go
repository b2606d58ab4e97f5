package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// DefaultMaxDelay cap applied to every exponential schedule unless overridden
const DefaultMaxDelay = 30 * time.Second

// BackoffStrategy returns the delay before retry number attempt (1-based).
type BackoffStrategy interface {
	Next(attempt int) time.Duration
}

// BackoffOption backoff option
type BackoffOption func(*backoffConfig)

type backoffConfig struct {
	multiplier float64
	maxDelay   time.Duration
	jitter     float64
	rand       func() float64
}

func defaultBackoffConfig() *backoffConfig {
	return &backoffConfig{
		multiplier: 2.0,
		maxDelay:   DefaultMaxDelay,
		jitter:     0.2,
		rand:       rand.Float64,
	}
}

// WithMultiplier growth factor, default 2
func WithMultiplier(m float64) BackoffOption {
	return func(c *backoffConfig) {
		if m > 0 {
			c.multiplier = m
		}
	}
}

// WithMaxDelay cap, default 30s
func WithMaxDelay(d time.Duration) BackoffOption {
	return func(c *backoffConfig) {
		if d > 0 {
			c.maxDelay = d
		}
	}
}

// WithJitter random spread ratio in [0, 1], default 0.2. Zero gives the bare schedule.
func WithJitter(ratio float64) BackoffOption {
	return func(c *backoffConfig) {
		if ratio >= 0 && ratio <= 1.0 {
			c.jitter = ratio
		}
	}
}

// WithRand replaces the jitter source, for deterministic tests.
func WithRand(f func() float64) BackoffOption {
	return func(c *backoffConfig) {
		if f != nil {
			c.rand = f
		}
	}
}

// Exponential is the bare schedule shared by reconnects and fetch retries:
// base × multiplier^(attempt-1), capped at max.
func Exponential(base time.Duration, multiplier float64, max time.Duration, attempt int) time.Duration {
	if attempt <= 0 || base <= 0 {
		return 0
	}
	delay := float64(base) * math.Pow(multiplier, float64(attempt-1))
	if max > 0 && delay > float64(max) {
		delay = float64(max)
	}
	return time.Duration(delay)
}

type exponentialBackoff struct {
	base   time.Duration
	config *backoffConfig
}

// ExponentialBackoff base=1s, multiplier=2: 1s, 2s, 4s, 8s ... up to maxDelay.
func ExponentialBackoff(base time.Duration, opts ...BackoffOption) BackoffStrategy {
	cfg := defaultBackoffConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &exponentialBackoff{base: base, config: cfg}
}

func (b *exponentialBackoff) Next(attempt int) time.Duration {
	d := Exponential(b.base, b.config.multiplier, b.config.maxDelay, attempt)
	if b.config.jitter > 0 && d > 0 {
		d = applyJitter(d, b.config.jitter, b.config.rand)
		if d > b.config.maxDelay {
			d = b.config.maxDelay
		}
	}
	return d
}

type constantBackoff struct {
	delay time.Duration
}

// ConstantBackoff same delay for every attempt
func ConstantBackoff(delay time.Duration) BackoffStrategy {
	return &constantBackoff{delay: delay}
}

func (b *constantBackoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return b.delay
}

type noBackoff struct{}

// NoBackoff retries immediately
func NoBackoff() BackoffStrategy {
	return noBackoff{}
}

func (noBackoff) Next(int) time.Duration { return 0 }

// applyJitter spreads delay uniformly over [delay×(1-jitter), delay×(1+jitter)].
func applyJitter(delay time.Duration, jitter float64, rnd func() float64) time.Duration {
	delta := float64(delay) * jitter
	out := float64(delay) + (rnd()*2-1)*delta
	if out < 0 {
		return 0
	}
	return time.Duration(out)
}
