package retry

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Config retry configuration
type Config struct {
	maxAttempts int                          // includes the first attempt (default 3)
	backoff     BackoffStrategy              // default exponential from 1s
	condition   RetryCondition               // default retries every error
	onRetry     func(attempt int, err error) // optional
	timeout     time.Duration                // per attempt, 0 = none
	clock       clockwork.Clock
}

func defaultConfig() *Config {
	return &Config{
		maxAttempts: 3,
		backoff:     ExponentialBackoff(time.Second),
		condition:   AlwaysRetry(),
		clock:       clockwork.NewRealClock(),
	}
}

// Option retry option
type Option func(*Config)

// MaxAttempts total attempts including the first one, default 3
func MaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// Backoff delay schedule between attempts
func Backoff(b BackoffStrategy) Option {
	return func(c *Config) {
		if b != nil {
			c.backoff = b
		}
	}
}

// Condition decides whether an error is worth another attempt
func Condition(cond RetryCondition) Option {
	return func(c *Config) {
		if cond != nil {
			c.condition = cond
		}
	}
}

// OnRetry called before waiting for the next attempt
func OnRetry(f func(attempt int, err error)) Option {
	return func(c *Config) {
		c.onRetry = f
	}
}

// Timeout per-attempt timeout, 0 = none
func Timeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Clock time source for backoff waits
func Clock(clock clockwork.Clock) Option {
	return func(c *Config) {
		if clock != nil {
			c.clock = clock
		}
	}
}
