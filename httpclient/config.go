package httpclient

import (
	"errors"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config HTTP client configuration
type Config struct {
	// BaseURL prefix for relative request paths
	BaseURL string `mapstructure:"base_url"`

	Timeout time.Duration `mapstructure:"timeout"`

	// MaxAttempts total attempts per request including the first, 1 disables retry
	MaxAttempts int `mapstructure:"max_attempts"`

	// RetryDelay first retry delay, doubled per attempt
	RetryDelay time.Duration `mapstructure:"retry_delay"`

	// BreakerEnabled guard each host with a circuit breaker
	BreakerEnabled bool `mapstructure:"breaker_enabled"`
}

// DefaultConfig 30s timeout, single attempt, per-host breaker on
func DefaultConfig() Config {
	return Config{
		Timeout:        30 * time.Second,
		MaxAttempts:    1,
		RetryDelay:     500 * time.Millisecond,
		BreakerEnabled: true,
	}
}

func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
}

func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.By(absoluteURL)),
		validation.Field(&c.MaxAttempts, validation.Min(1), validation.Max(10)),
	)
	if err != nil {
		return ErrConfigInvalid.Wrap(err)
	}
	return nil
}

func absoluteURL(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return errors.New("must be an absolute URL")
	}
	return nil
}
