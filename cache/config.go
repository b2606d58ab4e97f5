package cache

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config engine configuration
type Config struct {
	// DefaultTTL used when a call does not pass WithTTL
	DefaultTTL time.Duration `mapstructure:"default_ttl"`

	// MaxRetries retries after the first fetch attempt
	MaxRetries int `mapstructure:"max_retries"`

	// RetryDelay first retry delay, doubled per attempt
	RetryDelay time.Duration `mapstructure:"retry_delay"`

	// RetryMaxDelay cap on the retry delay
	RetryMaxDelay time.Duration `mapstructure:"retry_max_delay"`

	// RetryJitter spread ratio applied to retry delays, 0 disables
	RetryJitter float64 `mapstructure:"retry_jitter"`

	// BackgroundRefreshThreshold fraction of TTL after which a fresh entry is
	// refreshed proactively when background refresh is enabled
	BackgroundRefreshThreshold float64 `mapstructure:"background_refresh_threshold"`

	// SweepInterval period of the idle sweep job
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	// StoreTimeout bound on every durable store call
	StoreTimeout time.Duration `mapstructure:"store_timeout"`

	Store StoreConfig `mapstructure:"store"`

	MetricsEnabled bool `mapstructure:"metrics_enabled"`
}

// StoreConfig durable store selection
type StoreConfig struct {
	// Driver none, memory or redis
	Driver    string `mapstructure:"driver"`
	Size      int    `mapstructure:"size"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// DefaultConfig 5m TTL, 2 retries from 1s, no durable store
func DefaultConfig() Config {
	return Config{
		DefaultTTL:                 5 * time.Minute,
		MaxRetries:                 2,
		RetryDelay:                 time.Second,
		RetryMaxDelay:              30 * time.Second,
		BackgroundRefreshThreshold: 0.8,
		SweepInterval:              time.Minute,
		StoreTimeout:               2 * time.Second,
		Store: StoreConfig{
			Driver:    "none",
			Size:      10000,
			KeyPrefix: "opsfeed:cache:",
		},
		MetricsEnabled: true,
	}
}

// ApplyDefaults fills zero durations and thresholds. MaxRetries and
// RetryJitter keep their zero values.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = d.DefaultTTL
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = d.RetryMaxDelay
	}
	if c.BackgroundRefreshThreshold <= 0 {
		c.BackgroundRefreshThreshold = d.BackgroundRefreshThreshold
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = d.StoreTimeout
	}
	if c.Store.Driver == "" {
		c.Store.Driver = d.Store.Driver
	}
	if c.Store.Size <= 0 {
		c.Store.Size = d.Store.Size
	}
}

// Validate ranges
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.DefaultTTL, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxRetries, validation.Min(0), validation.Max(10)),
		validation.Field(&c.RetryJitter, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.BackgroundRefreshThreshold, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.Store),
	)
	if err != nil {
		return ErrConfigInvalid.Wrap(err)
	}
	return nil
}

// Validate driver name
func (s StoreConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Driver, validation.In("none", "memory", "redis")),
	)
}
