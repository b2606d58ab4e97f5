package scheduler

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config scheduler configuration
type Config struct {
	// ShutdownTimeout wait for running jobs on Shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// CacheSweepInterval cadence of cache idle eviction, 0 uses the engine's
	// own default
	CacheSweepInterval time.Duration `mapstructure:"cache_sweep_interval"`

	// StreamSweepInterval cadence of idle connection sweeps
	StreamSweepInterval time.Duration `mapstructure:"stream_sweep_interval"`
}

func DefaultConfig() Config {
	return Config{
		ShutdownTimeout:     10 * time.Second,
		StreamSweepInterval: time.Minute,
	}
}

func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.StreamSweepInterval <= 0 {
		c.StreamSweepInterval = d.StreamSweepInterval
	}
}

func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.ShutdownTimeout, validation.Min(time.Millisecond)),
		validation.Field(&c.CacheSweepInterval, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return ErrConfigInvalid.Wrap(err)
	}
	return nil
}
