package limiter

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config outbound rate limiting. Every resource (a host) gets its own bucket.
type Config struct {
	// Enabled false lets every request through
	Enabled bool `mapstructure:"enabled"`

	// Rate tokens added per second
	Rate float64 `mapstructure:"rate"`

	// Capacity bucket size, the largest burst
	Capacity int64 `mapstructure:"capacity"`

	// InitTokens tokens in a new bucket, 0 means full
	InitTokens int64 `mapstructure:"init_tokens"`

	// MaxWait longest Wait blocks before failing, 0 waits for the context
	MaxWait time.Duration `mapstructure:"max_wait"`
}

// DefaultConfig disabled; 20 req/s with bursts of 40 once enabled
func DefaultConfig() Config {
	return Config{
		Rate:     20,
		Capacity: 40,
		MaxWait:  5 * time.Second,
	}
}

func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.Rate <= 0 {
		c.Rate = d.Rate
	}
	if c.Capacity <= 0 {
		c.Capacity = d.Capacity
	}
	if c.MaxWait < 0 {
		c.MaxWait = 0
	}
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Rate, validation.Required, validation.Min(0.001)),
		validation.Field(&c.Capacity, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.InitTokens, validation.Min(int64(0)), validation.Max(c.Capacity)),
	)
	if err != nil {
		return ErrConfigInvalid.Wrap(err)
	}
	return nil
}
