package redis

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Modes
const (
	ModeStandalone = "standalone"
	ModeCluster    = "cluster"
)

// Config Redis connection backing the durable cache store; used when the
// cache store driver is "redis"
type Config struct {
	// Mode standalone or cluster
	Mode string `mapstructure:"mode"`

	// Addrs standalone uses the first address, cluster uses all
	Addrs []string `mapstructure:"addrs"`

	// Addr single address shorthand for Addrs
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`

	// DB standalone only
	DB int `mapstructure:"db"`

	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	MetricsEnabled bool `mapstructure:"metrics_enabled"`
}

func DefaultConfig() Config {
	return Config{
		Mode:           ModeStandalone,
		PoolSize:       10,
		MinIdleConns:   2,
		MaxRetries:     3,
		DialTimeout:    5 * time.Second,
		ReadTimeout:    3 * time.Second,
		WriteTimeout:   3 * time.Second,
		MetricsEnabled: true,
	}
}

func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	if c.Addr != "" && len(c.Addrs) == 0 {
		c.Addrs = []string{c.Addr}
	}
	if c.PoolSize == 0 {
		c.PoolSize = d.PoolSize
	}
	if c.MinIdleConns == 0 {
		c.MinIdleConns = d.MinIdleConns
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = d.WriteTimeout
	}
}

func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Mode, validation.Required, validation.In(ModeStandalone, ModeCluster)),
		validation.Field(&c.Addrs, validation.Required),
		validation.Field(&c.DB, validation.Min(0), validation.Max(15)),
		validation.Field(&c.PoolSize, validation.Min(0)),
		validation.Field(&c.MinIdleConns, validation.Min(0)),
	)
	if err != nil {
		return ErrConfigInvalid.Wrap(err)
	}
	return nil
}
