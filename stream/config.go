package stream

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config multiplexer configuration
type Config struct {
	// BatchSize flush a batch once it holds this many messages
	BatchSize int `mapstructure:"batch_size"`

	// BatchInterval flush a non-empty batch after this long
	BatchInterval time.Duration `mapstructure:"batch_interval"`

	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`

	// MaxMissedHeartbeats unanswered heartbeats before the connection is dropped
	MaxMissedHeartbeats int `mapstructure:"max_missed_heartbeats"`

	// IdleTimeout idle period after which Sweep closes an unused connection
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// KeepIdle keep connections without subscribers until Sweep reclaims them
	// instead of closing on the last Release
	KeepIdle bool `mapstructure:"keep_idle"`

	ReconnectBase       time.Duration `mapstructure:"reconnect_base"`
	ReconnectMultiplier float64       `mapstructure:"reconnect_multiplier"`
	ReconnectMaxDelay   time.Duration `mapstructure:"reconnect_max_delay"`
	// ReconnectJitter spread ratio on reconnect delays, 0 disables
	ReconnectJitter float64 `mapstructure:"reconnect_jitter"`

	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// InboxSize per-connection inbound queue; a full queue pauses reading
	InboxSize int `mapstructure:"inbox_size"`

	// EventWorkers pool size for async event listeners
	EventWorkers int `mapstructure:"event_workers"`

	MetricsEnabled bool `mapstructure:"metrics_enabled"`
}

// DefaultConfig 30s heartbeat, 5m idle, 1s→30s reconnect backoff with 20% jitter
func DefaultConfig() Config {
	return Config{
		BatchSize:           50,
		BatchInterval:       100 * time.Millisecond,
		HeartbeatInterval:   30 * time.Second,
		MaxMissedHeartbeats: 2,
		IdleTimeout:         5 * time.Minute,
		ReconnectBase:       time.Second,
		ReconnectMultiplier: 2,
		ReconnectMaxDelay:   30 * time.Second,
		ReconnectJitter:     0.2,
		DialTimeout:         10 * time.Second,
		WriteTimeout:        5 * time.Second,
		InboxSize:           256,
		EventWorkers:        8,
		MetricsEnabled:      true,
	}
}

// ApplyDefaults fills zero values. ReconnectJitter keeps zero.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.BatchInterval <= 0 {
		c.BatchInterval = d.BatchInterval
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.MaxMissedHeartbeats <= 0 {
		c.MaxMissedHeartbeats = d.MaxMissedHeartbeats
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = d.ReconnectBase
	}
	if c.ReconnectMultiplier < 1 {
		c.ReconnectMultiplier = d.ReconnectMultiplier
	}
	if c.ReconnectMaxDelay <= 0 {
		c.ReconnectMaxDelay = d.ReconnectMaxDelay
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.InboxSize <= 0 {
		c.InboxSize = d.InboxSize
	}
	if c.EventWorkers <= 0 {
		c.EventWorkers = d.EventWorkers
	}
}

// Validate ranges
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.BatchSize, validation.Min(1)),
		validation.Field(&c.MaxMissedHeartbeats, validation.Min(1)),
		validation.Field(&c.ReconnectJitter, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.ReconnectMaxDelay, validation.Min(c.ReconnectBase)),
	)
	if err != nil {
		return ErrConfigInvalid.Wrap(err)
	}
	return nil
}
