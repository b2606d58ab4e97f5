package breaker

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config breaker registry configuration
type Config struct {
	// EventBusBuffer event bus buffer size
	EventBusBuffer int `mapstructure:"event_bus_buffer"`

	// Default applied to every resource without an override
	Default ResourceConfig `mapstructure:"default"`

	// Resources per-endpoint overrides, merged over Default
	Resources map[string]ResourceConfig `mapstructure:"resources"`
}

// ResourceConfig per-resource thresholds
type ResourceConfig struct {
	// FailureThreshold consecutive failures that open the circuit
	FailureThreshold int `mapstructure:"failure_threshold"`

	// ResetTimeout time after the last failure before a probe is allowed
	ResetTimeout time.Duration `mapstructure:"reset_timeout"`
}

// DefaultConfig 5 failures, 30s reset timeout
func DefaultConfig() Config {
	return Config{
		EventBusBuffer: 256,
		Default:        DefaultResourceConfig(),
		Resources:      make(map[string]ResourceConfig),
	}
}

// DefaultResourceConfig default thresholds
func DefaultResourceConfig() ResourceConfig {
	return ResourceConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
	}
}

// ApplyDefaults fills zero values in place.
func (c *Config) ApplyDefaults() {
	if c.EventBusBuffer <= 0 {
		c.EventBusBuffer = 256
	}
	c.Default = DefaultResourceConfig().Merge(c.Default)
	if c.Resources == nil {
		c.Resources = make(map[string]ResourceConfig)
	}
}

// Validate validates Default and every merged override.
func (c Config) Validate() error {
	if err := c.Default.Validate(); err != nil {
		return fmt.Errorf("breaker default: %w", err)
	}
	for name, rc := range c.Resources {
		if err := c.Default.Merge(rc).Validate(); err != nil {
			return fmt.Errorf("breaker resource %q: %w", name, err)
		}
	}
	return nil
}

// Validate thresholds must be positive
func (rc ResourceConfig) Validate() error {
	return validation.ValidateStruct(&rc,
		validation.Field(&rc.FailureThreshold, validation.Required, validation.Min(1)),
		validation.Field(&rc.ResetTimeout, validation.Required, validation.Min(time.Millisecond)),
	)
}

// Merge overlays the non-zero fields of override.
func (rc ResourceConfig) Merge(override ResourceConfig) ResourceConfig {
	out := rc
	if override.FailureThreshold > 0 {
		out.FailureThreshold = override.FailureThreshold
	}
	if override.ResetTimeout > 0 {
		out.ResetTimeout = override.ResetTimeout
	}
	return out
}

// ForResource effective config for resource
func (c Config) ForResource(resource string) ResourceConfig {
	if rc, ok := c.Resources[resource]; ok {
		return c.Default.Merge(rc)
	}
	return c.Default
}
