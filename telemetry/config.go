package telemetry

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Exporter types
const (
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
	ExporterNone   = "none"
)

// Config OpenTelemetry configuration
type Config struct {
	Enabled        bool           `mapstructure:"enabled"`
	ServiceName    string         `mapstructure:"service_name"`
	ServiceVersion string         `mapstructure:"service_version"`
	Exporter       ExporterConfig `mapstructure:"exporter"`
	Metrics        MetricsConfig  `mapstructure:"metrics"`
	Tracing        TracingConfig  `mapstructure:"tracing"`

	// ResourceAttrs extra resource attributes; nested maps flatten to dotted
	// keys and string values expand environment variables
	ResourceAttrs map[string]interface{} `mapstructure:"resource_attributes"`

	// GuardThreshold consecutive export failures before exports are dropped
	// for GuardResetTimeout; 0 disables the guard
	GuardThreshold    int           `mapstructure:"guard_threshold"`
	GuardResetTimeout time.Duration `mapstructure:"guard_reset_timeout"`
}

// ExporterConfig exporter configuration
type ExporterConfig struct {
	Type     string            `mapstructure:"type"` // otlp, stdout, none
	Endpoint string            `mapstructure:"endpoint"`
	Insecure bool              `mapstructure:"insecure"`
	Timeout  time.Duration     `mapstructure:"timeout"`
	Headers  map[string]string `mapstructure:"headers"`
}

// MetricsConfig metrics pipeline configuration
type MetricsConfig struct {
	Enabled        bool              `mapstructure:"enabled"`
	ExportInterval time.Duration     `mapstructure:"export_interval"`
	ExportTimeout  time.Duration     `mapstructure:"export_timeout"`
	Namespace      string            `mapstructure:"namespace"` // meter name prefix
	Labels         map[string]string `mapstructure:"labels"`
}

// TracingConfig tracing pipeline configuration
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
	// Batch exports spans asynchronously; false exports each span on end
	Batch bool `mapstructure:"batch"`
}

// DefaultConfig disabled; OTLP to localhost when turned on
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "opsfeed",
		ServiceVersion: "dev",
		Exporter: ExporterConfig{
			Type:     ExporterOTLP,
			Endpoint: "localhost:4317",
			Insecure: true,
			Timeout:  10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:        true,
			ExportInterval: 30 * time.Second,
			ExportTimeout:  10 * time.Second,
			Namespace:      "opsfeed",
		},
		Tracing: TracingConfig{
			Enabled:     true,
			SampleRatio: 1,
			Batch:       true,
		},
		GuardThreshold:    5,
		GuardResetTimeout: time.Minute,
	}
}

func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.ServiceName == "" {
		c.ServiceName = d.ServiceName
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = d.ServiceVersion
	}
	if c.Exporter.Type == "" {
		c.Exporter.Type = d.Exporter.Type
	}
	if c.Exporter.Type == ExporterOTLP && c.Exporter.Endpoint == "" {
		c.Exporter.Endpoint = d.Exporter.Endpoint
	}
	if c.Exporter.Timeout <= 0 {
		c.Exporter.Timeout = d.Exporter.Timeout
	}
	if c.Metrics.ExportInterval <= 0 {
		c.Metrics.ExportInterval = d.Metrics.ExportInterval
	}
	if c.Metrics.ExportTimeout <= 0 {
		c.Metrics.ExportTimeout = d.Metrics.ExportTimeout
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = d.Metrics.Namespace
	}
	if c.GuardThreshold > 0 && c.GuardResetTimeout <= 0 {
		c.GuardResetTimeout = d.GuardResetTimeout
	}
}

func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.ServiceName, validation.Required),
		validation.Field(&c.Exporter),
		validation.Field(&c.Metrics),
		validation.Field(&c.Tracing),
		validation.Field(&c.GuardThreshold, validation.Min(0)),
	)
	if err != nil {
		return ErrConfigInvalid.Wrap(err)
	}
	return nil
}

func (e ExporterConfig) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Type, validation.Required, validation.In(ExporterOTLP, ExporterStdout, ExporterNone)),
		validation.Field(&e.Endpoint, validation.When(e.Type == ExporterOTLP, validation.Required)),
	)
}

func (m MetricsConfig) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ExportInterval, validation.Min(time.Millisecond)),
		validation.Field(&m.ExportTimeout, validation.Min(time.Millisecond)),
	)
}

func (t TracingConfig) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.SampleRatio, validation.Min(0.0), validation.Max(1.0)),
	)
}
