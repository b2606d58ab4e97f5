package logger

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap/zapcore"
)

// ManagerConfig shared by every module logger
type ManagerConfig struct {
	Level         string `mapstructure:"level"`
	AppName       string `mapstructure:"app_name"` // injected into every entry
	Encoding      string `mapstructure:"encoding"` // json or console
	EnableConsole bool   `mapstructure:"enable_console"`

	// File output (lumberjack rotation). Empty BaseLogDir disables files.
	BaseLogDir string `mapstructure:"base_log_dir"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`

	EnableCaller    bool `mapstructure:"enable_caller"`
	StacktraceDepth int  `mapstructure:"stacktrace_depth"` // frames attached to ErrorCtx, 0 disables

	EnableTraceID    bool   `mapstructure:"enable_trace_id"`
	TraceIDFieldName string `mapstructure:"trace_id_field_name"`
}

// DefaultManagerConfig console-only JSON logging at info level
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Level:            "info",
		Encoding:         "json",
		EnableConsole:    true,
		MaxSize:          100,
		MaxBackups:       3,
		MaxAge:           28,
		Compress:         true,
		EnableCaller:     true,
		StacktraceDepth:  5,
		EnableTraceID:    true,
		TraceIDFieldName: "trace_id",
	}
}

// ApplyDefaults fills zero-valued fields in place.
func (c *ManagerConfig) ApplyDefaults() {
	d := DefaultManagerConfig()
	if c.Level == "" {
		c.Level = d.Level
	}
	if c.Encoding == "" {
		c.Encoding = d.Encoding
	}
	if c.MaxSize == 0 {
		c.MaxSize = d.MaxSize
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = d.MaxBackups
	}
	if c.MaxAge == 0 {
		c.MaxAge = d.MaxAge
	}
	if c.TraceIDFieldName == "" {
		c.TraceIDFieldName = d.TraceIDFieldName
	}
}

// Validate checks level and encoding names.
func (c ManagerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Level, validation.In("debug", "info", "warn", "error", "dpanic", "panic", "fatal")),
		validation.Field(&c.Encoding, validation.In("json", "console")),
		validation.Field(&c.MaxSize, validation.Min(0)),
		validation.Field(&c.StacktraceDepth, validation.Min(0), validation.Max(64)),
	)
}

// ParseLevel unknown names fall back to info
func ParseLevel(level string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return zapcore.InfoLevel
	}
	return l
}
