package logger

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// CtxZapLogger context-aware zap wrapper, bound to one module.
type CtxZapLogger struct {
	base   *zap.Logger
	module string
	config *ManagerConfig
}

// NewCtxZapLogger wraps an existing zap logger. Used by tests and by callers
// that already own a zap instance.
func NewCtxZapLogger(module string, base *zap.Logger) *CtxZapLogger {
	cfg := DefaultManagerConfig()
	cfg.StacktraceDepth = 0
	return &CtxZapLogger{
		base:   base.With(zap.String("module", module)),
		module: module,
		config: &cfg,
	}
}

// NewNop discards everything.
func NewNop() *CtxZapLogger {
	return NewCtxZapLogger("nop", zap.NewNop())
}

func (l *CtxZapLogger) DebugCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.base.Debug(msg, l.enrich(ctx, fields)...)
}

func (l *CtxZapLogger) InfoCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.base.Info(msg, l.enrich(ctx, fields)...)
}

func (l *CtxZapLogger) WarnCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.base.Warn(msg, l.enrich(ctx, fields)...)
}

// ErrorCtx attaches a short stack when StacktraceDepth > 0.
func (l *CtxZapLogger) ErrorCtx(ctx context.Context, msg string, fields ...zap.Field) {
	enriched := l.enrich(ctx, fields)
	if l.config != nil && l.config.StacktraceDepth > 0 {
		if stack := captureStack(3, l.config.StacktraceDepth); stack != "" {
			enriched = append(enriched, zap.String("stack", stack))
		}
	}
	l.base.Error(msg, enriched...)
}

func (l *CtxZapLogger) Debug(msg string, fields ...zap.Field) {
	l.DebugCtx(context.Background(), msg, fields...)
}

func (l *CtxZapLogger) Info(msg string, fields ...zap.Field) {
	l.InfoCtx(context.Background(), msg, fields...)
}

func (l *CtxZapLogger) Warn(msg string, fields ...zap.Field) {
	l.WarnCtx(context.Background(), msg, fields...)
}

func (l *CtxZapLogger) Error(msg string, fields ...zap.Field) {
	l.ErrorCtx(context.Background(), msg, fields...)
}

// With returns a child logger carrying fields.
func (l *CtxZapLogger) With(fields ...zap.Field) *CtxZapLogger {
	return &CtxZapLogger{
		base:   l.base.With(fields...),
		module: l.module,
		config: l.config,
	}
}

// Module bound module name
func (l *CtxZapLogger) Module() string {
	return l.module
}

// GetZapLogger underlying zap logger
func (l *CtxZapLogger) GetZapLogger() *zap.Logger {
	return l.base
}

func (l *CtxZapLogger) enrich(ctx context.Context, fields []zap.Field) []zap.Field {
	if l.config == nil {
		return fields
	}
	out := make([]zap.Field, 0, len(fields)+2)
	if l.config.AppName != "" {
		out = append(out, zap.String("app_name", l.config.AppName))
	}
	if l.config.EnableTraceID && ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			out = append(out, zap.String(l.config.TraceIDFieldName, sc.TraceID().String()))
		}
	}
	return append(out, fields...)
}

func captureStack(skip, depth int) string {
	pcs := make([]uintptr, depth)
	n := runtime.Callers(skip, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])
	var lines []string
	for {
		f, more := frames.Next()
		lines = append(lines, fmt.Sprintf("%s\n\t%s:%d", f.Function, f.File, f.Line))
		if !more || len(lines) >= depth {
			break
		}
	}
	return strings.Join(lines, "\n")
}
