package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestManagerConfig_Defaults(t *testing.T) {
	var cfg ManagerConfig
	cfg.ApplyDefaults()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Encoding)
	assert.Equal(t, "trace_id", cfg.TraceIDFieldName)
	assert.NoError(t, cfg.Validate())
}

func TestManagerConfig_Validate(t *testing.T) {
	cfg := DefaultManagerConfig()
	cfg.Level = "verbose"
	assert.Error(t, cfg.Validate())

	cfg = DefaultManagerConfig()
	cfg.Encoding = "xml"
	assert.Error(t, cfg.Validate())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("nonsense"))
}

func TestManager_GetLogger(t *testing.T) {
	m := NewManager(ManagerConfig{Level: "debug"})
	defer m.CloseAll()

	a := m.GetLogger("stream")
	b := m.GetLogger("stream")
	c := m.GetLogger("cache")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, "cache", c.Module())
}

func TestManager_FileOutput(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(ManagerConfig{BaseLogDir: dir, Level: "info"})

	m.GetLogger("cache").Info("hello", zap.String("k", "v"))
	m.CloseAll()

	data, err := os.ReadFile(filepath.Join(dir, "cache", "cache.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"module":"cache"`)
}

func TestTestLogger_Records(t *testing.T) {
	log, logs := NewTestLogger()

	log.With(zap.String("endpoint", "wss://x")).Warn("reconnecting")
	log.Error("failed")

	require.Equal(t, 2, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "wss://x", entry.ContextMap()["endpoint"])
	assert.Equal(t, "test", entry.ContextMap()["module"])
}

func TestCtxZapLogger_TraceID(t *testing.T) {
	log, logs := NewTestLogger()

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	log.InfoCtx(ctx, "with trace")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", logs.All()[0].ContextMap()["trace_id"])
}
