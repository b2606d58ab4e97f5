package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// NewTestLogger records every entry in memory.
//
//	log, logs := logger.NewTestLogger()
//	engine, _ := cache.NewEngine(cache.DefaultConfig(), cache.WithLogger(log))
//	assert.Equal(t, 1, logs.FilterMessageSnippet("refresh failed").Len())
func NewTestLogger() (*CtxZapLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewCtxZapLogger("test", zap.New(core)), logs
}
