// Package logger hands out per-module zap loggers.
package logger

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Manager owns one logger per module name.
type Manager struct {
	cfg     ManagerConfig
	loggers map[string]*CtxZapLogger
	bases   map[string]*zap.Logger
	writers []*lumberjack.Logger
	mu      sync.RWMutex
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// NewManager zero-valued fields in cfg get defaults
func NewManager(cfg ManagerConfig) *Manager {
	cfg.ApplyDefaults()
	return &Manager{
		cfg:     cfg,
		loggers: make(map[string]*CtxZapLogger),
		bases:   make(map[string]*zap.Logger),
	}
}

// InitManager sets the global manager. Only the first call has effect.
func InitManager(cfg ManagerConfig) {
	managerOnce.Do(func() {
		globalManager = NewManager(cfg)
	})
}

// GetLogger returns the logger for module, creating it on first use.
// The returned logger carries a "module" field.
func (m *Manager) GetLogger(module string) *CtxZapLogger {
	m.mu.RLock()
	if l, ok := m.loggers[module]; ok {
		m.mu.RUnlock()
		return l
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.loggers[module]; ok {
		return l
	}

	base := m.build(module).With(zap.String("module", module))
	l := &CtxZapLogger{
		base:   base.WithOptions(zap.AddCallerSkip(1)),
		module: module,
		config: &m.cfg,
	}
	m.loggers[module] = l
	m.bases[module] = base
	return l
}

func (m *Manager) build(module string) *zap.Logger {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		MessageKey:     "msg",
		CallerKey:      "caller",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	var enc zapcore.Encoder
	if m.cfg.Encoding == "console" {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}
	level := ParseLevel(m.cfg.Level)

	var cores []zapcore.Core
	if m.cfg.EnableConsole {
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(os.Stdout), level))
	}
	if m.cfg.BaseLogDir != "" {
		dir := filepath.Join(m.cfg.BaseLogDir, module)
		_ = os.MkdirAll(dir, 0o755)
		w := &lumberjack.Logger{
			Filename:   filepath.Join(dir, module+".log"),
			MaxSize:    m.cfg.MaxSize,
			MaxBackups: m.cfg.MaxBackups,
			MaxAge:     m.cfg.MaxAge,
			Compress:   m.cfg.Compress,
			LocalTime:  true,
		}
		m.writers = append(m.writers, w)
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(w), level))
	}
	if len(cores) == 0 {
		return zap.NewNop()
	}

	var opts []zap.Option
	if m.cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	return zap.New(zapcore.NewTee(cores...), opts...)
}

// CloseAll flushes buffers and closes rotated files.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.bases {
		_ = l.Sync()
	}
	for _, w := range m.writers {
		_ = w.Close()
	}
	m.loggers = make(map[string]*CtxZapLogger)
	m.bases = make(map[string]*zap.Logger)
	m.writers = nil
}

// GetLogger returns a module logger from the global manager, initializing it
// with defaults when needed.
func GetLogger(module string) *CtxZapLogger {
	InitManager(DefaultManagerConfig())
	return globalManager.GetLogger(module)
}

// CloseAll closes the global manager.
func CloseAll() {
	if globalManager != nil {
		globalManager.CloseAll()
	}
}
