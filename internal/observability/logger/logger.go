// Package logger wraps zap behind a process-wide singleton so components can
// log without threading a *zap.Logger through every constructor.
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls the singleton built by Init.
type Config struct {
	// Env selects the encoder: "dev" for console output, anything else for JSON.
	Env string
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string
}

var (
	once     sync.Once
	instance *zap.Logger
)

// Init builds the singleton. Idempotent: only the first call has effect.
func Init(cfg Config) {
	once.Do(func() {
		instance = build(cfg)
	})
}

// L returns the singleton, initializing a dev/info logger if Init was never
// called (tests, ad-hoc tools).
func L() *zap.Logger {
	if instance == nil {
		Init(Config{Env: "dev", Level: "info"})
	}
	return instance
}

// Named returns the singleton tagged with a component name.
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// Sync flushes buffered entries. Call deferred from main.
func Sync() error {
	if instance != nil {
		return instance.Sync()
	}
	return nil
}

func build(cfg Config) *zap.Logger {
	level := zapcore.InfoLevel
	if parsed, err := zapcore.ParseLevel(cfg.Level); err == nil {
		level = parsed
	}

	var zc zap.Config
	if cfg.Env == "dev" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	log, err := zc.Build(zap.AddCallerSkip(0))
	if err != nil {
		return zap.NewNop()
	}
	return log
}
