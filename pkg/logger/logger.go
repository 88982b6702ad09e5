// Package logger builds the zap loggers used across the engine and its glue.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log configures the root logger. Sink is a file path; empty means stderr.
type Log struct {
	LogLevel zapcore.Level `envconfig:"LEVEL"`
	Sink     string        `envconfig:"SINK"`
	Dev      bool          `envconfig:"DEV"`
}

// NewLogger returns a logger named after the component that owns it.
// A sink that cannot be opened falls back to stderr.
func NewLogger(cfg Log, name string) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encCfg)
	if cfg.Dev {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	ws := zapcore.Lock(os.Stderr)
	if cfg.Sink != "" {
		if f, err := os.OpenFile(cfg.Sink, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
			ws = zapcore.AddSync(f)
		}
	}

	core := zapcore.NewCore(encoder, ws, zap.NewAtomicLevelAt(cfg.LogLevel))
	opts := []zap.Option{zap.AddCaller()}
	if cfg.Dev {
		opts = append(opts, zap.Development())
	}
	return zap.New(core, opts...).Named(name)
}
