// Package logger wraps zap for the trading service. Components derive
// named loggers from one root so every line carries its origin.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps the zap logger with additional functionality
type Logger struct {
	*zap.Logger
}

// NewLogger creates a new logger instance with production configuration.
// TRADESIM_LOG_LEVEL overrides the default info level.
func NewLogger() (*Logger, error) {
	config := zap.NewProductionConfig()

	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}
	config.Level = zap.NewAtomicLevelAt(levelFromEnv())
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zapLogger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{
		Logger: zapLogger,
	}, nil
}

// Named returns a logger scoped to a component, keeping the wrapper type
// so derived loggers pass through the same call sites.
func (l *Logger) Named(name string) *Logger {
	if l.Logger == nil {
		return l
	}

	return &Logger{Logger: l.Logger.Named(name)}
}

// With returns a logger that attaches the fields to every entry.
func (l *Logger) With(fields ...zap.Field) *Logger {
	if l.Logger == nil {
		return l
	}

	return &Logger{Logger: l.Logger.With(fields...)}
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	if l.Logger != nil {
		return l.Logger.Sync()
	}
	return nil
}

func levelFromEnv() zapcore.Level {
	switch strings.ToLower(os.Getenv("TRADESIM_LOG_LEVEL")) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
