// Package logging builds the zap loggers of timerflow and carries them in contexts.
package logging

import (
	"context"
	"fmt"
	"os"
	"sync"

	zap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// EnvDebug set to "true" switches to the development config at debug level.
	EnvDebug = "TIMERFLOW_DEBUG"
	// EnvLogLevel overrides the level, e.g. "warn".
	EnvLogLevel = "TIMERFLOW_LOG_LEVEL"
)

var (
	defaultLogger     *zap.SugaredLogger
	defaultLoggerOnce sync.Once
)

// NewLogger returns a new zap.SugaredLogger configured from the environment.
func NewLogger() *zap.SugaredLogger {
	debug := os.Getenv(EnvDebug) == "true"
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	if s, ok := os.LookupEnv(EnvLogLevel); ok {
		if parsed, err := zapcore.ParseLevel(s); err == nil {
			level = parsed
		}
	}
	logger, err := NewLoggerWithLevel(level, debug)
	if err != nil {
		panic(err)
	}
	return logger
}

// NewLoggerWithLevel returns a logger writing to stdout at level, with the development encoder
// when development is set.
func NewLoggerWithLevel(level zapcore.Level, development bool) (*zap.SugaredLogger, error) {
	config := zap.NewProductionConfig()
	if development {
		config = zap.NewDevelopmentConfig()
	}
	config.Level = zap.NewAtomicLevelAt(level)
	config.OutputPaths = []string{"stdout"}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.Named("timerflow").Sugar(), nil
}

type loggerKey struct{}

// WithLogger returns a copy of parent context in which the
// value associated with logger key is the supplied logger.
func WithLogger(ctx context.Context, logger *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger in the context, or a process wide logger built by NewLogger.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.SugaredLogger); ok {
		return logger
	}
	defaultLoggerOnce.Do(func() {
		defaultLogger = NewLogger()
	})
	return defaultLogger
}
