package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func enabled(l *zap.SugaredLogger, level zapcore.Level) bool {
	return l.Desugar().Core().Enabled(level)
}

func TestNewLogger(t *testing.T) {
	t.Setenv(EnvDebug, "true")
	assert.True(t, enabled(NewLogger(), zap.DebugLevel))

	t.Setenv(EnvDebug, "false")
	assert.False(t, enabled(NewLogger(), zap.DebugLevel))
	assert.True(t, enabled(NewLogger(), zap.InfoLevel))

	t.Setenv(EnvLogLevel, "warn")
	assert.False(t, enabled(NewLogger(), zap.InfoLevel))
	assert.True(t, enabled(NewLogger(), zap.WarnLevel))

	// an unknown level keeps the default
	t.Setenv(EnvLogLevel, "loud")
	assert.True(t, enabled(NewLogger(), zap.InfoLevel))
}

func TestNewLoggerWithLevel(t *testing.T) {
	l, err := NewLoggerWithLevel(zapcore.ErrorLevel, false)
	require.NoError(t, err)
	assert.False(t, enabled(l, zap.WarnLevel))
	assert.True(t, enabled(l, zap.ErrorLevel))
}

func TestFromContext(t *testing.T) {
	nop := zap.NewNop().Sugar()
	assert.Same(t, nop, FromContext(WithLogger(context.Background(), nop)))
	assert.Same(t, FromContext(context.Background()), FromContext(context.Background()))
}
