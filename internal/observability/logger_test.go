// internal/observability/logger_test.go
package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogWithContext(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	logger := &SLogger{
		SugaredLogger: zap.New(core).Sugar(),
	}

	t.Run("no_trace", func(t *testing.T) {
		recorded.TakeAll()

		logger.LogWithContext(context.Background(), zapcore.InfoLevel, "test message", "key", "user:42")

		logs := recorded.TakeAll()
		require.Len(t, logs, 1)
		assert.Equal(t, "test message", logs[0].Message)
		fields := logs[0].ContextMap()
		assert.Equal(t, "user:42", fields["key"])
		assert.NotContains(t, fields, traceIDKey)
	})

	t.Run("with_trace", func(t *testing.T) {
		recorded.TakeAll()

		traceID := trace.TraceID{0x01, 0x02}
		spanID := trace.SpanID{0x03}
		sc := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     spanID,
			TraceFlags: trace.FlagsSampled,
		})
		ctx := trace.ContextWithSpanContext(context.Background(), sc)

		logger.LogWithContext(ctx, zapcore.WarnLevel, "traced")

		logs := recorded.TakeAll()
		require.Len(t, logs, 1)
		assert.Equal(t, zapcore.WarnLevel, logs[0].Level)
		fields := logs[0].ContextMap()
		assert.Equal(t, traceID.String(), fields[traceIDKey])
		assert.Equal(t, spanID.String(), fields[spanIDKey])
	})

	t.Run("levels", func(t *testing.T) {
		for _, level := range []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel} {
			recorded.TakeAll()
			logger.LogWithContext(context.Background(), level, "msg")
			logs := recorded.TakeAll()
			require.Len(t, logs, 1)
			assert.Equal(t, level, logs[0].Level)
		}
	})
}

func TestErrorCtx(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	logger := &SLogger{
		SugaredLogger: zap.New(core).Sugar(),
	}

	err := assert.AnError
	logger.ErrorCtx(context.Background(), err, "key", "coupon:X")

	logs := recorded.AllUntimed()
	require.Len(t, logs, 1)
	assert.Equal(t, err.Error(), logs[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, logs[0].Level)
}

func TestGetTraceID(t *testing.T) {
	t.Run("no_trace", func(t *testing.T) {
		traceID, ok := GetTraceID(context.Background())
		assert.False(t, ok)
		assert.Equal(t, "", traceID)
	})
}

func TestNamedAndWith(t *testing.T) {
	logger, logs, err := NewTestLogger()
	require.NoError(t, err)

	child := logger.Named("lockservice").With("backend", "memory")
	child.Info("hello")

	entries := logs.TakeAll()
	require.Len(t, entries, 1)
	assert.Equal(t, "lockservice", entries[0].LoggerName)
	assert.Equal(t, "memory", entries[0].ContextMap()["backend"])
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(zapcore.InfoLevel)
	require.NoError(t, err)
	require.NotNil(t, logger)

	assert.NotNil(t, NewNopLogger())
}
