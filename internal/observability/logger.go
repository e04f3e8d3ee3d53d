// internal/observability/logger.go
package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// SLogger is a wrapper for a zap sugared logger with OpenTelemetry integration
type SLogger struct {
	*zap.SugaredLogger
}

const (
	traceIDKey = "trace_id"
	spanIDKey  = "span_id"
)

// NewLogger constructs a new sugared logger with OpenTelemetry integration
func NewLogger(level zapcore.Level, options ...zap.Option) (*SLogger, error) {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	baseLogger, err := config.Build(options...)
	if err != nil {
		return nil, err
	}

	logger := newSLogger(baseLogger)
	logger.Debug("Initialized Logger level:" + config.Level.String())

	return logger, nil
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *SLogger {
	return newSLogger(zap.NewNop())
}

func newSLogger(logger *zap.Logger) *SLogger {
	return &SLogger{
		SugaredLogger: logger.Sugar(),
	}
}

// Named returns a child logger scoped to a component.
func (l *SLogger) Named(name string) *SLogger {
	return &SLogger{l.SugaredLogger.Named(name)}
}

// With returns a child logger carrying the given key/value pairs.
func (l *SLogger) With(keysAndValues ...interface{}) *SLogger {
	return &SLogger{l.SugaredLogger.With(keysAndValues...)}
}

// getTraceInfo gets the trace and span metadata from context
func getTraceInfo(ctx context.Context) (trace.TraceID, trace.SpanID, bool) {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return trace.TraceID{}, trace.SpanID{}, false
	}

	return span.SpanContext().TraceID(), span.SpanContext().SpanID(), true
}

// LogWithContext logs a message with trace context at the specified level.
// Key/value pairs are appended after the trace identifiers.
func (l *SLogger) LogWithContext(ctx context.Context, level zapcore.Level, msg string, keysAndValues ...interface{}) {
	fields := make([]interface{}, 0, len(keysAndValues)+4)
	if traceID, spanID, ok := getTraceInfo(ctx); ok {
		fields = append(fields, traceIDKey, traceID.String(), spanIDKey, spanID.String())
	}
	fields = append(fields, keysAndValues...)

	switch level {
	case zapcore.ErrorLevel:
		l.Errorw(msg, fields...)
	case zapcore.WarnLevel:
		l.Warnw(msg, fields...)
	case zapcore.DebugLevel:
		l.Debugw(msg, fields...)
	default:
		l.Infow(msg, fields...)
	}
}

// InfoCtx logs a message with trace context
func (l *SLogger) InfoCtx(ctx context.Context, msg string, keysAndValues ...interface{}) {
	l.LogWithContext(ctx, zapcore.InfoLevel, msg, keysAndValues...)
}

// WarnCtx logs a warning with trace context
func (l *SLogger) WarnCtx(ctx context.Context, msg string, keysAndValues ...interface{}) {
	l.LogWithContext(ctx, zapcore.WarnLevel, msg, keysAndValues...)
}

// ErrorCtx logs an error with trace context
func (l *SLogger) ErrorCtx(ctx context.Context, err error, keysAndValues ...interface{}) {
	l.LogWithContext(ctx, zapcore.ErrorLevel, err.Error(), keysAndValues...)
}

// GetTraceID returns the trace ID from context
func GetTraceID(ctx context.Context) (string, bool) {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return "", false
	}
	return span.SpanContext().TraceID().String(), true
}

// NewTestLogger creates a logger for testing
func NewTestLogger() (*SLogger, *observer.ObservedLogs, error) {
	observer, observedLogs := observer.New(zapcore.DebugLevel)
	observedOpt := zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return observer
	})

	baseLogger, err := zap.NewDevelopment(observedOpt)
	if err != nil {
		return nil, nil, err
	}

	return newSLogger(baseLogger), observedLogs, nil
}
