// internal/observability/observabilityconfig.go
package observability

import "go.uber.org/zap/zapcore"

// LogLevel represents logging levels
type LogLevel string

const (
	LogLevelDebug LogLevel = "LOG_LEVELS_DEBUGLEVEL"
	LogLevelInfo  LogLevel = "LOG_LEVELS_INFOLEVEL"
	LogLevelWarn  LogLevel = "LOG_LEVELS_WARNLEVEL"
	LogLevelError LogLevel = "LOG_LEVELS_ERRORLEVEL"
)

// GetZapLevel converts LogLevel to zapcore.Level
func (l LogLevel) GetZapLevel() zapcore.Level {
	switch l {
	case LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// MetricsBackend selects the metrics implementation.
type MetricsBackend string

const (
	MetricsBackendNone       MetricsBackend = "none"
	MetricsBackendOTel       MetricsBackend = "otel"
	MetricsBackendPrometheus MetricsBackend = "prometheus"
)

// Config represents OpenTelemetry configuration
type Config struct {
	ServiceName    string `yaml:"serviceName" mapstructure:"serviceName"`
	ServiceVersion string `yaml:"serviceVersion" mapstructure:"serviceVersion"`
	Environment    string `yaml:"environment" mapstructure:"environment"`
	OTelEndpoint   string `yaml:"otelEndpoint" mapstructure:"otelEndpoint"`
	// TracingEnabled turns on the OTLP trace and metric exporters.
	TracingEnabled bool `yaml:"tracingEnabled" mapstructure:"tracingEnabled"`
}

// LoggerConfig represents logging configuration
type LoggerConfig struct {
	Level LogLevel `yaml:"level" mapstructure:"level"`
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Backend MetricsBackend `yaml:"backend" mapstructure:"backend"`
	// ListenAddress is where the Prometheus handler is served, empty disables it.
	ListenAddress string `yaml:"listenAddress" mapstructure:"listenAddress"`
}
