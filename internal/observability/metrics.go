// internal/observability/metrics.go
package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names emitted by the coordination layer.
const (
	MetricLockAttempts    = "quorum_guard_lock_attempts_total"
	MetricLockAcquired    = "quorum_guard_lock_acquired_total"
	MetricLockBusy        = "quorum_guard_lock_busy_total"
	MetricLockReleased    = "quorum_guard_lock_released_total"
	MetricStoreErrors     = "quorum_guard_store_errors_total"
	MetricOperationRuns   = "quorum_guard_operation_attempts_total"
	MetricOperationResult = "quorum_guard_operation_results_total"
	MetricCacheErrors     = "quorum_guard_cache_errors_total"
	MetricOperationTime   = "quorum_guard_operation_duration_seconds"
)

// MetricsClient interface for metrics operations
type MetricsClient interface {
	// Increment increments a counter by the given amount
	Increment(ctx context.Context, name string, value int64, attributes ...string)
	// Observe records a value into a histogram
	Observe(ctx context.Context, name string, value float64, attributes ...string)
}

// NoopMetrics discards every measurement.
type NoopMetrics struct{}

// Increment implements MetricsClient.
func (NoopMetrics) Increment(context.Context, string, int64, ...string) {}

// Observe implements MetricsClient.
func (NoopMetrics) Observe(context.Context, string, float64, ...string) {}

// OTelMetrics implements MetricsClient using OpenTelemetry
type OTelMetrics struct {
	meter  metric.Meter
	logger *SLogger

	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
}

// NewMetricsClient creates a new OpenTelemetry metrics client
func NewMetricsClient(cfg Config, l *SLogger) (*OTelMetrics, error) {
	meter := otel.GetMeterProvider().Meter(
		cfg.ServiceName,
		metric.WithInstrumentationVersion(cfg.ServiceVersion),
	)

	return &OTelMetrics{
		meter:      meter,
		logger:     l,
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}, nil
}

// Increment increments a counter metric
func (m *OTelMetrics) Increment(ctx context.Context, name string, value int64, attributes ...string) {
	m.mu.Lock()
	counter, ok := m.counters[name]
	if !ok {
		var err error
		counter, err = m.meter.Int64Counter(name)
		if err != nil {
			m.mu.Unlock()
			m.logger.Errorf("Failed to create counter metric '%s': %v", name, err)
			return
		}
		m.counters[name] = counter
	}
	m.mu.Unlock()

	counter.Add(ctx, value, metric.WithAttributes(attributesFromTags(attributes)...))
}

// Observe records a histogram measurement
func (m *OTelMetrics) Observe(ctx context.Context, name string, value float64, attributes ...string) {
	m.mu.Lock()
	hist, ok := m.histograms[name]
	if !ok {
		var err error
		hist, err = m.meter.Float64Histogram(name)
		if err != nil {
			m.mu.Unlock()
			m.logger.Errorf("Failed to create histogram metric '%s': %v", name, err)
			return
		}
		m.histograms[name] = hist
	}
	m.mu.Unlock()

	hist.Record(ctx, value, metric.WithAttributes(attributesFromTags(attributes)...))
}

// Helper function to convert string tags to OpenTelemetry attributes
func attributesFromTags(tags []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(tags)/2)
	for i := 0; i < len(tags); i += 2 {
		if i+1 < len(tags) {
			attrs = append(attrs, attribute.String(tags[i], tags[i+1]))
		}
	}
	return attrs
}
