// internal/observability/prometheus.go
package observability

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromMetrics implements MetricsClient on top of a Prometheus registry.
// Collectors are registered lazily; the label set of a metric is fixed by its first use.
type PromMetrics struct {
	registry *prometheus.Registry
	logger   *SLogger

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPromMetrics creates a Prometheus backed metrics client with its own registry.
func NewPromMetrics(l *SLogger) *PromMetrics {
	return &PromMetrics{
		registry:   prometheus.NewRegistry(),
		logger:     l,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Registry exposes the underlying registry.
func (p *PromMetrics) Registry() *prometheus.Registry {
	return p.registry
}

// Handler returns an HTTP handler serving the registry.
func (p *PromMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Increment implements MetricsClient.
func (p *PromMetrics) Increment(_ context.Context, name string, value int64, attributes ...string) {
	names, values := splitTags(attributes)

	p.mu.Lock()
	vec, ok := p.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: name}, names)
		if err := p.registry.Register(vec); err != nil {
			p.mu.Unlock()
			p.logger.Errorf("Failed to register counter '%s': %v", name, err)
			return
		}
		p.counters[name] = vec
	}
	p.mu.Unlock()

	counter, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		p.logger.Errorf("Failed to resolve counter '%s': %v", name, err)
		return
	}
	counter.Add(float64(value))
}

// Observe implements MetricsClient.
func (p *PromMetrics) Observe(_ context.Context, name string, value float64, attributes ...string) {
	names, values := splitTags(attributes)

	p.mu.Lock()
	vec, ok := p.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    name,
			Buckets: prometheus.DefBuckets,
		}, names)
		if err := p.registry.Register(vec); err != nil {
			p.mu.Unlock()
			p.logger.Errorf("Failed to register histogram '%s': %v", name, err)
			return
		}
		p.histograms[name] = vec
	}
	p.mu.Unlock()

	hist, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		p.logger.Errorf("Failed to resolve histogram '%s': %v", name, err)
		return
	}
	hist.Observe(value)
}

func splitTags(tags []string) ([]string, []string) {
	names := make([]string, 0, len(tags)/2)
	values := make([]string, 0, len(tags)/2)
	for i := 0; i+1 < len(tags); i += 2 {
		names = append(names, tags[i])
		values = append(values, tags[i+1])
	}
	return names, values
}
