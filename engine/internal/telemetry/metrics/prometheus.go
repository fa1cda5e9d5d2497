package metrics

import (
	"context"
	"net/http"
	"strings"
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusProvider implements Provider backed by a Prometheus registry.
type PrometheusProvider struct {
	reg        *prom.Registry
	mu         sync.Mutex
	counters   map[string]*prom.CounterVec
	gauges     map[string]*prom.GaugeVec
	histograms map[string]*prom.HistogramVec
	handler    http.Handler
}

// PrometheusProviderOptions configures the provider. A nil Registry gets a
// fresh private one.
type PrometheusProviderOptions struct {
	Registry *prom.Registry
}

// NewPrometheusProvider creates a new provider.
func NewPrometheusProvider(opts PrometheusProviderOptions) *PrometheusProvider {
	reg := opts.Registry
	if reg == nil {
		reg = prom.NewRegistry()
	}
	return &PrometheusProvider{
		reg:        reg,
		counters:   make(map[string]*prom.CounterVec),
		gauges:     make(map[string]*prom.GaugeVec),
		histograms: make(map[string]*prom.HistogramVec),
		handler:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
}

// MetricsHandler returns an HTTP handler exposing the registry.
func (p *PrometheusProvider) MetricsHandler() http.Handler { return p.handler }

func fqName(c CommonOpts) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{c.Namespace, c.Subsystem, c.Name} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "_")
}

func (p *PrometheusProvider) NewCounter(opts CounterOpts) Counter {
	name := fqName(opts.CommonOpts)
	p.mu.Lock()
	defer p.mu.Unlock()
	vec, ok := p.counters[name]
	if !ok {
		vec = prom.NewCounterVec(prom.CounterOpts{Name: name, Help: opts.Help}, opts.Labels)
		if err := p.reg.Register(vec); err != nil {
			return noopCounter{}
		}
		p.counters[name] = vec
	}
	return &promCounter{vec: vec}
}

func (p *PrometheusProvider) NewGauge(opts GaugeOpts) Gauge {
	name := fqName(opts.CommonOpts)
	p.mu.Lock()
	defer p.mu.Unlock()
	vec, ok := p.gauges[name]
	if !ok {
		vec = prom.NewGaugeVec(prom.GaugeOpts{Name: name, Help: opts.Help}, opts.Labels)
		if err := p.reg.Register(vec); err != nil {
			return noopGauge{}
		}
		p.gauges[name] = vec
	}
	return &promGauge{vec: vec}
}

func (p *PrometheusProvider) NewHistogram(opts HistogramOpts) Histogram {
	name := fqName(opts.CommonOpts)
	p.mu.Lock()
	defer p.mu.Unlock()
	vec, ok := p.histograms[name]
	if !ok {
		buckets := opts.Buckets
		if len(buckets) == 0 {
			buckets = prom.DefBuckets
		}
		vec = prom.NewHistogramVec(prom.HistogramOpts{Name: name, Help: opts.Help, Buckets: buckets}, opts.Labels)
		if err := p.reg.Register(vec); err != nil {
			return noopHistogram{}
		}
		p.histograms[name] = vec
	}
	return &promHistogram{vec: vec}
}

func (p *PrometheusProvider) Health(ctx context.Context) error { return nil }

type promCounter struct{ vec *prom.CounterVec }

func (c *promCounter) Inc(delta float64, labels ...string) {
	if delta <= 0 {
		return
	}
	c.vec.WithLabelValues(labels...).Add(delta)
}

type promGauge struct{ vec *prom.GaugeVec }

func (g *promGauge) Set(v float64, labels ...string) { g.vec.WithLabelValues(labels...).Set(v) }
func (g *promGauge) Add(delta float64, labels ...string) {
	g.vec.WithLabelValues(labels...).Add(delta)
}

type promHistogram struct{ vec *prom.HistogramVec }

func (h *promHistogram) Observe(v float64, labels ...string) {
	h.vec.WithLabelValues(labels...).Observe(v)
}
