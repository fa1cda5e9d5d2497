package metrics

// OpenTelemetry bridge implementing the Provider interface, so deployments
// already exporting OTel can opt in via configuration without the engine
// changing its instrumentation surface. Gauges simulate Set semantics via an
// UpDownCounter delta application.

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTelProviderOptions reserves room for resource attribution.
type OTelProviderOptions struct {
	ServiceName string
}

type otelProvider struct {
	mp    *sdkmetric.MeterProvider
	meter metric.Meter
}

// NewOTelProvider returns a Provider backed by an OTel MeterProvider. The
// MeterProvider is created without readers, exporters, or views, and is not
// exposed to callers.
func NewOTelProvider(opts OTelProviderOptions) Provider {
	name := opts.ServiceName
	if name == "" {
		name = "sitemirror"
	}
	mp := sdkmetric.NewMeterProvider()
	return &otelProvider{mp: mp, meter: mp.Meter(name)}
}

func (p *otelProvider) NewCounter(opts CounterOpts) Counter {
	inst, err := p.meter.Float64Counter(otelName(opts.CommonOpts), metric.WithDescription(opts.Help))
	if err != nil {
		return noopCounter{}
	}
	return &otelCounter{c: inst, labelKeys: opts.Labels}
}

func (p *otelProvider) NewGauge(opts GaugeOpts) Gauge {
	inst, err := p.meter.Float64UpDownCounter(otelName(opts.CommonOpts), metric.WithDescription(opts.Help))
	if err != nil {
		return noopGauge{}
	}
	return &otelGauge{g: inst, labelKeys: opts.Labels}
}

func (p *otelProvider) NewHistogram(opts HistogramOpts) Histogram {
	inst, err := p.meter.Float64Histogram(otelName(opts.CommonOpts), metric.WithDescription(opts.Help))
	if err != nil {
		return noopHistogram{}
	}
	return &otelHistogram{h: inst, labelKeys: opts.Labels}
}

func (p *otelProvider) Health(ctx context.Context) error { return nil }

// otelName composes namespace/subsystem/name with '.' separators.
func otelName(c CommonOpts) string {
	out := ""
	for _, s := range []string{c.Namespace, c.Subsystem, c.Name} {
		if s == "" {
			continue
		}
		if out != "" {
			out += "."
		}
		out += s
	}
	return out
}

type otelCounter struct {
	c         metric.Float64Counter
	labelKeys []string
}

func (c *otelCounter) Inc(delta float64, labels ...string) {
	if delta <= 0 {
		return
	}
	c.c.Add(context.Background(), delta, metric.WithAttributes(toAttributes(c.labelKeys, labels)...))
}

type otelGauge struct {
	g         metric.Float64UpDownCounter
	mu        sync.Mutex
	value     float64
	labelKeys []string
}

func (g *otelGauge) Set(v float64, labels ...string) {
	g.mu.Lock()
	diff := v - g.value
	g.value = v
	g.mu.Unlock()
	if diff != 0 {
		g.g.Add(context.Background(), diff, metric.WithAttributes(toAttributes(g.labelKeys, labels)...))
	}
}

func (g *otelGauge) Add(delta float64, labels ...string) {
	if delta == 0 {
		return
	}
	g.mu.Lock()
	g.value += delta
	g.mu.Unlock()
	g.g.Add(context.Background(), delta, metric.WithAttributes(toAttributes(g.labelKeys, labels)...))
}

type otelHistogram struct {
	h         metric.Float64Histogram
	labelKeys []string
}

func (h *otelHistogram) Observe(v float64, labels ...string) {
	h.h.Record(context.Background(), v, metric.WithAttributes(toAttributes(h.labelKeys, labels)...))
}

func toAttributes(keys, values []string) []attribute.KeyValue {
	n := len(keys)
	if len(values) < n {
		n = len(values)
	}
	if n == 0 {
		return nil
	}
	out := make([]attribute.KeyValue, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, attribute.String(keys[i], values[i]))
	}
	return out
}
