package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPrometheusProviderExposesInstruments(t *testing.T) {
	p := NewPrometheusProvider(PrometheusProviderOptions{})

	c := p.NewCounter(CounterOpts{CommonOpts: CommonOpts{Namespace: "sitemirror", Subsystem: "pages", Name: "total", Help: "pages", Labels: []string{"outcome"}}})
	c.Inc(1, "success")
	c.Inc(2, "failure")

	g := p.NewGauge(GaugeOpts{CommonOpts: CommonOpts{Namespace: "sitemirror", Name: "inflight", Help: "inflight"}})
	g.Set(3)
	g.Add(-1)

	h := p.NewHistogram(HistogramOpts{CommonOpts: CommonOpts{Namespace: "sitemirror", Name: "duration_seconds", Help: "durations"}})
	h.Observe(0.25)

	rec := httptest.NewRecorder()
	p.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Result().Body)
	out := string(body)

	for _, want := range []string{
		`sitemirror_pages_total{outcome="success"} 1`,
		`sitemirror_pages_total{outcome="failure"} 2`,
		`sitemirror_inflight 2`,
		`sitemirror_duration_seconds_count 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in exposition:\n%s", want, out)
		}
	}
}

func TestCounterIgnoresNonPositiveDeltas(t *testing.T) {
	p := NewPrometheusProvider(PrometheusProviderOptions{})
	c := p.NewCounter(CounterOpts{CommonOpts: CommonOpts{Name: "x_total", Help: "x"}})
	c.Inc(3)
	c.Inc(0)
	c.Inc(-5)

	rec := httptest.NewRecorder()
	p.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Result().Body)
	if !strings.Contains(string(body), "x_total 3") {
		t.Fatalf("non-positive deltas must be ignored:\n%s", body)
	}
}

func TestNoopProviderIsInert(t *testing.T) {
	p := NewNoopProvider()
	p.NewCounter(CounterOpts{}).Inc(1)
	p.NewGauge(GaugeOpts{}).Set(1)
	p.NewHistogram(HistogramOpts{}).Observe(1)
	if err := p.Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}
