package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sitemirror/engine/internal/assets"
	"sitemirror/engine/internal/fetch"
	"sitemirror/engine/internal/pool"
	"sitemirror/engine/internal/storage"
	intmetrics "sitemirror/engine/internal/telemetry/metrics"
	inttracing "sitemirror/engine/internal/telemetry/tracing"
	"sitemirror/engine/models"
	"sitemirror/engine/telemetry/logging"
)

// Engine composes the fetcher, worker pool, writer, and mirror behind a
// single facade. One Engine serves any number of sequential runs; each run's
// dedup state is private to that run.
type Engine struct {
	cfg     Config
	fetcher fetch.Fetcher
	logger  logging.Logger
	tracer  inttracing.Tracer

	metricsProvider intmetrics.Provider
	pagesTotal      intmetrics.Counter
	assetsTotal     intmetrics.Counter
	fetchSeconds    intmetrics.Histogram
	inflight        intmetrics.Gauge

	statsMu sync.Mutex
	stats   models.RunStats
}

// New constructs an Engine from cfg. Configuration errors surface here, not
// at run time.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	root, err := filepath.Abs(cfg.OutputRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve output root: %w", err)
	}
	cfg.OutputRoot = root

	e := &Engine{
		cfg:     cfg,
		fetcher: fetch.NewHTTPFetcher(fetch.Policy{UserAgent: cfg.UserAgent}, cfg.MaxConcurrency),
		logger:  logging.New(cfg.Logger),
		tracer:  inttracing.NewTracer(cfg.TracingEnabled),
	}
	e.metricsProvider = selectMetricsProvider(cfg)
	e.pagesTotal = e.metricsProvider.NewCounter(intmetrics.CounterOpts{CommonOpts: intmetrics.CommonOpts{
		Namespace: "sitemirror", Subsystem: "pages", Name: "total",
		Help: "Requested pages by outcome", Labels: []string{"outcome"},
	}})
	e.assetsTotal = e.metricsProvider.NewCounter(intmetrics.CounterOpts{CommonOpts: intmetrics.CommonOpts{
		Namespace: "sitemirror", Subsystem: "assets", Name: "total",
		Help: "Assets fetched and persisted during mirroring",
	}})
	e.fetchSeconds = e.metricsProvider.NewHistogram(intmetrics.HistogramOpts{CommonOpts: intmetrics.CommonOpts{
		Namespace: "sitemirror", Subsystem: "fetch", Name: "duration_seconds",
		Help: "Page download duration",
	}})
	e.inflight = e.metricsProvider.NewGauge(intmetrics.GaugeOpts{CommonOpts: intmetrics.CommonOpts{
		Namespace: "sitemirror", Subsystem: "fetch", Name: "inflight",
		Help: "Pages currently being processed",
	}})
	return e, nil
}

// selectMetricsProvider returns a metrics provider based on Config. Backend
// selection lives in one place so it stays auditable.
func selectMetricsProvider(cfg Config) intmetrics.Provider {
	if !cfg.MetricsEnabled {
		return intmetrics.NewNoopProvider()
	}
	switch strings.ToLower(cfg.MetricsBackend) {
	case "", "prom", "prometheus":
		return intmetrics.NewPrometheusProvider(intmetrics.PrometheusProviderOptions{})
	case "otel", "opentelemetry":
		return intmetrics.NewOTelProvider(intmetrics.OTelProviderOptions{})
	case "noop":
		return intmetrics.NewNoopProvider()
	default:
		return intmetrics.NewPrometheusProvider(intmetrics.PrometheusProviderOptions{})
	}
}

// MetricsHandler returns the HTTP handler for metrics exposition (Prometheus
// backend only). Nil when metrics are disabled or the backend has no handler.
func (e *Engine) MetricsHandler() http.Handler {
	if hp, ok := e.metricsProvider.(interface{ MetricsHandler() http.Handler }); ok {
		return hp.MetricsHandler()
	}
	return nil
}

// StatsSnapshot returns a copy of the counters aggregated across runs.
func (e *Engine) StatsSnapshot() models.RunStats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

// Run downloads every URL in rawURLs and returns one result per URL, in
// unspecified order. A canceled ctx aborts the run and returns ctx.Err();
// per-URL failures never do. The output root is created if missing.
func (e *Engine) Run(ctx context.Context, rawURLs []string) ([]models.DownloadResult, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(e.cfg.OutputRoot, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrOutputDirCreation, e.cfg.OutputRoot, err)
	}

	var rc *assets.RunContext
	var mirror *assets.Mirrorer
	if e.cfg.DownloadAssets {
		rc = assets.NewRunContext()
		mirror = &assets.Mirrorer{
			Fetcher:           e.fetcher,
			OutputRoot:        e.cfg.OutputRoot,
			Concurrency:       e.cfg.MaxConcurrency,
			IncludeThirdParty: e.cfg.IncludeThirdPartyAssets,
			Logger:            e.logger,
			OnAssetFetched: func(*models.DownloadedAsset) {
				e.assetsTotal.Inc(1)
				e.statsMu.Lock()
				e.stats.AssetsFetched++
				e.statsMu.Unlock()
			},
		}
	}

	var mu sync.Mutex
	results := make([]models.DownloadResult, 0, len(rawURLs))
	err := pool.Run(ctx, rawURLs, e.cfg.MaxConcurrency, func(ctx context.Context, raw string) {
		res := e.processOne(ctx, raw, mirror, rc)
		mu.Lock()
		results = append(results, res)
		mu.Unlock()
	})
	if err != nil {
		return nil, err
	}

	succeeded, failed := 0, 0
	for _, r := range results {
		if r.Success {
			succeeded++
		} else {
			failed++
		}
	}
	e.statsMu.Lock()
	e.stats.Requested += len(rawURLs)
	e.stats.Succeeded += succeeded
	e.stats.Failed += failed
	e.statsMu.Unlock()
	e.logger.InfoCtx(ctx, "run complete",
		slog.Int("requested", len(rawURLs)),
		slog.Int("succeeded", succeeded),
		slog.Int("failed", failed))
	return results, nil
}

// processOne handles a single requested URL: fetch, then save or mirror.
// Every failure becomes a result value; classification follows the ambient
// cancellation state.
func (e *Engine) processOne(ctx context.Context, raw string, mirror *assets.Mirrorer, rc *assets.RunContext) models.DownloadResult {
	ctx, span := e.tracer.StartSpan(ctx, "download")
	defer span.End()
	span.SetAttribute("url", raw)

	u, err := url.Parse(raw)
	if err == nil && !u.IsAbs() {
		err = fmt.Errorf("not an absolute URL: %s", raw)
	}
	if err != nil {
		e.pagesTotal.Inc(1, "invalid")
		return models.DownloadResult{URL: raw, Error: err.Error()}
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()

	e.inflight.Add(1)
	defer e.inflight.Add(-1)
	start := time.Now()
	defer func() { e.fetchSeconds.Observe(time.Since(start).Seconds()) }()

	resp, err := e.fetcher.Fetch(reqCtx, u)
	if err != nil {
		return e.failureResult(ctx, raw, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e.logger.WarnCtx(ctx, "request rejected", slog.String("url", raw), slog.Int("status", resp.StatusCode))
		e.pagesTotal.Inc(1, "http_error")
		return models.DownloadResult{
			URL:    raw,
			Status: resp.StatusCode,
			Error:  strings.TrimSpace(fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))),
		}
	}

	var path string
	if mirror != nil {
		path, err = mirror.MirrorPage(reqCtx, u, resp, rc)
	} else {
		path, err = storage.Save(u, resp, e.cfg.OutputRoot)
	}
	if err != nil {
		return e.failureResult(ctx, raw, err)
	}

	e.pagesTotal.Inc(1, "success")
	return models.DownloadResult{URL: raw, Success: true, Status: resp.StatusCode, Path: path}
}

func (e *Engine) failureResult(ctx context.Context, raw string, err error) models.DownloadResult {
	msg := e.classify(ctx, err)
	e.logger.WarnCtx(ctx, "download failed", slog.String("url", raw), slog.String("error", msg))
	e.pagesTotal.Inc(1, "failure")
	return models.DownloadResult{URL: raw, Error: msg}
}

// classify distinguishes root cancellation, per-request timeout, and
// everything else. ctx here is the per-URL context before the timeout is
// layered on: its Err() is only non-nil when the root signal fired.
func (e *Engine) classify(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil:
		return "Canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("Timeout after %gs", e.cfg.RequestTimeout.Seconds())
	default:
		return err.Error()
	}
}
