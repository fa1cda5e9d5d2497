package engine

import (
	"log/slog"
	"time"

	"sitemirror/engine/models"
)

// Config is the public configuration surface for one Engine. It is immutable
// for the duration of a run.
type Config struct {
	// OutputRoot is the directory downloads are rooted at. Relative paths are
	// resolved to absolute at construction.
	OutputRoot string

	// MaxConcurrency bounds the number of in-flight fetches per fan-out
	// level. Must be positive.
	MaxConcurrency int

	// RequestTimeout is the per-request deadline. Must be positive.
	RequestTimeout time.Duration

	// DownloadAssets enables mirroring: referenced assets are fetched and
	// page references rewritten to relative local paths.
	DownloadAssets bool

	// IncludeThirdPartyAssets permits cross-origin asset fetches when
	// mirroring. Without it only same-origin (scheme, host, effective port)
	// assets are fetched.
	IncludeThirdPartyAssets bool

	// UserAgent overrides the User-Agent header sent on every request.
	UserAgent string

	// Logger is the base logger; nil falls back to slog.Default().
	Logger *slog.Logger

	// TracingEnabled attaches trace/span identifiers to log records.
	TracingEnabled bool

	// MetricsEnabled toggles the metrics provider; when false a no-op
	// provider is wired and MetricsHandler returns nil.
	MetricsEnabled bool
	// MetricsBackend selects the implementation when MetricsEnabled is true:
	//   "prom" (default) - built-in Prometheus registry
	//   "otel"          - OpenTelemetry bridge
	//   "noop"          - explicit no-op
	// Unknown values fall back to the default.
	MetricsBackend string
}

// Defaults returns a Config with reasonable defaults.
func Defaults() Config {
	return Config{
		OutputRoot:     "mirror",
		MaxConcurrency: 4,
		RequestTimeout: 30 * time.Second,
		MetricsBackend: "prom",
	}
}

// Validate rejects configurations no run may start with.
func (c Config) Validate() error {
	if c.MaxConcurrency <= 0 {
		return models.ErrInvalidConcurrency
	}
	if c.RequestTimeout <= 0 {
		return models.ErrInvalidTimeout
	}
	return nil
}
