package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sitemirror/engine"
)

const version = "1.0"

// fileConfig is the YAML config file shape. Pointer fields distinguish
// "absent" from zero so file values never clobber explicit flags.
type fileConfig struct {
	OutputRoot              *string `yaml:"output_root"`
	MaxConcurrency          *int    `yaml:"max_concurrency"`
	RequestTimeout          *string `yaml:"request_timeout"`
	DownloadAssets          *bool   `yaml:"download_assets"`
	IncludeThirdPartyAssets *bool   `yaml:"include_third_party_assets"`
	UserAgent               *string `yaml:"user_agent"`
}

func applyFileConfig(base engine.Config, fc *fileConfig, explicit map[string]bool) (engine.Config, error) {
	if fc == nil {
		return base, nil
	}
	if fc.OutputRoot != nil && !explicit["out"] {
		base.OutputRoot = *fc.OutputRoot
	}
	if fc.MaxConcurrency != nil && !explicit["parallel"] {
		base.MaxConcurrency = *fc.MaxConcurrency
	}
	if fc.RequestTimeout != nil && !explicit["timeout"] {
		d, err := time.ParseDuration(*fc.RequestTimeout)
		if err != nil {
			return base, fmt.Errorf("request_timeout: %w", err)
		}
		base.RequestTimeout = d
	}
	if fc.DownloadAssets != nil && !explicit["assets"] && !(explicit["third-party"] && base.IncludeThirdPartyAssets) {
		base.DownloadAssets = *fc.DownloadAssets
	}
	if fc.IncludeThirdPartyAssets != nil && !explicit["third-party"] {
		base.IncludeThirdPartyAssets = *fc.IncludeThirdPartyAssets
	}
	if fc.UserAgent != nil && !explicit["user-agent"] {
		base.UserAgent = *fc.UserAgent
	}
	return base, nil
}

func main() {
	defaults := engine.Defaults()
	var (
		outputRoot     string
		parallel       int
		timeout        time.Duration
		downloadAssets bool
		thirdParty     bool
		userAgent      string
		urlFile        string
		configPath     string
		logFormat      string
		logLevel       string
		metricsAddr    string
		metricsBackend string
		enableMetrics  bool
		enableTracing  bool
		showVersion    bool
	)
	flag.StringVar(&outputRoot, "out", defaults.OutputRoot, "Output root directory")
	flag.IntVar(&parallel, "parallel", defaults.MaxConcurrency, "Maximum concurrent downloads")
	flag.DurationVar(&timeout, "timeout", defaults.RequestTimeout, "Per-request timeout")
	flag.BoolVar(&downloadAssets, "assets", false, "Mirror referenced assets and rewrite pages for offline use")
	flag.BoolVar(&thirdParty, "third-party", false, "Also fetch cross-origin assets (implies -assets)")
	flag.StringVar(&userAgent, "user-agent", "", "Override the User-Agent header")
	flag.StringVar(&urlFile, "i", "", "Path to file containing one URL per line")
	flag.StringVar(&configPath, "config", "", "Optional YAML config file")
	flag.StringVar(&logFormat, "log-format", "text", "Log format: text|json")
	flag.StringVar(&logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	flag.StringVar(&metricsAddr, "metrics", "", "Expose Prometheus metrics on address (e.g. :9090)")
	flag.StringVar(&metricsBackend, "metrics-backend", defaults.MetricsBackend, "Metrics backend: prom|otel|noop")
	flag.BoolVar(&enableMetrics, "enable-metrics", false, "Enable metrics provider (required to serve metrics)")
	flag.BoolVar(&enableTracing, "trace", false, "Attach trace identifiers to log records")
	flag.BoolVar(&showVersion, "version", false, "Show version info")
	flag.Parse()

	if showVersion {
		fmt.Printf("sitemirror %s\n", version)
		return
	}

	logger := buildLogger(logFormat, logLevel)
	slog.SetDefault(logger)

	urls, err := gatherURLs(flag.Args(), urlFile)
	if err != nil {
		log.Fatalf("collect urls: %v", err)
	}
	if len(urls) == 0 {
		fmt.Println("No URLs provided. Pass them as arguments, via -i FILE, or on stdin.")
		os.Exit(1)
	}

	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	cfg := defaults
	cfg.OutputRoot = outputRoot
	cfg.MaxConcurrency = parallel
	cfg.RequestTimeout = timeout
	cfg.DownloadAssets = downloadAssets || thirdParty
	cfg.IncludeThirdPartyAssets = thirdParty
	cfg.UserAgent = userAgent
	cfg.Logger = logger
	cfg.TracingEnabled = enableTracing
	if enableMetrics {
		cfg.MetricsEnabled = true
		cfg.MetricsBackend = metricsBackend
	}

	if configPath != "" {
		f, err := os.Open(configPath)
		if err != nil {
			log.Fatalf("open config: %v", err)
		}
		var fc fileConfig
		if err := yaml.NewDecoder(f).Decode(&fc); err != nil {
			log.Fatalf("decode config: %v", err)
		}
		_ = f.Close()
		if cfg, err = applyFileConfig(cfg, &fc, explicit); err != nil {
			log.Fatalf("apply config: %v", err)
		}
	}

	eng, err := engine.New(cfg)
	if err != nil {
		log.Fatalf("create engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		slog.Info("signal received; initiating graceful shutdown")
		cancel()
		<-sigCh
		slog.Error("second signal received; forcing exit")
		os.Exit(1)
	}()

	if metricsAddr != "" && cfg.MetricsEnabled {
		if handler := eng.MetricsHandler(); handler != nil {
			mux := http.NewServeMux()
			mux.Handle("/metrics", handler)
			go func() {
				slog.Info("metrics listening", slog.String("addr", metricsAddr), slog.String("backend", cfg.MetricsBackend))
				_ = http.ListenAndServe(metricsAddr, mux)
			}()
		}
	}

	results, err := eng.Run(ctx, urls)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Warn("run canceled")
			os.Exit(130)
		}
		log.Fatalf("run: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
		if err := enc.Encode(r); err != nil {
			log.Printf("encode result: %v", err)
		}
	}

	stats := eng.StatsSnapshot()
	slog.Info("done",
		slog.Int("requested", stats.Requested),
		slog.Int("succeeded", stats.Succeeded),
		slog.Int("failed", stats.Failed),
		slog.Int("assets", stats.AssetsFetched))
	if failed > 0 {
		os.Exit(1)
	}
}

func buildLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// gatherURLs merges positional arguments and an optional URL file, falling
// back to piped stdin when neither yields a URL. Blanks and duplicates are
// dropped while preserving order; '#' comment lines are dropped from the file
// and stdin.
func gatherURLs(args []string, urlFile string) ([]string, error) {
	urls := []string{}
	for _, a := range args {
		a = strings.TrimSpace(a)
		if a != "" {
			urls = append(urls, a)
		}
	}
	if urlFile != "" {
		f, err := os.Open(urlFile)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		lines, err := scanURLs(f)
		if err != nil {
			return nil, err
		}
		urls = append(urls, lines...)
	}
	if len(urls) == 0 {
		if fi, err := os.Stdin.Stat(); err == nil && fi.Mode()&os.ModeCharDevice == 0 {
			lines, err := scanURLs(os.Stdin)
			if err != nil {
				return nil, err
			}
			urls = append(urls, lines...)
		}
	}
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out, nil
}

func scanURLs(f *os.File) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			out = append(out, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
