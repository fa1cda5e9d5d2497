package models

import "errors"

// DownloadResult records the outcome of one requested URL. Exactly one result
// is emitted per input; per-URL failures are values here, never raised errors.
type DownloadResult struct {
	URL     string `json:"url"`
	Success bool   `json:"success"`
	Status  int    `json:"status,omitempty"`
	Path    string `json:"path,omitempty"`
	Error   string `json:"error,omitempty"`
}

// DownloadedAsset describes a subresource that was fetched and persisted
// during a mirroring run. A nil *DownloadedAsset stands for a fetch that
// failed or was skipped.
type DownloadedAsset struct {
	URL         string
	Path        string
	ContentType string
}

// RunStats aggregates counters across every run of one engine.
type RunStats struct {
	Requested     int `json:"requested"`
	Succeeded     int `json:"succeeded"`
	Failed        int `json:"failed"`
	AssetsFetched int `json:"assets_fetched"`
}

// Domain-specific errors.
var (
	ErrInvalidConcurrency = errors.New("max concurrency must be greater than zero")
	ErrInvalidTimeout     = errors.New("request timeout must be greater than zero")
	ErrOutputDirCreation  = errors.New("failed to create output directory")
	ErrHTMLParsingFailed  = errors.New("failed to parse HTML content")
	ErrFileWriteFailed    = errors.New("failed to write output file")
)
