package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"
)

// DefaultUserAgent identifies the tool on outgoing requests.
const DefaultUserAgent = "sitemirror/1.0"

// Fetcher abstracts the act of retrieving a single URL. The response is
// returned with headers parsed and the body unread; callers own closing the
// body. Implementations do not inspect status codes; they fail only on
// transport errors or cancellation.
type Fetcher interface {
	Fetch(ctx context.Context, u *url.URL) (*http.Response, error)
}

// Policy defines configuration for fetch behavior.
type Policy struct {
	UserAgent string
}

// Stats provides counters about fetch operations.
type Stats struct {
	RequestsStarted int64
	RequestsFailed  int64
}

// HTTPFetcher implements Fetcher on net/http with a pooled transport sized
// to the engine's worker count. Per-request deadlines come in through ctx.
type HTTPFetcher struct {
	client *http.Client
	policy Policy
	stats  fetcherStats
}

type fetcherStats struct {
	requestsStarted int64
	requestsFailed  int64
}

// NewHTTPFetcher creates a fetcher whose connection pool accommodates
// maxConns concurrent requests per host.
func NewHTTPFetcher(policy Policy, maxConns int) *HTTPFetcher {
	if policy.UserAgent == "" {
		policy.UserAgent = DefaultUserAgent
	}
	if maxConns <= 0 {
		maxConns = 1
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        maxConns * 2,
		MaxIdleConnsPerHost: maxConns,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{Transport: transport},
		policy: policy,
	}
}

// Fetch issues a GET for u. The returned response is streaming: headers are
// parsed, the body is not read.
func (f *HTTPFetcher) Fetch(ctx context.Context, u *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", u, err)
	}
	req.Header.Set("User-Agent", f.policy.UserAgent)

	atomic.AddInt64(&f.stats.requestsStarted, 1)
	resp, err := f.client.Do(req)
	if err != nil {
		atomic.AddInt64(&f.stats.requestsFailed, 1)
		return nil, err
	}
	return resp, nil
}

// Stats returns current fetch counters.
func (f *HTTPFetcher) Stats() Stats {
	return Stats{
		RequestsStarted: atomic.LoadInt64(&f.stats.requestsStarted),
		RequestsFailed:  atomic.LoadInt64(&f.stats.requestsFailed),
	}
}
