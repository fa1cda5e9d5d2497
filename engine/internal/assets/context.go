package assets

import (
	"context"
	"sync"

	"sitemirror/engine/models"
)

// RunContext deduplicates asset fetches for the lifetime of one mirroring
// run. For any URL the fetch factory runs at most once across all workers;
// later callers get the settled outcome of the first. The table is never
// shared between runs.
type RunContext struct {
	mu      sync.Mutex
	entries map[string]*fetchEntry
}

type fetchEntry struct {
	done  chan struct{}
	asset *models.DownloadedAsset // nil after done => failed or skipped
}

// NewRunContext creates an empty dedup table.
func NewRunContext() *RunContext {
	return &RunContext{entries: make(map[string]*fetchEntry)}
}

// GetOrFetch returns the outcome for rawURL, running factory only if this
// caller is the first to ask. Concurrent callers for the same URL block until
// the factory settles, or until ctx is canceled (then nil). first reports
// whether factory ran in this call.
func (c *RunContext) GetOrFetch(ctx context.Context, rawURL string, factory func() *models.DownloadedAsset) (asset *models.DownloadedAsset, first bool) {
	c.mu.Lock()
	if e, ok := c.entries[rawURL]; ok {
		c.mu.Unlock()
		select {
		case <-e.done:
			return e.asset, false
		case <-ctx.Done():
			return nil, false
		}
	}
	e := &fetchEntry{done: make(chan struct{})}
	c.entries[rawURL] = e
	c.mu.Unlock()

	e.asset = factory()
	close(e.done)
	return e.asset, true
}

// Lookup returns the completed outcome for rawURL. It reports nil for URLs
// never requested, still pending, failed, or skipped.
func (c *RunContext) Lookup(rawURL string) *models.DownloadedAsset {
	c.mu.Lock()
	e, ok := c.entries[rawURL]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-e.done:
		return e.asset
	default:
		return nil
	}
}
