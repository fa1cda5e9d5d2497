package assets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"sitemirror/engine/internal/fetch"
	"sitemirror/engine/internal/pool"
	"sitemirror/engine/internal/storage"
	"sitemirror/engine/models"
	"sitemirror/engine/telemetry/logging"
)

// skippedSchemes lists reference prefixes that never leave the document.
var skippedSchemes = []string{"data:", "mailto:", "javascript:", "about:", "blob:"}

// Mirrorer saves an HTML page together with its referenced assets and
// rewrites the saved copies so the page renders offline from the local tree.
type Mirrorer struct {
	Fetcher           fetch.Fetcher
	OutputRoot        string
	Concurrency       int
	IncludeThirdParty bool
	Logger            logging.Logger

	// OnAssetFetched, when set, is invoked once per successfully persisted
	// asset (instrumentation hook).
	OnAssetFetched func(*models.DownloadedAsset)
}

// MirrorPage persists the page at resp to disk, fans out over its asset
// references, and rewrites both the HTML and any fetched stylesheets so all
// satisfied references are relative paths. The page path is always derived
// with a text/html content type: the server's declared type is ignored for
// the page itself. Returns the HTML path written.
func (m *Mirrorer) MirrorPage(ctx context.Context, pageURL *url.URL, resp *http.Response, rc *RunContext) (string, error) {
	htmlPath := storage.OutputPath(m.OutputRoot, pageURL, "text/html")
	if err := os.MkdirAll(filepath.Dir(htmlPath), 0o755); err != nil {
		return "", fmt.Errorf("%w: %s: %v", models.ErrOutputDirCreation, filepath.Dir(htmlPath), err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read page body: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrHTMLParsingFailed, err)
	}

	refs := Extract(doc)
	if len(refs) == 0 {
		if err := os.WriteFile(htmlPath, body, 0o644); err != nil {
			return "", fmt.Errorf("%w: %s: %v", models.ErrFileWriteFailed, htmlPath, err)
		}
		return htmlPath, nil
	}

	// Resolve each raw candidate once; fan out over the deduplicated URL set.
	resolved := make(map[string]*url.URL)
	var targets []string
	seen := make(map[string]struct{})
	for _, ref := range refs {
		for _, raw := range ref.CandidateURLs() {
			if _, ok := resolved[raw]; ok {
				continue
			}
			abs := m.resolve(pageURL, pageURL, raw)
			if abs == nil {
				continue
			}
			resolved[raw] = abs
			key := abs.String()
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				targets = append(targets, key)
			}
		}
	}

	if len(targets) > 0 {
		if err := pool.Run(ctx, targets, m.Concurrency, func(ctx context.Context, target string) {
			m.fetchAsset(ctx, pageURL, target, rc)
		}); err != nil {
			return "", err
		}
	}

	htmlDir := filepath.Dir(htmlPath)
	for _, ref := range refs {
		if rel, ok := m.localReplacement(htmlDir, ref, resolved, rc); ok {
			ref.ApplyReplacement(rel)
		}
	}

	var out bytes.Buffer
	if err := html.Render(&out, doc.Nodes[0]); err != nil {
		return "", fmt.Errorf("serialize document: %w", err)
	}
	if err := os.WriteFile(htmlPath, out.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("%w: %s: %v", models.ErrFileWriteFailed, htmlPath, err)
	}
	return htmlPath, nil
}

// resolve applies the reference rules: trim, drop skipped schemes, expand
// protocol-relative against the base scheme, resolve relative references, and
// keep only http(s) URLs that pass the origin filter. Fragments are ignored.
// origin is the page URL even when base is a stylesheet URL.
func (m *Mirrorer) resolve(base, origin *url.URL, raw string) *url.URL {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	lower := strings.ToLower(trimmed)
	for _, scheme := range skippedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return nil
		}
	}
	if strings.HasPrefix(trimmed, "//") {
		trimmed = base.Scheme + ":" + trimmed
	}
	abs, err := base.Parse(trimmed)
	if err != nil {
		return nil
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return nil
	}
	if !m.IncludeThirdParty && !sameOrigin(origin, abs) {
		return nil
	}
	abs.Fragment = ""
	return abs
}

func sameOrigin(a, b *url.URL) bool {
	return a.Scheme == b.Scheme &&
		a.Hostname() == b.Hostname() &&
		effectivePort(a) == effectivePort(b)
}

func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	if u.Scheme == "https" {
		return "443"
	}
	return "80"
}

// fetchAsset runs the dedup-aware fetch for target. When this call is the
// one that actually fetched a stylesheet, its url(...) dependencies are
// resolved one level deep.
func (m *Mirrorer) fetchAsset(ctx context.Context, pageURL *url.URL, target string, rc *RunContext) {
	asset, first := rc.GetOrFetch(ctx, target, func() *models.DownloadedAsset {
		return m.downloadAsset(ctx, target)
	})
	if asset == nil || !first {
		return
	}
	if isStylesheet(asset) {
		m.resolveStylesheet(ctx, pageURL, asset, rc)
	}
}

// downloadAsset fetches and persists one asset. Failures are reported as nil:
// an asset that cannot be fetched never fails the parent page.
func (m *Mirrorer) downloadAsset(ctx context.Context, target string) *models.DownloadedAsset {
	u, err := url.Parse(target)
	if err != nil {
		return nil
	}
	resp, err := m.Fetcher.Fetch(ctx, u)
	if err != nil {
		m.Logger.DebugCtx(ctx, "asset fetch failed", slog.String("url", target), slog.String("error", err.Error()))
		return nil
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		m.Logger.DebugCtx(ctx, "asset fetch rejected", slog.String("url", target), slog.Int("status", resp.StatusCode))
		return nil
	}
	path, err := storage.Save(u, resp, m.OutputRoot)
	if err != nil {
		m.Logger.DebugCtx(ctx, "asset save failed", slog.String("url", target), slog.String("error", err.Error()))
		return nil
	}
	asset := &models.DownloadedAsset{URL: target, Path: path, ContentType: resp.Header.Get("Content-Type")}
	if m.OnAssetFetched != nil {
		m.OnAssetFetched(asset)
	}
	return asset
}

func isStylesheet(a *models.DownloadedAsset) bool {
	ct := strings.ToLower(strings.TrimSpace(a.ContentType))
	return strings.HasPrefix(ct, "text/css") || strings.HasSuffix(a.Path, ".css")
}

// resolveStylesheet fetches the url(...) dependencies of a saved stylesheet
// and rewrites the file so satisfied references become relative paths.
// Dependencies of dependencies are not followed.
func (m *Mirrorer) resolveStylesheet(ctx context.Context, pageURL *url.URL, css *models.DownloadedAsset, rc *RunContext) {
	cssURL, err := url.Parse(css.URL)
	if err != nil {
		return
	}
	text, err := os.ReadFile(css.Path)
	if err != nil {
		m.Logger.DebugCtx(ctx, "stylesheet read failed", slog.String("path", css.Path), slog.String("error", err.Error()))
		return
	}

	resolved := make(map[string]*url.URL)
	var targets []string
	seen := make(map[string]struct{})
	for _, inner := range References(string(text)) {
		if _, ok := resolved[inner]; ok {
			continue
		}
		abs := m.resolve(cssURL, pageURL, inner)
		if abs == nil {
			continue
		}
		resolved[inner] = abs
		key := abs.String()
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			targets = append(targets, key)
		}
	}
	if len(targets) == 0 {
		return
	}

	if err := pool.Run(ctx, targets, m.Concurrency, func(ctx context.Context, target string) {
		_, _ = rc.GetOrFetch(ctx, target, func() *models.DownloadedAsset {
			return m.downloadAsset(ctx, target)
		})
	}); err != nil {
		return
	}

	cssDir := filepath.Dir(css.Path)
	rewritten := RewriteCSS(string(text), func(inner string) (string, bool) {
		abs, ok := resolved[inner]
		if !ok {
			return "", false
		}
		dep := rc.Lookup(abs.String())
		if dep == nil {
			return "", false
		}
		rel, err := filepath.Rel(cssDir, dep.Path)
		if err != nil {
			return "", false
		}
		return filepath.ToSlash(rel), true
	})
	if err := os.WriteFile(css.Path, []byte(rewritten), 0o644); err != nil {
		m.Logger.DebugCtx(ctx, "stylesheet rewrite failed", slog.String("path", css.Path), slog.String("error", err.Error()))
	}
}

// localReplacement computes the relative path used to rewrite ref, based on
// the first candidate whose resolved URL was successfully fetched.
func (m *Mirrorer) localReplacement(htmlDir string, ref *Ref, resolved map[string]*url.URL, rc *RunContext) (string, bool) {
	for _, raw := range ref.CandidateURLs() {
		abs, ok := resolved[raw]
		if !ok {
			continue
		}
		asset := rc.Lookup(abs.String())
		if asset == nil {
			continue
		}
		rel, err := filepath.Rel(htmlDir, asset.Path)
		if err != nil {
			continue
		}
		return filepath.ToSlash(rel), true
	}
	return "", false
}
