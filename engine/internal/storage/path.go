package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path/filepath"
	"strings"
)

const fallbackHost = "unknown-host"

// reservedChars is the union of characters the supported host file systems
// refuse inside file names. Using one class on every platform keeps mirror
// trees identical regardless of where they were produced.
const reservedChars = `<>:"/\|?*`

// OutputPath maps a URL to the file path its body is stored at under root.
// The mapping is total and deterministic: every input yields a path, and
// identical inputs yield byte-identical paths.
//
// Layout: root/<host>/<path dirs...>/<name><ext>, where host is the URL's
// hostname without port, a directory-style URL path gets an "index" name, the
// extension comes from the URL path or (when absent) from contentType, and a
// non-empty query string appends a short hash suffix to the name so variants
// do not collide.
func OutputPath(root string, u *url.URL, contentType string) string {
	host := u.Hostname()
	if strings.TrimSpace(host) == "" {
		host = fallbackHost
	}

	segs := splitPath(u.Path)
	trailing := strings.HasSuffix(u.Path, "/")

	dir := segs
	base := "index"
	ext := ""
	if len(segs) > 0 && !trailing {
		last := segs[len(segs)-1]
		if i := strings.LastIndex(last, "."); i >= 0 {
			dir = segs[:len(segs)-1]
			base = last[:i]
			ext = last[i:]
			if ext == "." {
				ext = ".html"
			}
		}
	}
	if ext == "" {
		ext = extensionFor(contentType)
	}

	base = sanitizeSegment(base)
	if u.RawQuery != "" {
		sum := sha256.Sum256([]byte(u.RawQuery))
		base += "__" + hex.EncodeToString(sum[:8])
	}

	parts := make([]string, 0, len(dir)+3)
	parts = append(parts, root, sanitizeSegment(host))
	for _, seg := range dir {
		parts = append(parts, sanitizeSegment(seg))
	}
	parts = append(parts, base+ext)
	return filepath.Join(parts...)
}

func splitPath(p string) []string {
	var segs []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// sanitizeSegment replaces reserved and control characters with underscores.
// A segment that sanitizes to nothing usable becomes a single underscore.
func sanitizeSegment(seg string) string {
	var b strings.Builder
	b.Grow(len(seg))
	for _, r := range seg {
		if r < 0x20 || strings.ContainsRune(reservedChars, r) {
			b.WriteRune('_')
		} else {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if strings.TrimSpace(out) == "" {
		return "_"
	}
	return out
}

// extensionFor maps a Content-Type header value to a file extension. The
// media type is taken up to the first ';' so charset parameters never leak
// into the mapping. An absent content type defaults to HTML.
func extensionFor(contentType string) string {
	if contentType == "" {
		return ".html"
	}
	mediaType := contentType
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = mediaType[:i]
	}
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "text/html":
		return ".html"
	case "application/json":
		return ".json"
	case "application/xml", "text/xml":
		return ".xml"
	case "text/plain":
		return ".txt"
	default:
		return ".bin"
	}
}
