package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestOutputPathLayout(t *testing.T) {
	root := filepath.FromSlash("/out")
	cases := []struct {
		name        string
		rawURL      string
		contentType string
		want        string
	}{
		{"bare host", "http://example.com", "text/html", "/out/example.com/index.html"},
		{"root path", "http://example.com/", "text/html", "/out/example.com/index.html"},
		{"directory style", "https://h/a/b/", "text/html", "/out/h/a/b/index.html"},
		{"extensionless last segment", "http://h/docs/guide", "text/html", "/out/h/docs/guide/index.html"},
		{"path extension kept verbatim", "http://h/a/logo.PNG", "image/png", "/out/h/a/logo.PNG"},
		{"double extension", "http://h/pkg/archive.tar.gz", "", "/out/h/pkg/archive.tar.gz"},
		{"port stripped from host", "http://example.com:8080/x/", "text/html", "/out/example.com/x/index.html"},
		{"json content type", "http://h/api/items", "application/json", "/out/h/api/items/index.json"},
		{"xml content type", "http://h/feed", "text/xml", "/out/h/feed/index.xml"},
		{"plain content type", "http://h/hello", "text/plain", "/out/h/hello/index.txt"},
		{"unknown content type", "http://h/blob", "application/octet-stream", "/out/h/blob/index.bin"},
		{"missing content type", "http://h/page", "", "/out/h/page/index.html"},
		{"charset stripped", "http://h/page", "text/html; charset=utf-8", "/out/h/page/index.html"},
		{"bare dot extension", "http://h/weird.", "", "/out/h/weird.html"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := OutputPath(root, mustParse(t, tc.rawURL), tc.contentType)
			if got != filepath.FromSlash(tc.want) {
				t.Fatalf("OutputPath(%q, %q) = %q, want %q", tc.rawURL, tc.contentType, got, tc.want)
			}
		})
	}
}

func TestOutputPathDeterminism(t *testing.T) {
	u := mustParse(t, "https://example.com/a/b/page?x=1&y=2")
	first := OutputPath("/out", u, "text/html")
	for i := 0; i < 10; i++ {
		if got := OutputPath("/out", u, "text/html"); got != first {
			t.Fatalf("determinism violated: %q != %q", got, first)
		}
	}
}

func TestOutputPathQueryDisambiguation(t *testing.T) {
	base := mustParse(t, "http://h/page")
	withQuery := mustParse(t, "http://h/page?a=1")
	otherQuery := mustParse(t, "http://h/page?a=2")

	p0 := OutputPath("/out", base, "text/html")
	p1 := OutputPath("/out", withQuery, "text/html")
	p2 := OutputPath("/out", otherQuery, "text/html")

	if p0 == p1 || p1 == p2 {
		t.Fatalf("query variants must not collide: %q %q %q", p0, p1, p2)
	}

	sum := sha256.Sum256([]byte("a=1"))
	suffix := "__" + hex.EncodeToString(sum[:8])
	if !strings.Contains(p1, suffix) {
		t.Fatalf("expected query hash suffix %q in %q", suffix, p1)
	}
	if len(suffix) != len("__")+16 {
		t.Fatalf("hash suffix must be 16 hex chars, got %q", suffix)
	}
	if got := OutputPath("/out", mustParse(t, "http://h/page?a=1"), "text/html"); got != p1 {
		t.Fatalf("identical queries must hash identically: %q != %q", got, p1)
	}
}

func TestOutputPathHostFallback(t *testing.T) {
	u := &url.URL{Scheme: "http", Path: "/x"}
	got := OutputPath("/out", u, "text/plain")
	if !strings.Contains(got, fallbackHost) {
		t.Fatalf("expected %q in %q", fallbackHost, got)
	}
}

func TestSanitizeSegment(t *testing.T) {
	cases := map[string]string{
		"plain":       "plain",
		"a:b":         "a_b",
		`q?x="1"`:     "q_x=_1_",
		"  ":          "_",
		"":            "_",
		"CaseKept.JS": "CaseKept.JS",
	}
	for in, want := range cases {
		if got := sanitizeSegment(in); got != want {
			t.Fatalf("sanitizeSegment(%q) = %q, want %q", in, got, want)
		}
	}
}
