package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestFetchSetsUserAgentAndStreams(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(Policy{}, 2)
	u, _ := url.Parse(srv.URL + "/thing")
	resp, err := f.Fetch(context.Background(), u)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if gotUA != DefaultUserAgent {
		t.Fatalf("user agent = %q, want %q", gotUA, DefaultUserAgent)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "payload" {
		t.Fatalf("body = %q", body)
	}

	stats := f.Stats()
	if stats.RequestsStarted != 1 || stats.RequestsFailed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestFetchDoesNotInspectStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(Policy{UserAgent: "custom/9"}, 1)
	u, _ := url.Parse(srv.URL)
	resp, err := f.Fetch(context.Background(), u)
	if err != nil {
		t.Fatalf("a non-2xx response is not a fetch error: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestFetchHonorsContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(Policy{}, 1)
	u, _ := url.Parse(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, u)
	if err == nil {
		t.Fatal("expected deadline error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if f.Stats().RequestsFailed != 1 {
		t.Fatalf("failed counter not incremented: %+v", f.Stats())
	}
}
