package httpmock

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// RouteSpec describes one canned response. Longer patterns win; matching is
// substring by default, prefix when MatchPrefix is set.
type RouteSpec struct {
	Pattern     string
	Status      int
	Body        string
	Headers     map[string]string
	Delay       time.Duration
	MatchPrefix bool
}

// Server wraps httptest.Server with route-spec dispatch and per-path hit
// counting, so tests can assert fetch dedup without wiring handlers by hand.
type Server struct {
	server  *httptest.Server
	ordered []*RouteSpec

	mu   sync.Mutex
	hits map[string]int

	total int64
}

// NewServer starts a server answering the given routes. Unmatched paths get
// a 404.
func NewServer(routes []RouteSpec) *Server {
	s := &Server{hits: make(map[string]int)}
	s.ordered = make([]*RouteSpec, 0, len(routes))
	for i := range routes {
		r := routes[i]
		if r.Status == 0 {
			r.Status = http.StatusOK
		}
		s.ordered = append(s.ordered, &r)
	}
	sort.SliceStable(s.ordered, func(i, j int) bool {
		return len(s.ordered[i].Pattern) > len(s.ordered[j].Pattern)
	})
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *Server) URL() string { return s.server.URL }
func (s *Server) Close()      { s.server.Close() }

// Hits returns how many requests arrived for path.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// TotalRequests returns the number of requests served overall.
func (s *Server) TotalRequests() int64 { return atomic.LoadInt64(&s.total) }

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&s.total, 1)
	s.mu.Lock()
	s.hits[r.URL.Path]++
	s.mu.Unlock()

	for _, spec := range s.ordered {
		if spec.MatchPrefix {
			if !strings.HasPrefix(r.URL.Path, spec.Pattern) {
				continue
			}
		} else if !strings.Contains(r.URL.Path, spec.Pattern) {
			continue
		}
		if spec.Delay > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(spec.Delay):
			}
		}
		for k, v := range spec.Headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(spec.Status)
		_, _ = w.Write([]byte(spec.Body))
		return
	}
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("not found"))
}
