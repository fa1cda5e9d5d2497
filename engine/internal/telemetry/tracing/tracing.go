package tracing

import (
	"context"
	randcrypto "crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// Span is a minimal unit of traced work. Spans exist for log correlation;
// they are not exported anywhere.
type Span interface {
	End()
	SetAttribute(key string, value any)
	Context() SpanContext
}

// SpanContext carries the identifiers attached to log records.
type SpanContext struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	Start, End   time.Time
}

// Tracer creates spans. A disabled tracer hands out no-op spans with empty
// identifiers, which the logging wrapper treats as "no correlation".
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	Noop() bool
}

// NewTracer returns an id-generating tracer, or a no-op one when disabled.
func NewTracer(enabled bool) Tracer {
	if !enabled {
		return noopTracer{}
	}
	return simpleTracer{}
}

type noopTracer struct{}
type noopSpan struct{}

func (noopTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, noopSpan{}
}
func (noopTracer) Noop() bool                    { return true }
func (noopSpan) End()                            {}
func (noopSpan) SetAttribute(key string, v any)  {}
func (noopSpan) Context() SpanContext            { return SpanContext{} }

type simpleTracer struct{}

type simpleSpan struct {
	mu    sync.Mutex
	ctx   SpanContext
	attrs map[string]any
	ended bool
}

func (simpleTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	parent := spanFromContext(ctx)
	traceID := parent.ctx.TraceID
	if traceID == "" {
		traceID = newID(16)
	}
	sp := &simpleSpan{
		ctx:   SpanContext{TraceID: traceID, SpanID: newID(8), ParentSpanID: parent.ctx.SpanID, Start: time.Now()},
		attrs: make(map[string]any),
	}
	return context.WithValue(ctx, spanKey{}, sp), sp
}

func (simpleTracer) Noop() bool { return false }

func (s *simpleSpan) End() {
	s.mu.Lock()
	if !s.ended {
		s.ctx.End = time.Now()
		s.ended = true
	}
	s.mu.Unlock()
}

func (s *simpleSpan) SetAttribute(key string, value any) {
	s.mu.Lock()
	s.attrs[key] = value
	s.mu.Unlock()
}

func (s *simpleSpan) Context() SpanContext { return s.ctx }

type spanKey struct{}

func spanFromContext(ctx context.Context) *simpleSpan {
	if ctx == nil {
		return &simpleSpan{}
	}
	if sp, ok := ctx.Value(spanKey{}).(*simpleSpan); ok {
		return sp
	}
	return &simpleSpan{}
}

// ExtractIDs returns the trace and span identifiers bound to ctx, empty when
// no span is active.
func ExtractIDs(ctx context.Context) (traceID, spanID string) {
	sp := spanFromContext(ctx)
	return sp.ctx.TraceID, sp.ctx.SpanID
}

func newID(n int) string {
	b := make([]byte, n)
	_, _ = randcrypto.Read(b)
	return hex.EncodeToString(b)
}
