// Package ctxkeys defines context keys for passing data through the request pipeline.
// All context keys are unexported to prevent collisions. Use the With*/From accessor pairs.
package ctxkeys

import (
	"context"
	"time"
)

type accessEntryKey struct{}

// AccessEntry accumulates what the access log and metrics need about one
// request. The handler fills it in as the request moves through matching.
type AccessEntry struct {
	RequestID string
	Method    string
	Path      string
	// Route is the matched route's pattern, empty when nothing matched.
	Route     string
	RouteIdx  int // -1 when unmatched
	RuleIdx   int // -1 when unmatched
	RPCMethod string
	BodyKind  string // "raw" or "json"
	Status    int
	StartTime time.Time
}

// NewAccessEntry returns an entry for an incoming request with no match yet.
func NewAccessEntry(requestID, method, path string, start time.Time) *AccessEntry {
	return &AccessEntry{
		RequestID: requestID,
		Method:    method,
		Path:      path,
		RouteIdx:  -1,
		RuleIdx:   -1,
		StartTime: start,
	}
}

// Matched reports whether a route and rule were selected.
func (e *AccessEntry) Matched() bool {
	return e.RouteIdx >= 0 && e.RuleIdx >= 0
}

// WithAccessEntry stores an AccessEntry pointer in the context.
func WithAccessEntry(ctx context.Context, entry *AccessEntry) context.Context {
	return context.WithValue(ctx, accessEntryKey{}, entry)
}

// AccessEntryFrom retrieves the AccessEntry pointer from the context.
func AccessEntryFrom(ctx context.Context) (*AccessEntry, bool) {
	entry, ok := ctx.Value(accessEntryKey{}).(*AccessEntry)
	return entry, ok
}
