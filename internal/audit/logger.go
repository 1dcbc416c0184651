// Package audit emits the per-request access log and Prometheus metrics.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vivars7/rpcmock/internal/ctxkeys"
)

// Logger writes one access line per served request.
type Logger struct {
	slogger *slog.Logger
	now     func() time.Time
}

// NewLogger creates an access logger writing to slogger.
func NewLogger(slogger *slog.Logger) *Logger {
	return &Logger{slogger: slogger, now: time.Now}
}

// LogRequest logs the AccessEntry stored in ctx as "METHOD PATH -> STATUS".
// It is a no-op when ctx carries no entry.
func (l *Logger) LogRequest(ctx context.Context) {
	entry, ok := ctxkeys.AccessEntryFrom(ctx)
	if !ok {
		return
	}

	attrs := []slog.Attr{
		slog.String("request_id", entry.RequestID),
	}
	if entry.Matched() {
		attrs = append(attrs,
			slog.String("route", entry.Route),
			slog.Int("rule", entry.RuleIdx),
		)
	}
	if entry.RPCMethod != "" {
		attrs = append(attrs, slog.String("jrpc", entry.RPCMethod))
	}
	if entry.BodyKind != "" {
		attrs = append(attrs, slog.String("body_kind", entry.BodyKind))
	}
	if !entry.StartTime.IsZero() {
		attrs = append(attrs, slog.Int64("duration_ms", l.now().Sub(entry.StartTime).Milliseconds()))
	}

	msg := fmt.Sprintf("%s %s -> %d", entry.Method, entry.Path, entry.Status)
	l.slogger.LogAttrs(ctx, slog.LevelInfo, msg, attrs...)
}

// TruncateBody truncates body content for logging if it exceeds maxSize.
func TruncateBody(body []byte, maxSize int) string {
	if len(body) <= maxSize {
		return string(body)
	}
	return string(body[:maxSize]) + "...(truncated)"
}
