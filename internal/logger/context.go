package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context for a proxied SMB2
// connection and, once dispatched, the cache action it is waiting on.
type LogContext struct {
	TraceID      string // OpenTelemetry trace ID
	SpanID       string // OpenTelemetry span ID
	ConnectionID string // Proxy connection identifier
	Peer         string // Client network address
	Share        string // SMB share name
	ActionID     string // Dispatched cache action identifier
	ActionType   string // Cache action kind (SYNC, LISTDIR, ...)
	StartTime    time.Time
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a freshly accepted connection.
func NewLogContext(connectionID, peer string) *LogContext {
	return &LogContext{
		ConnectionID: connectionID,
		Peer:         peer,
		StartTime:    time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithShare returns a copy with the share set
func (lc *LogContext) WithShare(share string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Share = share
	}
	return clone
}

// WithAction returns a copy with the dispatched action identity set
func (lc *LogContext) WithAction(actionID, actionType string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ActionID = actionID
		clone.ActionType = actionType
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
