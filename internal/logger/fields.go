package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging. Use these consistently across
// all log statements so log aggregation and querying stay uniform.
const (
	// Distributed tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Connection & request identity
	KeyConnectionID = "connection_id"
	KeyPeer         = "peer"
	KeyShare        = "share"
	KeyPath         = "path"
	KeySessionID    = "session_id"
	KeyTreeID       = "tree_id"
	KeyFileID       = "file_id"
	KeyCommand      = "command"
	KeyMessageID    = "message_id"

	// Cache action dispatch
	KeyActionID   = "action_id"
	KeyActionType = "action_type"
	KeyStatus     = "status"

	// HTTP connector
	KeyHTTPRequestID = "http_request_id"
	KeyHTTPMethod    = "http_method"
	KeyHTTPStatus    = "http_status"
	KeyAttempt       = "attempt"
	KeyMaxRetries    = "max_retries"

	// Content-addressed transfer
	KeyChunkIndex = "chunk_index"
	KeyChunkSHA   = "chunk_sha256"
	KeyManifestID = "manifest_id"
	KeyQueueDepth = "queue_depth"

	// Metadata cache
	KeyCacheHit  = "cache_hit"
	KeyCacheTier = "cache_tier"
	KeyTTLSec    = "ttl_seconds"

	// File attributes
	KeySize = "size"
	KeyMode = "mode"

	// Generic
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeySource     = "source"
)

// TraceID returns a slog.Attr for the OpenTelemetry trace ID.
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for the OpenTelemetry span ID.
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// ConnectionID returns a slog.Attr for the proxy connection identifier.
func ConnectionID(id string) slog.Attr {
	return slog.String(KeyConnectionID, id)
}

// Peer returns a slog.Attr for the remote address of an SMB connection.
func Peer(addr string) slog.Attr {
	return slog.String(KeyPeer, addr)
}

// Share returns a slog.Attr for the SMB share name.
func Share(name string) slog.Attr {
	return slog.String(KeyShare, name)
}

// Path returns a slog.Attr for a share-relative path.
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// SessionID returns a slog.Attr for the SMB2 session identifier.
func SessionID(id uint64) slog.Attr {
	return slog.Uint64(KeySessionID, id)
}

// TreeID returns a slog.Attr for the SMB2 tree identifier.
func TreeID(id uint32) slog.Attr {
	return slog.Uint64(KeyTreeID, uint64(id))
}

// FileID returns a slog.Attr for a 16-byte SMB2 file id, hex-formatted.
func FileID(id [16]byte) slog.Attr {
	return slog.String(KeyFileID, fmt.Sprintf("%x", id))
}

// Command returns a slog.Attr for an SMB2 command name.
func Command(name string) slog.Attr {
	return slog.String(KeyCommand, name)
}

// MessageID returns a slog.Attr for the SMB2 message id.
func MessageID(id uint64) slog.Attr {
	return slog.Uint64(KeyMessageID, id)
}

// ActionID returns a slog.Attr for a dispatched cache action's identifier.
func ActionID(id string) slog.Attr {
	return slog.String(KeyActionID, id)
}

// ActionType returns a slog.Attr for a cache action kind.
func ActionType(kind string) slog.Attr {
	return slog.String(KeyActionType, kind)
}

// Status returns a slog.Attr for an action outcome (SUCCESS, FAILURE, ...).
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// HTTPRequestID returns a slog.Attr for the HTTP connector's correlation id.
func HTTPRequestID(id string) slog.Attr {
	return slog.String(KeyHTTPRequestID, id)
}

// HTTPMethod returns a slog.Attr for an outbound HTTP method.
func HTTPMethod(method string) slog.Attr {
	return slog.String(KeyHTTPMethod, method)
}

// HTTPStatus returns a slog.Attr for an HTTP response status code.
func HTTPStatus(code int) slog.Attr {
	return slog.Int(KeyHTTPStatus, code)
}

// Attempt returns a slog.Attr for a retry attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for the maximum retry count.
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}

// ChunkIndex returns a slog.Attr for a chunk's position in a manifest.
func ChunkIndex(idx int) slog.Attr {
	return slog.Int(KeyChunkIndex, idx)
}

// ChunkSHA returns a slog.Attr for a chunk's content hash.
func ChunkSHA(sum [32]byte) slog.Attr {
	return slog.String(KeyChunkSHA, fmt.Sprintf("%x", sum))
}

// ManifestID returns a slog.Attr for a file's manifest fingerprint key.
func ManifestID(id string) slog.Attr {
	return slog.String(KeyManifestID, id)
}

// QueueDepth returns a slog.Attr for a background queue's pending length.
func QueueDepth(n int) slog.Attr {
	return slog.Int(KeyQueueDepth, n)
}

// CacheHit returns a slog.Attr for whether a metadata lookup hit a cache tier.
func CacheHit(hit bool) slog.Attr {
	return slog.Bool(KeyCacheHit, hit)
}

// CacheTier returns a slog.Attr identifying which cache tier served a lookup.
func CacheTier(tier string) slog.Attr {
	return slog.String(KeyCacheTier, tier)
}

// TTLSeconds returns a slog.Attr for a cache entry's remaining freshness window.
func TTLSeconds(ttl float64) slog.Attr {
	return slog.Float64(KeyTTLSec, ttl)
}

// Size returns a slog.Attr for a file size in bytes.
func Size(s uint64) slog.Attr {
	return slog.Uint64(KeySize, s)
}

// Mode returns a slog.Attr for a file mode/permission bitmask.
func Mode(m uint32) slog.Attr {
	return slog.Any(KeyMode, m)
}

// DurationMs returns a slog.Attr for an operation duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error value.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Source returns a slog.Attr identifying which backing store served a value.
func Source(src string) slog.Attr {
	return slog.String(KeySource, src)
}
