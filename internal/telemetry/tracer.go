package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys for proxy spans, following OpenTelemetry semantic
// convention style (dot-separated, lower_snake leaves).
const (
	AttrConnectionID  = "proxy.connection_id"
	AttrPeer          = "proxy.peer"
	AttrShare         = "proxy.share"
	AttrPath          = "proxy.path"
	AttrActionID      = "proxy.action_id"
	AttrActionType    = "proxy.action_type"
	AttrCacheHit      = "proxy.cache_hit"
	AttrHTTPRequestID = "http.request_id"
	AttrHTTPMethod    = "http.method"
	AttrHTTPStatus    = "http.status_code"
	AttrHTTPAttempt   = "http.attempt"
	AttrChunkIndex    = "transfer.chunk_index"
	AttrChunkSHA      = "transfer.chunk_sha256"
	AttrBytes         = "transfer.bytes"
)

// Span names for the operations this proxy instruments.
const (
	SpanActionSync     = "action.SYNC"
	SpanActionListdir  = "action.LISTDIR"
	SpanActionSyncback = "action.SYNCBACK"
	SpanActionDelete   = "action.DELETE"
	SpanActionTouch    = "action.TOUCH"

	SpanHTTPRequest = "http.request"

	SpanTransferUpload        = "transfer.upload"
	SpanTransferDownload      = "transfer.download"
	SpanTransferChunkExists   = "transfer.chunk_exists"
	SpanMetadataLookup        = "metadata.lookup"
	SpanMetadataRefresh       = "metadata.refresh"
	SpanBackgroundDownloadJob = "transfer.background_download"
)

// ConnectionID returns an attribute for the proxy connection identifier.
func ConnectionID(id string) attribute.KeyValue {
	return attribute.String(AttrConnectionID, id)
}

// Peer returns an attribute for the client's network address.
func Peer(addr string) attribute.KeyValue {
	return attribute.String(AttrPeer, addr)
}

// Share returns an attribute for the SMB share name.
func Share(name string) attribute.KeyValue {
	return attribute.String(AttrShare, name)
}

// Path returns an attribute for a share-relative path.
func Path(path string) attribute.KeyValue {
	return attribute.String(AttrPath, path)
}

// ActionID returns an attribute for a dispatched cache action's identifier.
func ActionID(id string) attribute.KeyValue {
	return attribute.String(AttrActionID, id)
}

// ActionType returns an attribute for a cache action kind (SYNC, LISTDIR, ...).
func ActionType(kind string) attribute.KeyValue {
	return attribute.String(AttrActionType, kind)
}

// CacheHit returns an attribute for whether a metadata lookup hit a cache tier.
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// HTTPRequestID returns an attribute for the connector's correlation id.
func HTTPRequestID(id string) attribute.KeyValue {
	return attribute.String(AttrHTTPRequestID, id)
}

// HTTPMethod returns an attribute for the HTTP method of an outbound request.
func HTTPMethod(method string) attribute.KeyValue {
	return attribute.String(AttrHTTPMethod, method)
}

// HTTPStatus returns an attribute for an HTTP response status code.
func HTTPStatus(code int) attribute.KeyValue {
	return attribute.Int(AttrHTTPStatus, code)
}

// HTTPAttempt returns an attribute for the retry attempt number (0-based).
func HTTPAttempt(attempt int) attribute.KeyValue {
	return attribute.Int(AttrHTTPAttempt, attempt)
}

// ChunkIndex returns an attribute for a chunk's position within a manifest.
func ChunkIndex(idx int) attribute.KeyValue {
	return attribute.Int(AttrChunkIndex, idx)
}

// ChunkSHA returns an attribute for a chunk's content hash.
func ChunkSHA(sum [32]byte) attribute.KeyValue {
	return attribute.String(AttrChunkSHA, fmt.Sprintf("%x", sum))
}

// Bytes returns an attribute for a byte count moved by a transfer.
func Bytes(n int64) attribute.KeyValue {
	return attribute.Int64(AttrBytes, n)
}
