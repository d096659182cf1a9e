package fscache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seekscale/smbcacheproxy/internal/logger"
	"github.com/seekscale/smbcacheproxy/internal/telemetry"
	"github.com/seekscale/smbcacheproxy/pkg/kv"
)

// Kind is one of the five cache actions of §4.E.
type Kind string

const (
	KindSync     Kind = "SYNC"
	KindListdir  Kind = "LISTDIR"
	KindSyncback Kind = "SYNCBACK"
	KindDelete   Kind = "DELETE"
	KindTouch    Kind = "TOUCH"
)

// Status is the terminal outcome of an action, for the audit row.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// ActionRecord is the audit row of §4.E ("write an audit row (share, path,
// peer, action_type, start, duration_ms, status)").
type ActionRecord struct {
	Share      string
	Path       string
	Peer       string
	ActionType Kind
	Start      time.Time
	Duration   time.Duration
	Status     Status
}

// AuditRecorder records terminal actions. Implemented by pkg/audit.
// Audit failures are logged but never propagate (§4.E).
type AuditRecorder interface {
	RecordAction(ctx context.Context, rec ActionRecord)
}

func actionSpanName(kind Kind) string {
	switch kind {
	case KindSync:
		return telemetry.SpanActionSync
	case KindListdir:
		return telemetry.SpanActionListdir
	case KindSyncback:
		return telemetry.SpanActionSyncback
	case KindDelete:
		return telemetry.SpanActionDelete
	case KindTouch:
		return telemetry.SpanActionTouch
	default:
		return "action." + string(kind)
	}
}

// suppressKey is a context key a SYNC action uses to signal, once it has
// discovered the target is a directory, that its audit row should be
// suppressed (§4.G: "Rows for LISTDIR and for SYNC-where-target-is-a-
// directory are suppressed").
type suppressKey struct{}

func withSuppressFlag(ctx context.Context) (context.Context, *bool) {
	flag := new(bool)
	return context.WithValue(ctx, suppressKey{}, flag), flag
}

// suppressAudit marks the current action's audit row as suppressed. Called
// by sync.go once it determines the SYNC target is a directory.
func suppressAudit(ctx context.Context) {
	if flag, ok := ctx.Value(suppressKey{}).(*bool); ok {
		*flag = true
	}
}

// do is the common action wrapper of §4.E: allocate an action id, record
// start time, invoke fn, and on completion write an audit row. Audit
// failures never propagate; fn's error does.
func (c *Client) do(ctx context.Context, kind Kind, share, path, peer string, fn func(ctx context.Context) error) error {
	actionID := uuid.NewString()
	start := time.Now()

	c.trackActive(ActiveAction{ID: actionID, Kind: kind, Share: share, Path: path, Peer: peer, Started: start})
	defer c.untrackActive(actionID)

	lc := logger.FromContext(ctx)
	if lc != nil {
		lc = lc.WithAction(actionID, string(kind)).WithShare(share)
		ctx = logger.WithContext(ctx, lc)
	}

	ctx, span := telemetry.StartSpan(ctx, actionSpanName(kind))
	defer span.End()
	telemetry.SetAttributes(ctx,
		telemetry.ActionID(actionID), telemetry.ActionType(string(kind)),
		telemetry.Share(share), telemetry.Path(path),
	)

	c.writeLastAccessTime(ctx, share, path)

	ctx, suppressed := withSuppressFlag(ctx)
	err := fn(ctx)

	duration := time.Since(start)
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
		telemetry.RecordError(ctx, err)
	}

	logger.DebugCtx(ctx, "fscache action complete",
		logger.ActionID(actionID), logger.ActionType(string(kind)),
		logger.Status(string(status)), logger.DurationMs(float64(duration.Milliseconds())))

	if c.auditor != nil && kind != KindListdir && !*suppressed {
		c.auditor.RecordAction(ctx, ActionRecord{
			Share: share, Path: path, Peer: peer, ActionType: kind,
			Start: start, Duration: duration, Status: status,
		})
	}

	return err
}

func (c *Client) writeLastAccessTime(ctx context.Context, share, path string) {
	key := fmt.Sprintf("smbproxy:last_access_time:%s:%s", share, path)
	value := []byte(time.Now().UTC().Format(time.RFC3339))
	if err := c.kv.SetEX(ctx, key, value, 0); err != nil {
		logger.Warn("fscache: write last-access-time", logger.Share(share), logger.Path(path), logger.Err(err))
	}
}
