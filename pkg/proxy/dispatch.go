package proxy

import (
	"context"

	"github.com/seekscale/smbcacheproxy/internal/logger"
	"github.com/seekscale/smbcacheproxy/internal/protocol/smb2"
	"github.com/seekscale/smbcacheproxy/internal/telemetry"
	"github.com/seekscale/smbcacheproxy/pkg/fscache"
	"github.com/seekscale/smbcacheproxy/pkg/wire"
)

// CacheActions is the subset of fscache.Client the proxy dispatches
// against. Defined here, at the consumer, so tests can substitute a fake
// without importing the real cache client.
type CacheActions interface {
	Sync(ctx context.Context, share fscache.Share, path, peer string) error
	Listdir(ctx context.Context, share fscache.Share, path, peer string) error
	Syncback(ctx context.Context, share fscache.Share, path, peer string) error
	Delete(ctx context.Context, share fscache.Share, path, peer string) error
	Touch(ctx context.Context, share fscache.Share, path, peer string) error
}

// resolveShare applies §4.F's tid resolution and share-interception filter,
// returning the (possibly force_host-rewritten) share and whether it is
// intercepted at all.
func (c *Connection) resolveShare(sessionID uint64, tid uint32) (fscache.Share, bool) {
	path, ok := c.state.treePath(sessionID, tid, tid == wire.TreeIDReuse)
	if !ok {
		return fscache.Share{}, false
	}
	share, err := fscache.ParseShare(path)
	if err != nil {
		logger.Warn("proxy: unparseable share path", logger.Peer(c.peer), logger.Err(err))
		return fscache.Share{}, false
	}
	if !fscache.Intercepted(share.Name) {
		return fscache.Share{}, false
	}
	return fscache.RewriteHost(share, c.cfg.ForceHost), true
}

// dispatchInbound processes one chained SMB2 command of a client-to-server
// packet, scheduling and awaiting any cache action it triggers, per §4.F.
// The caller forwards the original packet bytes only after every message in
// the chain has gone through here.
func (c *Connection) dispatchInbound(ctx context.Context, msg wire.Message) {
	hdr := msg.Header

	switch hdr.Command {
	case smb2.CommandTreeConnect:
		c.dispatchTreeConnect(hdr, msg.Body)
	case smb2.CommandCreate:
		c.dispatchCreate(ctx, hdr, msg.Body)
	case smb2.CommandQueryDirectory:
		c.dispatchQueryDirectory(ctx, hdr, msg.Body)
	case smb2.CommandSetInfo:
		c.dispatchSetInfo(hdr, msg.Body)
	case smb2.CommandClose:
		c.dispatchClose(ctx, hdr, msg.Body)
	}
}

func (c *Connection) dispatchTreeConnect(hdr *wire.Header, body []byte) {
	req, err := wire.DecodeTreeConnectRequest(body)
	if err != nil {
		logger.Debug("proxy: decode TREE_CONNECT request", logger.Peer(c.peer), logger.Err(err))
		return
	}
	c.state.notePendingTreeConnect(hdr.MessageID, req.Path)
	c.state.noteSessionLatestTree(hdr.SessionID, req.Path)
}

func (c *Connection) dispatchCreate(ctx context.Context, hdr *wire.Header, body []byte) {
	req, err := wire.DecodeCreateRequest(body)
	if err != nil {
		logger.Debug("proxy: decode CREATE request", logger.Peer(c.peer), logger.Err(err))
		return
	}

	doWrite := req.DoWrite()
	doDelete := req.DoDelete()
	c.state.notePendingCreate(hdr.MessageID, fileOpenRequest{filename: req.FileName, doWrite: doWrite, doDelete: doDelete})
	c.state.noteSessionLatestCreateFilename(hdr.SessionID, req.FileName)

	share, intercepted := c.resolveShare(hdr.SessionID, hdr.TreeID)
	if !intercepted {
		return
	}

	ctx, span := telemetry.StartSpan(ctx, "proxy.create")
	defer span.End()
	telemetry.SetAttributes(ctx, telemetry.Share(share.String()), telemetry.Path(req.FileName))

	if err := c.actions.Sync(ctx, share, req.FileName, c.peer); err != nil {
		logger.WarnCtx(ctx, "proxy: SYNC on CREATE failed, forwarding anyway",
			logger.Share(share.String()), logger.Path(req.FileName), logger.Err(err))
	}
	if doWrite {
		if err := c.actions.Touch(ctx, share, req.FileName, c.peer); err != nil {
			logger.WarnCtx(ctx, "proxy: TOUCH on CREATE failed, forwarding anyway",
				logger.Share(share.String()), logger.Path(req.FileName), logger.Err(err))
		}
	}
}

func (c *Connection) dispatchQueryDirectory(ctx context.Context, hdr *wire.Header, body []byte) {
	req, err := wire.DecodeQueryDirectoryRequest(body)
	if err != nil {
		logger.Debug("proxy: decode QUERY_DIRECTORY request", logger.Peer(c.peer), logger.Err(err))
		return
	}

	filename, ok := c.resolveFilename(hdr.SessionID, req.FileID)
	if !ok {
		return
	}

	share, intercepted := c.resolveShare(hdr.SessionID, hdr.TreeID)
	if !intercepted {
		return
	}

	ctx, span := telemetry.StartSpan(ctx, "proxy.query_directory")
	defer span.End()
	telemetry.SetAttributes(ctx, telemetry.Share(share.String()), telemetry.Path(filename))

	if err := c.actions.Listdir(ctx, share, filename, c.peer); err != nil {
		logger.WarnCtx(ctx, "proxy: LISTDIR on QUERY_DIRECTORY failed, forwarding anyway",
			logger.Share(share.String()), logger.Path(filename), logger.Err(err))
	}
}

func (c *Connection) dispatchSetInfo(hdr *wire.Header, body []byte) {
	req, err := wire.DecodeSetInfoRequest(body)
	if err != nil {
		logger.Debug("proxy: decode SET_INFO request", logger.Peer(c.peer), logger.Err(err))
		return
	}
	if req.InfoType != smb2.InfoTypeFile || req.FileInfoClass != smb2.FileDispositionInformation {
		return
	}

	fileID := req.FileID
	if fileID == wire.RelatedFileID {
		return // the related-file sentinel is not resolved here; its disposition is not recorded
	}
	c.state.setFileDispositionDelete(fileID, req.FileDispositionDelete())
}

func (c *Connection) dispatchClose(ctx context.Context, hdr *wire.Header, body []byte) {
	req, err := wire.DecodeCloseRequest(body)
	if err != nil {
		logger.Debug("proxy: decode CLOSE request", logger.Peer(c.peer), logger.Err(err))
		return
	}

	fileID := req.FileID
	open, ok := c.state.openFile(fileID)
	if !ok {
		return
	}
	// The handle entry stays in openFiles until any SYNCBACK/DELETE below
	// has returned, so a concurrent open-file-count read (e.g. the
	// management socket's STATS, or graceful shutdown's drain check) never
	// observes the handle as closed while its write-back is still in
	// flight (spec §8, §4.H).
	defer c.state.removeOpenFile(fileID)

	if !open.doWrite && !open.doDelete {
		return
	}

	share, intercepted := c.resolveShare(hdr.SessionID, hdr.TreeID)
	if !intercepted || !c.cfg.EnableWriteThrough {
		return
	}

	ctx, span := telemetry.StartSpan(ctx, "proxy.close")
	defer span.End()
	telemetry.SetAttributes(ctx, telemetry.Share(share.String()), telemetry.Path(open.filename))

	if open.doWrite {
		if err := c.actions.Syncback(ctx, share, open.filename, c.peer); err != nil {
			logger.WarnCtx(ctx, "proxy: SYNCBACK on CLOSE failed, forwarding anyway",
				logger.Share(share.String()), logger.Path(open.filename), logger.Err(err))
		}
	}
	if open.doDelete {
		if err := c.actions.Delete(ctx, share, open.filename, c.peer); err != nil {
			logger.WarnCtx(ctx, "proxy: DELETE on CLOSE failed, forwarding anyway",
				logger.Share(share.String()), logger.Path(open.filename), logger.Err(err))
		}
	}
}

// resolveFilename resolves a wire file-id to a tracked filename, honoring
// the compound sentinel (§4.F "Compound file-id").
func (c *Connection) resolveFilename(sessionID uint64, fileID [16]byte) (string, bool) {
	if fileID == wire.RelatedFileID {
		return c.state.sessionLatestFilename(sessionID)
	}
	open, ok := c.state.openFile(fileID)
	if !ok {
		return "", false
	}
	return open.filename, true
}

// dispatchOutbound processes one chained SMB2 command of a server-to-client
// packet, resolving tree-connect and create responses into the tables
// dispatchInbound consults (§4.F "Outbound packet handling").
func (c *Connection) dispatchOutbound(hdr *wire.Header, body []byte) {
	switch hdr.Command {
	case smb2.CommandTreeConnect:
		if hdr.Status == 0 {
			c.state.resolveTreeConnect(hdr.MessageID, hdr.TreeID)
		} else {
			c.state.dropPendingTreeConnect(hdr.MessageID)
		}
	case smb2.CommandCreate:
		if hdr.Status == 0 {
			resp, err := wire.DecodeCreateResponse(body)
			if err != nil {
				logger.Debug("proxy: decode CREATE response", logger.Peer(c.peer), logger.Err(err))
				return
			}
			c.state.resolveCreate(hdr.MessageID, resp.FileID, true)
		} else {
			c.state.resolveCreate(hdr.MessageID, [16]byte{}, false)
		}
	}
}
