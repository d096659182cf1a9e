package fscache

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/seekscale/smbcacheproxy/internal/logger"
)

// Syncback implements the SYNCBACK action of §4.E: push a locally-modified
// file back to the remote source. A no-op (but not an error) when
// enable_write_through is off, since the SMB write path must keep working
// without a backend to push to.
func (c *Client) Syncback(ctx context.Context, share Share, path, peer string) error {
	return c.do(ctx, KindSyncback, share.String(), path, peer, func(ctx context.Context) error {
		return c.syncback(ctx, share, path)
	})
}

func (c *Client) syncback(ctx context.Context, share Share, path string) error {
	if !c.cfg.EnableWriteThrough {
		return nil
	}

	root, err := share.ResolveRoot()
	if err != nil {
		return fmt.Errorf("fscache: resolve share root: %w", err)
	}
	shareRoot := filepath.Join(c.cfg.SharesRoot, root)

	meta, err := c.metadata.GetMetadata(ctx, share.String(), path, true)
	if err != nil {
		return fmt.Errorf("fscache: SYNCBACK metadata for %q: %w", path, err)
	}
	localPath := NormalizeToLocal(shareRoot, path, meta.NormalizedPath)

	info, err := c.fs.Stat(localPath)
	if err != nil {
		return fmt.Errorf("fscache: SYNCBACK stat %q: %w", localPath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("fscache: SYNCBACK refused, %q is a directory", path)
	}

	if info.Size() >= c.cfg.LargeFileThreshold {
		if _, err := c.content.Upload(ctx, path, localPath, info.Size(), float64(info.ModTime().Unix())); err != nil {
			return fmt.Errorf("fscache: content-addressed upload: %w", err)
		}
	} else {
		if _, err := c.files.PutFile(ctx, path, localPath); err != nil {
			return fmt.Errorf("fscache: inline upload: %w", err)
		}
	}

	parent := parentNetworkPath(path)
	c.metadata.Invalidate(ctx, share.String(), path, parent)
	if _, err := c.metadata.RefreshDir(ctx, share.String(), parent); err != nil {
		logger.WarnCtx(ctx, "fscache: SYNCBACK parent refresh failed",
			logger.Path(parent), logger.Err(err))
	}
	return nil
}
