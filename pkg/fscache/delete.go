package fscache

import (
	"context"
	"fmt"

	"github.com/seekscale/smbcacheproxy/internal/logger"
)

// Delete implements the DELETE action of §4.E: remove the remote file and
// force-refresh the parent listing so a subsequent LISTDIR doesn't
// re-materialize a placeholder for it.
func (c *Client) Delete(ctx context.Context, share Share, path, peer string) error {
	return c.do(ctx, KindDelete, share.String(), path, peer, func(ctx context.Context) error {
		return c.delete(ctx, share, path)
	})
}

func (c *Client) delete(ctx context.Context, share Share, path string) error {
	if !c.cfg.EnableWriteThrough {
		return nil
	}

	if err := c.files.DeleteFile(ctx, path); err != nil {
		return fmt.Errorf("fscache: DELETE %q: %w", path, err)
	}

	parent := parentNetworkPath(path)
	c.metadata.Invalidate(ctx, share.String(), path, parent)
	if _, err := c.metadata.RefreshDir(ctx, share.String(), parent); err != nil {
		logger.WarnCtx(ctx, "fscache: DELETE parent refresh failed",
			logger.Path(parent), logger.Err(err))
	}
	return nil
}
