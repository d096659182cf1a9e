package fscache

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/seekscale/smbcacheproxy/internal/logger"
	"github.com/seekscale/smbcacheproxy/pkg/metacache"
)

// Listdir implements the LISTDIR action of §4.E.
func (c *Client) Listdir(ctx context.Context, share Share, path, peer string) error {
	return c.do(ctx, KindListdir, share.String(), path, peer, func(ctx context.Context) error {
		return c.listdir(ctx, share, path)
	})
}

func (c *Client) listdir(ctx context.Context, share Share, path string) error {
	if err := c.sync(ctx, share, path); err != nil {
		return fmt.Errorf("fscache: LISTDIR prerequisite SYNC for %q: %w", path, err)
	}

	root, err := share.ResolveRoot()
	if err != nil {
		return fmt.Errorf("fscache: resolve share root: %w", err)
	}
	shareRoot := filepath.Join(c.cfg.SharesRoot, root)

	meta, err := c.metadata.GetMetadata(ctx, share.String(), path, false)
	if err != nil {
		return fmt.Errorf("fscache: LISTDIR metadata for %q: %w", path, err)
	}
	if !meta.Exists {
		// Directory does not exist remotely. If it exists locally as a
		// directory, leave it alone (§4.E LISTDIR step 4).
		localPath := NormalizeToLocal(shareRoot, path, meta.NormalizedPath)
		if info, statErr := c.fs.Stat(localPath); statErr == nil && info.IsDir() {
			return nil
		}
		return nil
	}

	listing, err := c.metadata.GetDirList(ctx, share.String(), path, false)
	if err != nil {
		return fmt.Errorf("fscache: LISTDIR dirlist for %q: %w", path, err)
	}

	dirLocalPath := NormalizeToLocal(shareRoot, path, meta.NormalizedPath)

	for _, name := range listing.Files {
		childMeta, ok := listing.FilesMetadata[name]
		if !ok || !childMeta.Exists {
			continue
		}
		childNetworkPath := joinNetworkPath(path, name)
		childLocalPath := NormalizeToLocal(shareRoot, childNetworkPath, childMeta.NormalizedPath)

		if childMeta.IsFile {
			if err := c.materializeFakeFile(childLocalPath, childMeta); err != nil {
				logger.WarnCtx(ctx, "fscache: LISTDIR failed to materialize placeholder",
					logger.Path(childNetworkPath), logger.Err(err))
			}
		} else if childMeta.IsDir {
			if err := c.mkdirMaterialized(childLocalPath); err != nil {
				logger.WarnCtx(ctx, "fscache: LISTDIR failed to materialize directory",
					logger.Path(childNetworkPath), logger.Err(err))
			}
		}
	}

	return nil
}

func joinNetworkPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + `\` + name
}

// materializeFakeFile creates a placeholder file for a directory child, per
// §4.E LISTDIR step 3: empty or sparse, padded to remote_size, mode 0600,
// mtime set deep in the past. A child already present locally with the
// correct size (either a real materialized file or a prior placeholder) is
// left untouched, so LISTDIR never clobbers content SYNC already fetched.
func (c *Client) materializeFakeFile(localPath string, meta *metacache.FileMetadata) error {
	if info, err := c.fs.Stat(localPath); err == nil && !info.IsDir() && info.Size() == meta.Size {
		return nil
	}
	return c.writePlaceholder(localPath, meta)
}
