package fscache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/seekscale/smbcacheproxy/internal/logger"
	"github.com/seekscale/smbcacheproxy/pkg/metacache"
)

// parentNetworkPath returns the parent of a backslash-separated network
// path, or "" for a top-level path (whose parent is the share root).
func parentNetworkPath(path string) string {
	trimmed := strings.TrimRight(path, `\`)
	idx := strings.LastIndexByte(trimmed, '\\')
	if idx < 0 {
		return ""
	}
	return trimmed[:idx]
}

func unixToTime(mtime float64) time.Time {
	sec := int64(mtime)
	nsec := int64((mtime - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// Sync implements the SYNC action of §4.E. peer is the client address, used
// only for the audit row.
func (c *Client) Sync(ctx context.Context, share Share, path, peer string) error {
	return c.do(ctx, KindSync, share.String(), path, peer, func(ctx context.Context) error {
		return c.sync(ctx, share, path)
	})
}

func (c *Client) sync(ctx context.Context, share Share, path string) error {
	meta, err := c.metadata.GetMetadata(ctx, share.String(), path, false)
	if err != nil {
		return fmt.Errorf("fscache: SYNC metadata for %q: %w", path, err)
	}

	if !meta.Exists {
		parent := parentNetworkPath(path)
		if parent == path || parent == "" {
			return nil
		}
		// Recurse directly (not through the audited Sync entrypoint) so a
		// parent-chain sync is not separately audited/metered per hop.
		return c.sync(ctx, share, parent)
	}

	root, err := share.ResolveRoot()
	if err != nil {
		return fmt.Errorf("fscache: resolve share root: %w", err)
	}
	shareRoot := filepath.Join(c.cfg.SharesRoot, root)
	localPath := NormalizeToLocal(shareRoot, path, meta.NormalizedPath)

	if meta.IsFile {
		return c.syncFile(ctx, share, path, shareRoot, localPath, meta)
	}
	if meta.IsDir {
		suppressAudit(ctx)
		return c.syncDir(shareRoot, localPath)
	}
	return nil
}

func (c *Client) syncFile(ctx context.Context, share Share, path, shareRoot, localPath string, meta *metacache.FileMetadata) error {
	if err := EnsureParentDirs(shareRoot, localPath, c.mkdirMaterialized); err != nil {
		return fmt.Errorf("fscache: materialize parent dirs for %q: %w", path, err)
	}

	remoteMtime := unixToTime(meta.Mtime)

	if info, err := c.fs.Stat(localPath); err == nil && !info.IsDir() && info.Size() > 0 {
		localMtime := info.ModTime()
		if remoteMtime.Before(localMtime.Add(c.cfg.MtimeRefreshThreshold)) {
			return nil // cache hit
		}
	}

	if err := c.fetchFile(ctx, share, path, localPath, meta); err != nil {
		logger.WarnCtx(ctx, "fscache: SYNC fetch failed, writing placeholder",
			logger.Path(path), logger.Err(err))
		return c.writePlaceholder(localPath, meta)
	}
	return nil
}

func (c *Client) fetchFile(ctx context.Context, share Share, path, localPath string, meta *metacache.FileMetadata) error {
	tmpDir := filepath.Join(c.cfg.SharesRoot, ".seekscale_tmp")
	if err := os.MkdirAll(tmpDir, 0o777); err != nil {
		return fmt.Errorf("fscache: create tmp dir: %w", err)
	}

	var tmpPath string
	if meta.Size >= c.cfg.LargeFileThreshold {
		tmpPath = filepath.Join(tmpDir, uniqueTempName())
		if err := c.content.Download(ctx, path, meta.Size, meta.Mtime, tmpPath, tmpDir); err != nil {
			return fmt.Errorf("fscache: content-addressed download: %w", err)
		}
	} else {
		fetched, err := c.files.GetFile(ctx, path, tmpDir)
		if err != nil {
			return fmt.Errorf("fscache: inline download: %w", err)
		}
		tmpPath = fetched
	}

	if err := c.fs.CreateFromTemp(tmpPath, localPath); err != nil {
		return fmt.Errorf("fscache: rename into place: %w", err)
	}

	remoteMtime := unixToTime(meta.Mtime)
	if err := c.fs.Chown(localPath, c.cfg.ClusterUID, c.cfg.ClusterGID); err != nil {
		logger.Warn("fscache: chown", logger.Path(path), logger.Err(err))
	}
	if err := c.fs.Chmod(localPath, 0o777); err != nil {
		logger.Warn("fscache: chmod", logger.Path(path), logger.Err(err))
	}
	if err := c.fs.Chtimes(localPath, remoteMtime, remoteMtime); err != nil {
		logger.Warn("fscache: utime", logger.Path(path), logger.Err(err))
	}
	return nil
}

// writePlaceholder installs a placeholder file of the correct size: mode
// 0600 and mtime set deep in the past so a later successful SYNC prefers
// the remote copy (§4.E, §7 "Local-IO").
func (c *Client) writePlaceholder(localPath string, meta *metacache.FileMetadata) error {
	if err := c.fs.CreateEmpty(localPath, meta.Size); err != nil {
		return fmt.Errorf("fscache: create placeholder: %w", err)
	}
	if err := c.fs.Chmod(localPath, 0o600); err != nil {
		logger.Warn("fscache: chmod placeholder", logger.Path(localPath), logger.Err(err))
	}
	placeholderMtime := time.Unix(int64(meta.Mtime), 0).Add(-c.cfg.placeholderAge())
	if err := c.fs.Chtimes(localPath, placeholderMtime, placeholderMtime); err != nil {
		logger.Warn("fscache: utime placeholder", logger.Path(localPath), logger.Err(err))
	}
	return nil
}

func (c *Client) syncDir(shareRoot, localPath string) error {
	if err := EnsureDirHierarchy(shareRoot, localPath, c.mkdirMaterialized); err != nil {
		return fmt.Errorf("fscache: materialize directory %q: %w", localPath, err)
	}
	return nil
}

func (c *Client) mkdirMaterialized(path string) error {
	if err := c.fs.Mkdir(path, 0o777); err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	if err := c.fs.Chown(path, c.cfg.ClusterUID, c.cfg.ClusterGID); err != nil {
		logger.Warn("fscache: chown directory", logger.Path(path), logger.Err(err))
	}
	return nil
}

var tempNameCounter atomic.Uint64

// uniqueTempName returns a unique basename for a content-addressed download
// temp file. Not a UUID to avoid pulling randomness into the hot path;
// uniqueness within a process is all the caller needs since the temp dir
// is process-private.
func uniqueTempName() string {
	n := tempNameCounter.Add(1)
	return fmt.Sprintf("seekscale-dl-%d-%d", os.Getpid(), n)
}
