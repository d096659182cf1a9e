package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/seekscale/smbcacheproxy/internal/telemetry"
)

// Download reads the manifest for (path, size, mtime), fetches every part
// in parallel (bounded by ConnectionCount) into unique temp files, and
// concatenates them in uid order into localPath. On any part failure the
// final file is never written and every successful temp file is removed.
func (t *Transfer) Download(ctx context.Context, path string, size int64, mtime float64, localPath, tmpDir string) error {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanTransferDownload)
	defer span.End()
	telemetry.SetAttributes(ctx, telemetry.Path(path), telemetry.Bytes(size))

	manifest, ok := t.HasManifest(ctx, path, size, mtime)
	if !ok {
		return fmt.Errorf("transfer: no manifest for %q (size=%d mtime=%f)", path, size, mtime)
	}

	tempPaths := make([]string, len(manifest.Parts))
	sem := semaphore.NewWeighted(ConnectionCount)
	g, gctx := errgroup.WithContext(ctx)

	cleanup := func() {
		for _, p := range tempPaths {
			if p != "" {
				_ = os.Remove(p)
			}
		}
	}

	for i, part := range manifest.Parts {
		i, part := i, part
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			tmpPath, err := t.downloadOnePart(gctx, tmpDir, part)
			if err != nil {
				return err
			}
			tempPaths[i] = tmpPath
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		cleanup()
		return err
	}

	if err := concatenate(tempPaths, manifest.Parts, localPath); err != nil {
		cleanup()
		return err
	}
	cleanup()
	return nil
}

func (t *Transfer) downloadOnePart(ctx context.Context, tmpDir string, part Part) (string, error) {
	f, err := os.CreateTemp(tmpDir, "seekscale-chunk-*")
	if err != nil {
		return "", fmt.Errorf("transfer: create temp file for part %d: %w", part.UID, err)
	}
	defer func() { _ = f.Close() }()

	if err := t.chunk.DownloadChunk(ctx, part.Shasum, f); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("transfer: download part %d (%s): %w", part.UID, part.Shasum, err)
	}
	return f.Name(), nil
}

// concatenate writes parts (by temp file, in uid order) into dst.
func concatenate(tempPaths []string, parts []Part, dst string) error {
	ordered := make([]int, len(parts))
	for i := range ordered {
		ordered[i] = i
	}
	sort.Slice(ordered, func(a, b int) bool { return parts[ordered[a]].UID < parts[ordered[b]].UID })

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("transfer: create %q: %w", dst, err)
	}
	defer func() { _ = f.Close() }()

	for _, idx := range ordered {
		src, err := os.Open(tempPaths[idx])
		if err != nil {
			return fmt.Errorf("transfer: open part %d: %w", parts[idx].UID, err)
		}
		_, copyErr := io.Copy(f, src)
		_ = src.Close()
		if copyErr != nil {
			return fmt.Errorf("transfer: write part %d: %w", parts[idx].UID, copyErr)
		}
	}
	return nil
}
