package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/seekscale/smbcacheproxy/internal/logger"
	"github.com/seekscale/smbcacheproxy/internal/telemetry"
	"github.com/seekscale/smbcacheproxy/pkg/kv"
)

// ConnectionCount is CONNECTION_COUNT of §4.D: at most this many chunks in
// flight at once, for both upload and download.
const ConnectionCount = 50

// ChunkStore is the content-addressed transport this package drives:
// HEAD/PUT/GET against the content-addressed store. Implemented by
// pkg/httpconn.Connector.
type ChunkStore interface {
	HeadChunk(ctx context.Context, sha string) (bool, error)
	UploadChunk(ctx context.Context, sha string, data []byte) error
	DownloadChunk(ctx context.Context, sha string, w io.Writer) error
}

// Transfer drives content-addressed upload/download against a ChunkStore
// and records manifests in a shared kv.Store.
type Transfer struct {
	store kv.Store
	chunk ChunkStore
}

// New builds a Transfer over the given shared KV store and chunk transport.
func New(store kv.Store, chunk ChunkStore) *Transfer {
	return &Transfer{store: store, chunk: chunk}
}

// HasManifest reports whether a fingerprint key is already present in the
// shared KV store, meaning a manifest exists and (by the store's own
// invariant) every chunk it references is already durable.
func (t *Transfer) HasManifest(ctx context.Context, path string, size int64, mtime float64) (*Manifest, bool) {
	raw, err := t.store.Get(ctx, FingerprintKey(path, size, mtime))
	if err != nil {
		return nil, false
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		logger.Warn("transfer: corrupt manifest entry", logger.Path(path), logger.Err(err))
		return nil, false
	}
	return &m, true
}

// Upload streams localPath sequentially, chunking it at ChunkSize,
// deduplicating each chunk against the content-addressed store via HEAD,
// and uploading only the chunks that are missing. Concurrency is bounded
// by ConnectionCount. On completion the manifest is written under the
// fingerprint key and added to the global keyset.
func (t *Transfer) Upload(ctx context.Context, path, localPath string, size int64, mtime float64) (*Manifest, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanTransferUpload)
	defer span.End()
	telemetry.SetAttributes(ctx, telemetry.Path(path), telemetry.Bytes(size))

	n := NumChunks(size)
	parts := make([]Part, n)

	sem := semaphore.NewWeighted(ConnectionCount)
	g, gctx := errgroup.WithContext(ctx)

	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("transfer: open %q: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	for uid := 0; uid < n; uid++ {
		uid := uid
		start, end := ChunkBounds(uid, size)
		buf := make([]byte, end-start)
		if _, err := f.ReadAt(buf, start); err != nil && err != io.EOF {
			return nil, fmt.Errorf("transfer: read chunk %d: %w", uid, err)
		}
		sum := sha256.Sum256(buf)
		sha := hex.EncodeToString(sum[:])
		parts[uid] = Part{UID: uid, Offset: start, Length: end - start, Shasum: sha}

		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			return t.uploadOneChunk(gctx, uid, sha, buf)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	manifest := &Manifest{Parts: parts}
	if err := t.writeManifest(ctx, path, size, mtime, manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

func (t *Transfer) uploadOneChunk(ctx context.Context, uid int, sha string, data []byte) error {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanTransferChunkExists)
	defer span.End()
	telemetry.SetAttributes(ctx, telemetry.ChunkIndex(uid))

	exists, err := t.chunk.HeadChunk(ctx, sha)
	if err != nil {
		return fmt.Errorf("transfer: HEAD chunk %d (%s): %w", uid, sha, err)
	}
	if exists {
		return nil
	}
	if err := t.chunk.UploadChunk(ctx, sha, data); err != nil {
		return fmt.Errorf("transfer: upload chunk %d (%s): %w", uid, sha, err)
	}
	return nil
}

func (t *Transfer) writeManifest(ctx context.Context, path string, size int64, mtime float64, manifest *Manifest) error {
	raw, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("transfer: marshal manifest: %w", err)
	}
	key := FingerprintKey(path, size, mtime)
	if err := t.store.SetEX(ctx, key, raw, 0); err != nil {
		return fmt.Errorf("transfer: write manifest: %w", err)
	}
	if err := t.store.SAdd(ctx, KeysetKey, []byte(key)); err != nil {
		logger.Warn("transfer: add manifest key to keyset", logger.Path(path), logger.Err(err))
	}
	return nil
}
