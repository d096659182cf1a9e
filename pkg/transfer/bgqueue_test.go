package transfer_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekscale/smbcacheproxy/pkg/kv"
	"github.com/seekscale/smbcacheproxy/pkg/transfer"
)

// noopChunkStore satisfies transfer.ChunkStore without exercising it; these
// tests drive the background-download queue, not chunk transport.
type noopChunkStore struct{}

func (noopChunkStore) HeadChunk(context.Context, string) (bool, error)   { return false, nil }
func (noopChunkStore) UploadChunk(context.Context, string, []byte) error { return nil }
func (noopChunkStore) DownloadChunk(context.Context, string, io.Writer) error {
	return nil
}

func TestEnqueuePushesAJobOntoThePendingQueue(t *testing.T) {
	store := kv.NewMemory()
	xfer := transfer.New(store, noopChunkStore{})
	ctx := context.Background()

	id, err := xfer.Enqueue(ctx, "/shots/shot010/frame.exr", "manifest-key-1")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	n, err := store.LLen(ctx, "bkgrd_dl:pending")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRunWorkerProcessesAJobToSuccess(t *testing.T) {
	store := kv.NewMemory()
	xfer := transfer.New(store, noopChunkStore{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := xfer.Enqueue(ctx, "/shots/shot010/frame.exr", "manifest-key-1")
	require.NoError(t, err)

	fetched := make(chan string, 1)
	done := make(chan struct{})
	go func() {
		xfer.RunWorker(ctx, t.TempDir(), func(_ context.Context, key, localPath string) error {
			fetched <- key
			cancel()
			return nil
		})
		close(done)
	}()

	select {
	case key := <-fetched:
		assert.Equal(t, "manifest-key-1", key)
	case <-time.After(2 * time.Second):
		t.Fatal("worker never invoked the fetcher")
	}
	<-done

	succeeded, err := store.LLen(context.Background(), "bkgrd_dl:succeeded")
	require.NoError(t, err)
	assert.Equal(t, int64(1), succeeded)

	pending, err := store.LLen(context.Background(), "bkgrd_dl:pending")
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
}

func TestRunWorkerMovesJobToFailedAfterExhaustingRetries(t *testing.T) {
	store := kv.NewMemory()
	xfer := transfer.New(store, noopChunkStore{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := xfer.Enqueue(ctx, "/shots/shot010/frame.exr", "manifest-key-2")
	require.NoError(t, err)

	attempts := 0
	done := make(chan struct{})
	go func() {
		xfer.RunWorker(ctx, t.TempDir(), func(_ context.Context, _, _ string) error {
			attempts++
			if attempts == 3 {
				cancel()
			}
			return errors.New("fetch failed")
		})
		close(done)
	}()
	<-done

	assert.Equal(t, 3, attempts, "must retry up to maxAttempts times before giving up")

	failed, err := store.LLen(context.Background(), "bkgrd_dl:failed")
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)
}
