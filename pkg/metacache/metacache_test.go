package metacache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekscale/smbcacheproxy/pkg/kv"
	"github.com/seekscale/smbcacheproxy/pkg/metacache"
)

// fakeBackend is a metacache.Backend stand-in recording every call so tests
// can assert on cache-hit vs cache-miss behavior.
type fakeBackend struct {
	metaCalls int
	dirCalls  int
	meta      *metacache.FileMetadata
	dir       *metacache.DirListing
	err       error
}

func (f *fakeBackend) GetMetadata(_ context.Context, _ string, _ bool) (*metacache.FileMetadata, error) {
	f.metaCalls++
	if f.err != nil {
		return nil, f.err
	}
	m := *f.meta
	return &m, nil
}

func (f *fakeBackend) GetDirList(_ context.Context, _ string, _ bool) (*metacache.DirListing, error) {
	f.dirCalls++
	if f.err != nil {
		return nil, f.err
	}
	d := *f.dir
	return &d, nil
}

func newCache(backend *fakeBackend) (*metacache.Cache, kv.Store) {
	store := kv.NewMemory()
	cache := metacache.New(metacache.Config{DefaultMaxAge: time.Hour}, store, backend)
	return cache, store
}

func TestCacheGetMetadataMissThenLocalHit(t *testing.T) {
	backend := &fakeBackend{meta: &metacache.FileMetadata{Exists: true, IsFile: true, Size: 42}}
	cache, _ := newCache(backend)
	ctx := context.Background()

	got, err := cache.GetMetadata(ctx, "share", "/a/b.txt", false)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.Size)
	assert.Equal(t, 1, backend.metaCalls)

	// Second call within the TTL window must be served from the local tier,
	// not re-fetched from the backend.
	got2, err := cache.GetMetadata(ctx, "share", "/a/b.txt", false)
	require.NoError(t, err)
	assert.Equal(t, got.Size, got2.Size)
	assert.Equal(t, 1, backend.metaCalls)
}

func TestCacheGetMetadataForceBypassesCache(t *testing.T) {
	backend := &fakeBackend{meta: &metacache.FileMetadata{Exists: true, IsFile: true, Size: 1}}
	cache, _ := newCache(backend)
	ctx := context.Background()

	_, err := cache.GetMetadata(ctx, "share", "/x", false)
	require.NoError(t, err)
	_, err = cache.GetMetadata(ctx, "share", "/x", true)
	require.NoError(t, err)

	assert.Equal(t, 2, backend.metaCalls)
}

func TestCacheGetMetadataSharesAcrossProcessLocalInstances(t *testing.T) {
	backend := &fakeBackend{meta: &metacache.FileMetadata{Exists: true, IsFile: true, Size: 7}}
	store := kv.NewMemory()
	ctx := context.Background()

	cacheA := metacache.New(metacache.Config{DefaultMaxAge: time.Hour}, store, backend)
	_, err := cacheA.GetMetadata(ctx, "share", "/shared.txt", false)
	require.NoError(t, err)
	require.Equal(t, 1, backend.metaCalls)

	// A second Cache instance backed by the same shared KV store should hit
	// the shared tier instead of calling the backend again.
	cacheB := metacache.New(metacache.Config{DefaultMaxAge: time.Hour}, store, backend)
	got, err := cacheB.GetMetadata(ctx, "share", "/shared.txt", false)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.Size)
	assert.Equal(t, 1, backend.metaCalls)
}

func TestCacheGetDirListRecombinesChildMetadata(t *testing.T) {
	backend := &fakeBackend{
		dir: &metacache.DirListing{
			Directory: "/dir",
			TotalSize: 30,
			Files:     []string{"a.txt", "b.txt"},
			FilesMetadata: map[string]*metacache.FileMetadata{
				"a.txt": {Exists: true, IsFile: true, Size: 10},
				"b.txt": {Exists: true, IsFile: true, Size: 20},
			},
		},
	}
	cache, store := newCache(backend)
	ctx := context.Background()

	listing, err := cache.GetDirList(ctx, "share", "/dir", false)
	require.NoError(t, err)
	assert.Equal(t, int64(30), listing.TotalSize)
	assert.Equal(t, 1, backend.dirCalls)

	// A second instance on the same store reads the shared tier, which
	// recombines the summary with the per-child metadata keys.
	cacheB := metacache.New(metacache.Config{DefaultMaxAge: time.Hour}, store, backend)
	listing2, err := cacheB.GetDirList(ctx, "share", "/dir", false)
	require.NoError(t, err)
	assert.Equal(t, listing.TotalSize, listing2.TotalSize)
	assert.Equal(t, 1, backend.dirCalls)
}

func TestCacheInvalidateDropsBothLocalAndSharedEntries(t *testing.T) {
	backend := &fakeBackend{meta: &metacache.FileMetadata{Exists: true, IsFile: true, Size: 1}}
	cache, _ := newCache(backend)
	ctx := context.Background()

	_, err := cache.GetMetadata(ctx, "share", "/p/f.txt", false)
	require.NoError(t, err)
	require.Equal(t, 1, backend.metaCalls)

	cache.Invalidate(ctx, "share", "/p/f.txt", "/p")

	_, err = cache.GetMetadata(ctx, "share", "/p/f.txt", false)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.metaCalls, "invalidated entry must be refetched")
}

// erroringStore fails every call, used to exercise the breaker.
type erroringStore struct{ kv.Store }

func (erroringStore) Get(context.Context, string) ([]byte, error) { return nil, errors.New("kv down") }
func (erroringStore) SetEX(context.Context, string, []byte, time.Duration) error {
	return errors.New("kv down")
}
func (erroringStore) Ping(context.Context) error { return errors.New("kv down") }

func TestCacheBreakerTripsOnSharedKVErrorAndHealthCheckReflectsIt(t *testing.T) {
	backend := &fakeBackend{meta: &metacache.FileMetadata{Exists: true, IsFile: true, Size: 1}}
	cache := metacache.New(metacache.Config{DefaultMaxAge: time.Hour}, erroringStore{}, backend)
	ctx := context.Background()

	_, err := cache.GetMetadata(ctx, "share", "/f", false)
	require.NoError(t, err, "backend fallback must still succeed despite a broken shared tier")

	assert.Error(t, cache.HealthCheck(ctx), "breaker should report unhealthy after a shared-KV error")
}

func TestCacheResetBreakerReenablesSharedTier(t *testing.T) {
	backend := &fakeBackend{meta: &metacache.FileMetadata{Exists: true, IsFile: true, Size: 1}}
	cache := metacache.New(metacache.Config{DefaultMaxAge: time.Hour}, erroringStore{}, backend)
	ctx := context.Background()

	_, err := cache.GetMetadata(ctx, "share", "/f", false)
	require.NoError(t, err)
	require.Error(t, cache.HealthCheck(ctx))

	cache.ResetBreaker()
	// After the reset the health check probes the store again instead of
	// reporting the breaker, so the store's own error comes through.
	assert.EqualError(t, cache.HealthCheck(ctx), "kv down")
}

func TestStaticPrefixGetsLongerTTL(t *testing.T) {
	backend := &fakeBackend{meta: &metacache.FileMetadata{Exists: true, IsFile: true, Size: 1}}
	store := kv.NewMemory()
	cache := metacache.New(metacache.Config{
		DefaultMaxAge:  0, // zero is replaced by New's default max age
		StaticMaxAge:   time.Hour,
		StaticPrefixes: []string{"/static/"},
	}, store, backend)
	ctx := context.Background()

	_, err := cache.GetMetadata(ctx, "share", "/static/readonly.bin", false)
	require.NoError(t, err)
	_, err = cache.GetMetadata(ctx, "share", "/static/readonly.bin", false)
	require.NoError(t, err)

	assert.Equal(t, 1, backend.metaCalls, "static-prefix path should reuse the long-TTL entry")
}
