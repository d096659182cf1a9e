package fscache

import (
	"context"
	"sync"
	"time"

	"github.com/seekscale/smbcacheproxy/pkg/kv"
	"github.com/seekscale/smbcacheproxy/pkg/metacache"
	"github.com/seekscale/smbcacheproxy/pkg/transfer"
)

// MetadataSource is the subset of pkg/metacache.Cache the fscache client
// depends on.
type MetadataSource interface {
	GetMetadata(ctx context.Context, share, path string, force bool) (*metacache.FileMetadata, error)
	GetDirList(ctx context.Context, share, dir string, force bool) (*metacache.DirListing, error)
	Invalidate(ctx context.Context, share, path, parent string)
	RefreshDir(ctx context.Context, share, dir string) (*metacache.DirListing, error)
}

// FileTransport is the subset of pkg/httpconn.Connector the fscache client
// depends on for metadata-proxy/backend-fileserver operations outside the
// content-addressed path.
type FileTransport interface {
	GetFile(ctx context.Context, path, dir string) (tmpPath string, err error)
	PutFile(ctx context.Context, path, localPath string) (size int64, err error)
	DeleteFile(ctx context.Context, path string) error
	TouchFile(ctx context.Context, path string) error
}

// ContentTransfer is the subset of pkg/transfer.Transfer the fscache client
// depends on for large-file content-addressed transfers.
type ContentTransfer interface {
	HasManifest(ctx context.Context, path string, size int64, mtime float64) (*transfer.Manifest, bool)
	Upload(ctx context.Context, path, localPath string, size int64, mtime float64) (*transfer.Manifest, error)
	Download(ctx context.Context, path string, size int64, mtime float64, localPath, tmpDir string) error
}

// Config holds the fscache tunables of §6.
type Config struct {
	// SharesRoot is the local filesystem root all shares live under.
	SharesRoot string
	// ClusterUID/ClusterGID are the owner applied to every materialized
	// file/directory, resolved once at startup from cluster_user.
	ClusterUID int
	ClusterGID int
	// LargeFileThreshold is cacheclient3_size_threshold (default 1 MiB):
	// files at or above this size use the content-addressed path.
	LargeFileThreshold int64
	// MtimeRefreshThreshold is mtime_refresh_threshold (default 5s): local
	// cache-hit staleness floor for SYNC.
	MtimeRefreshThreshold time.Duration
	// EnableWriteThrough gates SYNCBACK/DELETE/TOUCH (enable_write_through).
	EnableWriteThrough bool
	// EnableTouch gates TOUCH alone (enable_touch).
	EnableTouch bool
}

func (c Config) placeholderAge() time.Duration {
	return 500 * c.MtimeRefreshThreshold
}

// ActiveAction is a snapshot of one in-flight action, for the management
// surface's STATS command (§4.H "counts and samples of active action map").
type ActiveAction struct {
	ID      string
	Kind    Kind
	Share   string
	Path    string
	Peer    string
	Started time.Time
}

// Client is the filesystem cache client of §4.E, shared by every
// connection the proxy serves.
type Client struct {
	cfg      Config
	metadata MetadataSource
	files    FileTransport
	content  ContentTransfer
	kv       kv.Store
	auditor  AuditRecorder
	fs       FS

	activeMu sync.Mutex
	active   map[string]ActiveAction
}

// New builds a filesystem cache client.
func New(cfg Config, metadata MetadataSource, files FileTransport, content ContentTransfer, store kv.Store, auditor AuditRecorder) *Client {
	if cfg.MtimeRefreshThreshold <= 0 {
		cfg.MtimeRefreshThreshold = 5 * time.Second
	}
	if cfg.LargeFileThreshold <= 0 {
		cfg.LargeFileThreshold = 1 << 20
	}
	return &Client{
		cfg:      cfg,
		metadata: metadata,
		files:    files,
		content:  content,
		kv:       store,
		auditor:  auditor,
		fs:       osFS{},
		active:   make(map[string]ActiveAction),
	}
}

// ActiveActions snapshots every action currently in flight.
func (c *Client) ActiveActions() []ActiveAction {
	c.activeMu.Lock()
	defer c.activeMu.Unlock()
	out := make([]ActiveAction, 0, len(c.active))
	for _, a := range c.active {
		out = append(out, a)
	}
	return out
}

func (c *Client) trackActive(a ActiveAction) {
	c.activeMu.Lock()
	c.active[a.ID] = a
	c.activeMu.Unlock()
}

func (c *Client) untrackActive(id string) {
	c.activeMu.Lock()
	delete(c.active, id)
	c.activeMu.Unlock()
}
