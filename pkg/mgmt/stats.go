package mgmt

import (
	"time"

	"github.com/seekscale/smbcacheproxy/pkg/fscache"
	"github.com/seekscale/smbcacheproxy/pkg/httpconn"
	"github.com/seekscale/smbcacheproxy/pkg/proxy"
)

// ProxyController is the subset of pkg/proxy.Server the management surface
// needs: a live snapshot, the shutdown flag, and the trigger itself.
type ProxyController interface {
	Snapshot() proxy.Stats
	ShuttingDown() bool
	ListenAddress() string
	ListenPort() int
	Shutdown()
}

// ActionSource is the subset of pkg/fscache.Client needed for the active
// action table.
type ActionSource interface {
	ActiveActions() []fscache.ActiveAction
}

// MetadataCacheSource is the subset of pkg/metacache.Cache needed for the
// metadata-cache size figure.
type MetadataCacheSource interface {
	LocalCacheSize() int
}

// HTTPCountersSource is the subset of pkg/httpconn.Connector needed for the
// HTTP counters figure.
type HTTPCountersSource interface {
	Counters() httpconn.Counters
}

// ActiveActionStat is one row of the STATS "active action map" sample.
type ActiveActionStat struct {
	ID    string  `json:"id"`
	Kind  string  `json:"kind"`
	Share string  `json:"share"`
	Path  string  `json:"path"`
	Peer  string  `json:"peer"`
	AgeMs float64 `json:"age_ms"`
}

// ConnectionStat is one row of the STATS per-connection table.
type ConnectionStat struct {
	ID               string `json:"id"`
	Peer             string `json:"peer"`
	OpenFiles        int    `json:"open_files"`
	PendingQueueLen  int    `json:"pending_queue_len"`
	PacketsProcessed uint64 `json:"packets_processed"`
}

// Stats is the JSON payload of the STATS command and the periodic
// stats-file/central-forward writer (§4.H).
type Stats struct {
	Pid               int                `json:"pid"`
	ListenAddress     string             `json:"listen_address"`
	ListenPort        int                `json:"listen_port"`
	ShuttingDown      bool               `json:"shutting_down"`
	ActiveActions     []ActiveActionStat `json:"active_actions"`
	ActiveCount       int                `json:"active_action_count"`
	MetadataCacheSize int                `json:"metadata_cache_size"`
	HTTP              httpconn.Counters  `json:"http_counters"`
	Connections       []ConnectionStat   `json:"connections"`
	ConnectionCount   int                `json:"connection_count"`
}

// maxActiveActionSamples caps how many in-flight actions STATS includes
// verbatim; the count is always exact even when the sample is truncated.
const maxActiveActionSamples = 50

func (s *Server) snapshot(now time.Time) Stats {
	proxyStats := s.proxy.Snapshot()

	connections := make([]ConnectionStat, 0, len(proxyStats.Connections))
	for _, c := range proxyStats.Connections {
		connections = append(connections, ConnectionStat{
			ID:               c.ID,
			Peer:             c.Peer,
			OpenFiles:        c.OpenFileCount,
			PendingQueueLen:  c.PendingQueueLen,
			PacketsProcessed: c.PacketsProcessed,
		})
	}

	active := s.actions.ActiveActions()
	samples := make([]ActiveActionStat, 0, min(len(active), maxActiveActionSamples))
	for i, a := range active {
		if i >= maxActiveActionSamples {
			break
		}
		samples = append(samples, ActiveActionStat{
			ID:    a.ID,
			Kind:  string(a.Kind),
			Share: a.Share,
			Path:  a.Path,
			Peer:  a.Peer,
			AgeMs: float64(now.Sub(a.Started).Milliseconds()),
		})
	}

	metaSize := 0
	if s.metadata != nil {
		metaSize = s.metadata.LocalCacheSize()
	}
	var httpCounters httpconn.Counters
	if s.http != nil {
		httpCounters = s.http.Counters()
	}

	return Stats{
		Pid:               s.pid,
		ListenAddress:     s.proxy.ListenAddress(),
		ListenPort:        s.proxy.ListenPort(),
		ShuttingDown:      s.proxy.ShuttingDown(),
		ActiveActions:     samples,
		ActiveCount:       len(active),
		MetadataCacheSize: metaSize,
		HTTP:              httpCounters,
		Connections:       connections,
		ConnectionCount:   proxyStats.ConnectionCount,
	}
}
