// Package proxy implements the SMB2 connection state machine of §4.F: a
// transparent relay between each accepted client connection and a dialed
// backend SMB server, tracking tree-connects, creates, and handles well
// enough to schedule cache actions at the right moments without
// implementing SMB2 semantics itself.
package proxy

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/seekscale/smbcacheproxy/internal/logger"
)

// ServerConfig holds the listener/backend wiring §6 describes.
type ServerConfig struct {
	ListenAddress      string
	ListenPort         int
	BackendAddress     string
	BackendPort        int
	DialTimeout        time.Duration
	ForceHost          string
	EnableWriteThrough bool
}

func (cfg ServerConfig) listenAddr() string {
	return fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.ListenPort)
}

func (cfg ServerConfig) backendAddr() string {
	return fmt.Sprintf("%s:%d", cfg.BackendAddress, cfg.BackendPort)
}

// Server accepts client connections and relays each one to the backend SMB
// server, per §4.F.
type Server struct {
	cfg     ServerConfig
	actions CacheActions
	metrics PacketMetrics

	listener net.Listener

	mu          sync.Mutex
	connections map[string]*Connection
	shutdown    bool
}

// NewServer builds a Server. actions dispatches cache operations; metrics
// may be nil.
func NewServer(cfg ServerConfig, actions CacheActions, metrics PacketMetrics) *Server {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &Server{
		cfg:         cfg,
		actions:     actions,
		metrics:     metrics,
		connections: make(map[string]*Connection),
	}
}

// Serve accepts connections until ctx is cancelled or Shutdown is called.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.listenAddr())
	if err != nil {
		return fmt.Errorf("proxy: listen on %s: %w", s.cfg.listenAddr(), err)
	}
	s.listener = listener
	logger.Info("proxy: listening", "address", s.cfg.listenAddr(), "backend", s.cfg.backendAddr())

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				logger.Warn("proxy: accept failed", logger.Err(err))
				return err
			}
		}
		go s.handleAccepted(ctx, conn)
	}
}

func (s *Server) handleAccepted(ctx context.Context, client net.Conn) {
	backend, err := net.DialTimeout("tcp", s.cfg.backendAddr(), s.cfg.DialTimeout)
	if err != nil {
		logger.Warn("proxy: dial backend failed, dropping client connection",
			logger.Peer(client.RemoteAddr().String()), logger.Err(err))
		_ = client.Close()
		return
	}

	connCfg := Config{ForceHost: s.cfg.ForceHost, EnableWriteThrough: s.cfg.EnableWriteThrough}
	conn := NewConnection(client, backend, connCfg, s.actions, s.metrics)

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		_ = client.Close()
		_ = backend.Close()
		return
	}
	s.connections[conn.id] = conn
	s.mu.Unlock()

	conn.Serve(ctx)

	s.mu.Lock()
	delete(s.connections, conn.id)
	s.mu.Unlock()
}

// Shutdown initiates the graceful drain of §4.H: stop accepting, mark every
// live connection shutdown-requested. Each connection closes on its own
// once its open-file table drains; Shutdown itself returns immediately.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.shutdown = true
	conns := make([]*Connection, 0, len(s.connections))
	for _, c := range s.connections {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if s.listener != nil {
		_ = s.listener.Close()
	}
	for _, c := range conns {
		c.RequestShutdown()
	}
}

// Stats is the subset of live proxy state the management surface (§4.H
// STATS command) reports.
type Stats struct {
	ConnectionCount int
	Connections     []ConnectionStats
}

// ConnectionStats describes one live connection for the STATS command.
type ConnectionStats struct {
	ID               string
	Peer             string
	OpenFileCount    int
	PendingQueueLen  int
	PacketsProcessed uint64
}

// Snapshot reports current connection-level stats for pkg/mgmt.
func (s *Server) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{ConnectionCount: len(s.connections)}
	for _, c := range s.connections {
		stats.Connections = append(stats.Connections, ConnectionStats{
			ID:               c.id,
			Peer:             c.peer,
			OpenFileCount:    c.OpenFileCount(),
			PendingQueueLen:  c.QueueDepth(),
			PacketsProcessed: c.PacketsProcessed(),
		})
	}
	return stats
}

// ShuttingDown reports whether Shutdown has been called, for the STATS
// command's shutdown flag.
func (s *Server) ShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// ListenAddress and ListenPort report the configured listen address, for
// the STATS command.
func (s *Server) ListenAddress() string { return s.cfg.ListenAddress }
func (s *Server) ListenPort() int       { return s.cfg.ListenPort }
