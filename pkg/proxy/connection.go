package proxy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/seekscale/smbcacheproxy/internal/logger"
	"github.com/seekscale/smbcacheproxy/pkg/wire"
)

// inboundQueueCapacity bounds the channel between the inbound reader and
// its single worker. It is generous on purpose: the queue-depth alarm
// (§4.F) fires well before this fills, so the cap only prevents unbounded
// memory growth under a truly stuck backend.
const inboundQueueCapacity = 4096

// pendingQueueWarnThreshold is the per-connection pending-packet depth
// that triggers the §4.F WARN alarm.
const pendingQueueWarnThreshold = 100

// PacketMetrics records per-direction packet counts and processing time,
// the packet.{inbound,outbound}.{count,processing_time} namespace of §4.G.
// Implemented by pkg/audit; nil is a valid no-op.
type PacketMetrics interface {
	ObservePacket(direction string, dur time.Duration)
}

// Config holds the per-connection tunables §4.F/§6 describe.
type Config struct {
	ForceHost          string
	EnableWriteThrough bool
}

// Connection relays one accepted client connection to the backend SMB
// server, intercepting the SMB2 commands §4.F describes and running cache
// actions on the held packet before forwarding it.
type Connection struct {
	id      string
	peer    string
	cfg     Config
	actions CacheActions
	metrics PacketMetrics

	client  net.Conn
	backend net.Conn

	state *connState
	wg    sync.WaitGroup

	shutdownRequested atomic.Bool
	queueDepth        atomic.Int64
	packetsProcessed  atomic.Uint64
}

// QueueDepth reports the current inbound pending-packet queue length, for
// the STATS command's per-connection table.
func (c *Connection) QueueDepth() int {
	return int(c.queueDepth.Load())
}

// PacketsProcessed reports the total packets forwarded in both directions
// since the connection was accepted.
func (c *Connection) PacketsProcessed() uint64 {
	return c.packetsProcessed.Load()
}

// NewConnection wraps an accepted client connection and the backend
// connection dialed for it.
func NewConnection(client, backend net.Conn, cfg Config, actions CacheActions, metrics PacketMetrics) *Connection {
	return &Connection{
		id:      uuid.NewString(),
		peer:    client.RemoteAddr().String(),
		cfg:     cfg,
		actions: actions,
		metrics: metrics,
		client:  client,
		backend: backend,
		state:   newConnState(),
	}
}

// RequestShutdown marks this connection for graceful close: it stops
// accepting new packets would be wrong (traffic must keep flowing to drain
// open handles), so instead the forced TCP close is deferred until
// OpenFileCount reaches zero (§4.H).
func (c *Connection) RequestShutdown() {
	c.shutdownRequested.Store(true)
}

// OpenFileCount reports the number of SMB2 handles this connection still
// has open.
func (c *Connection) OpenFileCount() int {
	return c.state.openFileCount()
}

// Serve relays both directions until either side closes or ctx is
// cancelled, running cache actions on the inbound path per §4.F.
func (c *Connection) Serve(ctx context.Context) {
	defer c.close()

	logger.Info("proxy: connection accepted", logger.ConnectionID(c.id), logger.Peer(c.peer))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Blocking socket reads don't observe ctx cancellation directly; once
	// either direction decides to stop, close both sockets so the other
	// direction's blocked Read unblocks too.
	go func() {
		<-ctx.Done()
		c.close()
	}()

	c.wg.Add(2)
	go c.inboundLoop(ctx, cancel)
	go c.outboundLoop(ctx, cancel)
	c.wg.Wait()

	logger.Info("proxy: connection closed", logger.ConnectionID(c.id), logger.Peer(c.peer))
}

func (c *Connection) close() {
	_ = c.client.Close()
	_ = c.backend.Close()
}

func (c *Connection) inboundLoop(ctx context.Context, cancel context.CancelFunc) {
	defer c.wg.Done()
	defer cancel()
	defer recoverPanic(c.id, c.peer)

	queue := make(chan []byte, inboundQueueCapacity)
	go c.inboundWorker(ctx, queue)
	defer close(queue)

	reader := bufio.NewReader(c.client)
	for {
		raw, err := wire.ReadMessage(reader)
		if err != nil {
			c.logReadError("client", err)
			return
		}

		depth := len(queue)
		c.queueDepth.Store(int64(depth))
		if depth > pendingQueueWarnThreshold {
			logger.Warn("proxy: inbound pending-packet queue exceeds alarm threshold",
				logger.ConnectionID(c.id), logger.Peer(c.peer), logger.QueueDepth(depth))
		}

		select {
		case queue <- raw:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Connection) inboundWorker(ctx context.Context, queue <-chan []byte) {
	defer recoverPanic(c.id, c.peer)
	for raw := range queue {
		c.queueDepth.Store(int64(len(queue)))
		start := time.Now()
		c.processInboundFrame(ctx, raw)
		c.packetsProcessed.Add(1)
		if c.metrics != nil {
			c.metrics.ObservePacket("inbound", time.Since(start))
		}
	}
}

// processInboundFrame runs every chained command's cache action to
// completion, then forwards the untouched original bytes to the backend —
// the "packet held until action finishes" rule of §4.F.
func (c *Connection) processInboundFrame(ctx context.Context, raw []byte) {
	if wire.IsSMB1(raw) {
		c.forwardToBackend(raw)
		return
	}

	messages, err := wire.ParseChain(raw)
	if err != nil {
		logger.Debug("proxy: unparseable inbound chain, forwarding untouched",
			logger.ConnectionID(c.id), logger.Peer(c.peer), logger.Err(err))
		c.forwardToBackend(raw)
		return
	}

	for _, msg := range messages {
		c.dispatchInbound(ctx, msg)
	}
	c.forwardToBackend(raw)

	if c.shutdownRequested.Load() && c.state.openFileCount() == 0 {
		logger.Info("proxy: graceful shutdown drain complete, closing connection",
			logger.ConnectionID(c.id), logger.Peer(c.peer))
		c.close()
	}
}

func (c *Connection) forwardToBackend(raw []byte) {
	if err := wire.WriteMessage(c.backend, raw); err != nil {
		logger.Debug("proxy: write to backend", logger.ConnectionID(c.id), logger.Peer(c.peer), logger.Err(err))
	}
}

func (c *Connection) outboundLoop(ctx context.Context, cancel context.CancelFunc) {
	defer c.wg.Done()
	defer cancel()
	defer recoverPanic(c.id, c.peer)

	reader := bufio.NewReader(c.backend)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		raw, err := wire.ReadMessage(reader)
		if err != nil {
			c.logReadError("backend", err)
			return
		}

		start := time.Now()
		c.processOutboundFrame(raw)
		c.packetsProcessed.Add(1)
		if c.metrics != nil {
			c.metrics.ObservePacket("outbound", time.Since(start))
		}
	}
}

// processOutboundFrame updates the tree/file resolution tables and
// forwards the frame to the client immediately: outbound packets are
// processed independently of inbound, in receive order (§4.F).
func (c *Connection) processOutboundFrame(raw []byte) {
	if !wire.IsSMB1(raw) {
		messages, err := wire.ParseChain(raw)
		if err != nil {
			logger.Debug("proxy: unparseable outbound chain, forwarding untouched",
				logger.ConnectionID(c.id), logger.Peer(c.peer), logger.Err(err))
		} else {
			for _, msg := range messages {
				c.dispatchOutbound(msg.Header, msg.Body)
			}
		}
	}

	if err := wire.WriteMessage(c.client, raw); err != nil {
		logger.Debug("proxy: write to client", logger.ConnectionID(c.id), logger.Peer(c.peer), logger.Err(err))
	}
}

func (c *Connection) logReadError(side string, err error) {
	if err == io.EOF {
		logger.Debug(fmt.Sprintf("proxy: %s closed connection", side), logger.ConnectionID(c.id), logger.Peer(c.peer))
		return
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		logger.Debug(fmt.Sprintf("proxy: %s read timed out", side), logger.ConnectionID(c.id), logger.Peer(c.peer), logger.Err(err))
		return
	}
	logger.Debug(fmt.Sprintf("proxy: error reading from %s", side), logger.ConnectionID(c.id), logger.Peer(c.peer), logger.Err(err))
}

// recoverPanic is deferred around each connection's goroutines, mirroring
// the teacher's per-request panic containment.
func recoverPanic(connectionID, peer string) {
	if r := recover(); r != nil {
		stack := string(debug.Stack())
		logger.Error("proxy: panic in connection handler",
			logger.ConnectionID(connectionID), logger.Peer(peer), "error", r, "stack", stack)
	}
}

