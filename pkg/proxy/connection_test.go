package proxy

import (
	"bufio"
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekscale/smbcacheproxy/internal/protocol/smb2"
	"github.com/seekscale/smbcacheproxy/pkg/wire"
)

func negotiateFrame(messageID uint64) []byte {
	h := make([]byte, wire.HeaderSize)
	binary.LittleEndian.PutUint32(h[0:4], smb2.SMB2ProtocolID)
	binary.LittleEndian.PutUint16(h[4:6], wire.HeaderSize)
	binary.LittleEndian.PutUint16(h[12:14], uint16(smb2.CommandNegotiate))
	binary.LittleEndian.PutUint64(h[24:32], messageID)
	return h
}

// TestServeRelaysFramesInBothDirections drives a full Serve() loop over a
// pair of net.Pipe connections, verifying the NetBIOS framing and the
// inbound/outbound goroutine wiring end to end rather than calling dispatch
// methods directly (as dispatch_test.go does).
func TestServeRelaysFramesInBothDirections(t *testing.T) {
	clientLocal, clientRemote := net.Pipe()
	backendLocal, backendRemote := net.Pipe()
	t.Cleanup(func() {
		_ = clientLocal.Close()
		_ = clientRemote.Close()
		_ = backendLocal.Close()
		_ = backendRemote.Close()
	})

	conn := NewConnection(clientRemote, backendRemote, Config{}, &fakeActions{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan struct{})
	go func() {
		conn.Serve(ctx)
		close(done)
	}()

	request := negotiateFrame(1)
	require.NoError(t, wire.WriteMessage(clientLocal, request))

	backendReader := bufio.NewReader(backendLocal)
	gotRequest, err := wire.ReadMessage(backendReader)
	require.NoError(t, err)
	assert.Equal(t, request, gotRequest, "inbound frame must reach the backend byte-for-byte")

	response := negotiateFrame(1)
	require.NoError(t, wire.WriteMessage(backendLocal, response))

	clientReader := bufio.NewReader(clientLocal)
	gotResponse, err := wire.ReadMessage(clientReader)
	require.NoError(t, err)
	assert.Equal(t, response, gotResponse, "outbound frame must reach the client byte-for-byte")

	require.Eventually(t, func() bool {
		return conn.PacketsProcessed() == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
}

func TestRequestShutdownClosesConnectionOnceFilesAreDrained(t *testing.T) {
	clientLocal, clientRemote := net.Pipe()
	backendLocal, backendRemote := net.Pipe()
	t.Cleanup(func() {
		_ = clientLocal.Close()
		_ = clientRemote.Close()
		_ = backendLocal.Close()
		_ = backendRemote.Close()
	})

	conn := NewConnection(clientRemote, backendRemote, Config{}, &fakeActions{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan struct{})
	go func() {
		conn.Serve(ctx)
		close(done)
	}()

	// Drain the backend side so the forwarded frame does not block the pipe.
	go func() { _, _ = wire.ReadMessage(bufio.NewReader(backendLocal)) }()
	conn.RequestShutdown()
	require.NoError(t, wire.WriteMessage(clientLocal, negotiateFrame(1)))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("connection was not closed after graceful shutdown with no open files")
	}
}
