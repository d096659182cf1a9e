package mgmt_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekscale/smbcacheproxy/pkg/fscache"
	"github.com/seekscale/smbcacheproxy/pkg/httpconn"
	"github.com/seekscale/smbcacheproxy/pkg/mgmt"
	"github.com/seekscale/smbcacheproxy/pkg/proxy"
)

type fakeProxyController struct {
	stats        proxy.Stats
	shuttingDown bool
	shutdownHit  bool
}

func (f *fakeProxyController) Snapshot() proxy.Stats { return f.stats }
func (f *fakeProxyController) ShuttingDown() bool     { return f.shuttingDown }
func (f *fakeProxyController) ListenAddress() string  { return "0.0.0.0" }
func (f *fakeProxyController) ListenPort() int        { return 445 }
func (f *fakeProxyController) Shutdown()              { f.shutdownHit = true }

type fakeActionSource struct{ actions []fscache.ActiveAction }

func (f *fakeActionSource) ActiveActions() []fscache.ActiveAction { return f.actions }

type fakeMetadataSource struct{ size int }

func (f *fakeMetadataSource) LocalCacheSize() int { return f.size }

type fakeHTTPSource struct{ counters httpconn.Counters }

func (f *fakeHTTPSource) Counters() httpconn.Counters { return f.counters }

type fakeHealthChecker struct{ err error }

func (f *fakeHealthChecker) HealthCheck(context.Context) error { return f.err }

func newTestServer(t *testing.T, pc *fakeProxyController) (*mgmt.Server, string) {
	t.Helper()
	dir := t.TempDir()
	sock := filepath.Join(dir, "mgmt.sock")
	srv := mgmt.New(mgmt.Config{
		SocketPath:    sock,
		StatsPath:     filepath.Join(dir, "mgmt.stats"),
		StatsInterval: time.Hour,
	}, pc, &fakeActionSource{}, &fakeMetadataSource{size: 3}, &fakeHTTPSource{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	require.Eventually(t, func() bool {
		conn, err := net.Dial("unix", sock)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond, "management socket never came up")

	return srv, sock
}

func sendCommand(t *testing.T, sock, cmd string) string {
	t.Helper()
	conn, err := net.Dial("unix", sock)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(cmd + "\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	return line
}

func TestServerStatsReportsProxyAndCacheState(t *testing.T) {
	pc := &fakeProxyController{stats: proxy.Stats{ConnectionCount: 2}}
	_, sock := newTestServer(t, pc)

	line := sendCommand(t, sock, "STATS")

	var stats mgmt.Stats
	require.NoError(t, json.Unmarshal([]byte(line), &stats))
	assert.Equal(t, 2, stats.ConnectionCount)
	assert.Equal(t, 3, stats.MetadataCacheSize)
	assert.Equal(t, "0.0.0.0", stats.ListenAddress)
	assert.Equal(t, 445, stats.ListenPort)
}

func TestServerShutdownInvokesProxyController(t *testing.T) {
	pc := &fakeProxyController{}
	_, sock := newTestServer(t, pc)

	line := sendCommand(t, sock, "SHUTDOWN")
	assert.Equal(t, "OK\n", line)
	assert.True(t, pc.shutdownHit)
}

func TestServerHealthAggregatesRegisteredCheckers(t *testing.T) {
	pc := &fakeProxyController{}
	srv, sock := newTestServer(t, pc)

	srv.RegisterHealthCheck("kv", &fakeHealthChecker{})
	srv.RegisterHealthCheck("fileserver", &fakeHealthChecker{err: errors.New("unreachable")})

	line := sendCommand(t, sock, "HEALTH")

	var statuses []mgmt.HealthStatus
	require.NoError(t, json.Unmarshal([]byte(line), &statuses))
	require.Len(t, statuses, 2)

	byName := map[string]mgmt.HealthStatus{}
	for _, s := range statuses {
		byName[s.Name] = s
	}
	assert.True(t, byName["kv"].OK)
	assert.False(t, byName["fileserver"].OK)
	assert.Equal(t, "unreachable", byName["fileserver"].Err)
}

func TestServerUnknownCommandReturnsError(t *testing.T) {
	pc := &fakeProxyController{}
	_, sock := newTestServer(t, pc)

	line := sendCommand(t, sock, "BOGUS")
	assert.Contains(t, line, "ERROR")
}
