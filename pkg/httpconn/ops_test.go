package httpconn_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekscale/smbcacheproxy/pkg/httpconn"
)

func newConnector(t *testing.T, metadata, fileserver, contentStore *httptest.Server) *httpconn.Connector {
	t.Helper()
	cfg := httpconn.Config{}
	if metadata != nil {
		cfg.MetadataProxyBaseURL = metadata.URL
	}
	if fileserver != nil {
		cfg.FileserverBaseURL = fileserver.URL
	}
	if contentStore != nil {
		cfg.ContentStoreBaseURL = contentStore.URL
	}
	c, err := httpconn.New(cfg)
	require.NoError(t, err)
	return c
}

func TestGetMetadataDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, `\project\shot010\frame.exr`, r.Form.Get("path"))
		fmt.Fprint(w, `{"status":"Ok","size":1024,"mtime":1700000000}`)
	}))
	defer srv.Close()

	c := newConnector(t, srv, nil, nil)
	meta, err := c.GetMetadata(context.Background(), `\project\shot010\frame.exr`, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), meta.Size)
}

func TestGetDirListFillsEmptyMetadataMap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"Ok"}`)
	}))
	defer srv.Close()

	c := newConnector(t, srv, nil, nil)
	listing, err := c.GetDirList(context.Background(), `\project\shot010`, true)
	require.NoError(t, err)
	assert.NotNil(t, listing.FilesMetadata)
	assert.Empty(t, listing.FilesMetadata)
}

func TestGetFileWritesTempFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "frame.exr", r.Form.Get("file"))
		w.Write([]byte("raw-bytes"))
	}))
	defer srv.Close()

	c := newConnector(t, nil, srv, nil)
	dir := t.TempDir()
	path, err := c.GetFile(context.Background(), "frame.exr", dir)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "raw-bytes", string(data))
}

func TestPutFileUploadsMultipart(t *testing.T) {
	var uploaded []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `\dest\frame.exr`, r.URL.Query().Get("path"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		uploaded, _ = io.ReadAll(file)
		fmt.Fprint(w, `{"status":"Ok","path":"`+r.URL.Query().Get("path")+`","file_size":9}`)
	}))
	defer srv.Close()

	dir := t.TempDir()
	local := dir + "/frame.exr"
	require.NoError(t, os.WriteFile(local, []byte("file-data"), 0o644))

	c := newConnector(t, nil, srv, nil)
	size, err := c.PutFile(context.Background(), `\dest\frame.exr`, local)
	require.NoError(t, err)
	assert.Equal(t, int64(9), size)
	assert.Equal(t, "file-data", string(uploaded))
}

func TestDeleteFilePermanentErrorIsNotRetried(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "no such file")
	}))
	defer srv.Close()

	c := newConnector(t, nil, srv, nil)
	err := c.DeleteFile(context.Background(), "missing.exr")
	require.Error(t, err)

	var statusErr *httpconn.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, 1, hits, "a non-500 status must fail immediately without retry")
}

func TestTouchFileSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"Ok"}`)
	}))
	defer srv.Close()

	c := newConnector(t, nil, srv, nil)
	require.NoError(t, c.TouchFile(context.Background(), "frame.exr"))
}

func TestCacheFileReturnsManifestKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"Ok","key":"manifest-abc"}`)
	}))
	defer srv.Close()

	c := newConnector(t, nil, srv, nil)
	key, err := c.CacheFile(context.Background(), "frame.exr")
	require.NoError(t, err)
	assert.Equal(t, "manifest-abc", key)
}

func TestStatusAndHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"Ok","version":"1.2.3"}`)
	}))
	defer srv.Close()

	c := newConnector(t, nil, srv, nil)
	version, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", version)
	assert.NoError(t, c.HealthCheck(context.Background()))
}

func TestHealthCheckFailsWhenBackendUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newConnector(t, nil, srv, nil)
	assert.Error(t, c.HealthCheck(context.Background()))
}

func TestHeadChunkReportsPresence(t *testing.T) {
	present := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		if !present {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newConnector(t, nil, nil, srv)
	ok, err := c.HeadChunk(context.Background(), "deadbeef")
	require.NoError(t, err)
	assert.True(t, ok)

	present = false
	ok, err = c.HeadChunk(context.Background(), "deadbeef")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUploadChunkSetsPayloadHeaders(t *testing.T) {
	var gotLength, gotShasum string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLength = r.Header.Get("X-Seekscale-Payload-Length")
		gotShasum = r.Header.Get("X-Seekscale-Payload-Shasum")
	}))
	defer srv.Close()

	c := newConnector(t, nil, nil, srv)
	require.NoError(t, c.UploadChunk(context.Background(), "deadbeef", []byte("chunk-data")))
	assert.Equal(t, "10", gotLength)
	assert.Equal(t, "deadbeef", gotShasum)
}

func TestDownloadChunkStreamsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("chunk-payload"))
	}))
	defer srv.Close()

	c := newConnector(t, nil, nil, srv)
	var buf []byte
	w := &sliceWriter{&buf}
	require.NoError(t, c.DownloadChunk(context.Background(), "deadbeef", w))
	assert.Equal(t, "chunk-payload", string(buf))
}

type sliceWriter struct{ buf *[]byte }

func (w *sliceWriter) Write(p []byte) (int, error) {
	*w.buf = append(*w.buf, p...)
	return len(p), nil
}

func TestCountersTrackSuccessfulRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"Ok"}`)
	}))
	defer srv.Close()

	c := newConnector(t, nil, srv, nil)
	require.NoError(t, c.TouchFile(context.Background(), "ok.exr"))
	require.NoError(t, c.DeleteFile(context.Background(), "ok.exr"))

	assert.Equal(t, int64(2), c.Counters().Success)
}
