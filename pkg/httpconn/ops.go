package httpconn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/seekscale/smbcacheproxy/pkg/metacache"
)

// envelope is the JSON envelope every backend HTTP endpoint returns, per §6:
// {status:"Ok", ...} or {status:"Ko", error:<trace>} with HTTP 500.
type envelope struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Raw    json.RawMessage `json:"-"`
}

func decodeEnvelope(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("httpconn: decode response: %w", err)
	}
	return nil
}

// GetMetadata implements metacache.Backend, issuing /file_metadata.json
// against the metadata proxy (§6).
func (c *Connector) GetMetadata(ctx context.Context, path string, force bool) (*metacache.FileMetadata, error) {
	form := url.Values{"path": {path}}
	if force {
		form.Set("force_refresh", "TRUE")
	}
	data, err := c.do(ctx, requestSpec{
		client:  c.plain,
		method:  http.MethodPost,
		url:     c.metadataProxyURL("file_metadata.json"),
		form:    form,
		timeout: TimeoutFileMetadata,
	})
	if err != nil {
		return nil, err
	}
	var meta metacache.FileMetadata
	if err := decodeEnvelope(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// GetDirList implements metacache.Backend, issuing /list_dir.json.
func (c *Connector) GetDirList(ctx context.Context, dir string, force bool) (*metacache.DirListing, error) {
	form := url.Values{"dir": {dir}}
	if force {
		form.Set("force_refresh", "TRUE")
	}
	data, err := c.do(ctx, requestSpec{
		client:  c.plain,
		method:  http.MethodPost,
		url:     c.metadataProxyURL("list_dir.json"),
		form:    form,
		timeout: TimeoutListDir,
	})
	if err != nil {
		return nil, err
	}
	var listing metacache.DirListing
	if err := decodeEnvelope(data, &listing); err != nil {
		return nil, err
	}
	if listing.FilesMetadata == nil {
		listing.FilesMetadata = map[string]*metacache.FileMetadata{}
	}
	return &listing, nil
}

// GetFile downloads raw bytes for path from the backend fileserver's /get
// endpoint into a fresh temp file under dir, returning its path. Callers
// performing large-file transfers use pkg/transfer instead; this is the
// inline (small-file) path of §4.D's eligibility rule.
func (c *Connector) GetFile(ctx context.Context, path, dir string) (string, error) {
	form := url.Values{"file": {path}}
	data, err := c.do(ctx, requestSpec{
		client:  c.mutual,
		method:  http.MethodPost,
		url:     c.fileserverURL("get"),
		form:    form,
		timeout: TimeoutRawFile,
	})
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(dir, "seekscale-get-*")
	if err != nil {
		return "", fmt.Errorf("httpconn: create temp file: %w", err)
	}
	defer func() { _ = tmp.Close() }()
	if _, err := tmp.Write(data); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("httpconn: write temp file: %w", err)
	}
	return tmp.Name(), nil
}

// PutFile uploads the file at localPath to the backend fileserver's /put
// endpoint as multipart/form-data, the inline (small-file) write path.
func (c *Connector) PutFile(ctx context.Context, path, localPath string) (int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("httpconn: open local file: %w", err)
	}
	defer func() { _ = f.Close() }()

	contentType, body, err := multipartBody("file", path, f)
	if err != nil {
		return 0, fmt.Errorf("httpconn: build multipart body: %w", err)
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return 0, fmt.Errorf("httpconn: acquire semaphore: %w", err)
	}
	defer c.sem.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.fileserverURL("put"), body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", contentType)
	req.URL.RawQuery = url.Values{"path": {path}}.Encode()

	resp, err := c.mutual.Do(req)
	if err != nil {
		c.addCounter(&c.counters.Failure, 1)
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode >= 300 {
		c.addCounter(&c.counters.Failure, 1)
		return 0, &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	var out struct {
		Path     string `json:"path"`
		FileSize int64  `json:"file_size"`
	}
	if err := decodeEnvelope(data, &out); err != nil {
		return 0, err
	}
	c.addCounter(&c.counters.Success, 1)
	return out.FileSize, nil
}

// DeleteFile calls /delete_file.json; a missing remote file is a NOP per §6.
func (c *Connector) DeleteFile(ctx context.Context, path string) error {
	_, err := c.do(ctx, requestSpec{
		client:  c.mutual,
		method:  http.MethodPost,
		url:     c.fileserverURL("delete_file.json"),
		form:    url.Values{"file": {path}},
		timeout: TimeoutMetadata,
	})
	return err
}

// TouchFile calls /touch_file.json, the advisory "being written" hint.
func (c *Connector) TouchFile(ctx context.Context, path string) error {
	_, err := c.do(ctx, requestSpec{
		client:  c.mutual,
		method:  http.MethodPost,
		url:     c.fileserverURL("touch_file.json"),
		form:    url.Values{"file": {path}},
		timeout: TimeoutMetadata,
	})
	return err
}

// CacheFile calls /cache_file3.json, asking the fileserver to ingest path
// into the content-addressed store and return its manifest key.
func (c *Connector) CacheFile(ctx context.Context, path string) (string, error) {
	data, err := c.do(ctx, requestSpec{
		client:  c.mutual,
		method:  http.MethodPost,
		url:     c.fileserverURL("cache_file3.json"),
		form:    url.Values{"path": {path}},
		timeout: TimeoutWriteQueue,
	})
	if err != nil {
		return "", err
	}
	var out struct {
		Key string `json:"key"`
	}
	if err := decodeEnvelope(data, &out); err != nil {
		return "", err
	}
	return out.Key, nil
}

// Status calls /status.json, used by the HEALTH management command.
func (c *Connector) Status(ctx context.Context) (string, error) {
	data, err := c.do(ctx, requestSpec{
		client:  c.mutual,
		method:  http.MethodGet,
		url:     c.fileserverURL("status.json"),
		timeout: TimeoutMetadata,
	})
	if err != nil {
		return "", err
	}
	var out struct {
		Version string `json:"version"`
	}
	if err := decodeEnvelope(data, &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

// HealthCheck implements pkg/mgmt.HealthChecker by calling Status.
func (c *Connector) HealthCheck(ctx context.Context) error {
	_, err := c.Status(ctx)
	return err
}

// HeadChunk probes the content-addressed store for a chunk's presence via
// HEAD /get/<sha>; 200 means present (§4.D, §6).
func (c *Connector) HeadChunk(ctx context.Context, sha string) (bool, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer c.sem.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.contentStoreURL("/get/"+sha), nil)
	if err != nil {
		return false, err
	}
	resp, err := c.mutual.Do(req)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK, nil
}

// UploadChunk POSTs chunk bytes to /upload with the payload-length/shasum
// headers the content-addressed store verifies (§4.D, §6).
func (c *Connector) UploadChunk(ctx context.Context, sha string, data []byte) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.contentStoreURL("/upload"), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("X-Seekscale-Payload-Length", itoa64(int64(len(data))))
	req.Header.Set("X-Seekscale-Payload-Shasum", sha)
	req.ContentLength = int64(len(data))

	resp, err := c.mutual.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}

// DownloadChunk streams GET /get/<sha> into w.
func (c *Connector) DownloadChunk(ctx context.Context, sha string, w io.Writer) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.contentStoreURL("/get/"+sha), nil)
	if err != nil {
		return err
	}
	resp, err := c.mutual.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("httpconn: stream chunk: %w", err)
	}
	return nil
}
