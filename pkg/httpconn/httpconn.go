// Package httpconn implements the bounded-concurrency async HTTP connector
// of §4.C: a single semaphore of capacity 15 gates every outbound request
// regardless of destination. Requests sent through do() carry a correlation
// id and retry transient failures with the spec's literal jittered backoff
// table; PutFile and the chunk operations (HeadChunk, UploadChunk,
// DownloadChunk) make a single attempt without a correlation id. Two transports are exposed: plain HTTP to the metadata-proxy side,
// and mutual-TLS HTTPS to the backend fileserver and the content-addressed
// entry point.
package httpconn

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/seekscale/smbcacheproxy/internal/logger"
	"github.com/seekscale/smbcacheproxy/internal/telemetry"
)

// retryDelays is the literal jittered backoff sequence of §4.C, in seconds.
var retryDelays = []float64{0, 2, 3, 5, 15, 30, 60, 60, 60, 60, 60, 60, 60, 60, 60, 60}

// Default per-request timeouts, §4.C.
const (
	TimeoutMetadata     = 10 * time.Second
	TimeoutListDir       = 45 * time.Second
	TimeoutFileMetadata = 30 * time.Second
	TimeoutRawFile      = 60 * time.Second
	TimeoutWriteQueue   = 1200 * time.Second
)

// maxConcurrency is the HTTP semaphore's fixed capacity (§4.C).
const maxConcurrency = 15

// ErrGivenUp is returned when the retry budget of §4.C is exhausted.
var ErrGivenUp = errors.New("httpconn: gave up after too many failures")

// StatusError carries the last HTTP status code of a non-retryable or
// exhausted request, per spec §7 "Permanent HTTP" / "Transient network".
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpconn: HTTP %d: %s", e.StatusCode, e.Body)
}

// TLSConfig describes the mutual-TLS material used for the backend
// fileserver and content-addressed store transports (§6, config keys
// ssl_cert/ssl_key/ssl_ca).
type TLSConfig struct {
	CertFile string
	KeyFile  string
	CAFile   string
}

func (c TLSConfig) empty() bool {
	return c.CertFile == "" && c.KeyFile == "" && c.CAFile == ""
}

func (c TLSConfig) build() (*tls.Config, error) {
	if c.empty() {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("httpconn: load client certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if c.CAFile != "" {
		ca, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("httpconn: read CA bundle: %w", err)
		}
		if !pool.AppendCertsFromPEM(ca) {
			return nil, fmt.Errorf("httpconn: no certificates parsed from %s", c.CAFile)
		}
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Counters mirrors the connector counters of §4.C.
type Counters struct {
	Pending      int64
	Success      int64
	Failure      int64
	TotalFailure int64 // gave up after retry exhaustion
}

// Connector is the bounded-concurrency HTTP executor shared by every
// component that talks to the metadata proxy, the backend fileserver, or
// the content-addressed store.
type Connector struct {
	sem *semaphore.Weighted

	plain  *http.Client // metadata proxy: plain HTTP
	mutual *http.Client // fileserver + content store: mutual TLS

	metadataProxyBase string
	fileserverBase    string
	contentStoreBase  string

	// countersMu guards counters: do() is invoked concurrently by every
	// connection's goroutine against the one shared Connector, so the
	// counter fields cannot be mutated with bare ++/--.
	countersMu sync.Mutex
	counters   Counters
}

// Config configures a Connector's destinations and TLS material.
type Config struct {
	MetadataProxyBaseURL string
	FileserverBaseURL    string
	ContentStoreBaseURL  string
	TLS                  TLSConfig
}

// New builds a Connector with the shared 15-permit semaphore and the two
// underlying transports described in §4.C.
func New(cfg Config) (*Connector, error) {
	tlsConfig, err := cfg.TLS.build()
	if err != nil {
		return nil, err
	}

	c := &Connector{
		sem:               semaphore.NewWeighted(maxConcurrency),
		plain:             &http.Client{}, // every plain request carries its own timeout
		mutual:            &http.Client{Timeout: TimeoutRawFile, Transport: &http.Transport{TLSClientConfig: tlsConfig}},
		metadataProxyBase: cfg.MetadataProxyBaseURL,
		fileserverBase:    cfg.FileserverBaseURL,
		contentStoreBase:  cfg.ContentStoreBaseURL,
	}
	return c, nil
}

// Counters returns a snapshot of the connector's request counters.
func (c *Connector) Counters() Counters {
	c.countersMu.Lock()
	defer c.countersMu.Unlock()
	return c.counters
}

// addCounter applies delta to one Counters field under countersMu.
func (c *Connector) addCounter(field *int64, delta int64) {
	c.countersMu.Lock()
	*field += delta
	c.countersMu.Unlock()
}

// requestSpec describes one logical HTTP call before retry/backoff wraps it.
type requestSpec struct {
	client  *http.Client
	method  string
	url     string
	form    url.Values
	timeout time.Duration
}

// doRequest executes a single HTTP attempt (no retry) and returns the
// response body and status code.
func (c *Connector) doRequest(ctx context.Context, spec requestSpec, requestID string) (int, []byte, error) {
	var body io.Reader
	if spec.form != nil {
		body = bytes.NewReader([]byte(spec.form.Encode()))
	}

	req, err := http.NewRequestWithContext(ctx, spec.method, spec.url, body)
	if err != nil {
		return 0, nil, fmt.Errorf("httpconn: build request: %w", err)
	}
	if spec.form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	}
	req.Header.Set("X-Request-ID", requestID)

	resp, err := spec.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("httpconn: read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

// do runs spec through the semaphore with jittered retry/backoff per §4.C:
// transport errors and HTTP 500 retry; any other non-2xx status fails
// immediately; retry exhaustion raises ErrGivenUp wrapping StatusError.
func (c *Connector) do(ctx context.Context, spec requestSpec) ([]byte, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("httpconn: acquire semaphore: %w", err)
	}
	defer c.sem.Release(1)

	requestID := uuid.NewString()
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanHTTPRequest)
	defer span.End()
	telemetry.SetAttributes(ctx,
		telemetry.HTTPRequestID(requestID),
		telemetry.HTTPMethod(spec.method),
	)

	c.addCounter(&c.counters.Pending, 1)
	defer c.addCounter(&c.counters.Pending, -1)

	var lastStatus int
	var lastBody string
	var lastErr error

	for attempt, delaySeconds := range retryDelays {
		if attempt > 0 {
			jitter := 0.75 + rand.Float64()*0.5
			wait := time.Duration(delaySeconds * jitter * float64(time.Second))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if spec.timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, spec.timeout)
		}
		status, data, err := c.doRequest(attemptCtx, spec, requestID)
		if cancel != nil {
			cancel()
		}

		telemetry.SetAttributes(ctx, telemetry.HTTPAttempt(attempt))

		if err != nil {
			lastErr = err
			logger.Warn("httpconn: transport error, will retry",
				logger.HTTPRequestID(requestID), logger.Attempt(attempt), logger.Err(err))
			continue
		}
		if status == http.StatusInternalServerError {
			lastStatus = status
			lastBody = string(data)
			logger.Warn("httpconn: HTTP 500, will retry",
				logger.HTTPRequestID(requestID), logger.Attempt(attempt))
			continue
		}
		if status >= 300 {
			c.addCounter(&c.counters.Failure, 1)
			telemetry.SetAttributes(ctx, telemetry.HTTPStatus(status))
			return nil, &StatusError{StatusCode: status, Body: string(data)}
		}

		c.addCounter(&c.counters.Success, 1)
		telemetry.SetAttributes(ctx, telemetry.HTTPStatus(status))
		return data, nil
	}

	c.addCounter(&c.counters.Failure, 1)
	c.addCounter(&c.counters.TotalFailure, 1)
	if lastErr != nil {
		telemetry.RecordError(ctx, lastErr)
		return nil, fmt.Errorf("%w: %v", ErrGivenUp, lastErr)
	}
	telemetry.RecordError(ctx, &StatusError{StatusCode: lastStatus, Body: lastBody})
	return nil, fmt.Errorf("%w: %w", ErrGivenUp, &StatusError{StatusCode: lastStatus, Body: lastBody})
}

func (c *Connector) metadataProxyURL(name string) string {
	return c.metadataProxyBase + "/" + name
}

func (c *Connector) fileserverURL(name string) string {
	return c.fileserverBase + "/" + name
}

func (c *Connector) contentStoreURL(path string) string {
	return c.contentStoreBase + path
}

// multipartBody builds a multipart/form-data body with one file field, used
// by PutFile's /put call.
func multipartBody(fieldName, fileName string, content io.Reader) (string, io.Reader, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(fieldName, fileName)
	if err != nil {
		return "", nil, err
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", nil, err
	}
	if err := w.Close(); err != nil {
		return "", nil, err
	}
	return w.FormDataContentType(), &buf, nil
}

func itoa64(n int64) string { return strconv.FormatInt(n, 10) }
