package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/papercomputeco/sserelay/pkg/logger"
	"github.com/papercomputeco/sserelay/pkg/sse"
)

const (
	// defaultTimeout bounds a whole upstream exchange. LLM requests can be
	// slow, especially with thinking blocks.
	defaultTimeout = 5 * time.Minute

	// maxErrorBody bounds how much of a non-2xx upstream body is retained.
	maxErrorBody = 64 * 1024
)

// Request describes one upstream streaming request.
type Request struct {
	// URL is the full upstream endpoint.
	URL string

	// Payload is the JSON request body.
	Payload []byte

	// Credential is sent as "Authorization: Bearer <Credential>" when set.
	Credential string

	// Header carries additional request headers. Authorization, Accept and
	// Content-Type are always set by the client.
	Header http.Header
}

// Client opens upstream streams and relays them.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	chunkSize  int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithChunkSize bounds the size of a single upstream read.
func WithChunkSize(n int) ClientOption {
	return func(c *Client) {
		c.chunkSize = n
	}
}

// NewClient creates a Client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger.Nop(),
		chunkSize:  defaultChunkSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upstream is an open upstream stream. It is a ChunkSource and must be closed.
type Upstream struct {
	*ReaderSource

	resp *http.Response
}

// Header returns the upstream response headers.
func (u *Upstream) Header() http.Header {
	return u.resp.Header
}

// StatusCode returns the upstream response status.
func (u *Upstream) StatusCode() int {
	return u.resp.StatusCode
}

// Close releases the upstream connection.
func (u *Upstream) Close() error {
	return u.resp.Body.Close()
}

// Open dispatches req and returns the open upstream stream. Failures are
// returned as *UpstreamRequestError; no stream exists in that case.
func (c *Client) Open(ctx context.Context, req Request) (*Upstream, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Payload))
	if err != nil {
		return nil, &UpstreamRequestError{URL: req.URL, Err: err}
	}

	for k, v := range req.Header {
		httpReq.Header[k] = append([]string(nil), v...)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", sse.ContentType)
	if req.Credential != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Credential)
	}

	c.logger.Debug("opening upstream stream", "url", req.URL)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &UpstreamRequestError{URL: req.URL, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()

		c.logger.Error("upstream returned error",
			"url", req.URL,
			"status", resp.StatusCode,
		)
		return nil, &UpstreamRequestError{
			URL:        req.URL,
			StatusCode: resp.StatusCode,
			Body:       body,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	return &Upstream{
		ReaderSource: NewReaderSource(resp.Body, c.chunkSize),
		resp:         resp,
	}, nil
}

// streamConfig collects StreamOption settings.
type streamConfig struct {
	onComplete []func(Result)
}

// StreamOption configures a single Stream call.
type StreamOption func(*streamConfig)

// WithOnComplete registers fn to run with the relay Result once the frame
// stream has been closed.
func WithOnComplete(fn func(Result)) StreamOption {
	return func(sc *streamConfig) {
		sc.onComplete = append(sc.onComplete, fn)
	}
}

// Stream opens the upstream and relays it in a background goroutine,
// returning the normalized frame stream. Upstream request failures are
// returned directly and no stream is produced.
func (c *Client) Stream(ctx context.Context, req Request, opts ...StreamOption) (io.ReadCloser, error) {
	up, err := c.Open(ctx, req)
	if err != nil {
		return nil, err
	}

	return c.Relay(ctx, up, opts...), nil
}

// Relay relays an already open upstream in a background goroutine and
// returns the normalized frame stream. The upstream is closed when the relay
// finishes.
//
// The returned reader is backed by an io.Pipe: the relay blocks on each frame
// until the caller reads it, so a slow consumer pauses the relay instead of
// growing a buffer. Closing the reader early stops the relay and releases the
// upstream.
func (c *Client) Relay(ctx context.Context, up *Upstream, opts ...StreamOption) io.ReadCloser {
	sc := &streamConfig{}
	for _, opt := range opts {
		opt(sc)
	}

	pr, pw := io.Pipe()
	go func() {
		defer up.Close()

		r := New(c.logger)
		if err := r.Run(ctx, up, pw); err != nil {
			c.logger.Debug("relay finished with error", "error", err)
		}

		res := r.Result()
		for _, fn := range sc.onComplete {
			fn(res)
		}
	}()

	return pr
}
