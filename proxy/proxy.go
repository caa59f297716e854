// Package proxy provides the sserelay HTTP server: it forwards chat requests to
// an upstream LLM provider and answers with the normalized frame stream.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/google/uuid"

	"github.com/papercomputeco/sserelay/pkg/collector"
	"github.com/papercomputeco/sserelay/pkg/eventstream"
	"github.com/papercomputeco/sserelay/pkg/eventstream/nop"
	"github.com/papercomputeco/sserelay/pkg/logger"
	"github.com/papercomputeco/sserelay/pkg/relay"
	"github.com/papercomputeco/sserelay/pkg/sse"
	"github.com/papercomputeco/sserelay/proxy/header"
	"github.com/papercomputeco/sserelay/proxy/worker"
)

// ErrorResponse is the JSON body returned when a request cannot be relayed.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Proxy is a relay server. Each POST is forwarded to the upstream LLM provider
// and its event stream is normalized on the way back, either streamed live or
// collected into a single body. Finished relays are published as events via
// the worker pool.
type Proxy struct {
	config        Config
	client        *relay.Client
	workerPool    *worker.Pool
	logger        *slog.Logger
	server        *fiber.App
	headerHandler *header.Handler

	// apiKey holds the fallback upstream credential. It starts as
	// config.APIKey and may be swapped at runtime via SetAPIKey.
	apiKey atomic.Pointer[string]
}

// New creates a new Proxy.
// Returns an error if no upstream URL is configured.
func New(config Config, log *slog.Logger) (*Proxy, error) {
	if config.UpstreamURL == "" {
		return nil, errors.New("upstream URL is required")
	}
	config.UpstreamURL = strings.TrimRight(config.UpstreamURL, "/")

	if log == nil {
		log = logger.Nop()
	}

	if config.Publisher == nil {
		config.Publisher = nop.NewPublisher()
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
	})

	// Add compression middleware to handle responses
	app.Use(compress.New())

	wp, err := worker.NewPool(&worker.Config{
		Publisher: config.Publisher,
		Logger:    log,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	p := &Proxy{
		config:     config,
		workerPool: wp,
		logger:     log,
		server:     app,
		client: relay.NewClient(
			relay.WithTimeout(config.Timeout),
			relay.WithLogger(log),
		),
		headerHandler: header.NewHandler(),
	}
	p.SetAPIKey(config.APIKey)

	app.Get("/healthz", p.handleHealth)

	// Every other POST is relayed to the same path upstream.
	app.Post("/*", p.handleRelay)

	return p, nil
}

// Run starts the relay server on the given listening address
func (p *Proxy) Run() error {
	p.logger.Info("starting relay server",
		"listen", p.config.ListenAddr,
		"upstream", p.config.UpstreamURL,
	)

	return p.server.Listen(p.config.ListenAddr)
}

// RunWithListener starts the relay server using the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting relay server",
		"listen", listener.Addr().String(),
		"upstream", p.config.UpstreamURL,
	)

	return p.server.Listener(listener)
}

// Close gracefully shuts down the server, waits for the worker pool to drain,
// and closes the event publisher.
func (p *Proxy) Close() error {
	serverErr := p.server.Shutdown()
	p.workerPool.Close()

	return errors.Join(serverErr, p.config.Publisher.Close())
}

// SetAPIKey replaces the fallback upstream credential. Relays already in
// flight keep the credential they started with.
func (p *Proxy) SetAPIKey(key string) {
	p.apiKey.Store(&key)
}

// APIKey returns the current fallback upstream credential.
func (p *Proxy) APIKey() string {
	if k := p.apiKey.Load(); k != nil {
		return *k
	}
	return ""
}

func (p *Proxy) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleRelay opens the upstream stream for the request and answers with the
// normalized frame stream.
func (p *Proxy) handleRelay(c *fiber.Ctx) error {
	startTime := time.Now()

	requestID := c.Get(header.RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(header.RequestIDHeader, requestID)

	path := c.Path()
	upstreamURL := p.config.UpstreamURL + path
	if q := c.Request().URI().QueryString(); len(q) > 0 {
		upstreamURL += "?" + string(q)
	}

	// fasthttp reuses the request body buffer once the handler returns, but
	// the relay keeps reading the upstream after that in streaming mode.
	body := bytes.Clone(c.Body())
	streaming := p.headerHandler.AcceptsEventStream(c) || requestsStream(body)

	upstreamHeader := p.headerHandler.UpstreamRequestHeaders(c)
	upstreamHeader.Set(header.RequestIDHeader, requestID)

	req := relay.Request{
		URL:        upstreamURL,
		Payload:    body,
		Credential: p.headerHandler.Credential(c, p.APIKey()),
		Header:     upstreamHeader,
	}

	p.logger.Debug("relaying request to upstream",
		"request_id", requestID,
		"url", upstreamURL,
		"streaming", streaming,
	)

	// Use context.Background() instead of c.Context() because fasthttp recycles
	// its RequestCtx after the handler returns, but the relay runs
	// asynchronously in a separate goroutine and needs the upstream connection
	// to remain open. The relay client timeout bounds the exchange.
	up, err := p.client.Open(context.Background(), req)
	if err != nil {
		return p.upstreamError(c, requestID, err)
	}

	p.headerHandler.SetClientResponseHeaders(c, up.Header())
	c.Set(fiber.HeaderContentType, sse.ContentType)
	c.Set(fiber.HeaderCacheControl, "no-cache")

	frames := p.client.Relay(context.Background(), up,
		relay.WithOnComplete(p.onRelayComplete(requestID, path, streaming, startTime)),
	)

	if streaming {
		// The relay writes into an io.Pipe: each frame write blocks until
		// fasthttp has consumed it, which gives direct backpressure and true
		// per-frame streaming. Unknown size (-1) triggers chunked transfer
		// encoding in fasthttp.
		c.Context().Response.SetBodyStream(frames, -1)
		return nil
	}

	defer frames.Close()

	text, err := collector.Collect(c.Context(), frames)
	if err != nil {
		p.logger.Error("collecting relay output failed",
			"request_id", requestID,
			"error", err,
		)
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Error: "failed to read upstream response"})
	}

	return c.Status(fiber.StatusOK).SendString(text)
}

// upstreamError maps a failed upstream request onto the client response. A
// non-2xx upstream answer is passed through with its status and body.
func (p *Proxy) upstreamError(c *fiber.Ctx, requestID string, err error) error {
	p.logger.Error("upstream request failed",
		"request_id", requestID,
		"error", err,
	)

	var reqErr *relay.UpstreamRequestError
	if errors.As(err, &reqErr) && reqErr.StatusCode != 0 {
		return c.Status(reqErr.StatusCode).Send(reqErr.Body)
	}

	return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Error: "upstream request failed"})
}

// onRelayComplete returns the completion hook that logs the finished relay and
// enqueues its lifecycle event for async publication.
func (p *Proxy) onRelayComplete(requestID, path string, streaming bool, startTime time.Time) func(relay.Result) {
	return func(res relay.Result) {
		outcome := eventstream.RelayOutcome{
			State:        res.State.String(),
			Frames:       res.Frames,
			UpstreamDone: res.UpstreamDone,
		}
		if res.Err != nil {
			outcome.Error = res.Err.Error()
		}

		completedAt := time.Now()
		p.logger.Info("relay completed",
			"request_id", requestID,
			"path", path,
			"state", outcome.State,
			"frames", outcome.Frames,
			"duration", completedAt.Sub(startTime),
		)

		event := eventstream.NewRelayCompletedEvent(
			eventstream.EventSource{
				Instance: p.config.Instance,
				Upstream: p.config.UpstreamURL,
			},
			eventstream.RelayRequestMeta{
				RequestID:   requestID,
				Path:        path,
				StartedAt:   startTime.UTC(),
				CompletedAt: completedAt.UTC(),
				DurationMs:  completedAt.Sub(startTime).Milliseconds(),
				Streaming:   streaming,
			},
			outcome,
		)

		// Non-blocking enqueue for async publication
		p.workerPool.Enqueue(worker.Job{Event: event})
	}
}

// requestsStream reports whether a JSON request body sets "stream": true.
func requestsStream(body []byte) bool {
	var streamCheck struct {
		Stream *bool `json:"stream"`
	}
	if err := json.Unmarshal(body, &streamCheck); err != nil || streamCheck.Stream == nil {
		return false
	}
	return *streamCheck.Stream
}
