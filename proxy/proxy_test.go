package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sserelay/pkg/eventstream"
	"github.com/papercomputeco/sserelay/pkg/logger"
	"github.com/papercomputeco/sserelay/proxy/header"
)

// recordingPublisher keeps every published relay event in memory.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.RelayCompletedEvent
	closed bool
}

func (r *recordingPublisher) PublishRelay(_ context.Context, event *eventstream.RelayCompletedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingPublisher) published() []*eventstream.RelayCompletedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*eventstream.RelayCompletedEvent(nil), r.events...)
}

// chatRequest is a minimal OpenAI-format request for test fixtures.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   *bool         `json:"stream,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func boolPtr(b bool) *bool {
	return &b
}

func makeChatRequestBody(content string, stream *bool) string {
	body, err := json.Marshal(chatRequest{
		Model:    "gpt-4",
		Messages: []chatMessage{{Role: "user", Content: content}},
		Stream:   stream,
	})
	Expect(err).NotTo(HaveOccurred())
	return string(body)
}

// newTestProxy creates a Proxy pointed at the given upstream URL that records
// published relay events.
func newTestProxy(upstreamURL string) (*Proxy, *recordingPublisher) {
	pub := &recordingPublisher{}

	p, err := New(
		Config{
			ListenAddr:  ":0",
			UpstreamURL: upstreamURL,
			APIKey:      "configured-key",
			Instance:    "relay-test",
			Publisher:   pub,
		},
		logger.Nop(),
	)
	Expect(err).NotTo(HaveOccurred())
	return p, pub
}

// sseUpstream serves events one flush at a time.
func sseUpstream(events ...string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("X-Ratelimit-Remaining", "42")
		flusher, ok := w.(http.Flusher)
		Expect(ok).To(BeTrue())

		for _, event := range events {
			fmt.Fprint(w, event)
			flusher.Flush()
		}
	}))
}

func readBody(resp *http.Response) string {
	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return string(body)
}

var _ = Describe("Relay Proxy", func() {
	var (
		p        *Proxy
		pub      *recordingPublisher
		upstream *httptest.Server
	)

	AfterEach(func() {
		if p != nil {
			p.Close()
			p = nil
		}
		if upstream != nil {
			upstream.Close()
			upstream = nil
		}
	})

	Describe("New", func() {
		It("requires an upstream URL", func() {
			_, err := New(Config{}, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("upstream URL is required")))
		})
	})

	Describe("GET /healthz", func() {
		It("reports ok", func() {
			p, pub = newTestProxy("http://127.0.0.1:0")

			resp, err := p.server.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil), -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(readBody(resp)).To(MatchJSON(`{"status":"ok"}`))
		})
	})

	Context("when upstream returns an OpenAI SSE streaming response", func() {
		BeforeEach(func() {
			upstream = sseUpstream(
				"data: {\"id\":\"chatcmpl-1\", \"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n",
				"data: {\"id\":\"chatcmpl-1\", \"choices\":[{\"delta\":{\"content\":\" world\"}}]}\n",
				"\ndata: [DONE]\n\n",
			)
			p, pub = newTestProxy(upstream.URL)
		})

		It("streams the normalized frames with \\n\\n delimiters", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(makeChatRequestBody("Say hello", boolPtr(true))))

			resp, err := p.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))
			Expect(readBody(resp)).To(Equal(
				"data: {\"id\":\"chatcmpl-1\",\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n" +
					"data: {\"id\":\"chatcmpl-1\",\"choices\":[{\"delta\":{\"content\":\" world\"}}]}\n\n" +
					"data: [DONE]\n\n",
			))
		})

		It("streams when the client only sends Accept: text/event-stream", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(makeChatRequestBody("Say hello", nil)))
			req.Header.Set("Accept", "text/event-stream")

			resp, err := p.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(readBody(resp)).To(HaveSuffix("data: [DONE]\n\n"))

			Eventually(pub.published).Should(HaveLen(1))
			Expect(pub.published()[0].RequestMeta.Streaming).To(BeTrue())
		})

		It("forwards upstream response headers and a request ID", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(makeChatRequestBody("Say hello", boolPtr(true))))
			req.Header.Set(header.RequestIDHeader, "client-req-1")

			resp, err := p.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.Header.Get("X-Ratelimit-Remaining")).To(Equal("42"))
			Expect(resp.Header.Get(header.RequestIDHeader)).To(Equal("client-req-1"))
		})

		It("publishes a relay completed event", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(makeChatRequestBody("Say hello", boolPtr(true))))

			resp, err := p.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			readBody(resp)
			resp.Body.Close()

			Eventually(pub.published).Should(HaveLen(1))
			event := pub.published()[0]

			Expect(event.EventType).To(Equal(eventstream.EventTypeRelayCompleted))
			Expect(event.Source.Instance).To(Equal("relay-test"))
			Expect(event.Source.Upstream).To(Equal(upstream.URL))
			Expect(event.RequestMeta.RequestID).To(Equal(resp.Header.Get(header.RequestIDHeader)))
			Expect(event.RequestMeta.Path).To(Equal("/v1/chat/completions"))
			Expect(event.Outcome.State).To(Equal("terminated"))
			Expect(event.Outcome.Frames).To(Equal(3))
			Expect(event.Outcome.UpstreamDone).To(BeTrue())
			Expect(event.Outcome.Error).To(BeEmpty())
		})

		It("collects the frames into one body for non-streaming requests", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(makeChatRequestBody("Say hello", boolPtr(false))))

			resp, err := p.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(readBody(resp)).To(Equal(
				"data: {\"id\":\"chatcmpl-1\",\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n" +
					"data: {\"id\":\"chatcmpl-1\",\"choices\":[{\"delta\":{\"content\":\" world\"}}]}\n\n" +
					"data: [DONE]\n\n",
			))

			Eventually(pub.published).Should(HaveLen(1))
			Expect(pub.published()[0].RequestMeta.Streaming).To(BeFalse())
		})
	})

	Context("when upstream SSE carries event lines and comments", func() {
		BeforeEach(func() {
			upstream = sseUpstream(
				": keep-alive\n\n",
				"event: message_start\ndata: {\"type\":\"message_start\"}\n\n",
				"data: not json\n\n",
			)
			p, pub = newTestProxy(upstream.URL)
		})

		It("passes non-JSON records through and appends the terminal marker", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(makeChatRequestBody("Hi", boolPtr(true))))

			resp, err := p.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(readBody(resp)).To(Equal(
				"data: : keep-alive\n\n" +
					"data: event: message_start\ndata: {\"type\":\"message_start\"}\n\n" +
					"data: not json\n\n" +
					"data: [DONE]\n\n",
			))

			Eventually(pub.published).Should(HaveLen(1))
			Expect(pub.published()[0].Outcome.UpstreamDone).To(BeFalse())
		})
	})

	Context("when the upstream drops mid-stream", func() {
		BeforeEach(func() {
			upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				// Declaring a longer body than is sent makes the relay see
				// an unexpected EOF once the handler returns.
				w.Header().Set("Content-Length", "4096")
				fmt.Fprint(w, "data: {\"n\":1}\n\n")
				w.(http.Flusher).Flush()
			}))
			p, pub = newTestProxy(upstream.URL)
		})

		It("ends the response with a single error frame and no terminal marker", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(makeChatRequestBody("Hi", boolPtr(true))))

			resp, err := p.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			body := readBody(resp)
			Expect(body).To(HavePrefix("data: {\"n\":1}\n\ndata: {\"error\":"))
			Expect(body).To(HaveSuffix("\n\n"))
			Expect(strings.Count(body, "{\"error\":")).To(Equal(1))
			Expect(body).NotTo(ContainSubstring("[DONE]"))

			Eventually(pub.published).Should(HaveLen(1))
			Expect(pub.published()[0].Outcome.State).To(Equal("failed"))
			Expect(pub.published()[0].Outcome.Error).NotTo(BeEmpty())
		})
	})

	Context("credential and header forwarding", func() {
		var (
			mu      sync.Mutex
			gotAuth string
			gotURL  string
			gotID   string
			gotBody []byte
		)

		BeforeEach(func() {
			upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				gotAuth = r.Header.Get("Authorization")
				gotURL = r.URL.String()
				gotID = r.Header.Get(header.RequestIDHeader)
				gotBody, _ = io.ReadAll(r.Body)
				mu.Unlock()

				w.Header().Set("Content-Type", "text/event-stream")
				fmt.Fprint(w, "data: [DONE]\n\n")
			}))
			p, pub = newTestProxy(upstream.URL + "/")
		})

		send := func(authorization string) *http.Response {
			req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions?api-version=2024", strings.NewReader(makeChatRequestBody("Hi", boolPtr(true))))
			if authorization != "" {
				req.Header.Set("Authorization", authorization)
			}
			resp, err := p.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			readBody(resp)
			resp.Body.Close()
			return resp
		}

		It("uses the configured API key when the client sends none", func() {
			send("")

			mu.Lock()
			defer mu.Unlock()
			Expect(gotAuth).To(Equal("Bearer configured-key"))
		})

		It("uses a replaced API key for subsequent relays", func() {
			p.SetAPIKey("rotated-key")
			Expect(p.APIKey()).To(Equal("rotated-key"))

			send("")

			mu.Lock()
			defer mu.Unlock()
			Expect(gotAuth).To(Equal("Bearer rotated-key"))
		})

		It("prefers the client's bearer token", func() {
			send("Bearer client-key")

			mu.Lock()
			defer mu.Unlock()
			Expect(gotAuth).To(Equal("Bearer client-key"))
		})

		It("forwards the path, query, body and request ID", func() {
			resp := send("")

			mu.Lock()
			defer mu.Unlock()
			Expect(gotURL).To(Equal("/v1/chat/completions?api-version=2024"))
			Expect(string(gotBody)).To(MatchJSON(makeChatRequestBody("Hi", boolPtr(true))))
			Expect(gotID).NotTo(BeEmpty())
			Expect(gotID).To(Equal(resp.Header.Get(header.RequestIDHeader)))
		})
	})

	Context("when the upstream rejects the request", func() {
		BeforeEach(func() {
			upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprint(w, `{"error":{"message":"invalid api key"}}`)
			}))
			p, pub = newTestProxy(upstream.URL)
		})

		It("passes the upstream status and body through without a stream", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(makeChatRequestBody("Hi", boolPtr(true))))

			resp, err := p.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(readBody(resp)).To(MatchJSON(`{"error":{"message":"invalid api key"}}`))
			Consistently(pub.published).Should(BeEmpty())
		})
	})

	Context("when the upstream is unreachable", func() {
		BeforeEach(func() {
			upstream = httptest.NewServer(http.NotFoundHandler())
			url := upstream.URL
			upstream.Close()
			upstream = nil

			p, pub = newTestProxy(url)
		})

		It("answers 502 with a JSON error", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(makeChatRequestBody("Hi", boolPtr(true))))

			resp, err := p.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
			Expect(readBody(resp)).To(MatchJSON(`{"error":"upstream request failed"}`))
		})
	})

	Describe("Close", func() {
		It("closes the event publisher", func() {
			p, pub = newTestProxy("http://127.0.0.1:0")
			Expect(p.Close()).To(Succeed())
			p = nil

			pub.mu.Lock()
			defer pub.mu.Unlock()
			Expect(pub.closed).To(BeTrue())
		})
	})
})
