// Package header provides header filtering for the sserelay server.
//
// The relay sits between a client and an upstream LLM provider like so:
//
//	Client <--> Relay <--> Upstream LLM Provider
//
// and headers are handled accordingly as each leg negotiates compression, hops,
// encoding, etc. independently.
package header

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Handler manages headers between relay connections.
type Handler struct{}

// NewHandler creates a new header Handler.
func NewHandler() *Handler {
	return &Handler{}
}

const (
	// RequestIDHeader carries the relay request ID in both directions.
	RequestIDHeader = "X-Request-Id"

	// bearerPrefix is the Authorization scheme accepted from clients.
	bearerPrefix = "Bearer "
)

// skipRequest is the set of request headers (client --> relay --> upstream)
// that are not forwarded to the upstream LLM provider.
var skipRequest = map[string]struct{}{
	// Hop-by-hop headers: only meaningful for a single transport-level connection.
	"Connection": {},

	// The Host header is rewritten by Go's http.Transport to match the
	// upstream URL. Forwarding the client's Host would confuse virtual-hosted
	// upstreams.
	"Host": {},

	// Accept-Encoding is stripped so that Go's http.Transport adds its own
	// "Accept-Encoding: gzip" and transparently decompresses the upstream
	// response.
	"Accept-Encoding": {},

	// The relay client always negotiates an event stream with a JSON body and
	// resolves the bearer credential itself.
	"Accept":         {},
	"Content-Type":   {},
	"Content-Length": {},
	"Authorization":  {},
}

// skipResponse is the set of upstream response headers (client <-- relay <-- upstream)
// that are not copied back to the downstream client.
var skipResponse = map[string]struct{}{
	// Hop-by-hop headers: only meaningful for a single transport-level connection.
	"Connection": {},

	// Hop-by-hop headers: fasthttp manages chunked transfer encoding for the
	// client-facing response independently.
	"Transfer-Encoding": {},

	// The relay always reads a decompressed body (Go's http.Transport strips
	// Content-Encoding after auto-decompression). Forwarding a stale
	// Content-Encoding would claim an encoding the body no longer has.
	// Fiber's compress middleware sets the correct Content-Encoding when it
	// re-compresses the response back down to the client.
	"Content-Encoding": {},

	// The relay rewrites every frame, so the upstream length never matches.
	"Content-Length": {},

	// The relay sets its own media type for the normalized frame stream.
	"Content-Type": {},
}

// UpstreamRequestHeaders returns the request headers from the Fiber context
// that should be forwarded to the upstream API.
func (h *Handler) UpstreamRequestHeaders(c *fiber.Ctx) http.Header {
	out := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		k := http.CanonicalHeaderKey(string(key))
		if _, skip := skipRequest[k]; !skip {
			out.Set(k, string(value))
		}
	})
	return out
}

// SetClientResponseHeaders copies upstream response headers to the Fiber
// context, filtering headers that the relay should not forward back down to
// the client.
func (h *Handler) SetClientResponseHeaders(c *fiber.Ctx, upstream http.Header) {
	for k, v := range upstream {
		if _, skip := skipResponse[http.CanonicalHeaderKey(k)]; !skip {
			c.Set(k, strings.Join(v, ", "))
		}
	}
}

// Credential resolves the bearer credential for the upstream request. A
// bearer token presented by the client wins over the configured fallback.
func (h *Handler) Credential(c *fiber.Ctx, fallback string) string {
	auth := c.Get(fiber.HeaderAuthorization)
	if len(auth) > len(bearerPrefix) && strings.EqualFold(auth[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(auth[len(bearerPrefix):])
	}
	return fallback
}

// AcceptsEventStream reports whether the client's Accept header asks for an
// event stream.
func (h *Handler) AcceptsEventStream(c *fiber.Ctx) bool {
	return strings.Contains(c.Get(fiber.HeaderAccept), "text/event-stream")
}
