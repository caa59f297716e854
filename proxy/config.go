package proxy

import (
	"time"

	"github.com/papercomputeco/sserelay/pkg/eventstream"
)

// Config is the relay server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// UpstreamURL is the upstream LLM provider base URL (e.g., "https://api.openai.com").
	// The request path is appended to it.
	UpstreamURL string

	// APIKey is the bearer credential used when the client does not present
	// its own.
	APIKey string

	// Timeout bounds a whole upstream exchange. Zero keeps the relay client default.
	Timeout time.Duration

	// Instance identifies this relay in published events.
	Instance string

	// Publisher receives a relay completed event for every finished relay.
	// If nil, events are discarded.
	Publisher eventstream.Publisher
}
