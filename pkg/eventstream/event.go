package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeRelayCompleted is emitted after a relay has closed its frame stream.
	EventTypeRelayCompleted = "sserelay.relay.completed"
)

// RelayCompletedEvent is a transport-neutral event payload for a finished relay.
type RelayCompletedEvent struct {
	SchemaVersion int              `json:"schema_version"`
	EventType     string           `json:"event_type"`
	EventID       string           `json:"event_id"`
	EmittedAt     time.Time        `json:"emitted_at"`
	Source        EventSource      `json:"source"`
	RequestMeta   RelayRequestMeta `json:"request_meta"`
	Outcome       RelayOutcome     `json:"outcome"`
}

// EventSource identifies which relay instance handled the request.
type EventSource struct {
	Instance string `json:"instance,omitempty"`
	Upstream string `json:"upstream"`
}

// RelayRequestMeta captures request lifecycle metadata for the event.
type RelayRequestMeta struct {
	RequestID   string    `json:"request_id"`
	Path        string    `json:"path,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Streaming   bool      `json:"streaming"`
}

// RelayOutcome captures how the frame stream ended.
type RelayOutcome struct {
	State        string `json:"state"`
	Frames       int    `json:"frames"`
	UpstreamDone bool   `json:"upstream_done"`
	Error        string `json:"error,omitempty"`
}

// NewRelayCompletedEvent stamps a new event with schema, type, ID and
// emission time.
func NewRelayCompletedEvent(source EventSource, meta RelayRequestMeta, outcome RelayOutcome) *RelayCompletedEvent {
	return &RelayCompletedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeRelayCompleted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		RequestMeta:   meta,
		Outcome:       outcome,
	}
}
