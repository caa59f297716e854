// Package sse provides the wire pieces of the sserelay output protocol: the
// normalized frame shape, a record splitter that survives arbitrary chunk
// boundaries, and a reader that parses relay output back into frames.
//
// Every frame the relay emits has the exact shape:
//
//	data: <payload>\n\n
//
// where payload is canonical JSON, raw passthrough text, or the DoneMarker.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

import (
	"encoding/json"
	"strings"
)

const (
	// DataPrefix prefixes the payload of every emitted frame.
	DataPrefix = "data: "

	// Separator terminates a record (upstream) or a frame (downstream).
	Separator = "\n\n"

	// DoneMarker is the sentinel payload signalling the logical end of content.
	DoneMarker = "[DONE]"

	// ContentType is the media type negotiated with upstreams and returned
	// to streaming clients.
	ContentType = "text/event-stream"
)

// Frame is a single emitted SSE frame.
type Frame struct {
	// Payload is the text carried after DataPrefix.
	Payload string
}

// NewFrame wraps payload in a Frame.
func NewFrame(payload string) Frame {
	return Frame{Payload: payload}
}

// DoneFrame returns the terminal marker frame.
func DoneFrame() Frame {
	return Frame{Payload: DoneMarker}
}

// errorPayload is the JSON body carried by an error frame.
type errorPayload struct {
	Error string `json:"error"`
}

// ErrorFrame returns a frame whose payload is {"error":"<message>"}.
func ErrorFrame(message string) Frame {
	b, err := json.Marshal(errorPayload{Error: message})
	if err != nil {
		// A struct holding a single string always marshals.
		return Frame{Payload: `{"error":"internal error"}`}
	}
	return Frame{Payload: string(b)}
}

// String renders the frame in its exact wire shape.
func (f Frame) String() string {
	return DataPrefix + f.Payload + Separator
}

// Bytes renders the frame in its exact wire shape.
func (f Frame) Bytes() []byte {
	return []byte(f.String())
}

// IsDone reports whether the frame carries the terminal marker.
func (f Frame) IsDone() bool {
	return f.Payload == DoneMarker
}

// ErrorMessage returns the message of an error frame and true, or "" and
// false when the frame is not an error frame. Upstream payloads that happen
// to have the same shape are indistinguishable from relay error frames.
func (f Frame) ErrorMessage() (string, bool) {
	if !strings.HasPrefix(f.Payload, `{"error"`) {
		return "", false
	}

	var p errorPayload
	if err := json.Unmarshal([]byte(f.Payload), &p); err != nil {
		return "", false
	}
	return p.Error, true
}
