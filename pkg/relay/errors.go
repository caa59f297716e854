package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamRequest indicates the upstream stream could not be
	// established. No frames are produced when it is returned.
	ErrUpstreamRequest = errors.New("upstream request failed")

	// ErrUpstreamStream indicates the upstream failed after streaming began.
	// The failure is reported in-band as a single error frame.
	ErrUpstreamStream = errors.New("upstream stream failed")

	// ErrSinkClosed indicates the downstream sink stopped accepting frames.
	ErrSinkClosed = errors.New("downstream sink closed")

	// ErrAlreadyStarted is returned when Run is called more than once on
	// the same Relay.
	ErrAlreadyStarted = errors.New("relay already started")
)

// UpstreamRequestError describes a failure to open the upstream stream,
// either at the transport level or because the upstream answered with a
// non-2xx status.
type UpstreamRequestError struct {
	URL string

	// StatusCode is the upstream HTTP status, 0 for transport failures.
	StatusCode int

	// Body is a bounded prefix of the upstream error body, if any.
	Body []byte

	Err error
}

func (e *UpstreamRequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream request to %s returned status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("upstream request to %s: %v", e.URL, e.Err)
}

func (e *UpstreamRequestError) Unwrap() error {
	return e.Err
}

func (e *UpstreamRequestError) Is(target error) bool {
	return target == ErrUpstreamRequest
}

// UpstreamStreamError wraps a failure raised while reading the upstream
// stream.
type UpstreamStreamError struct {
	Err error
}

func (e *UpstreamStreamError) Error() string {
	return e.Err.Error()
}

func (e *UpstreamStreamError) Unwrap() error {
	return e.Err
}

func (e *UpstreamStreamError) Is(target error) bool {
	return target == ErrUpstreamStream
}
