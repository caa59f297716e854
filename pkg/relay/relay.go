// Package relay transcodes an upstream LLM event stream into the normalized
// sserelay frame stream.
//
// A Relay pulls raw chunks from a ChunkSource, reassembles records across
// arbitrary chunk boundaries, normalizes each record into a frame and pushes
// the frames to a sink. The frame sequence always ends with exactly one
// terminal marker frame or exactly one error frame, followed by closing the
// sink:
//
//	data: {"choices":[...]}\n\n
//	data: not-json\n\n
//	data: [DONE]\n\n          (or: data: {"error":"..."}\n\n)
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/papercomputeco/sserelay/pkg/logger"
	"github.com/papercomputeco/sserelay/pkg/sse"
)

// Result summarizes a finished relay run.
type Result struct {
	State State

	// Frames counts every frame written to the sink, including the terminal
	// or error frame.
	Frames int

	// UpstreamDone is true when the upstream sent its own terminal marker
	// rather than the relay appending one at end-of-data.
	UpstreamDone bool

	// Err is the upstream stream failure or sink failure, nil on success.
	Err error

	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is the wall time between the relay starting and finishing.
func (r Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Relay is a single-use transcoder bound to one upstream request. It owns its
// buffer exclusively and is not safe for concurrent use.
type Relay struct {
	state    State
	splitter *sse.Splitter
	logger   *slog.Logger
	result   Result
}

// New creates an idle Relay. A nil logger discards all output.
func New(log *slog.Logger) *Relay {
	if log == nil {
		log = logger.Nop()
	}

	return &Relay{
		state:    StateIdle,
		splitter: sse.NewSplitter(),
		logger:   log,
	}
}

// State returns the current lifecycle state.
func (r *Relay) State() State {
	return r.state
}

// Result returns a summary of the run so far.
func (r *Relay) Result() Result {
	res := r.result
	res.State = r.state
	return res
}

// Run drives the relay until the upstream ends, fails, or sends its terminal
// marker. The sink is always closed before Run returns.
//
// Run returns nil when the relay terminated normally, an error matching
// ErrUpstreamStream when the upstream failed mid-stream (already reported
// in-band as an error frame), or an error matching ErrSinkClosed when the
// sink rejected a write.
func (r *Relay) Run(ctx context.Context, src ChunkSource, sink io.WriteCloser) error {
	if r.state != StateIdle {
		return ErrAlreadyStarted
	}

	r.result.StartedAt = time.Now()
	r.transition(StateStreaming)

	for {
		chunk, err := src.Next(ctx)

		if len(chunk) > 0 {
			for _, record := range r.splitter.Feed(chunk) {
				done, werr := r.process(record, sink)
				if werr != nil {
					return r.abort(sink, werr)
				}
				if done {
					r.result.UpstreamDone = true
					r.transition(StateFlushing)
					return r.terminate(sink)
				}
			}
		}

		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF):
			return r.flush(sink)
		default:
			return r.fail(sink, err)
		}
	}
}

// process normalizes one record and writes its frame. It reports whether the
// record was the terminal marker.
func (r *Relay) process(record string, sink io.Writer) (bool, error) {
	frame, ok := r.normalize(record)
	if !ok {
		return false, nil
	}

	if err := r.write(sink, frame); err != nil {
		return false, err
	}

	return frame.IsDone(), nil
}

// normalize maps a record to its frame. Whitespace-only records produce no
// frame.
func (r *Relay) normalize(record string) (sse.Frame, bool) {
	if strings.TrimSpace(record) == "" {
		return sse.Frame{}, false
	}

	payload := strings.TrimPrefix(record, sse.DataPrefix)
	if payload == sse.DoneMarker {
		return sse.DoneFrame(), true
	}

	var canonical bytes.Buffer
	if err := json.Compact(&canonical, []byte(payload)); err != nil {
		r.logger.Debug("payload is not JSON, passing through",
			"error", err,
			"payload_len", len(payload),
		)
		return sse.NewFrame(payload), true
	}

	return sse.NewFrame(canonical.String()), true
}

// flush handles upstream end-of-data: the remaining buffer is processed as a
// final record, then the terminal marker is appended unless that record was
// the marker itself.
func (r *Relay) flush(sink io.WriteCloser) error {
	r.transition(StateFlushing)

	if rest := r.splitter.Flush(); rest != "" {
		done, err := r.process(rest, sink)
		if err != nil {
			return r.abort(sink, err)
		}
		if done {
			r.result.UpstreamDone = true
			return r.terminate(sink)
		}
	}

	if err := r.write(sink, sse.DoneFrame()); err != nil {
		return r.abort(sink, err)
	}

	return r.terminate(sink)
}

// terminate closes the sink after the terminal marker has been written.
func (r *Relay) terminate(sink io.Closer) error {
	r.transition(StateTerminated)
	r.finish()

	if err := sink.Close(); err != nil {
		r.logger.Debug("closing sink", "error", err)
	}

	r.logger.Debug("relay terminated",
		"frames", r.result.Frames,
		"upstream_done", r.result.UpstreamDone,
		"duration", r.result.Duration(),
	)
	return nil
}

// fail reports an upstream stream failure in-band and closes the sink. No
// terminal marker follows the error frame.
func (r *Relay) fail(sink io.WriteCloser, cause error) error {
	streamErr := &UpstreamStreamError{Err: cause}
	r.result.Err = streamErr

	r.logger.Warn("upstream stream failed",
		"error", cause,
		"frames", r.result.Frames,
		"buffered_bytes", r.splitter.Buffered(),
	)

	if err := r.write(sink, sse.ErrorFrame(cause.Error())); err != nil {
		r.logger.Debug("could not deliver error frame", "error", err)
	}

	r.transition(StateFailed)
	r.finish()
	if err := sink.Close(); err != nil {
		r.logger.Debug("closing sink", "error", err)
	}

	return streamErr
}

// abort handles a sink that stopped accepting writes. Nothing more can be
// delivered downstream.
func (r *Relay) abort(sink io.Closer, cause error) error {
	err := fmt.Errorf("%w: %w", ErrSinkClosed, cause)
	r.result.Err = err

	r.logger.Debug("downstream sink rejected frame", "error", cause)

	r.transition(StateFailed)
	r.finish()
	_ = sink.Close()

	return err
}

func (r *Relay) write(sink io.Writer, frame sse.Frame) error {
	if _, err := sink.Write(frame.Bytes()); err != nil {
		return err
	}
	r.result.Frames++
	return nil
}

func (r *Relay) transition(to State) {
	if !canTransition(r.state, to) {
		// Transitions are driven internally; reaching this is a bug.
		panic(fmt.Sprintf("relay: illegal transition %s -> %s", r.state, to))
	}

	r.logger.Debug("relay state changed",
		"from", r.state.String(),
		"to", to.String(),
	)
	r.state = to
}

func (r *Relay) finish() {
	r.result.FinishedAt = time.Now()
}
