// Package collector drains a byte stream into a single string for callers
// that must answer with one synchronous response body.
package collector

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/papercomputeco/sserelay/pkg/sse"
)

const readSize = 32 * 1024

// Collect reads src until end-of-sequence and returns its complete text,
// concatenated in arrival order and decoded as UTF-8 (invalid sequences become
// U+FFFD). Decoding is streamed, so multi-byte characters split across reads
// are preserved.
//
// Collect never returns partial text: if src fails, or ctx is cancelled,
// before io.EOF the error is returned instead. When src is an io.Closer it is
// closed on cancellation to release a blocked read.
func Collect(ctx context.Context, src io.Reader) (string, error) {
	if closer, ok := src.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = closer.Close() })
		defer stop()
	}

	decoded := transform.NewReader(src, unicode.UTF8.NewDecoder())

	var sb strings.Builder
	buf := make([]byte, readSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := decoded.Read(buf)
		sb.Write(buf[:n])

		if err == io.EOF {
			return sb.String(), nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return "", fmt.Errorf("collecting stream: %w", err)
		}
	}
}

// Summary is a collected relay stream together with its parsed frames.
type Summary struct {
	// Text is the exact concatenation of every frame byte.
	Text string

	// Frames are the parsed frames in order.
	Frames []sse.Frame

	// Terminated is true when the stream ended with the terminal marker.
	Terminated bool

	// Error is the message of a closing error frame, if any.
	Error string
}

// CollectFrames collects a relay stream like Collect and additionally parses
// it into frames.
func CollectFrames(ctx context.Context, src io.Reader) (*Summary, error) {
	text, err := Collect(ctx, src)
	if err != nil {
		return nil, err
	}

	s := &Summary{Text: text}

	tr := sse.NewTeeReader(strings.NewReader(text), nil)
	for {
		f, err := tr.Next()
		if err != nil {
			return nil, fmt.Errorf("parsing collected frames: %w", err)
		}
		if f == nil {
			break
		}
		s.Frames = append(s.Frames, *f)
	}

	if n := len(s.Frames); n > 0 {
		last := s.Frames[n-1]
		if last.IsDone() {
			s.Terminated = true
		} else if msg, ok := last.ErrorMessage(); ok {
			s.Error = msg
		}
	}

	return s, nil
}
