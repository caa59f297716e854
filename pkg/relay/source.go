package relay

import (
	"context"
	"io"
)

// defaultChunkSize bounds a single read from an upstream body.
const defaultChunkSize = 32 * 1024

// ChunkSource yields raw upstream chunks in arrival order.
//
// Next blocks until a chunk is available. It returns io.EOF once the upstream
// has no more data; any other error is an upstream stream failure. A non-empty
// chunk may accompany an error, in which case the chunk arrived first. The
// returned slice is only valid until the next call.
type ChunkSource interface {
	Next(ctx context.Context) ([]byte, error)
}

// ReaderSource adapts an io.Reader into a ChunkSource.
type ReaderSource struct {
	r   io.Reader
	buf []byte
}

// NewReaderSource returns a ChunkSource reading at most size bytes per chunk.
// A size <= 0 selects the default.
func NewReaderSource(r io.Reader, size int) *ReaderSource {
	if size <= 0 {
		size = defaultChunkSize
	}
	return &ReaderSource{r: r, buf: make([]byte, size)}
}

// Next reads the next chunk. Cancellation is checked between reads; a read
// already blocked on the network is released by the request context of the
// reader that produced it.
func (s *ReaderSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n, err := s.r.Read(s.buf)
	return s.buf[:n], err
}
