package sse

import (
	"bytes"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

var separator = []byte(Separator)

// Splitter accumulates raw upstream chunks and yields complete records.
//
// The buffer holds bytes that have been received but not yet resolved into a
// record. Splitting happens on raw bytes so neither a separator nor a
// multi-byte UTF-8 sequence split across two chunks is ever broken: the
// trailing fragment stays buffered until the next chunk completes it.
//
// A Splitter is owned by a single relay and is not safe for concurrent use.
type Splitter struct {
	buf     []byte
	decoder *encoding.Decoder
}

// NewSplitter returns an empty Splitter.
func NewSplitter() *Splitter {
	return &Splitter{
		decoder: unicode.UTF8.NewDecoder(),
	}
}

// Feed appends chunk to the buffer and returns every record completed by it,
// in arrival order. The fragment after the last separator (possibly empty)
// becomes the new buffer.
func (s *Splitter) Feed(chunk []byte) []string {
	s.buf = append(s.buf, chunk...)

	var records []string
	for {
		idx := bytes.Index(s.buf, separator)
		if idx < 0 {
			break
		}

		records = append(records, s.decode(s.buf[:idx]))
		s.buf = s.buf[idx+len(separator):]
	}

	// Compact so a long stream doesn't pin the backing array of every
	// chunk it has ever seen.
	if len(s.buf) == 0 {
		s.buf = nil
	} else if len(records) > 0 {
		s.buf = append([]byte(nil), s.buf...)
	}

	return records
}

// Flush empties the buffer and returns its decoded content.
func (s *Splitter) Flush() string {
	rest := s.decode(s.buf)
	s.buf = nil
	return rest
}

// Buffered returns the number of bytes held that do not yet form a complete record.
func (s *Splitter) Buffered() int {
	return len(s.buf)
}

// decode converts record bytes to text, replacing invalid UTF-8 sequences
// with U+FFFD.
func (s *Splitter) decode(b []byte) string {
	if len(b) == 0 {
		return ""
	}

	out, err := s.decoder.Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}
