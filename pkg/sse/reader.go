package sse

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// TeeReader reads relay frames from a source io.Reader while simultaneously
// writing all raw bytes verbatim to a destination io.Writer.
//
// ┌──────────────────┐
// │ source io.Reader │
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐   ┌───────────────────────┐
// │ TeeReader.Next() │──▶│ destination io.Writer │
// └──────────────────┘   └───────────────────────┘
// │
// ▼
// ┌──────────────────┐
// │      Frame       │
// └──────────────────┘
//
// The destination receives the exact copy of the stream while the caller
// inspects parsed frames. Frames are delimited by Separator, so payloads that
// themselves end in a newline do not round-trip exactly.
type TeeReader struct {
	scanner *bufio.Scanner
}

// NewTeeReader returns a TeeReader that parses frames from src and writes all
// raw bytes through to dest. A nil dest discards the raw bytes.
func NewTeeReader(src io.Reader, dest io.Writer) *TeeReader {
	if dest == nil {
		dest = io.Discard
	}

	// Teeing below the scanner keeps dest byte-exact, including a trailing
	// record that never received its separator.
	scanner := bufio.NewScanner(io.TeeReader(src, dest))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(ScanRecords)

	return &TeeReader{scanner: scanner}
}

// Next returns the next frame. It blocks until a complete frame is available.
// Next returns nil, nil when the source is exhausted. Bytes reach dest as
// they are read from src, which may be ahead of the returned frame.
//
// Blank records are skipped. A record lacking DataPrefix is returned with
// its whole text as the payload, mirroring the relay's passthrough rule.
func (r *TeeReader) Next() (*Frame, error) {
	for r.scanner.Scan() {
		raw := r.scanner.Text()
		if strings.TrimSpace(raw) == "" {
			continue
		}

		payload := strings.TrimPrefix(raw, DataPrefix)
		return &Frame{Payload: payload}, nil
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	return nil, nil
}

// ScanRecords is a bufio.SplitFunc that yields Separator-delimited records.
// At EOF a trailing record without a separator is yielded as-is.
func ScanRecords(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.Index(data, separator); i >= 0 {
		return i + len(separator), data[:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}

	// Request more data.
	return 0, nil, nil
}
