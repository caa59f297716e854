package sse

import (
	"bytes"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type failingReader struct {
	data []byte
	err  error
}

func (f *failingReader) Read(p []byte) (int, error) {
	if len(f.data) == 0 {
		return 0, f.err
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

var _ = Describe("TeeReader", func() {
	var dst *bytes.Buffer

	BeforeEach(func() {
		dst = &bytes.Buffer{}
	})

	Describe("Next", func() {
		Context("with relay frames", func() {
			It("parses a single frame", func() {
				r := NewTeeReader(strings.NewReader("data: hello world\n\n"), dst)

				f, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(f.Payload).To(Equal("hello world"))

				f, err = r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(f).To(BeNil())
			})

			It("parses JSON frames and the terminal marker", func() {
				input := "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\n" +
					"data: [DONE]\n\n"
				r := NewTeeReader(strings.NewReader(input), dst)

				f1, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(f1.Payload).To(Equal(`{"choices":[{"delta":{"content":"Hi"}}]}`))
				Expect(f1.IsDone()).To(BeFalse())

				f2, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(f2.IsDone()).To(BeTrue())

				f3, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(f3).To(BeNil())
			})

			It("keeps multi-line passthrough payloads intact", func() {
				input := "data: event: ping\ndata: {}\n\n"
				r := NewTeeReader(strings.NewReader(input), dst)

				f, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(f.Payload).To(Equal("event: ping\ndata: {}"))
			})

			It("recognizes error frames", func() {
				r := NewTeeReader(strings.NewReader(ErrorFrame("boom").String()), dst)

				f, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				msg, ok := f.ErrorMessage()
				Expect(ok).To(BeTrue())
				Expect(msg).To(Equal("boom"))
			})
		})

		Context("verbatim byte forwarding", func() {
			It("forwards all bytes including separators to dst", func() {
				input := "data: first\n\ndata: second\n\n"
				r := NewTeeReader(strings.NewReader(input), dst)

				for {
					f, err := r.Next()
					Expect(err).NotTo(HaveOccurred())
					if f == nil {
						break
					}
				}

				Expect(dst.String()).To(Equal(input))
			})

			It("forwards a trailing record without its separator unchanged", func() {
				input := "data: first\n\ndata: unterminated"
				r := NewTeeReader(strings.NewReader(input), dst)

				_, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				f, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(f.Payload).To(Equal("unterminated"))

				Expect(dst.String()).To(Equal(input))
			})

			It("accepts a nil destination", func() {
				r := NewTeeReader(strings.NewReader("data: x\n\n"), nil)

				f, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(f.Payload).To(Equal("x"))
			})
		})

		Context("edge cases", func() {
			It("returns nil on empty input", func() {
				r := NewTeeReader(strings.NewReader(""), dst)

				f, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(f).To(BeNil())
			})

			It("skips blank records", func() {
				r := NewTeeReader(strings.NewReader("\n\n  \n\ndata: hello\n\n"), dst)

				f, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(f.Payload).To(Equal("hello"))
			})

			It("returns the whole record when the data prefix is missing", func() {
				r := NewTeeReader(strings.NewReader("garbage line\n\n"), dst)

				f, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(f.Payload).To(Equal("garbage line"))
			})

			It("surfaces source errors", func() {
				boom := errors.New("connection reset")
				r := NewTeeReader(&failingReader{data: []byte("data: partial"), err: boom}, dst)

				// bufio.Scanner hands the buffered remainder to the split
				// function before reporting the read error.
				f, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(f.Payload).To(Equal("partial"))

				f, err = r.Next()
				Expect(err).To(MatchError(boom))
				Expect(f).To(BeNil())
			})
		})
	})
})

var _ = Describe("ScanRecords", func() {
	It("requests more data until a separator arrives", func() {
		advance, token, err := ScanRecords([]byte("data: x\n"), false)
		Expect(err).NotTo(HaveOccurred())
		Expect(advance).To(Equal(0))
		Expect(token).To(BeNil())
	})

	It("yields the record before the separator", func() {
		advance, token, err := ScanRecords([]byte("data: x\n\ndata: y"), false)
		Expect(err).NotTo(HaveOccurred())
		Expect(advance).To(Equal(9))
		Expect(string(token)).To(Equal("data: x"))
	})

	It("yields the remainder at EOF", func() {
		advance, token, err := ScanRecords([]byte("data: y"), true)
		Expect(err).NotTo(HaveOccurred())
		Expect(advance).To(Equal(7))
		Expect(string(token)).To(Equal("data: y"))
	})

	It("stops at EOF with no data", func() {
		advance, token, err := ScanRecords(nil, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(advance).To(Equal(0))
		Expect(token).To(BeNil())
	})
})
