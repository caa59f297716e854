package collector_test

import (
	"context"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sserelay/pkg/collector"
)

var _ = Describe("ContentDelta", func() {
	DescribeTable("extracts assistant text",
		func(payload, expected string) {
			Expect(collector.ContentDelta(payload)).To(Equal(expected))
		},
		Entry("openai chunk", `{"choices":[{"delta":{"content":"Hel"}}]}`, "Hel"),
		Entry("openai role chunk", `{"choices":[{"delta":{"role":"assistant"}}]}`, ""),
		Entry("anthropic delta", `{"type":"content_block_delta","delta":{"type":"text_delta","text":"lo"}}`, "lo"),
		Entry("terminal marker", "[DONE]", ""),
		Entry("error frame", `{"error":"boom"}`, ""),
		Entry("passthrough record", "event: ping", ""),
		Entry("truncated json", `{"choices":[`, ""),
	)
})

var _ = Describe("Summary.Content", func() {
	It("joins the text of every frame in order", func() {
		stream := strings.Join([]string{
			`data: {"choices":[{"delta":{"role":"assistant"}}]}`,
			`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
			`data: {"choices":[{"delta":{"content":"lo"}}]}`,
			`data: [DONE]`,
		}, "\n\n") + "\n\n"

		summary, err := collector.CollectFrames(context.Background(), strings.NewReader(stream))
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Terminated).To(BeTrue())
		Expect(summary.Content()).To(Equal("Hello"))
	})
})
