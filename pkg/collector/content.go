package collector

import (
	"encoding/json"
	"strings"
)

// contentChunk covers the delta shapes of OpenAI chat completion chunks and
// Anthropic content_block_delta events.
type contentChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`

	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
}

// ContentDelta returns the assistant text carried by one frame payload, or ""
// when the payload holds no text (the terminal marker, error frames, role or
// usage chunks, passthrough records).
func ContentDelta(payload string) string {
	if !strings.HasPrefix(payload, "{") {
		return ""
	}

	var chunk contentChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return ""
	}

	if len(chunk.Choices) > 0 {
		return chunk.Choices[0].Delta.Content
	}
	return chunk.Delta.Text
}

// Content joins the assistant text of every collected frame.
func (s *Summary) Content() string {
	var sb strings.Builder
	for _, f := range s.Frames {
		sb.WriteString(ContentDelta(f.Payload))
	}
	return sb.String()
}
