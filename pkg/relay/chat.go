package relay

import (
	"encoding/json"
	"errors"
	"fmt"
)

// chatMessage is one message of a chat completion request.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is an OpenAI-compatible streaming chat completion request.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// NewChatRequest builds a streaming chat completion Request that sends prompt
// as a single user message.
func NewChatRequest(url, model, prompt, credential string) (Request, error) {
	if url == "" {
		return Request{}, errors.New("upstream URL is required")
	}
	if model == "" {
		return Request{}, errors.New("model is required")
	}

	payload, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   true,
	})
	if err != nil {
		return Request{}, fmt.Errorf("encoding chat request: %w", err)
	}

	return Request{
		URL:        url,
		Payload:    payload,
		Credential: credential,
	}, nil
}
