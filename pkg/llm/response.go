package llm

import (
	"encoding/json"
	"fmt"
)

// ChatResponse is a non-streaming chat-completion response. Only the fields
// the relay reads are modeled; the raw body is always passed through to the
// caller verbatim.
type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice is one completion candidate.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// Usage reports token accounting from the upstream API.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ParseResponse decodes a non-streaming completion body.
func ParseResponse(body []byte) (*ChatResponse, error) {
	var resp ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing completion response: %w", err)
	}
	return &resp, nil
}

// ReplyText returns the assistant text of the first choice, or "" when the
// response carries no choices.
func (r *ChatResponse) ReplyText() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}
