// Package llm defines the OpenAI-compatible wire types the relay speaks to
// its upstream completion API, plus the delta extraction used to reassemble
// a streamed assistant reply.
package llm

// RoleSystem, RoleUser and RoleAssistant are the message roles the relay
// persists and forwards upstream.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation entry in a chat-completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of a chat-completion call. Messages carry the full
// conversation history in chronological order, oldest first.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}
