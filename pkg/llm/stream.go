package llm

import "encoding/json"

// DoneSentinel is the literal payload the upstream API emits as its final
// SSE frame. It is not JSON and carries no delta.
const DoneSentinel = "[DONE]"

// StoredEvent is the relay-synthesized terminal frame payload. It is emitted
// strictly after the last upstream byte, once the assistant reply has been
// durably written, so a consumer can distinguish "upstream done" from
// "persisted".
type StoredEvent struct {
	Stored bool `json:"__stored"`
}

// streamChunk mirrors the incremental shape of a streaming completion frame:
// choices[0].delta.content holds the next text delta.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// ExtractDelta parses a streaming frame payload and returns its incremental
// content. The second return is false when the payload is not a parseable
// completion chunk (keep-alive noise, upstream protocol drift) — callers skip
// such frames without failing the stream. An empty delta on a valid chunk
// (role-only first frame, finish frame) returns "", true.
func ExtractDelta(data []byte) (string, bool) {
	var chunk streamChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return "", false
	}
	if len(chunk.Choices) == 0 {
		return "", true
	}
	return chunk.Choices[0].Delta.Content, true
}

// ParseStored reports whether a frame payload is the relay's terminal
// persistence marker.
func ParseStored(data []byte) bool {
	var ev StoredEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return false
	}
	return ev.Stored
}
