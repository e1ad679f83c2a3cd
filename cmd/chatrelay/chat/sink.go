package chatcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/lanternworks/chatrelay/pkg/cliui"
	"github.com/lanternworks/chatrelay/pkg/llm"
	"github.com/lanternworks/chatrelay/pkg/storage"
)

// terminalSink renders the consumer's callbacks to a terminal. Deltas print
// raw as they stream in; once the relay confirms persistence the streamed
// plaintext is followed by a markdown re-render of the stored reply.
type terminalSink struct {
	w io.Writer

	// streamedBytes tracks whether any delta printed for the in-flight turn,
	// so the reconciled re-render knows a provisional view is on screen.
	streamedBytes int
}

func newTerminalSink(w io.Writer) *terminalSink {
	return &terminalSink{w: w}
}

// UserMessage is a no-op: the user typed the message at the prompt, it is
// already on screen.
func (s *terminalSink) UserMessage(_ string) {
	s.streamedBytes = 0
	fmt.Fprint(s.w, assistantPrompt)
}

func (s *terminalSink) AppendDelta(text string) {
	s.streamedBytes += len(text)
	fmt.Fprint(s.w, text)
}

func (s *terminalSink) StreamError(message string) {
	fmt.Fprintf(s.w, "\n  %s %s\n", cliui.FailMark, strings.TrimSpace(message))
}

// RenderHistory closes out the streamed turn with the authoritative stored
// reply, markdown-rendered. Earlier turns are already in the scrollback; only
// the last assistant message needs re-rendering.
//
// When nothing streamed yet (session resume), the whole history replays.
func (s *terminalSink) RenderHistory(messages []storage.Message) {
	if len(messages) == 0 {
		return
	}

	if s.streamedBytes == 0 {
		for _, msg := range messages {
			s.renderTurn(msg)
		}
		return
	}

	last := messages[len(messages)-1]
	if last.Role != llm.RoleAssistant {
		// The stored history ends on the user turn: the reply never made it
		// to the store, leave the streamed text as-is.
		fmt.Fprintln(s.w)
		return
	}

	fmt.Fprintln(s.w)
	s.renderAssistant(last.Content)
	s.streamedBytes = 0
}

func (s *terminalSink) renderTurn(msg storage.Message) {
	switch msg.Role {
	case llm.RoleUser:
		fmt.Fprintf(s.w, "%s%s\n", userPrompt, msg.Content)
	case llm.RoleAssistant:
		fmt.Fprint(s.w, assistantPrompt)
		fmt.Fprintln(s.w)
		s.renderAssistant(msg.Content)
	}
}

func (s *terminalSink) renderAssistant(content string) {
	rendered, err := cliui.RenderMarkdown(content)
	if err != nil {
		fmt.Fprintln(s.w, content)
		return
	}
	fmt.Fprint(s.w, rendered)
}
