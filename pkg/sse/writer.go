package sse

import (
	"fmt"
	"io"
)

// WriteEvent writes a single SSE event to w with correct framing: optional
// "event:" and "id:" lines, one "data:" line per payload line, and the
// terminating blank line. The relay uses this to synthesize its own frames
// (the persistence-complete marker) after the upstream stream has drained.
func WriteEvent(w io.Writer, ev Event) error {
	if ev.Type != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", ev.Type); err != nil {
			return err
		}
	}
	if ev.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", ev.ID); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", ev.Data); err != nil {
		return err
	}
	return nil
}
