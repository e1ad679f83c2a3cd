package sse

import (
	"bufio"
	"io"
	"strings"
)

// TeeReader reads SSE events from a source io.Reader while writing every raw
// byte verbatim to a destination io.Writer. Next returns the parsed Event for
// the relay's accumulator while the destination (typically an io.Pipe feeding
// the downstream HTTP response) receives an exact copy of the stream.
//
// The tee never reorders or rewrites bytes: the downstream client sees the
// upstream stream byte-identical, in order.
type TeeReader struct {
	scanner *bufio.Scanner
	dest    io.Writer

	// current accumulates fields for the event being built in the current scan.
	current *Event
	hasData bool
}

// DestWriteError wraps a failure to write to the tee destination. The source
// stream is still intact when it is returned: callers that prefer durability
// over client linkage can Redirect the tee and keep draining.
type DestWriteError struct {
	Err error
}

func (e *DestWriteError) Error() string {
	return "sse: destination write failed: " + e.Err.Error()
}

func (e *DestWriteError) Unwrap() error {
	return e.Err
}

// NewTeeReader returns a TeeReader that parses SSE events from src and writes
// all raw bytes through to dest.
func NewTeeReader(src io.Reader, dest io.Writer) *TeeReader {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &TeeReader{
		scanner: scanner,
		dest:    dest,
		current: &Event{},
	}
}

// Next returns the next parsed SSE event. It blocks until a complete event is
// available (terminated by a blank line) and returns nil, nil once the source
// is exhausted. A write failure on the destination is returned as an error;
// the source can still be drained afterwards by calling Next again.
func (r *TeeReader) Next() (*Event, error) {
	for r.scanner.Scan() {
		raw := r.scanner.Text()

		// bufio.Scanner strips the newline, reinsert it for the tee copy.
		// A destination failure is reported only after the line has been
		// accumulated, so the parse side stays lossless.
		var destErr error
		if _, err := io.WriteString(r.dest, raw+"\n"); err != nil {
			destErr = &DestWriteError{Err: err}
		}

		// A blank line terminates the current event. A completed event wins
		// over a pending destination error; the error resurfaces on the next
		// write since a failed destination stays failed.
		if raw == "" {
			if r.hasData {
				ev := r.current
				r.reset()
				return ev, nil
			}
			if destErr != nil {
				return nil, destErr
			}

			// Blank line with nothing accumulated: leading blank lines or
			// keep-alive newlines. Skip.
			continue
		}

		// Comment lines (":" prefix) are forwarded but never parsed.
		if !strings.HasPrefix(raw, ":") {
			r.parseLine(raw)
		}

		if destErr != nil {
			return nil, destErr
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	// Stream ended without a trailing blank line: yield the in-progress event.
	if r.hasData {
		ev := r.current
		r.reset()
		return ev, nil
	}

	return nil, nil
}

// parseLine accumulates a single non-empty, non-comment line into the current
// event. Lines have the form "field:value"; one leading space after the colon
// is stripped per the SSE spec.
func (r *TeeReader) parseLine(line string) {
	field, value := splitField(line)

	switch field {
	case "data":
		if r.hasData && r.current.Data != "" {
			// Multiple data lines join with "\n".
			r.current.Data += "\n"
		}
		r.current.Data += value
		r.hasData = true
	case "event":
		r.current.Type = value
		r.hasData = true
	case "id":
		r.current.ID = value
		r.hasData = true
	default:
		// "retry" and unknown fields are ignored per the SSE spec.
	}
}

// Redirect swaps the tee destination. Used to keep draining the source after
// the original destination fails (e.g. the downstream client disconnected).
func (r *TeeReader) Redirect(dest io.Writer) {
	r.dest = dest
}

func (r *TeeReader) reset() {
	r.current = &Event{}
	r.hasData = false
}

// splitField cuts an SSE line into field name and value. A line without a
// colon is a bare field name with an empty value, per the SSE spec.
func splitField(line string) (string, string) {
	before, after, ok := strings.Cut(line, ":")
	if !ok {
		return line, ""
	}
	return before, strings.TrimPrefix(after, " ")
}
