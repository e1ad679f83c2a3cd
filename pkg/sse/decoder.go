package sse

import "strings"

// frameDelimiter separates SSE events in the raw byte stream. CRLF streams
// use the carriage-return form; both are valid SSE and can even mix.
const (
	frameDelimiter     = "\n\n"
	frameDelimiterCRLF = "\r\n\r\n"
)

// Decoder reassembles SSE events from a stream delivered in arbitrarily-sized
// chunks. Unlike TeeReader it is push-mode: the caller feeds raw chunks as
// they arrive off the wire and receives every event completed by that chunk.
// Bytes that do not yet form a complete event (a frame split mid-line or
// mid-JSON across a chunk boundary) are carried over to the next Feed call,
// so reassembly is lossless and order-preserving no matter where the network
// splits the stream.
//
// The Decoder is owned by a single in-flight request and is not safe for
// concurrent use.
type Decoder struct {
	// remainder holds bytes received but not yet forming a complete frame.
	remainder string
}

// NewDecoder returns an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends chunk to the internal buffer, splits off every complete frame,
// and returns the parsed events in arrival order. Frames containing no fields
// (stray blank lines, comment-only keep-alives) produce no event.
func (d *Decoder) Feed(chunk []byte) []Event {
	d.remainder += string(chunk)

	var events []Event
	for {
		frame, rest, ok := cutFrame(d.remainder)
		if !ok {
			break
		}
		d.remainder = rest

		if ev, ok := parseFrame(frame); ok {
			events = append(events, ev)
		}
	}

	return events
}

// cutFrame splits off the first complete frame, recognizing both the LF and
// CRLF blank-line delimiters and taking whichever occurs first.
func cutFrame(buf string) (frame, rest string, ok bool) {
	lf := strings.Index(buf, frameDelimiter)
	crlf := strings.Index(buf, frameDelimiterCRLF)

	switch {
	case lf == -1 && crlf == -1:
		return "", "", false
	case crlf == -1 || (lf != -1 && lf < crlf):
		return buf[:lf], buf[lf+len(frameDelimiter):], true
	default:
		return buf[:crlf], buf[crlf+len(frameDelimiterCRLF):], true
	}
}

// Flush parses whatever remains in the buffer as a final frame. Call after
// the stream ends to recover an event the sender did not terminate with a
// blank line. The Decoder is reset either way.
func (d *Decoder) Flush() (Event, bool) {
	frame := d.remainder
	d.remainder = ""
	return parseFrame(frame)
}

// parseFrame parses one blank-line-delimited frame into an Event. The second
// return is false when the frame carries no fields.
func parseFrame(frame string) (Event, bool) {
	var ev Event
	hasData := false

	for _, line := range strings.Split(frame, "\n") {
		// Normalize CRLF streams.
		line = strings.TrimSuffix(line, "\r")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		field, value := splitField(line)
		switch field {
		case "data":
			if hasData && ev.Data != "" {
				ev.Data += "\n"
			}
			ev.Data += value
			hasData = true
		case "event":
			ev.Type = value
			hasData = true
		case "id":
			ev.ID = value
			hasData = true
		}
	}

	return ev, hasData
}
