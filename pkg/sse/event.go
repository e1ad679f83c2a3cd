// Package sse implements the server-sent-events framing used on both legs of
// the chatrelay pipeline. The relay side reads an upstream completion stream
// through a TeeReader, which parses events while forwarding the raw bytes
// verbatim to the downstream client. The consumer side reassembles the same
// framing from arbitrarily-sized network chunks with a push-mode Decoder.
//
// Framing per the SSE specification: events are delimited by a blank line and
// carry their payload on "data:" lines.
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// Event is a single parsed SSE event, delimited by a blank line in the
// byte stream.
type Event struct {
	// Type is the SSE event type from the "event:" field.
	// Empty means the default "message" type per the SSE spec.
	Type string

	// Data is the concatenated contents of all "data:" lines for this event,
	// joined with "\n" per the SSE spec.
	Data string

	// ID is the last event ID from the "id:" field, if present.
	ID string
}
