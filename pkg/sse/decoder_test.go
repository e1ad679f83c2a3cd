package sse

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Decoder", func() {
	var dec *Decoder

	BeforeEach(func() {
		dec = NewDecoder()
	})

	It("parses a complete frame in one chunk", func() {
		events := dec.Feed([]byte("data: {\"x\":1}\n\n"))
		Expect(events).To(HaveLen(1))
		Expect(events[0].Data).To(Equal(`{"x":1}`))
	})

	It("parses several frames arriving in a single chunk", func() {
		events := dec.Feed([]byte("data: a\n\ndata: b\n\ndata: c\n\n"))
		Expect(events).To(HaveLen(3))
		Expect(events[0].Data).To(Equal("a"))
		Expect(events[1].Data).To(Equal("b"))
		Expect(events[2].Data).To(Equal("c"))
	})

	It("reassembles a frame split mid-JSON across chunks", func() {
		// The network can split anywhere, including inside the JSON payload.
		events := dec.Feed([]byte(`data: {"choices":[{"delta":{"con`))
		Expect(events).To(BeEmpty())

		events = dec.Feed([]byte("tent\":\"Hello\"}}]}\n\n"))
		Expect(events).To(HaveLen(1))
		Expect(events[0].Data).To(Equal(`{"choices":[{"delta":{"content":"Hello"}}]}`))
	})

	It("reassembles a frame split inside the delimiter", func() {
		events := dec.Feed([]byte("data: x\n"))
		Expect(events).To(BeEmpty())

		events = dec.Feed([]byte("\n"))
		Expect(events).To(HaveLen(1))
		Expect(events[0].Data).To(Equal("x"))
	})

	It("emits every frame completed by one chunk in order", func() {
		events := dec.Feed([]byte("data: first\n"))
		Expect(events).To(BeEmpty())

		events = dec.Feed([]byte("\ndata: second\n\ndata: thi"))
		Expect(events).To(HaveLen(2))
		Expect(events[0].Data).To(Equal("first"))
		Expect(events[1].Data).To(Equal("second"))

		events = dec.Feed([]byte("rd\n\n"))
		Expect(events).To(HaveLen(1))
		Expect(events[0].Data).To(Equal("third"))
	})

	It("drops comment-only keep-alive frames", func() {
		events := dec.Feed([]byte(": keep-alive\n\ndata: real\n\n"))
		Expect(events).To(HaveLen(1))
		Expect(events[0].Data).To(Equal("real"))
	})

	It("handles CRLF line endings with an LF blank line", func() {
		events := dec.Feed([]byte("data: windows\r\n\n"))
		Expect(events).To(HaveLen(1))
		Expect(events[0].Data).To(Equal("windows"))
	})

	It("splits fully CRLF-delimited streams", func() {
		events := dec.Feed([]byte("data: one\r\n\r\ndata: two\r\n\r\n"))
		Expect(events).To(HaveLen(2))
		Expect(events[0].Data).To(Equal("one"))
		Expect(events[1].Data).To(Equal("two"))
	})

	It("reassembles a frame split inside a CRLF delimiter", func() {
		events := dec.Feed([]byte("data: x\r\n\r"))
		Expect(events).To(BeEmpty())

		events = dec.Feed([]byte("\ndata: y\r\n\r\n"))
		Expect(events).To(HaveLen(2))
		Expect(events[0].Data).To(Equal("x"))
		Expect(events[1].Data).To(Equal("y"))
	})

	It("takes the earlier delimiter when LF and CRLF framing mix", func() {
		events := dec.Feed([]byte("data: a\r\n\r\ndata: b\n\ndata: c\r\n\r\n"))
		Expect(events).To(HaveLen(3))
		Expect(events[0].Data).To(Equal("a"))
		Expect(events[1].Data).To(Equal("b"))
		Expect(events[2].Data).To(Equal("c"))
	})

	It("carries event type and id fields", func() {
		events := dec.Feed([]byte("event: done\nid: 7\ndata: bye\n\n"))
		Expect(events).To(HaveLen(1))
		Expect(events[0].Type).To(Equal("done"))
		Expect(events[0].ID).To(Equal("7"))
		Expect(events[0].Data).To(Equal("bye"))
	})

	Describe("Flush", func() {
		It("recovers an unterminated final frame", func() {
			events := dec.Feed([]byte("data: last"))
			Expect(events).To(BeEmpty())

			ev, ok := dec.Flush()
			Expect(ok).To(BeTrue())
			Expect(ev.Data).To(Equal("last"))
		})

		It("reports nothing when the buffer is empty", func() {
			_, ok := dec.Flush()
			Expect(ok).To(BeFalse())
		})
	})
})

var _ = Describe("WriteEvent", func() {
	It("writes a data-only event with the terminating blank line", func() {
		var buf bytes.Buffer
		Expect(WriteEvent(&buf, Event{Data: `{"__stored":true}`})).To(Succeed())
		Expect(buf.String()).To(Equal("data: {\"__stored\":true}\n\n"))
	})

	It("includes event and id lines when set", func() {
		var buf bytes.Buffer
		Expect(WriteEvent(&buf, Event{Type: "notice", ID: "3", Data: "hi"})).To(Succeed())
		Expect(buf.String()).To(Equal("event: notice\nid: 3\ndata: hi\n\n"))
	})

	It("round-trips through the decoder", func() {
		var buf bytes.Buffer
		Expect(WriteEvent(&buf, Event{Data: "payload"})).To(Succeed())

		dec := NewDecoder()
		events := dec.Feed(buf.Bytes())
		Expect(events).To(HaveLen(1))
		Expect(events[0].Data).To(Equal("payload"))
	})
})
