package llm

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ExtractDelta", func() {
	It("extracts the content delta from a streaming chunk", func() {
		data := `{"id":"chatcmpl-1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`
		delta, ok := ExtractDelta([]byte(data))
		Expect(ok).To(BeTrue())
		Expect(delta).To(Equal("Hel"))
	})

	It("returns an empty delta for role-only chunks", func() {
		data := `{"choices":[{"index":0,"delta":{"role":"assistant"}}]}`
		delta, ok := ExtractDelta([]byte(data))
		Expect(ok).To(BeTrue())
		Expect(delta).To(Equal(""))
	})

	It("returns an empty delta when choices is empty", func() {
		delta, ok := ExtractDelta([]byte(`{"choices":[]}`))
		Expect(ok).To(BeTrue())
		Expect(delta).To(Equal(""))
	})

	It("reports failure for non-JSON payloads", func() {
		_, ok := ExtractDelta([]byte("[DONE]"))
		Expect(ok).To(BeFalse())
	})

	It("concatenating deltas reconstructs the full reply", func() {
		chunks := []string{
			`{"choices":[{"delta":{"content":"Hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo"}}]}`,
		}

		var reply string
		for _, c := range chunks {
			delta, ok := ExtractDelta([]byte(c))
			Expect(ok).To(BeTrue())
			reply += delta
		}
		Expect(reply).To(Equal("Hello"))
	})
})

var _ = Describe("ParseStored", func() {
	It("recognizes the persistence-complete frame", func() {
		Expect(ParseStored([]byte(`{"__stored":true}`))).To(BeTrue())
	})

	It("rejects a false stored flag", func() {
		Expect(ParseStored([]byte(`{"__stored":false}`))).To(BeFalse())
	})

	It("rejects ordinary completion chunks", func() {
		Expect(ParseStored([]byte(`{"choices":[{"delta":{"content":"hi"}}]}`))).To(BeFalse())
	})

	It("rejects non-JSON payloads", func() {
		Expect(ParseStored([]byte("[DONE]"))).To(BeFalse())
	})
})
