package logger

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("NewLoggerWithWriters", func() {
	It("writes info logs to the provided writer", func() {
		var buf bytes.Buffer
		log := NewLoggerWithWriters(false, &buf)

		log.Info("relay started")
		log.Sync()

		Expect(buf.String()).To(ContainSubstring("relay started"))
	})

	It("suppresses debug logs unless debug is enabled", func() {
		var quiet, verbose bytes.Buffer

		NewLoggerWithWriters(false, &quiet).Debug("hidden")
		NewLoggerWithWriters(true, &verbose).Debug("visible")

		Expect(quiet.String()).NotTo(ContainSubstring("hidden"))
		Expect(verbose.String()).To(ContainSubstring("visible"))
	})
})

var _ = Describe("Nop", func() {
	It("returns a usable no-op logger", func() {
		Expect(func() { Nop().Info("discarded") }).NotTo(Panic())
	})
})
