package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lanternworks/chatrelay/pkg/storage"
)

var _ = Describe("Store", func() {
	var (
		s   *Store
		ctx context.Context
	)

	BeforeEach(func() {
		s = NewStore()
		ctx = context.Background()
	})

	It("creates and retrieves chats", func() {
		chat, err := s.CreateChat(ctx, "test chat")
		Expect(err).NotTo(HaveOccurred())
		Expect(chat.ID).NotTo(BeEmpty())
		Expect(chat.Title).To(Equal("test chat"))

		got, err := s.GetChat(ctx, chat.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(chat.ID))

		exists, err := s.HasChat(ctx, chat.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeTrue())
	})

	It("returns ErrNotFound for unknown chats", func() {
		_, err := s.GetChat(ctx, "nope")
		var notFound storage.ErrNotFound
		Expect(errors.As(err, &notFound)).To(BeTrue())
		Expect(notFound.ChatID).To(Equal("nope"))

		exists, err := s.HasChat(ctx, "nope")
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeFalse())
	})

	It("appends messages and returns them in order", func() {
		chat, err := s.CreateChat(ctx, "")
		Expect(err).NotTo(HaveOccurred())

		_, err = s.AppendMessage(ctx, chat.ID, "user", "first")
		Expect(err).NotTo(HaveOccurred())
		_, err = s.AppendMessage(ctx, chat.ID, "assistant", "second")
		Expect(err).NotTo(HaveOccurred())
		_, err = s.AppendMessage(ctx, chat.ID, "user", "third")
		Expect(err).NotTo(HaveOccurred())

		msgs, err := s.Messages(ctx, chat.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(3))
		Expect(msgs[0].Content).To(Equal("first"))
		Expect(msgs[1].Content).To(Equal("second"))
		Expect(msgs[2].Content).To(Equal("third"))
		Expect(msgs[1].Role).To(Equal("assistant"))
	})

	It("rejects appends to unknown chats", func() {
		_, err := s.AppendMessage(ctx, "nope", "user", "text")
		var notFound storage.ErrNotFound
		Expect(errors.As(err, &notFound)).To(BeTrue())
	})

	It("deletes a chat along with its messages", func() {
		chat, err := s.CreateChat(ctx, "")
		Expect(err).NotTo(HaveOccurred())
		_, err = s.AppendMessage(ctx, chat.ID, "user", "hi")
		Expect(err).NotTo(HaveOccurred())

		Expect(s.DeleteChat(ctx, chat.ID)).To(Succeed())

		exists, err := s.HasChat(ctx, chat.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeFalse())
		Expect(s.Count(chat.ID)).To(BeZero())
	})

	It("reports ErrNotFound when deleting an unknown chat", func() {
		var notFound storage.ErrNotFound
		Expect(errors.As(s.DeleteChat(ctx, "nope"), &notFound)).To(BeTrue())
	})

	It("survives concurrent appends to the same chat", func() {
		chat, err := s.CreateChat(ctx, "")
		Expect(err).NotTo(HaveOccurred())

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, err := s.AppendMessage(ctx, chat.ID, "user", fmt.Sprintf("msg-%d", n))
				Expect(err).NotTo(HaveOccurred())
			}(i)
		}
		wg.Wait()

		Expect(s.Count(chat.ID)).To(Equal(20))
	})
})
