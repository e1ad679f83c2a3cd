package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lanternworks/chatrelay/pkg/logger"
	"github.com/lanternworks/chatrelay/pkg/storage"
	"github.com/lanternworks/chatrelay/pkg/storage/inmemory"
)

var _ = Describe("chat management endpoints", func() {
	var (
		r     *Relay
		store *inmemory.Store
		ctx   = context.Background()
	)

	BeforeEach(func() {
		store = inmemory.NewStore()
		r = New(Config{
			ListenAddr:  ":0",
			UpstreamURL: "http://localhost:1",
			Model:       "gpt-4o-mini",
			APIKey:      "test-key",
		}, store, logger.Nop())
	})

	AfterEach(func() {
		r.Close()
	})

	doJSON := func(method, path, body string) *http.Response {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, path, reader)
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := r.server.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	It("responds to ping", func() {
		resp := doJSON(http.MethodGet, "/ping", "")
		defer resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(strings.TrimSpace(string(body))).To(Equal(`"pong"`))
	})

	Describe("POST /api/chats", func() {
		It("creates a chat with a title", func() {
			resp := doJSON(http.MethodPost, "/api/chats", `{"title":"my chat"}`)
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var chat storage.Chat
			Expect(json.NewDecoder(resp.Body).Decode(&chat)).To(Succeed())
			Expect(chat.ID).NotTo(BeEmpty())
			Expect(chat.Title).To(Equal("my chat"))

			exists, err := store.HasChat(ctx, chat.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeTrue())
		})

		It("accepts an empty body", func() {
			resp := doJSON(http.MethodPost, "/api/chats", "")
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		})
	})

	Describe("GET /api/chats", func() {
		It("lists created chats with a count", func() {
			_, err := store.CreateChat(ctx, "one")
			Expect(err).NotTo(HaveOccurred())
			_, err = store.CreateChat(ctx, "two")
			Expect(err).NotTo(HaveOccurred())

			resp := doJSON(http.MethodGet, "/api/chats", "")
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var listing struct {
				Count int             `json:"count"`
				Chats []*storage.Chat `json:"chats"`
			}
			Expect(json.NewDecoder(resp.Body).Decode(&listing)).To(Succeed())
			Expect(listing.Count).To(Equal(2))
			Expect(listing.Chats).To(HaveLen(2))
		})
	})

	Describe("GET /api/chats/:id/messages", func() {
		It("returns messages in conversation order", func() {
			chat, err := store.CreateChat(ctx, "")
			Expect(err).NotTo(HaveOccurred())
			_, err = store.AppendMessage(ctx, chat.ID, "user", "hi")
			Expect(err).NotTo(HaveOccurred())
			_, err = store.AppendMessage(ctx, chat.ID, "assistant", "hello")
			Expect(err).NotTo(HaveOccurred())

			resp := doJSON(http.MethodGet, "/api/chats/"+chat.ID+"/messages", "")
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var listing struct {
				ChatID   string             `json:"chat_id"`
				Count    int                `json:"count"`
				Messages []*storage.Message `json:"messages"`
			}
			Expect(json.NewDecoder(resp.Body).Decode(&listing)).To(Succeed())
			Expect(listing.ChatID).To(Equal(chat.ID))
			Expect(listing.Count).To(Equal(2))
			Expect(listing.Messages[0].Content).To(Equal("hi"))
			Expect(listing.Messages[1].Content).To(Equal("hello"))
		})

		It("returns an empty array for a chat with no messages", func() {
			chat, err := store.CreateChat(ctx, "")
			Expect(err).NotTo(HaveOccurred())

			resp := doJSON(http.MethodGet, "/api/chats/"+chat.ID+"/messages", "")
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring(`"messages":[]`))
		})

		It("returns 404 for an unknown chat", func() {
			resp := doJSON(http.MethodGet, "/api/chats/nope/messages", "")
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring(`"error"`))
		})
	})

	Describe("DELETE /api/chats/:id", func() {
		It("removes the chat and returns 204", func() {
			chat, err := store.CreateChat(ctx, "")
			Expect(err).NotTo(HaveOccurred())

			resp := doJSON(http.MethodDelete, "/api/chats/"+chat.ID, "")
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

			exists, err := store.HasChat(ctx, chat.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeFalse())
		})

		It("returns 404 for an unknown chat", func() {
			resp := doJSON(http.MethodDelete, "/api/chats/nope", "")
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})
})
