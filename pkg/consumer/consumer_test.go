package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lanternworks/chatrelay/pkg/logger"
	"github.com/lanternworks/chatrelay/pkg/storage"
)

// recordingSink captures every render callback for assertions.
type recordingSink struct {
	mu sync.Mutex

	userMessages []string
	deltas       []string
	errors       []string
	histories    [][]storage.Message
}

func (s *recordingSink) UserMessage(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userMessages = append(s.userMessages, text)
}

func (s *recordingSink) AppendDelta(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltas = append(s.deltas, text)
}

func (s *recordingSink) StreamError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, message)
}

func (s *recordingSink) RenderHistory(messages []storage.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories = append(s.histories, messages)
}

func (s *recordingSink) snapshot() (deltas, errs []string, histories [][]storage.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deltas...),
		append([]string(nil), s.errors...),
		append([][]storage.Message(nil), s.histories...)
}

// fakeRelay is a stub chatrelay server: a scripted completions stream and a
// canned history.
type fakeRelay struct {
	streamFrames []string
	streamStatus int
	streamBody   string
	history      []storage.Message

	historyCalls sync.Map
	server       *httptest.Server
}

func newFakeRelay() *fakeRelay {
	f := &fakeRelay{streamStatus: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if f.streamStatus != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.streamStatus)
			fmt.Fprint(w, f.streamBody)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, frame := range f.streamFrames {
			fmt.Fprint(w, frame)
			flusher.Flush()
		}
	})
	mux.HandleFunc("GET /api/chats/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		count, _ := f.historyCalls.LoadOrStore(id, new(int))
		*count.(*int)++

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"chat_id":  id,
			"count":    len(f.history),
			"messages": f.history,
		})
	})
	mux.HandleFunc("POST /api/chats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(storage.Chat{ID: "chat-new", Title: ""})
	})

	f.server = httptest.NewServer(mux)
	return f
}

func (f *fakeRelay) close() {
	f.server.Close()
}

var _ = Describe("Consumer", func() {
	var (
		relay *fakeRelay
		sink  *recordingSink
		cons  *Consumer
		ctx   context.Context
	)

	BeforeEach(func() {
		relay = newFakeRelay()
		sink = &recordingSink{}
		cons = New(Config{
			Target:         relay.server.URL,
			ChatID:         "chat-1",
			ReconcileDelay: 10 * time.Millisecond,
		}, sink, logger.Nop())
		ctx = context.Background()
	})

	AfterEach(func() {
		relay.close()
	})

	Context("when the relay streams deltas and confirms persistence", func() {
		BeforeEach(func() {
			relay.streamFrames = []string{
				"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n",
				"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n",
				"data: [DONE]\n\n",
				"data: {\"__stored\":true}\n\n",
			}
			relay.history = []storage.Message{
				{ID: "m1", ChatID: "chat-1", Role: "user", Content: "Say hello"},
				{ID: "m2", ChatID: "chat-1", Role: "assistant", Content: "Hello"},
			}
		})

		It("renders each delta in arrival order", func() {
			Expect(cons.Send(ctx, "Say hello")).To(Succeed())

			deltas, errs, _ := sink.snapshot()
			Expect(errs).To(BeEmpty())
			Expect(deltas).To(Equal([]string{"Hel", "lo"}))
		})

		It("reconciles immediately against the stored history", func() {
			Expect(cons.Send(ctx, "Say hello")).To(Succeed())

			_, _, histories := sink.snapshot()
			Expect(histories).To(HaveLen(1))
			Expect(histories[0]).To(HaveLen(2))
			Expect(histories[0][1].Content).To(Equal("Hello"))
		})
	})

	Context("when the persistence confirmation never arrives", func() {
		BeforeEach(func() {
			relay.streamFrames = []string{
				"data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n",
			}
			relay.history = []storage.Message{
				{ID: "m1", ChatID: "chat-1", Role: "user", Content: "hi"},
			}
		})

		It("keeps the partial text and reconciles after the fallback delay", func() {
			Expect(cons.Send(ctx, "hi")).To(Succeed())

			deltas, _, histories := sink.snapshot()
			Expect(deltas).To(Equal([]string{"partial"}))
			Expect(histories).To(HaveLen(1))
		})
	})

	Context("when the relay rejects the request before streaming", func() {
		BeforeEach(func() {
			relay.streamStatus = http.StatusNotFound
			relay.streamBody = `{"error":{"message":"chat not found"}}`
		})

		It("surfaces the error and does not reconcile", func() {
			Expect(cons.Send(ctx, "hi")).To(Succeed())

			deltas, errs, histories := sink.snapshot()
			Expect(deltas).To(BeEmpty())
			Expect(errs).To(HaveLen(1))
			Expect(errs[0]).To(ContainSubstring("chat not found"))
			Expect(histories).To(BeEmpty())
		})
	})

	Context("when frames arrive split across reads", func() {
		BeforeEach(func() {
			// A single frame flushed in two pieces, split mid-JSON.
			whole := "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n"
			relay.streamFrames = []string{
				whole[:25],
				whole[25:],
				"data: [DONE]\n\ndata: {\"__stored\":true}\n\n",
			}
			relay.history = []storage.Message{
				{ID: "m1", ChatID: "chat-1", Role: "user", Content: "hi"},
				{ID: "m2", ChatID: "chat-1", Role: "assistant", Content: "Hello"},
			}
		})

		It("reassembles the delta across chunk boundaries", func() {
			Expect(cons.Send(ctx, "hi")).To(Succeed())

			deltas, _, _ := sink.snapshot()
			Expect(deltas).To(Equal([]string{"Hello"}))
		})
	})

	Describe("NewChat", func() {
		It("creates a chat and rebinds the consumer", func() {
			chat, err := cons.NewChat(ctx, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(chat.ID).To(Equal("chat-new"))
			Expect(cons.ChatID()).To(Equal("chat-new"))
		})
	})

	Describe("UserMessage callback", func() {
		BeforeEach(func() {
			relay.streamFrames = []string{"data: [DONE]\n\n"}
		})

		It("fires once per send with the typed text", func() {
			Expect(cons.Send(ctx, "my message")).To(Succeed())

			sink.mu.Lock()
			defer sink.mu.Unlock()
			Expect(sink.userMessages).To(Equal([]string{"my message"}))
		})
	})
})
