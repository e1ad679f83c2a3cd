package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lanternworks/chatrelay/pkg/llm"
	"github.com/lanternworks/chatrelay/pkg/sse"
	"github.com/lanternworks/chatrelay/pkg/storage"
)

// streamState tracks one streamed completion through its lifecycle. The
// transitions are strictly linear: streaming → upstreamDone → persisted →
// closed, with persisted skipped when there is nothing to store.
type streamState int

const (
	// stateStreaming: upstream frames are being teed downstream and deltas
	// accumulated.
	stateStreaming streamState = iota

	// stateUpstreamDone: the upstream stream has drained (cleanly or not).
	stateUpstreamDone

	// statePersisted: the reassembled assistant reply has been durably
	// written.
	statePersisted

	// stateClosed: the terminal frame has been emitted and the output stream
	// closed.
	stateClosed
)

func (s streamState) String() string {
	switch s {
	case stateStreaming:
		return "streaming"
	case stateUpstreamDone:
		return "upstream_done"
	case statePersisted:
		return "persisted"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// persistTimeout bounds the post-stream assistant write, which runs outside
// any request context.
const persistTimeout = 10 * time.Second

// assistantTee owns the per-request delta accumulator: the tee of the
// upstream SSE stream to the downstream client, the reassembly of the
// assistant reply, the single post-stream persistence write, and the
// relay-synthesized terminal frame.
//
// It is exclusively owned by one request's goroutine and never reused.
type assistantTee struct {
	chatID string
	store  storage.Store
	logger *zap.Logger

	state streamState
	reply strings.Builder
}

func newAssistantTee(chatID string, store storage.Store, logger *zap.Logger) *assistantTee {
	return &assistantTee{
		chatID: chatID,
		store:  store,
		logger: logger,
		state:  stateStreaming,
	}
}

// run consumes the upstream response until exhaustion, forwarding every byte
// to pw verbatim, then persists the reassembled reply and appends the
// terminal frame. It always closes pw.
//
// A downstream write failure (client disconnected) does not stop the read
// loop: the tee is redirected to io.Discard and upstream is drained anyway,
// so the reply is still persisted. Durability is deliberately favored over
// strict client linkage.
func (t *assistantTee) run(httpResp *http.Response, pw *io.PipeWriter) {
	defer httpResp.Body.Close()
	defer pw.Close()

	downstreamOK := true
	tr := sse.NewTeeReader(httpResp.Body, pw)

	for {
		ev, err := tr.Next()
		if err != nil {
			var destErr *sse.DestWriteError
			if errors.As(err, &destErr) {
				t.logger.Warn("downstream write failed, draining upstream for persistence",
					zap.String("chat_id", t.chatID),
					zap.Error(err),
				)
				downstreamOK = false
				tr.Redirect(io.Discard)
				continue
			}

			// Upstream failed mid-stream. The stream simply ends early and
			// whatever accumulated so far still goes through the end-of-stream
			// persistence path.
			t.logger.Error("error reading upstream stream",
				zap.String("chat_id", t.chatID),
				zap.Error(err),
			)
			break
		}
		if ev == nil {
			break
		}

		t.consume(ev)
	}

	t.state = stateUpstreamDone
	t.finish(pw, downstreamOK)
}

// consume applies one upstream frame to the accumulator. Frames are applied
// in arrival order; the concatenation of all deltas reconstructs the reply
// exactly as a non-streaming response would carry it.
func (t *assistantTee) consume(ev *sse.Event) {
	// The upstream termination sentinel carries no delta.
	if ev.Data == llm.DoneSentinel {
		return
	}

	delta, ok := llm.ExtractDelta([]byte(ev.Data))
	if !ok {
		// Expected noise (keep-alive frames, protocol drift): skip the frame,
		// but keep the skip observable.
		t.logger.Debug("skipping unparseable stream frame",
			zap.String("chat_id", t.chatID),
			zap.String("data", ev.Data),
		)
		return
	}

	t.reply.WriteString(delta)
}

// finish runs the end-of-stream sequence: persist exactly once if there is a
// non-empty reply, then emit the terminal persistence frame, then let run
// close the stream. The terminal frame is only written when persistence
// actually succeeded (or was not needed), so the consumer never confuses
// "stream over" with "durably stored".
func (t *assistantTee) finish(pw *io.PipeWriter, downstreamOK bool) {
	stored := true

	if text := strings.TrimSpace(t.reply.String()); text != "" {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		if _, err := t.store.AppendMessage(ctx, t.chatID, llm.RoleAssistant, text); err != nil {
			t.logger.Error("failed to persist assistant message",
				zap.String("chat_id", t.chatID),
				zap.Error(err),
			)
			stored = false
		} else {
			t.state = statePersisted
		}
	}

	if stored && downstreamOK {
		payload, err := json.Marshal(llm.StoredEvent{Stored: true})
		if err == nil {
			// Strictly after the last upstream byte.
			if err := sse.WriteEvent(pw, sse.Event{Data: string(payload)}); err != nil {
				t.logger.Warn("failed to write terminal frame",
					zap.String("chat_id", t.chatID),
					zap.Error(err),
				)
			}
		}
	}

	t.state = stateClosed
	t.logger.Debug("stream finished",
		zap.String("chat_id", t.chatID),
		zap.String("state", t.state.String()),
		zap.Int("reply_bytes", t.reply.Len()),
	)
}
