// Package consumer implements the client half of the chatrelay pipeline: it
// sends a user turn to the relay with streaming enabled, reassembles the SSE
// frames from arbitrarily-sized body chunks, renders each text delta as it
// arrives, and reconciles against the relay's authoritative history once the
// relay confirms persistence.
package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lanternworks/chatrelay/pkg/llm"
	"github.com/lanternworks/chatrelay/pkg/sse"
	"github.com/lanternworks/chatrelay/pkg/storage"
)

// RenderSink receives the consumer's render callbacks. The terminal client
// and any future frontend implement this; the consumer itself never touches
// presentation.
type RenderSink interface {
	// UserMessage renders the just-sent user turn.
	UserMessage(text string)

	// AppendDelta appends one incremental fragment of the assistant reply.
	// Called per delta, in arrival order, with no buffering delay.
	AppendDelta(text string)

	// StreamError renders an inline error, appended to whatever text has
	// already streamed.
	StreamError(message string)

	// RenderHistory replaces the provisional streamed view with the
	// authoritative conversation state.
	RenderHistory(messages []storage.Message)
}

// Config holds the consumer's settings.
type Config struct {
	// Target is the relay base URL, e.g. "http://localhost:8080".
	Target string

	// ChatID is the conversation to send into.
	ChatID string

	// ReconcileDelay is how long to wait before the fallback history fetch
	// when the relay's persistence confirmation never arrived.
	ReconcileDelay time.Duration

	// HTTPClient overrides the default client (used by tests).
	HTTPClient *http.Client
}

// Consumer drives one conversation against a relay. It is not safe for
// concurrent Send calls; the per-send accumulator is exclusively owned by the
// in-flight operation.
type Consumer struct {
	target     string
	chatID     string
	delay      time.Duration
	httpClient *http.Client
	sink       RenderSink
	logger     *zap.Logger
}

// New creates a Consumer rendering into sink.
func New(cfg Config, sink RenderSink, logger *zap.Logger) *Consumer {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// Completion streams can be slow
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}

	delay := cfg.ReconcileDelay
	if delay == 0 {
		delay = 500 * time.Millisecond
	}

	return &Consumer{
		target:     cfg.Target,
		chatID:     cfg.ChatID,
		delay:      delay,
		httpClient: httpClient,
		sink:       sink,
		logger:     logger,
	}
}

// ChatID returns the active conversation id.
func (c *Consumer) ChatID() string {
	return c.chatID
}

// NewChat creates a fresh conversation on the relay and attaches the
// consumer to it.
func (c *Consumer) NewChat(ctx context.Context, title string) (*storage.Chat, error) {
	body, err := json.Marshal(map[string]string{"title": title})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.target+"/api/chats", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("creating chat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("relay returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var chat storage.Chat
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("parsing chat: %w", err)
	}

	c.chatID = chat.ID
	return &chat, nil
}

// sendState is the per-send delta accumulator: the SSE decoder holding the
// partial-frame remainder, and the flags derived from consumed frames. Owned
// by exactly one Send call.
type sendState struct {
	decoder *sse.Decoder

	// stored flips when the relay's persistence-complete frame arrives.
	stored bool
}

// Send submits one user turn with streaming enabled and renders the reply
// progressively. When the read loop ends it reconciles with the relay's
// stored history: immediately if the relay confirmed persistence, after a
// short tolerated-failure delay otherwise.
func (c *Consumer) Send(ctx context.Context, text string) error {
	c.sink.UserMessage(text)

	body, err := json.Marshal(map[string]any{
		"chat_id": c.chatID,
		"content": text,
		"stream":  true,
	})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.target+"/api/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.sink.StreamError(err.Error())
		return fmt.Errorf("sending request to relay: %w", err)
	}
	defer resp.Body.Close()

	// A failed status before any streaming: error bubble, no reconciliation.
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		c.sink.StreamError(string(respBody))
		return nil
	}

	state := &sendState{decoder: sse.NewDecoder()}
	c.readStream(resp.Body, state)

	if state.stored {
		// Persistence confirmed: the streamed text was provisional, the
		// store is the source of truth.
		if err := c.Reconcile(ctx); err != nil {
			c.logger.Warn("reconciliation fetch failed", zap.Error(err))
		}
		return nil
	}

	// The confirmation never arrived (connection dropped, relay failure).
	// Try once more after a beat so the UI doesn't stay out of sync;
	// tolerate failure silently.
	c.logger.Debug("stream ended without persistence confirmation",
		zap.String("chat_id", c.chatID),
	)
	select {
	case <-ctx.Done():
	case <-time.After(c.delay):
		if err := c.Reconcile(ctx); err != nil {
			c.logger.Debug("fallback reconciliation failed", zap.Error(err))
		}
	}
	return nil
}

// readStream pulls chunks off the response body as they arrive and feeds
// them through the frame decoder. Each chunk is fully processed before the
// next read, preserving delta order.
func (c *Consumer) readStream(body io.Reader, state *sendState) {
	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, ev := range state.decoder.Feed(buf[:n]) {
				c.consume(ev, state)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.sink.StreamError(err.Error())
			}
			break
		}
	}

	// Recover a final frame the stream did not terminate cleanly.
	if ev, ok := state.decoder.Flush(); ok {
		c.consume(ev, state)
	}
}

// consume applies one frame: skip the upstream sentinel, record the relay's
// persistence confirmation, or render a delta.
func (c *Consumer) consume(ev sse.Event, state *sendState) {
	if ev.Data == llm.DoneSentinel {
		return
	}

	if llm.ParseStored([]byte(ev.Data)) {
		state.stored = true
		return
	}

	delta, ok := llm.ExtractDelta([]byte(ev.Data))
	if !ok {
		c.logger.Debug("skipping unparseable stream frame", zap.String("data", ev.Data))
		return
	}
	if delta != "" {
		c.sink.AppendDelta(delta)
	}
}

// Reconcile fetches the authoritative conversation state and re-renders
// from it.
func (c *Consumer) Reconcile(ctx context.Context) error {
	msgs, err := c.History(ctx)
	if err != nil {
		return err
	}

	c.sink.RenderHistory(msgs)
	return nil
}

// historyResponse mirrors the relay's messages endpoint body.
type historyResponse struct {
	ChatID   string            `json:"chat_id"`
	Count    int               `json:"count"`
	Messages []storage.Message `json:"messages"`
}

// History fetches the conversation's stored messages in order.
func (c *Consumer) History(ctx context.Context) ([]storage.Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.target+"/api/chats/"+c.chatID+"/messages", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("relay returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var history historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, fmt.Errorf("parsing history: %w", err)
	}

	return history.Messages, nil
}
