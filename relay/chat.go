package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/lanternworks/chatrelay/pkg/llm"
)

// chatSendRequest is the body for POST /api/chat/completions: one user turn
// in an existing conversation.
type chatSendRequest struct {
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
	Stream  bool   `json:"stream"`
}

// handleChatCompletions is the relay's core operation. It validates the
// request before any side effect, persists the user message, forwards the
// full conversation to the upstream completion API, and returns either the
// upstream body verbatim (non-streaming) or a byte-identical tee of the
// upstream SSE stream followed by the relay's own terminal frame.
func (r *Relay) handleChatCompletions(c *fiber.Ctx) error {
	var req chatSendRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.NewError("invalid request body"))
	}

	req.Content = strings.TrimSpace(req.Content)

	// Validation and credential checks happen strictly before any write or
	// upstream call.
	if req.ChatID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.NewError("chat_id is required"))
	}
	if req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.NewError("content is required"))
	}

	authorization := r.resolveCredential(c)
	if authorization == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(llm.NewError("missing upstream API credential"))
	}

	exists, err := r.store.HasChat(c.Context(), req.ChatID)
	if err != nil {
		r.logger.Error("failed to check chat", zap.String("chat_id", req.ChatID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.NewError("storage failure"))
	}
	if !exists {
		return c.Status(fiber.StatusNotFound).JSON(llm.NewError("chat not found"))
	}

	// Exactly one user-message write, before the upstream call begins.
	if _, err := r.store.AppendMessage(c.Context(), req.ChatID, llm.RoleUser, req.Content); err != nil {
		r.logger.Error("failed to persist user message", zap.String("chat_id", req.ChatID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.NewError("storage failure"))
	}

	history, err := r.conversationHistory(c.Context(), req.ChatID)
	if err != nil {
		r.logger.Error("failed to load history", zap.String("chat_id", req.ChatID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.NewError("storage failure"))
	}

	upstreamBody, err := json.Marshal(llm.ChatRequest{
		Model:    r.config.Model,
		Messages: history,
		Stream:   req.Stream,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.NewError("internal error"))
	}

	if req.Stream {
		return r.streamCompletion(c, req.ChatID, authorization, upstreamBody)
	}

	return r.completeOnce(c, req.ChatID, authorization, upstreamBody)
}

// resolveCredential returns the Authorization header value to send upstream:
// the caller's own bearer token when present, the relay's configured key
// otherwise. Empty means no credential is available.
func (r *Relay) resolveCredential(c *fiber.Ctx) string {
	if auth := c.Get(fiber.HeaderAuthorization); strings.TrimSpace(auth) != "" {
		return auth
	}
	if r.config.APIKey != "" {
		return "Bearer " + r.config.APIKey
	}
	return ""
}

// conversationHistory loads the full conversation, including the user message
// just written, in the order the upstream API expects.
func (r *Relay) conversationHistory(ctx context.Context, chatID string) ([]llm.Message, error) {
	msgs, err := r.store.Messages(ctx, chatID)
	if err != nil {
		return nil, err
	}

	history := make([]llm.Message, 0, len(msgs))
	for _, msg := range msgs {
		history = append(history, llm.Message{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	return history, nil
}

// completeOnce handles the non-streaming path: one upstream round trip, the
// assistant reply persisted if present, and the raw upstream body returned to
// the caller verbatim so any upstream error shape surfaces unchanged.
func (r *Relay) completeOnce(c *fiber.Ctx, chatID, authorization string, body []byte) error {
	httpReq, err := http.NewRequestWithContext(c.Context(), http.MethodPost, r.config.UpstreamURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		r.logger.Error("failed to create upstream request", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.NewError("internal error"))
	}
	r.setUpstreamHeaders(c, httpReq, authorization)

	httpResp, err := r.httpClient.Do(httpReq)
	if err != nil {
		r.logger.Error("upstream request failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(llm.NewError("upstream request failed"))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		r.logger.Error("failed to read upstream response", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(llm.NewError("failed to read upstream response"))
	}

	r.headerHandler.SetClientResponseHeaders(c, httpResp)

	if httpResp.StatusCode == http.StatusOK {
		if resp, err := llm.ParseResponse(respBody); err != nil {
			r.logger.Warn("failed to parse upstream response", zap.Error(err))
		} else if reply := strings.TrimSpace(resp.ReplyText()); reply != "" {
			if _, err := r.store.AppendMessage(c.Context(), chatID, llm.RoleAssistant, reply); err != nil {
				r.logger.Error("failed to persist assistant message",
					zap.String("chat_id", chatID),
					zap.Error(err),
				)
			}
		}
	}

	// Pass-through: upstream status and body, not re-serialized.
	return c.Status(httpResp.StatusCode).Send(respBody)
}

// streamCompletion handles the streaming path: tee the upstream SSE stream to
// the caller while reassembling the assistant reply for persistence.
func (r *Relay) streamCompletion(c *fiber.Ctx, chatID, authorization string, body []byte) error {
	// context.Background() instead of c.Context(): fasthttp recycles its
	// RequestCtx once the handler returns, but the tee goroutine keeps
	// reading the upstream connection after that.
	httpReq, err := http.NewRequestWithContext(context.Background(), http.MethodPost, r.config.UpstreamURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		r.logger.Error("failed to create upstream request", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.NewError("internal error"))
	}
	r.setUpstreamHeaders(c, httpReq, authorization)

	httpResp, err := r.httpClient.Do(httpReq)
	if err != nil {
		r.logger.Error("upstream request failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(llm.NewError("upstream request failed"))
	}

	// Upstream refused the stream: surface its error body and status
	// verbatim, no tee.
	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		r.logger.Error("upstream returned error",
			zap.Int("status", httpResp.StatusCode),
			zap.String("body", string(respBody)),
		)
		return c.Status(httpResp.StatusCode).Send(respBody)
	}

	r.headerHandler.SetClientResponseHeaders(c, httpResp)

	// io.Pipe gives direct backpressure: pw.Write blocks until fasthttp's
	// chunked writer consumes the bytes, so every upstream chunk reaches the
	// TCP socket without accumulating in memory.
	pr, pw := io.Pipe()
	tee := newAssistantTee(chatID, r.store, r.logger)
	go tee.run(httpResp, pw)

	// Unknown size (-1) triggers chunked transfer encoding.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// setUpstreamHeaders forwards the caller's headers (filtered), then fixes the
// fields the relay owns: its own JSON body and the resolved credential.
func (r *Relay) setUpstreamHeaders(c *fiber.Ctx, req *http.Request, authorization string) {
	r.headerHandler.SetUpstreamRequestHeaders(c, req)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderAuthorization, authorization)
}
