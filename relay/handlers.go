package relay

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/lanternworks/chatrelay/pkg/llm"
	"github.com/lanternworks/chatrelay/pkg/storage"
)

// createChatRequest is the body for POST /api/chats.
type createChatRequest struct {
	Title string `json:"title"`
}

// messagesResponse is the body for GET /api/chats/:id/messages, the
// authoritative conversation state consumers reconcile against.
type messagesResponse struct {
	ChatID   string             `json:"chat_id"`
	Count    int                `json:"count"`
	Messages []*storage.Message `json:"messages"`
}

// handlePing returns a simple health check response.
func (r *Relay) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleCreateChat creates a new conversation.
func (r *Relay) handleCreateChat(c *fiber.Ctx) error {
	var req createChatRequest
	// An empty body is fine, the title is optional.
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(llm.NewError("invalid request body"))
		}
	}

	chat, err := r.store.CreateChat(c.Context(), req.Title)
	if err != nil {
		r.logger.Error("failed to create chat", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.NewError("failed to create chat"))
	}

	return c.Status(fiber.StatusCreated).JSON(chat)
}

// handleListChats returns all conversations, newest first.
func (r *Relay) handleListChats(c *fiber.Ctx) error {
	chats, err := r.store.ListChats(c.Context())
	if err != nil {
		r.logger.Error("failed to list chats", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.NewError("failed to list chats"))
	}

	return c.JSON(map[string]any{
		"count": len(chats),
		"chats": chats,
	})
}

// handleListMessages returns a conversation's messages in order.
func (r *Relay) handleListMessages(c *fiber.Ctx) error {
	chatID := c.Params("id")

	msgs, err := r.store.Messages(c.Context(), chatID)
	if err != nil {
		if errors.As(err, &storage.ErrNotFound{}) {
			return c.Status(fiber.StatusNotFound).JSON(llm.NewError("chat not found"))
		}
		r.logger.Error("failed to list messages",
			zap.String("chat_id", chatID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(llm.NewError("failed to list messages"))
	}

	if msgs == nil {
		msgs = []*storage.Message{}
	}

	return c.JSON(messagesResponse{
		ChatID:   chatID,
		Count:    len(msgs),
		Messages: msgs,
	})
}

// handleDeleteChat removes a conversation and its messages.
func (r *Relay) handleDeleteChat(c *fiber.Ctx) error {
	chatID := c.Params("id")

	if err := r.store.DeleteChat(c.Context(), chatID); err != nil {
		if errors.As(err, &storage.ErrNotFound{}) {
			return c.Status(fiber.StatusNotFound).JSON(llm.NewError("chat not found"))
		}
		r.logger.Error("failed to delete chat",
			zap.String("chat_id", chatID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(llm.NewError("failed to delete chat"))
	}

	return c.SendStatus(fiber.StatusNoContent)
}
