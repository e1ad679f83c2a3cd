// Package storage defines the conversation store the relay persists into and
// the shapes the rest of the system depends on.
package storage

import (
	"context"
	"time"
)

// Chat is one conversation.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one persisted conversation entry. Messages are never mutated
// after creation; they are deleted only as part of whole-chat deletion.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the interface for persisting and retrieving chats and messages.
// Implementations must order Messages by created_at ascending with ties
// broken by insertion order, and must be strongly consistent with respect to
// the caller's own subsequent reads.
type Store interface {
	// CreateChat creates a new chat with the given title (may be empty).
	CreateChat(ctx context.Context, title string) (*Chat, error)

	// GetChat returns a chat by id, or ErrNotFound.
	GetChat(ctx context.Context, chatID string) (*Chat, error)

	// HasChat reports whether a chat exists.
	HasChat(ctx context.Context, chatID string) (bool, error)

	// ListChats returns all chats, newest first.
	ListChats(ctx context.Context) ([]*Chat, error)

	// DeleteChat removes a chat and all of its messages.
	// Returns ErrNotFound when the chat does not exist.
	DeleteChat(ctx context.Context, chatID string) error

	// AppendMessage durably writes one message to a chat.
	AppendMessage(ctx context.Context, chatID, role, content string) (*Message, error)

	// Messages returns a chat's messages in conversation order.
	Messages(ctx context.Context, chatID string) ([]*Message, error)

	// Close releases any underlying resources.
	Close() error
}
