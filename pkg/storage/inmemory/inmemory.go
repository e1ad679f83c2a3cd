// Package inmemory provides a map-backed Store used by tests and as the
// default when no database path is configured.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lanternworks/chatrelay/pkg/storage"
)

// Store implements storage.Store using in-memory maps.
type Store struct {
	mu sync.RWMutex

	chats map[string]*storage.Chat

	// messages holds per-chat messages in insertion order, which doubles as
	// the created_at tiebreak.
	messages map[string][]*storage.Message
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		chats:    make(map[string]*storage.Chat),
		messages: make(map[string][]*storage.Message),
	}
}

func (s *Store) CreateChat(_ context.Context, title string) (*storage.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat := &storage.Chat{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	s.chats[chat.ID] = chat

	return chat, nil
}

func (s *Store) GetChat(_ context.Context, chatID string) (*storage.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return nil, storage.ErrNotFound{ChatID: chatID}
	}

	return chat, nil
}

func (s *Store) HasChat(_ context.Context, chatID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.chats[chatID]
	return ok, nil
}

func (s *Store) ListChats(_ context.Context) ([]*storage.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chats := make([]*storage.Chat, 0, len(s.chats))
	for _, chat := range s.chats {
		chats = append(chats, chat)
	}

	// Newest first, id tiebreak for stable ordering.
	sort.Slice(chats, func(i, j int) bool {
		if chats[i].CreatedAt.Equal(chats[j].CreatedAt) {
			return chats[i].ID < chats[j].ID
		}
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})

	return chats, nil
}

func (s *Store) DeleteChat(_ context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[chatID]; !ok {
		return storage.ErrNotFound{ChatID: chatID}
	}

	delete(s.chats, chatID)
	delete(s.messages, chatID)
	return nil
}

func (s *Store) AppendMessage(_ context.Context, chatID, role, content string) (*storage.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[chatID]; !ok {
		return nil, storage.ErrNotFound{ChatID: chatID}
	}

	msg := &storage.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	s.messages[chatID] = append(s.messages[chatID], msg)

	return msg, nil
}

func (s *Store) Messages(_ context.Context, chatID string) ([]*storage.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.chats[chatID]; !ok {
		return nil, storage.ErrNotFound{ChatID: chatID}
	}

	msgs := s.messages[chatID]
	out := make([]*storage.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Count returns the number of messages stored for a chat.
func (s *Store) Count(chatID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages[chatID])
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
