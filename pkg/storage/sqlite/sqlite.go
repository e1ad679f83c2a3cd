// Package sqlite provides a SQLite-backed conversation store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver

	"github.com/lanternworks/chatrelay/pkg/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS chats (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	chat_id TEXT NOT NULL,
	role TEXT NOT NULL CHECK (role IN ('system', 'user', 'assistant')),
	content TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	seq INTEGER NOT NULL DEFAULT 0,
	FOREIGN KEY (chat_id) REFERENCES chats (id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_chat_order
	ON messages (chat_id, created_at, seq);
`

// Store implements storage.Store on SQLite via database/sql.
type Store struct {
	db *sql.DB

	// seq breaks created_at ties in insertion order within this process.
	seq atomic.Int64
}

// NewStore opens (or creates) the database at dbPath and runs schema setup.
// dbPath may be ":memory:" for an ephemeral database.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) CreateChat(ctx context.Context, title string) (*storage.Chat, error) {
	chat := &storage.Chat{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO chats (id, title, created_at) VALUES (?, ?, ?)",
		chat.ID, chat.Title, chat.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting chat: %w", err)
	}

	return chat, nil
}

func (s *Store) GetChat(ctx context.Context, chatID string) (*storage.Chat, error) {
	var chat storage.Chat
	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, created_at FROM chats WHERE id = ?", chatID,
	).Scan(&chat.ID, &chat.Title, &chat.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound{ChatID: chatID}
		}
		return nil, fmt.Errorf("querying chat: %w", err)
	}

	return &chat, nil
}

func (s *Store) HasChat(ctx context.Context, chatID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM chats WHERE id = ?", chatID,
	).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("querying chat: %w", err)
	}

	return true, nil
}

func (s *Store) ListChats(ctx context.Context) ([]*storage.Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, created_at FROM chats ORDER BY created_at DESC, id",
	)
	if err != nil {
		return nil, fmt.Errorf("querying chats: %w", err)
	}
	defer rows.Close()

	var chats []*storage.Chat
	for rows.Next() {
		var chat storage.Chat
		if err := rows.Scan(&chat.ID, &chat.Title, &chat.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chat row: %w", err)
		}
		chats = append(chats, &chat)
	}

	return chats, rows.Err()
}

func (s *Store) DeleteChat(ctx context.Context, chatID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM chats WHERE id = ?", chatID)
	if err != nil {
		return fmt.Errorf("deleting chat: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting chat: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound{ChatID: chatID}
	}

	return nil
}

func (s *Store) AppendMessage(ctx context.Context, chatID, role, content string) (*storage.Message, error) {
	ok, err := s.HasChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storage.ErrNotFound{ChatID: chatID}
	}

	msg := &storage.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO messages (id, chat_id, role, content, created_at, seq) VALUES (?, ?, ?, ?, ?, ?)",
		msg.ID, msg.ChatID, msg.Role, msg.Content, msg.CreatedAt, s.seq.Add(1),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	return msg, nil
}

func (s *Store) Messages(ctx context.Context, chatID string) ([]*storage.Message, error) {
	ok, err := s.HasChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storage.ErrNotFound{ChatID: chatID}
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, chat_id, role, content, created_at FROM messages WHERE chat_id = ? ORDER BY created_at ASC, seq ASC",
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []*storage.Message
	for rows.Next() {
		var msg storage.Message
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		msgs = append(msgs, &msg)
	}

	return msgs, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
