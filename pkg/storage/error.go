package storage

// ErrNotFound is returned when a chat doesn't exist in the store.
type ErrNotFound struct {
	ChatID string
}

func (e ErrNotFound) Error() string {
	if e.ChatID == "" {
		return "chat not found"
	}

	return "chat not found: " + e.ChatID
}
