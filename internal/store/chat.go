package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/matheus3301/meeple/internal/backend"
)

// UpsertChat inserts or updates a cached chat row.
func (db *DB) UpsertChat(c *backend.Chat) error {
	var preview string
	var lastAt int64
	if c.LastMessage != nil {
		preview = truncate(c.LastMessage.Content, 100)
		lastAt = c.LastMessage.CreatedAt.UnixMilli()
	}
	_, err := db.Exec(`
		INSERT INTO chats (id, name, is_group, event_id, unread_count, last_message_preview, last_message_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE chats.name END,
			is_group = excluded.is_group,
			event_id = excluded.event_id,
			unread_count = excluded.unread_count,
			last_message_preview = CASE WHEN excluded.last_message_at >= chats.last_message_at THEN excluded.last_message_preview ELSE chats.last_message_preview END,
			last_message_at = MAX(chats.last_message_at, excluded.last_message_at),
			updated_at = excluded.updated_at`,
		c.ID, c.Name, c.IsGroup, c.EventID, c.UnreadCount, preview, lastAt, time.Now().UnixMilli())
	return err
}

// TouchChat advances a chat's preview with a newly received message, creating the
// row if the chat is not cached yet.
func (db *DB) TouchChat(m *backend.ChatMessage) error {
	return touchChat(db, m)
}

func touchChat(x execer, m *backend.ChatMessage) error {
	_, err := x.Exec(`
		INSERT INTO chats (id, last_message_preview, last_message_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_message_preview = CASE WHEN excluded.last_message_at >= chats.last_message_at THEN excluded.last_message_preview ELSE chats.last_message_preview END,
			last_message_at = MAX(chats.last_message_at, excluded.last_message_at),
			updated_at = excluded.updated_at`,
		m.ChatID, truncate(m.Content, 100), m.CreatedAt.UnixMilli(), time.Now().UnixMilli())
	return err
}

// CachedChat is a chat row as kept locally.
type CachedChat struct {
	ID                 string
	Name               string
	IsGroup            bool
	EventID            string
	UnreadCount        int
	LastMessagePreview string
	LastMessageAt      time.Time
}

const chatColumns = `id, name, is_group, event_id, unread_count, last_message_preview, last_message_at`

func scanChat(row interface{ Scan(...any) error }) (CachedChat, error) {
	var c CachedChat
	var lastAt int64
	err := row.Scan(&c.ID, &c.Name, &c.IsGroup, &c.EventID, &c.UnreadCount, &c.LastMessagePreview, &lastAt)
	c.LastMessageAt = time.UnixMilli(lastAt)
	return c, err
}

// ListChats returns cached chats, most recent activity first.
func (db *DB) ListChats(limit, offset int) ([]CachedChat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`SELECT `+chatColumns+` FROM chats ORDER BY last_message_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []CachedChat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetChat returns one cached chat, or nil if it is not cached.
func (db *DB) GetChat(id string) (*CachedChat, error) {
	c, err := scanChat(db.QueryRow(`SELECT `+chatColumns+` FROM chats WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen])
}
