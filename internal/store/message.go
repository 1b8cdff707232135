package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/matheus3301/meeple/internal/backend"
)

const messageColumns = `id, chat_id, sender_id, sender_name, content, image_url, read, created_at`

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

const upsertMessageSQL = `
	INSERT INTO messages (` + messageColumns + `, stored_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		content = excluded.content,
		image_url = excluded.image_url,
		read = MAX(messages.read, excluded.read),
		sender_name = CASE WHEN excluded.sender_name != '' THEN excluded.sender_name ELSE messages.sender_name END`

func upsertMessage(x execer, m *backend.ChatMessage) error {
	_, err := x.Exec(upsertMessageSQL,
		m.ID, m.ChatID, m.SenderID, m.Sender.Name, m.Content, m.ImageURL, m.Read, m.CreatedAt.UnixMilli(), time.Now().UnixMilli())
	return err
}

// UpsertMessage inserts or updates a message (idempotent on id).
func (db *DB) UpsertMessage(m *backend.ChatMessage) error {
	return upsertMessage(db, m)
}

// UpsertMessages stores a batch of messages and advances their chats' previews
// in one transaction.
func (db *DB) UpsertMessages(msgs []backend.ChatMessage) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for i := range msgs {
		if err := touchChat(tx, &msgs[i]); err != nil {
			return fmt.Errorf("touch chat %s: %w", msgs[i].ChatID, err)
		}
		if err := upsertMessage(tx, &msgs[i]); err != nil {
			return fmt.Errorf("upsert message %s: %w", msgs[i].ID, err)
		}
	}
	return tx.Commit()
}

func scanMessage(row interface{ Scan(...any) error }) (backend.ChatMessage, error) {
	var m backend.ChatMessage
	var createdAt int64
	err := row.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Sender.Name, &m.Content, &m.ImageURL, &m.Read, &createdAt)
	m.Sender.ID = m.SenderID
	m.CreatedAt = time.UnixMilli(createdAt)
	return m, err
}

// ListMessages returns up to limit messages of a chat created before `before`,
// newest first. A zero `before` means now.
func (db *DB) ListMessages(chatID string, before time.Time, limit int) ([]backend.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	if before.IsZero() {
		before = time.Now().Add(time.Millisecond)
	}
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE chat_id = ? AND created_at < ?
		ORDER BY created_at DESC, stored_at DESC
		LIMIT ?`, chatID, before.UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []backend.ChatMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkChatRead flags every cached message of a chat as read and resets its unread count.
func (db *DB) MarkChatRead(chatID string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec(`UPDATE messages SET read = 1 WHERE chat_id = ?`, chatID); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE chats SET unread_count = 0 WHERE id = ?`, chatID); err != nil {
		return err
	}
	return tx.Commit()
}

// MessageCount returns the number of cached messages.
func (db *DB) MessageCount() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}
