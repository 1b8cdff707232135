package store

import (
	"time"

	"github.com/matheus3301/meeple/internal/backend"
)

// UpsertNotification inserts or updates a notification. The read flag never goes
// back from read to unread.
func (db *DB) UpsertNotification(n *backend.Notification) error {
	_, err := db.Exec(`
		INSERT INTO notifications (id, title, message, icon, type, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			message = excluded.message,
			icon = excluded.icon,
			type = excluded.type,
			read = MAX(notifications.read, excluded.read)`,
		n.ID, n.Title, n.Message, n.Icon, string(n.Type), n.Read, n.CreatedAt.UnixMilli())
	return err
}

// ListNotifications returns cached notifications, newest first.
func (db *DB) ListNotifications(limit int) ([]backend.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, title, message, icon, type, read, created_at
		FROM notifications ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []backend.Notification
	for rows.Next() {
		var n backend.Notification
		var typ string
		var createdAt int64
		if err := rows.Scan(&n.ID, &n.Title, &n.Message, &n.Icon, &typ, &n.Read, &createdAt); err != nil {
			return nil, err
		}
		n.Type = backend.NotificationType(typ)
		n.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (db *DB) MarkNotificationRead(id string) error {
	_, err := db.Exec(`UPDATE notifications SET read = 1 WHERE id = ?`, id)
	return err
}

// UnreadNotifications counts unread notifications.
func (db *DB) UnreadNotifications() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM notifications WHERE read = 0`).Scan(&n)
	return n, err
}
