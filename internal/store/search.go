package store

import (
	"strings"

	"github.com/matheus3301/meeple/internal/backend"
)

// SearchMessages finds cached messages whose content contains query
// (case-insensitive), optionally restricted to one chat. Newest first.
func (db *DB) SearchMessages(query, chatID string, limit int) ([]backend.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"

	q := `SELECT ` + messageColumns + ` FROM messages WHERE LOWER(content) LIKE ? ESCAPE '\'`
	args := []any{pattern}
	if chatID != "" {
		q += " AND chat_id = ?"
		args = append(args, chatID)
	}
	q += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []backend.ChatMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
