package db

import (
	"time"

	"live-avatar-demo/internal/models"
)

// UpsertMessage stores msg for a session, replacing the text of an existing
// entry with the same id. Avatar replies arrive in fragments, so the same
// message is written several times as it grows.
func (d *DB) UpsertMessage(sessionID string, msg models.ChatMessage) error {
	return d.WithLock(func() error {
		_, err := d.db.Exec(`
			INSERT INTO messages (session_id, message_id, origin, text, position, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id, message_id) DO UPDATE SET
				text = excluded.text,
				origin = excluded.origin,
				updated_at = excluded.updated_at`,
			sessionID, msg.ID, string(msg.Origin), msg.Text, msg.Position, time.Now(),
		)
		return err
	})
}

// GetSessionMessages retrieves the transcript of a session in order
func (d *DB) GetSessionMessages(sessionID string) ([]models.ChatMessage, error) {
	return WithLockResult(d, func() ([]models.ChatMessage, error) {
		rows, err := d.db.Query(`
			SELECT message_id, origin, text, position
			FROM messages WHERE session_id = ?
			ORDER BY position ASC, updated_at ASC`,
			sessionID,
		)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		messages := []models.ChatMessage{}
		for rows.Next() {
			var msg models.ChatMessage
			var origin string
			if err := rows.Scan(&msg.ID, &origin, &msg.Text, &msg.Position); err != nil {
				return nil, err
			}
			msg.Origin = models.Origin(origin)
			messages = append(messages, msg)
		}
		return messages, rows.Err()
	})
}
