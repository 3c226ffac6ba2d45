package db

import (
	"database/sql"
	"time"

	"live-avatar-demo/internal/models"
)

// RecordSession inserts a provisioned session, or refreshes its status when
// it is already known
func (d *DB) RecordSession(s *models.Session) error {
	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	creds := s.ConnectionCredentials()

	return d.WithLock(func() error {
		_, err := d.db.Exec(`
			INSERT INTO sessions (id, avatar_id, channel, uid, duration, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET status = excluded.status`,
			s.ID, s.AvatarID, creds.Channel, creds.UID, s.Duration, string(s.Status), createdAt,
		)
		if err != nil {
			d.logger.Errorw("record session failed", "session_id", s.ID, "err", err)
		}
		return err
	})
}

// UpdateSessionStatus sets the status of a session and, when given, the
// time it was closed
func (d *DB) UpdateSessionStatus(id string, status models.SessionStatus, closedAt *time.Time) error {
	return d.WithLock(func() error {
		var closed sql.NullTime
		if closedAt != nil {
			closed = sql.NullTime{Time: *closedAt, Valid: true}
		}
		_, err := d.db.Exec(
			`UPDATE sessions SET status = ?, closed_at = COALESCE(?, closed_at) WHERE id = ?`,
			string(status), closed, id,
		)
		return err
	})
}

// GetSession retrieves a session by id
func (d *DB) GetSession(id string) (*models.Session, error) {
	return WithLockResult(d, func() (*models.Session, error) {
		row := d.db.QueryRow(`
			SELECT id, avatar_id, channel, uid, duration, status, created_at, closed_at
			FROM sessions WHERE id = ?`,
			id,
		)
		return scanSession(row)
	})
}

// ListSessions returns the most recent sessions first
func (d *DB) ListSessions(limit int) ([]models.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	return WithLockResult(d, func() ([]models.Session, error) {
		rows, err := d.db.Query(`
			SELECT id, avatar_id, channel, uid, duration, status, created_at, closed_at
			FROM sessions ORDER BY created_at DESC LIMIT ?`,
			limit,
		)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		sessions := []models.Session{}
		for rows.Next() {
			s, err := scanSession(rows)
			if err != nil {
				return nil, err
			}
			sessions = append(sessions, *s)
		}
		return sessions, rows.Err()
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.Session, error) {
	var s models.Session
	var status string
	var closedAt sql.NullTime
	err := row.Scan(
		&s.ID, &s.AvatarID, &s.Credentials.Channel, &s.Credentials.UID,
		&s.Duration, &status, &s.CreatedAt, &closedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Status = models.SessionStatus(status)
	if closedAt.Valid {
		t := closedAt.Time
		s.ClosedAt = &t
	}
	return &s, nil
}
