package db

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"live-avatar-demo/internal/models"
)

func testSession(id string, createdAt time.Time) *models.Session {
	return &models.Session{
		ID:       id,
		AvatarID: "A1",
		Duration: 600,
		Status:   models.SessionStatusProvisioning,
		Credentials: models.Credentials{
			UID:     42,
			AppID:   "app1",
			Channel: "ch1",
			Token:   "tok1",
		},
		CreatedAt: createdAt,
	}
}

func TestRecordSession(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if err := db.RecordSession(testSession("s1", time.Now())); err != nil {
		t.Fatalf("failed to record session: %v", err)
	}

	got, err := db.GetSession("s1")
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	if got.AvatarID != "A1" {
		t.Errorf("expected avatar 'A1', got '%s'", got.AvatarID)
	}
	if got.Credentials.Channel != "ch1" || got.Credentials.UID != 42 {
		t.Errorf("unexpected credentials %+v", got.Credentials)
	}
	if got.Credentials.Token != "" {
		t.Error("token must not be stored")
	}
	if got.Status != models.SessionStatusProvisioning {
		t.Errorf("expected status provisioning, got %s", got.Status)
	}
	if got.ClosedAt != nil {
		t.Error("expected closed_at to be nil")
	}
}

func TestRecordSession_Twice(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	s := testSession("s1", time.Now())
	if err := db.RecordSession(s); err != nil {
		t.Fatalf("failed to record session: %v", err)
	}
	s.Status = models.SessionStatusActive
	if err := db.RecordSession(s); err != nil {
		t.Fatalf("failed to record session again: %v", err)
	}

	got, err := db.GetSession("s1")
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	if got.Status != models.SessionStatusActive {
		t.Errorf("expected status active, got %s", got.Status)
	}
}

func TestUpdateSessionStatus(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if err := db.RecordSession(testSession("s1", time.Now())); err != nil {
		t.Fatalf("failed to record session: %v", err)
	}
	if err := db.UpdateSessionStatus("s1", models.SessionStatusActive, nil); err != nil {
		t.Fatalf("failed to update status: %v", err)
	}

	closedAt := time.Now().UTC().Truncate(time.Second)
	if err := db.UpdateSessionStatus("s1", models.SessionStatusClosed, &closedAt); err != nil {
		t.Fatalf("failed to close: %v", err)
	}

	got, err := db.GetSession("s1")
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	if got.Status != models.SessionStatusClosed {
		t.Errorf("expected status closed, got %s", got.Status)
	}
	if got.ClosedAt == nil || !got.ClosedAt.Equal(closedAt) {
		t.Errorf("expected closed_at %v, got %v", closedAt, got.ClosedAt)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := db.GetSession("missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestListSessions_NewestFirst(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"s1", "s2", "s3"} {
		if err := db.RecordSession(testSession(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("failed to record %s: %v", id, err)
		}
	}

	sessions, err := db.ListSessions(2)
	if err != nil {
		t.Fatalf("failed to list sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != "s3" || sessions[1].ID != "s2" {
		t.Errorf("unexpected order: %s, %s", sessions[0].ID, sessions[1].ID)
	}
}

func TestListSessions_Empty(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	sessions, err := db.ListSessions(0)
	if err != nil {
		t.Fatalf("failed to list sessions: %v", err)
	}
	if sessions == nil || len(sessions) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", sessions)
	}
}
