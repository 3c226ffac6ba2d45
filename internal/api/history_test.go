package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"live-avatar-demo/internal/db"
	"live-avatar-demo/internal/models"
)

func setupTestHistoryHandler(t *testing.T) (*HistoryHandler, *db.DB) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "test_history_*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.Close()

	database, err := db.NewDB(tmpFile.Name())
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	if err := database.Migrate(); err != nil {
		t.Fatalf("migration failed: %v", err)
	}

	t.Cleanup(func() {
		database.Close()
		os.Remove(tmpFile.Name())
	})

	return NewHistoryHandler(database, discardLogger()), database
}

func recordTestSession(t *testing.T, database *db.DB, id string, createdAt time.Time) {
	t.Helper()
	err := database.RecordSession(&models.Session{
		ID:          id,
		AvatarID:    "A1",
		Duration:    600,
		Status:      models.SessionStatusActive,
		Credentials: models.Credentials{UID: 42, AppID: "app1", Channel: "ch1", Token: "tok1"},
		CreatedAt:   createdAt,
	})
	if err != nil {
		t.Fatalf("failed to record session: %v", err)
	}
}

func TestHistoryList(t *testing.T) {
	handler, database := setupTestHistoryHandler(t)
	now := time.Now()
	recordTestSession(t, database, "s1", now.Add(-time.Hour))
	recordTestSession(t, database, "s2", now)

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	w := httptest.NewRecorder()
	handler.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response []SessionResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(response))
	}
	if response[0].ID != "s2" {
		t.Errorf("expected newest session first, got %s", response[0].ID)
	}
}

func TestHistoryList_Limit(t *testing.T) {
	handler, database := setupTestHistoryHandler(t)
	now := time.Now()
	for i, id := range []string{"s1", "s2", "s3"} {
		recordTestSession(t, database, id, now.Add(time.Duration(i)*time.Minute))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/history?limit=2", nil)
	w := httptest.NewRecorder()
	handler.List(w, req)

	var response []SessionResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response) != 2 {
		t.Errorf("expected 2 sessions, got %d", len(response))
	}
}

func TestHistoryMessages(t *testing.T) {
	handler, database := setupTestHistoryHandler(t)
	recordTestSession(t, database, "s1", time.Now())

	msgs := []models.ChatMessage{
		{ID: "m1", Text: "Hi", Origin: models.OriginSent, Position: 0},
		{ID: "m2", Text: "Hello there", Origin: models.OriginReceived, Position: 1},
	}
	for _, m := range msgs {
		if err := database.UpsertMessage("s1", m); err != nil {
			t.Fatalf("failed to upsert message: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/history/s1/messages", nil)
	req.SetPathValue("id", "s1")
	w := httptest.NewRecorder()
	handler.Messages(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response []models.ChatMessage
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response) != 2 || response[1].Text != "Hello there" {
		t.Errorf("unexpected messages %+v", response)
	}
}

func TestHistoryMessages_NotFound(t *testing.T) {
	handler, _ := setupTestHistoryHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/history/missing/messages", nil)
	req.SetPathValue("id", "missing")
	w := httptest.NewRecorder()
	handler.Messages(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}
