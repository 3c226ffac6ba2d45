package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"live-avatar-demo/internal/db"
)

// HistoryHandler serves past sessions and their transcripts
type HistoryHandler struct {
	db     *db.DB
	logger *zap.SugaredLogger
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(database *db.DB, logger *zap.SugaredLogger) *HistoryHandler {
	return &HistoryHandler{db: database, logger: logger}
}

// List handles GET /api/history
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.db.ListSessions(queryInt(r, "limit", 50))
	if err != nil {
		h.logger.Errorw("list sessions failed", "err", err)
		http.Error(w, "Failed to get sessions", http.StatusInternalServerError)
		return
	}

	response := make([]SessionResponse, len(sessions))
	for i := range sessions {
		response[i] = newSessionResponse(&sessions[i])
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// Messages handles GET /api/history/{id}/messages
func (h *HistoryHandler) Messages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, err := h.db.GetSession(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		h.logger.Errorw("get session failed", "session_id", id, "err", err)
		http.Error(w, "Failed to get session", http.StatusInternalServerError)
		return
	}

	messages, err := h.db.GetSessionMessages(id)
	if err != nil {
		h.logger.Errorw("get messages failed", "session_id", id, "err", err)
		http.Error(w, "Failed to get messages", http.StatusInternalServerError)
		return
	}

	h.logger.Infow("get messages completed", "session_id", id, "message_count", len(messages))
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(messages)
}
