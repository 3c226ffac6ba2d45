package api

import (
	"encoding/json"
	"net/http"

	"live-avatar-demo/internal/session"
)

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status  string        `json:"status"`
	Session session.State `json:"session"`
}

// HealthHandler reports liveness and the session lifecycle state
type HealthHandler struct {
	manager *session.Manager
}

// NewHealthHandler creates a HealthHandler. manager may be nil.
func NewHealthHandler(manager *session.Manager) *HealthHandler {
	return &HealthHandler{manager: manager}
}

// Check handles GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Session: session.StateIdle}
	if h.manager != nil {
		resp.Session = h.manager.State()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
