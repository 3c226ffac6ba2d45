package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"live-avatar-demo/internal/config"
	"live-avatar-demo/internal/mic"
	"live-avatar-demo/internal/models"
	"live-avatar-demo/internal/openapi"
	"live-avatar-demo/internal/session"
)

// SessionHandler handles session lifecycle, chat and microphone requests
type SessionHandler struct {
	manager  *session.Manager
	defaults config.SessionDefaults
	logger   *zap.SugaredLogger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(manager *session.Manager, defaults config.SessionDefaults, logger *zap.SugaredLogger) *SessionHandler {
	return &SessionHandler{
		manager:  manager,
		defaults: defaults,
		logger:   logger,
	}
}

// StartSessionRequest represents the request body for starting a session.
// Empty fields fall back to the configured defaults.
type StartSessionRequest struct {
	AvatarID      string          `json:"avatar_id"`
	Duration      int             `json:"duration"`
	VoiceID       string          `json:"voice_id"`
	VoiceURL      string          `json:"voice_url"`
	Language      string          `json:"language"`
	Mode          models.ModeType `json:"mode"`
	BackgroundURL string          `json:"background_url"`
}

// SessionResponse represents a session in API responses
type SessionResponse struct {
	ID        string `json:"id"`
	AvatarID  string `json:"avatar_id,omitempty"`
	Channel   string `json:"channel,omitempty"`
	UID       uint32 `json:"uid,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at,omitempty"`
	ClosedAt  string `json:"closed_at,omitempty"`
}

func newSessionResponse(s *models.Session) SessionResponse {
	creds := s.ConnectionCredentials()
	resp := SessionResponse{
		ID:       s.ID,
		AvatarID: s.AvatarID,
		Channel:  creds.Channel,
		UID:      creds.UID,
		Status:   string(s.Status),
	}
	if !s.CreatedAt.IsZero() {
		resp.CreatedAt = s.CreatedAt.Format(time.RFC3339)
	}
	if s.ClosedAt != nil {
		resp.ClosedAt = s.ClosedAt.Format(time.RFC3339)
	}
	return resp
}

// SnapshotResponse is the full client-visible state
type SnapshotResponse struct {
	State      string                        `json:"state"`
	Session    *SessionResponse              `json:"session,omitempty"`
	Config     models.AvatarConfiguration    `json:"config"`
	Messages   []models.ChatMessage          `json:"messages"`
	Telemetry  models.NetworkQualitySnapshot `json:"telemetry"`
	Microphone bool                          `json:"microphone"`
}

func newSnapshotResponse(m *session.Manager) SnapshotResponse {
	resp := SnapshotResponse{
		State:      m.State().String(),
		Config:     m.Configuration(),
		Messages:   m.Messages(),
		Telemetry:  m.Telemetry(),
		Microphone: m.MicrophoneEnabled(),
	}
	if s := m.Session(); s != nil {
		sr := newSessionResponse(s)
		resp.Session = &sr
	}
	return resp
}

// Start handles POST /api/session/start
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.logger.Infow("start session started")

	var req StartSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.logger.Infow("start session failed: invalid request body", "err", err)
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	startReq := h.startRequest(req)
	// Once started, the sequence runs to completion even if the client goes away.
	ctx := context.WithoutCancel(r.Context())

	s, err := h.manager.Start(ctx, startReq)
	if err != nil {
		h.logger.Warnw("start session failed", "avatar_id", startReq.AvatarID, "err", err)
		writeError(w, err)
		return
	}

	h.logger.Infow("start session completed", "session_id", s.ID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(newSessionResponse(s))
}

func (h *SessionHandler) startRequest(req StartSessionRequest) session.StartRequest {
	d := h.defaults
	out := session.StartRequest{
		AvatarID:        req.AvatarID,
		DurationMinutes: req.Duration,
		Config: models.AvatarConfiguration{
			VoiceID:       req.VoiceID,
			VoiceURL:      req.VoiceURL,
			Language:      req.Language,
			Mode:          req.Mode,
			BackgroundURL: req.BackgroundURL,
		},
	}
	if out.AvatarID == "" {
		out.AvatarID = d.AvatarID
	}
	if out.DurationMinutes == 0 {
		out.DurationMinutes = d.DurationMinutes
	}
	if out.Config.VoiceID == "" && out.Config.VoiceURL == "" {
		out.Config.VoiceID = d.Avatar.VoiceID
		out.Config.VoiceURL = d.Avatar.VoiceURL
	}
	if out.Config.Language == "" {
		out.Config.Language = d.Avatar.Language
	}
	if out.Config.Mode == 0 {
		out.Config.Mode = d.Avatar.Mode
	}
	if out.Config.BackgroundURL == "" {
		out.Config.BackgroundURL = d.Avatar.BackgroundURL
	}
	return out
}

// Stop handles POST /api/session/stop
func (h *SessionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.logger.Infow("stop session started")

	if err := h.manager.Stop(context.WithoutCancel(r.Context())); err != nil {
		// Teardown is best effort; the manager is back to idle either way.
		h.logger.Warnw("stop session completed with errors", "err", err)
	}

	h.logger.Infow("stop session completed")
	w.WriteHeader(http.StatusNoContent)
}

// Get handles GET /api/session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(newSnapshotResponse(h.manager))
}

// UpdateConfig handles PUT /api/session/config
func (h *SessionHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg models.AvatarConfiguration
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		h.logger.Infow("update config failed: invalid request body", "err", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	h.logger.Infow("update config started", "voice_id", cfg.VoiceID, "language", cfg.Language, "mode", cfg.Mode)
	if err := h.manager.UpdateConfiguration(r.Context(), cfg); err != nil {
		h.logger.Warnw("update config failed", "err", err)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.manager.Configuration())
}

// SendMessageRequest represents the request body for sending a chat message
type SendMessageRequest struct {
	Text string `json:"text"`
}

// SendMessage handles POST /api/chat
func (h *SessionHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Infow("send message failed: invalid request body", "err", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	msg, err := h.manager.SendText(r.Context(), req.Text)
	if err != nil {
		h.logger.Warnw("send message failed", "err", err)
		writeError(w, err)
		return
	}

	h.logger.Infow("send message completed", "message_id", msg.ID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(msg)
}

// Interrupt handles POST /api/interrupt
func (h *SessionHandler) Interrupt(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Interrupt(r.Context()); err != nil {
		h.logger.Warnw("interrupt failed", "err", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleMicrophone handles POST /api/mic/toggle
func (h *SessionHandler) ToggleMicrophone(w http.ResponseWriter, r *http.Request) {
	enabled, err := h.manager.ToggleMicrophone(r.Context())
	if err != nil {
		h.logger.Warnw("toggle microphone failed", "err", err)
		writeError(w, err)
		return
	}

	h.logger.Infow("toggle microphone completed", "enabled", enabled)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"enabled": enabled})
}

// writeError maps domain errors to HTTP status codes. The message is the
// error text, which is what the user is shown.
func writeError(w http.ResponseWriter, err error) {
	var (
		cfgErr       *session.ConfigurationError
		apiErr       *openapi.APIError
		transportErr *session.TransportError
	)

	status := http.StatusInternalServerError
	msg := err.Error()
	switch {
	case errors.As(err, &cfgErr):
		status = http.StatusBadRequest
	case errors.As(err, &apiErr):
		status = http.StatusBadGateway
		msg = apiErr.Msg
	case errors.As(err, &transportErr):
		status = http.StatusBadGateway
	case errors.Is(err, session.ErrEmptyMessage):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrNotActive),
		errors.Is(err, session.ErrSendInFlight),
		errors.Is(err, mic.ErrNotConnected),
		errors.Is(err, mic.ErrToggleInFlight):
		status = http.StatusConflict
	}
	http.Error(w, msg, status)
}
