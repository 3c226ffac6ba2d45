package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"live-avatar-demo/internal/models"
)

// Catalog lists what the vendor API offers
type Catalog interface {
	ListLanguages(ctx context.Context) ([]models.Language, error)
	ListVoices(ctx context.Context) ([]models.Voice, error)
	ListAvatars(ctx context.Context, page, size int) ([]models.Avatar, error)
}

// CatalogHandler serves the language, voice and avatar lists
type CatalogHandler struct {
	catalog Catalog
	logger  *zap.SugaredLogger
}

// NewCatalogHandler creates a catalog handler. catalog may be nil when the
// vendor API is not configured.
func NewCatalogHandler(catalog Catalog, logger *zap.SugaredLogger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: logger}
}

// Languages handles GET /api/languages
func (h *CatalogHandler) Languages(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	languages, err := h.catalog.ListLanguages(r.Context())
	if err != nil {
		h.logger.Warnw("list languages failed", "err", err)
		writeError(w, err)
		return
	}
	h.writeList(w, languages)
}

// Voices handles GET /api/voices
func (h *CatalogHandler) Voices(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	voices, err := h.catalog.ListVoices(r.Context())
	if err != nil {
		h.logger.Warnw("list voices failed", "err", err)
		writeError(w, err)
		return
	}
	h.writeList(w, voices)
}

// Avatars handles GET /api/avatars?page=&size=
func (h *CatalogHandler) Avatars(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	page := queryInt(r, "page", 1)
	size := queryInt(r, "size", 100)

	avatars, err := h.catalog.ListAvatars(r.Context(), page, size)
	if err != nil {
		h.logger.Warnw("list avatars failed", "page", page, "size", size, "err", err)
		writeError(w, err)
		return
	}
	h.writeList(w, avatars)
}

func (h *CatalogHandler) available(w http.ResponseWriter) bool {
	if h.catalog == nil {
		http.Error(w, "Please set host and token first", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func (h *CatalogHandler) writeList(w http.ResponseWriter, list any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 1 {
		return def
	}
	return v
}
