package api

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"live-avatar-demo/internal/config"
	"live-avatar-demo/internal/db"
	"live-avatar-demo/internal/session"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher interface for SSE support
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack implements http.Hijacker for the agent WebSocket upgrade
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Dependencies are the collaborators the HTTP API serves
type Dependencies struct {
	Manager     *session.Manager
	Broadcaster *EventBroadcaster
	Defaults    config.SessionDefaults
	// Catalog is nil when the vendor API is not configured
	Catalog Catalog
	// History is nil when no database is configured
	History *db.DB
	// Agent serves the RTC agent WebSocket, if any
	Agent http.Handler
}

// Router holds the HTTP multiplexer and dependencies
type Router struct {
	mux            *http.ServeMux
	sessionHandler *SessionHandler
	catalogHandler *CatalogHandler
	historyHandler *HistoryHandler
	eventsHandler  *EventsHandler
	healthHandler  *HealthHandler
	agent          http.Handler
	staticDir      string
	logger         *zap.SugaredLogger
}

// NewRouter creates a new router with all routes configured
func NewRouter(deps Dependencies, staticDir string, logger *zap.SugaredLogger) *Router {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	broadcaster := deps.Broadcaster
	if broadcaster == nil {
		broadcaster = NewEventBroadcaster(logger.Named("sse"))
	}

	r := &Router{
		mux:            http.NewServeMux(),
		sessionHandler: NewSessionHandler(deps.Manager, deps.Defaults, logger),
		catalogHandler: NewCatalogHandler(deps.Catalog, logger),
		eventsHandler:  NewEventsHandler(broadcaster, deps.Manager, logger.Named("sse")),
		healthHandler:  NewHealthHandler(deps.Manager),
		agent:          deps.Agent,
		staticDir:      staticDir,
		logger:         logger,
	}
	if deps.History != nil {
		r.historyHandler = NewHistoryHandler(deps.History, logger)
	}
	r.setupRoutes()
	return r
}

// setupRoutes configures all HTTP routes
func (r *Router) setupRoutes() {
	// Health check
	r.mux.HandleFunc("GET /health", r.healthHandler.Check)

	// Catalog routes
	r.mux.HandleFunc("GET /api/languages", r.catalogHandler.Languages)
	r.mux.HandleFunc("GET /api/voices", r.catalogHandler.Voices)
	r.mux.HandleFunc("GET /api/avatars", r.catalogHandler.Avatars)

	// Session routes
	r.mux.HandleFunc("GET /api/session", r.sessionHandler.Get)
	r.mux.HandleFunc("POST /api/session/start", r.sessionHandler.Start)
	r.mux.HandleFunc("POST /api/session/stop", r.sessionHandler.Stop)
	r.mux.HandleFunc("PUT /api/session/config", r.sessionHandler.UpdateConfig)

	// Conversation routes
	r.mux.HandleFunc("POST /api/chat", r.sessionHandler.SendMessage)
	r.mux.HandleFunc("POST /api/interrupt", r.sessionHandler.Interrupt)
	r.mux.HandleFunc("POST /api/mic/toggle", r.sessionHandler.ToggleMicrophone)

	// SSE events route
	r.mux.HandleFunc("GET /api/events", r.eventsHandler.HandleEvents)

	// History routes
	if r.historyHandler != nil {
		r.mux.HandleFunc("GET /api/history", r.historyHandler.List)
		r.mux.HandleFunc("GET /api/history/{id}/messages", r.historyHandler.Messages)
	}

	// RTC agent
	if r.agent != nil {
		r.mux.Handle("GET /ws/agent", r.agent)
	}

	// Static file serving (for frontend)
	if r.staticDir != "" {
		r.mux.HandleFunc("GET /", r.serveStatic)
	}
}

// serveStatic serves static files from the static directory
func (r *Router) serveStatic(w http.ResponseWriter, req *http.Request) {
	path := req.URL.Path
	if path == "/" {
		path = "/index.html"
	}

	filePath := filepath.Join(r.staticDir, filepath.Clean("/"+path))

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		// Serve index.html for SPA routing
		filePath = filepath.Join(r.staticDir, "index.html")
	}

	http.ServeFile(w, req, filePath)
}

// ServeHTTP implements the http.Handler interface
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()

	// Add CORS headers for development
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if req.Method == http.MethodOptions {
		r.logger.Debugw("CORS preflight", "path", req.URL.Path)
		w.WriteHeader(http.StatusOK)
		return
	}

	// Skip logging for static files, health checks, and streaming endpoints
	shouldLog := strings.HasPrefix(req.URL.Path, "/api/") && req.URL.Path != "/api/events"

	if shouldLog {
		r.logger.Infow("request started", "method", req.Method, "path", req.URL.Path)
	}

	wrapped := newResponseWriter(w)
	r.mux.ServeHTTP(wrapped, req)

	if shouldLog {
		r.logger.Infow("request completed",
			"method", req.Method,
			"path", req.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
		)
	}
}
