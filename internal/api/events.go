package api

import (
	"net/http"

	"go.uber.org/zap"

	"live-avatar-demo/internal/session"
)

// EventsHandler はセッションイベントのSSE接続を処理する
type EventsHandler struct {
	broadcaster *EventBroadcaster
	manager     *session.Manager
	logger      *zap.SugaredLogger
}

// NewEventsHandler は新しいハンドラーを作成する
func NewEventsHandler(broadcaster *EventBroadcaster, manager *session.Manager, logger *zap.SugaredLogger) *EventsHandler {
	return &EventsHandler{
		broadcaster: broadcaster,
		manager:     manager,
		logger:      logger,
	}
}

// HandleEvents は GET /api/events を処理する
func (h *EventsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	// SSEヘッダーを設定
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("X-Accel-Buffering", "no") // nginxバッファリングを無効化

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Warnw("streaming not supported")
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	// イベントを購読
	eventCh := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(eventCh)

	// 接続完了イベントと現在のスナップショットを送信
	initial := []Event{{Type: "connected", Data: struct{}{}}}
	if h.manager != nil {
		initial = append(initial, Event{Type: "snapshot", Data: newSnapshotResponse(h.manager)})
	}
	for _, event := range initial {
		data, err := FormatSSE(event)
		if err != nil {
			h.logger.Warnw("failed to format event", "type", event.Type, "err", err)
			continue
		}
		if _, err := w.Write(data); err != nil {
			h.logger.Infow("failed to send initial event", "err", err)
			return
		}
	}
	flusher.Flush()

	h.logger.Infow("client connected")

	// イベントとクライアント切断を監視
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.logger.Infow("client disconnected")
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			data, err := FormatSSE(event)
			if err != nil {
				h.logger.Warnw("failed to format event", "type", event.Type, "err", err)
				continue
			}
			if _, err := w.Write(data); err != nil {
				h.logger.Infow("failed to write event", "err", err)
				return
			}
			flusher.Flush()
		}
	}
}
