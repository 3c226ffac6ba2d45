package api

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"live-avatar-demo/internal/models"
	"live-avatar-demo/internal/session"
)

// Event はServer-Sent Eventを表す
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// EventBroadcaster はSSEクライアントを管理し、セッションの通知をブロードキャストする
type EventBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan Event]struct{}
	logger  *zap.SugaredLogger
}

// NewEventBroadcaster は新しいイベントブロードキャスターを作成する
func NewEventBroadcaster(logger *zap.SugaredLogger) *EventBroadcaster {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &EventBroadcaster{
		clients: make(map[chan Event]struct{}),
		logger:  logger,
	}
}

// Subscribe はイベントを受信するクライアントを追加する
func (b *EventBroadcaster) Subscribe() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 32) // バッファ付きチャネル
	b.clients[ch] = struct{}{}

	b.logger.Infow("client subscribed", "total_clients", len(b.clients))
	return ch
}

// Unsubscribe はクライアントのイベント受信を解除する
func (b *EventBroadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.clients[ch]; ok {
		delete(b.clients, ch)
		close(ch)
	}
	b.logger.Infow("client unsubscribed", "total_clients", len(b.clients))
}

// Broadcast はすべてのクライアントにイベントを送信する
func (b *EventBroadcaster) Broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.clients) == 0 {
		return
	}

	b.logger.Debugw("broadcasting event", "type", event.Type, "clients", len(b.clients))

	for ch := range b.clients {
		select {
		case ch <- event:
		default:
			// クライアントチャネルが満杯の場合、スキップ
			b.logger.Warnw("client channel full, skipping event", "type", event.Type)
		}
	}
}

// ClientCount は購読しているクライアント数を返す
func (b *EventBroadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// StateChanged broadcasts a lifecycle transition
func (b *EventBroadcaster) StateChanged(state session.State, s *models.Session) {
	data := map[string]any{"state": state.String()}
	if s != nil {
		data["session"] = newSessionResponse(s)
	}
	b.Broadcast(Event{Type: "state", Data: data})
}

// MessagesChanged broadcasts the whole transcript
func (b *EventBroadcaster) MessagesChanged(messages []models.ChatMessage) {
	b.Broadcast(Event{Type: "messages", Data: messages})
}

// TelemetryUpdated broadcasts the latest network-quality snapshot
func (b *EventBroadcaster) TelemetryUpdated(snapshot models.NetworkQualitySnapshot) {
	b.Broadcast(Event{Type: "telemetry", Data: snapshot})
}

// UserError broadcasts an error meant for the user
func (b *EventBroadcaster) UserError(err error) {
	b.Broadcast(Event{Type: "error", Data: map[string]string{"message": err.Error()}})
}

// Warning broadcasts an advisory message
func (b *EventBroadcaster) Warning(msg string) {
	b.Broadcast(Event{Type: "warning", Data: map[string]string{"message": msg}})
}

// MicrophoneChanged broadcasts the microphone state
func (b *EventBroadcaster) MicrophoneChanged(enabled bool) {
	b.Broadcast(Event{Type: "mic", Data: map[string]bool{"enabled": enabled}})
}

// FormatSSE はイベントをSSE形式にフォーマットする
func FormatSSE(event Event) ([]byte, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return nil, err
	}
	return []byte("event: " + event.Type + "\ndata: " + string(data) + "\n\n"), nil
}

var _ session.Notifier = (*EventBroadcaster)(nil)
