// Package status mirrors session notifications to Redis so other processes
// can follow the avatar session.
package status

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"live-avatar-demo/internal/models"
	"live-avatar-demo/internal/session"
)

const (
	// Channel receives every event as JSON
	Channel = "avatar:status"
	// TelemetryKey holds the latest telemetry snapshot
	TelemetryKey = "avatar:telemetry"

	telemetryTTL   = time.Minute
	publishTimeout = 2 * time.Second
)

// Commands is the subset of the go-redis client the publisher uses
type Commands interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Event is the JSON document published on Channel
type Event struct {
	Type      string                         `json:"type"`
	State     string                         `json:"state,omitempty"`
	SessionID string                         `json:"session_id,omitempty"`
	Messages  []models.ChatMessage           `json:"messages,omitempty"`
	Telemetry *models.NetworkQualitySnapshot `json:"telemetry,omitempty"`
	Message   string                         `json:"message,omitempty"`
	Enabled   *bool                          `json:"enabled,omitempty"`
	Time      time.Time                      `json:"time"`
}

// Publisher implements session.Notifier on top of Redis pub/sub
type Publisher struct {
	rdb    Commands
	logger *zap.SugaredLogger
}

// NewPublisher creates a Publisher
func NewPublisher(rdb Commands, logger *zap.SugaredLogger) *Publisher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Publisher{rdb: rdb, logger: logger}
}

func (p *Publisher) StateChanged(state session.State, s *models.Session) {
	ev := Event{Type: "state", State: state.String()}
	if s != nil {
		ev.SessionID = s.ID
	}
	p.publish(ev)
}

func (p *Publisher) MessagesChanged(messages []models.ChatMessage) {
	p.publish(Event{Type: "messages", Messages: messages})
}

func (p *Publisher) TelemetryUpdated(snapshot models.NetworkQualitySnapshot) {
	p.publish(Event{Type: "telemetry", Telemetry: &snapshot})

	data, err := json.Marshal(snapshot)
	if err != nil {
		p.logger.Warnw("marshal telemetry failed", "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.rdb.Set(ctx, TelemetryKey, data, telemetryTTL).Err(); err != nil {
		p.logger.Warnw("store telemetry failed", "key", TelemetryKey, "err", err)
	}
}

func (p *Publisher) UserError(err error) {
	p.publish(Event{Type: "error", Message: err.Error()})
}

func (p *Publisher) Warning(msg string) {
	p.publish(Event{Type: "warning", Message: msg})
}

func (p *Publisher) MicrophoneChanged(enabled bool) {
	p.publish(Event{Type: "mic", Enabled: &enabled})
}

func (p *Publisher) publish(ev Event) {
	ev.Time = time.Now()
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warnw("marshal status event failed", "type", ev.Type, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.rdb.Publish(ctx, Channel, data).Err(); err != nil {
		p.logger.Warnw("publish status failed", "type", ev.Type, "err", err)
	}
}

var _ session.Notifier = (*Publisher)(nil)
