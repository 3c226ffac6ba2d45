package session

import "live-avatar-demo/internal/models"

// Notifier receives everything presentation needs to render a session.
// Methods are called synchronously and must not call back into the Manager's
// lifecycle operations.
type Notifier interface {
	StateChanged(state State, session *models.Session)
	MessagesChanged(messages []models.ChatMessage)
	TelemetryUpdated(snapshot models.NetworkQualitySnapshot)
	UserError(err error)
	Warning(msg string)
	MicrophoneChanged(enabled bool)
}

// MultiNotifier fans every notification out to each of its members
type MultiNotifier []Notifier

func (mn MultiNotifier) StateChanged(state State, session *models.Session) {
	for _, n := range mn {
		n.StateChanged(state, session)
	}
}

func (mn MultiNotifier) MessagesChanged(messages []models.ChatMessage) {
	for _, n := range mn {
		n.MessagesChanged(messages)
	}
}

func (mn MultiNotifier) TelemetryUpdated(snapshot models.NetworkQualitySnapshot) {
	for _, n := range mn {
		n.TelemetryUpdated(snapshot)
	}
}

func (mn MultiNotifier) UserError(err error) {
	for _, n := range mn {
		n.UserError(err)
	}
}

func (mn MultiNotifier) Warning(msg string) {
	for _, n := range mn {
		n.Warning(msg)
	}
}

func (mn MultiNotifier) MicrophoneChanged(enabled bool) {
	for _, n := range mn {
		n.MicrophoneChanged(enabled)
	}
}
