// Package transport describes the realtime audio/video client the session
// manager drives. The transport owns codecs, RTP and NAT traversal; this
// package only states what is consumed from it.
package transport

import (
	"context"

	"live-avatar-demo/internal/models"
)

// EventName identifies a transport event
type EventName string

const (
	EventException        EventName = "exception"
	EventUserPublished    EventName = "user-published"
	EventUserUnpublished  EventName = "user-unpublished"
	EventTokenWillExpire  EventName = "token-privilege-will-expire"
	EventTokenDidExpire   EventName = "token-privilege-did-expire"
	EventNetworkQuality   EventName = "network-quality"
	EventStreamMessage    EventName = "stream-message"
	EventConnectionChange EventName = "connection-state-change"
)

// ConnectionDisconnected is the State of an EventConnectionChange once the
// channel connection is gone
const ConnectionDisconnected = "DISCONNECTED"

// MediaKind is the kind of a published track
type MediaKind string

const (
	MediaVideo       MediaKind = "video"
	MediaAudio       MediaKind = "audio"
	MediaDataChannel MediaKind = "datachannel"
)

// Exception is a non-fatal problem reported by the transport
type Exception struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Event is delivered to handlers registered with Client.On. Only the fields
// relevant to Name are set.
type Event struct {
	Name      EventName
	UID       uint32
	Media     MediaKind
	Payload   []byte
	Quality   models.NetworkQuality
	Exception *Exception
	State     string
}

// Handler handles one event
type Handler func(Event)

// Subscription is a handle to a registered handler
type Subscription interface {
	Unsubscribe()
}

// SubscriptionFunc adapts a function to Subscription
type SubscriptionFunc func()

func (f SubscriptionFunc) Unsubscribe() { f() }

// RemoteTrack is a subscribed remote track
type RemoteTrack interface {
	// Play renders the track. Video goes to surface; audio ignores it.
	Play(ctx context.Context, surface string) error
}

// EncoderProfile is a named audio encoder preset
type EncoderProfile string

const (
	SpeechLowQuality  EncoderProfile = "speech_low_quality"
	SpeechStandard    EncoderProfile = "speech_standard"
	MusicStandard     EncoderProfile = "music_standard"
	HighQualityStereo EncoderProfile = "high_quality_stereo"
)

// MicrophoneConfig configures a local capture track
type MicrophoneConfig struct {
	Encoder EncoderProfile `json:"encoderConfig"`
	AEC     bool           `json:"AEC"`
	ANS     bool           `json:"ANS"`
	AGC     bool           `json:"AGC"`
}

// LocalTrack is a local media track that can be published
type LocalTrack interface {
	ID() string
	Kind() MediaKind
	// Stop stops capture; Close releases the underlying device.
	Stop(ctx context.Context) error
	Close(ctx context.Context) error
}

// StatsSource exposes the per-remote-participant statistics of the channel
type StatsSource interface {
	RemoteVideoStats() map[uint32]models.VideoStats
	RemoteAudioStats() map[uint32]models.AudioStats
	RemoteNetworkQuality() map[uint32]models.NetworkQuality
}

// Client is the realtime transport client
type Client interface {
	StatsSource

	Join(ctx context.Context, appID, channel, token string, uid uint32) error
	Leave(ctx context.Context) error

	// Publish publishes local tracks. Unpublish with no tracks unpublishes all.
	Publish(ctx context.Context, tracks ...LocalTrack) error
	Unpublish(ctx context.Context, tracks ...LocalTrack) error

	Subscribe(ctx context.Context, uid uint32, media MediaKind) (RemoteTrack, error)
	Unsubscribe(ctx context.Context, uid uint32, media MediaKind) error

	// SendStreamMessage sends a small binary message over the channel
	SendStreamMessage(ctx context.Context, payload []byte) error

	On(name EventName, h Handler) Subscription

	CreateMicrophoneTrack(ctx context.Context, cfg MicrophoneConfig) (LocalTrack, error)
}
