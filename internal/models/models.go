package models

import "time"

// Credentials holds what the realtime transport needs to join a channel
type Credentials struct {
	UID     uint32 `json:"agora_uid"`
	AppID   string `json:"agora_app_id"`
	Channel string `json:"agora_channel"`
	Token   string `json:"agora_token"`
}

// IsZero reports whether no credential field is set
func (c Credentials) IsZero() bool {
	return c == Credentials{}
}

// SessionStatus is the lifecycle status of a provisioned session
type SessionStatus string

const (
	SessionStatusUnprovisioned SessionStatus = "unprovisioned"
	SessionStatusProvisioning  SessionStatus = "provisioning"
	SessionStatusActive        SessionStatus = "active"
	SessionStatusClosing       SessionStatus = "closing"
	SessionStatusClosed        SessionStatus = "closed"
	SessionStatusFailed        SessionStatus = "failed"
)

// Session represents one provisioned avatar conversation
type Session struct {
	ID          string      `json:"_id"`
	Credentials Credentials `json:"credentials"`
	// Deprecated: older API revisions returned credentials here.
	StreamURLs *Credentials `json:"stream_urls,omitempty"`

	AvatarID  string        `json:"avatar_id,omitempty"`
	Duration  int           `json:"duration,omitempty"`
	Status    SessionStatus `json:"status,omitempty"`
	CreatedAt time.Time     `json:"created_at,omitempty"`
	ClosedAt  *time.Time    `json:"closed_at,omitempty"`
}

// ConnectionCredentials returns the credentials to join with, falling back to
// the deprecated stream_urls field.
func (s *Session) ConnectionCredentials() Credentials {
	if s.Credentials.IsZero() && s.StreamURLs != nil {
		return *s.StreamURLs
	}
	return s.Credentials
}

// Origin tells who authored a chat message
type Origin string

const (
	OriginSent     Origin = "sent"
	OriginReceived Origin = "received"
)

// ChatMessage is one entry of the conversation transcript
type ChatMessage struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Origin   Origin `json:"origin"`
	Position int    `json:"position"`
}

// IsSentByMe reports whether the local user authored the message
func (m ChatMessage) IsSentByMe() bool {
	return m.Origin == OriginSent
}

// ModeType selects how the avatar responds
type ModeType int

const (
	ModeRepeat   ModeType = 1
	ModeDialogue ModeType = 2
)

func (m ModeType) String() string {
	switch m {
	case ModeRepeat:
		return "repeat"
	case ModeDialogue:
		return "dialogue"
	default:
		return "unknown"
	}
}

// AvatarConfiguration holds the operator-tunable parameters of a session
type AvatarConfiguration struct {
	VoiceID       string   `json:"voice_id"`
	VoiceURL      string   `json:"voice_url,omitempty"`
	Language      string   `json:"language"`
	Mode          ModeType `json:"mode"`
	BackgroundURL string   `json:"background_url,omitempty"`
}

// Equal compares every tracked field
func (c AvatarConfiguration) Equal(other AvatarConfiguration) bool {
	return c == other
}

// NetworkQuality is a transport quality score pair (0 unknown, 1 best .. 6 down)
type NetworkQuality struct {
	Uplink   int `json:"uplink"`
	Downlink int `json:"downlink"`
}

// VideoStats are receive-side statistics of a remote video track
type VideoStats struct {
	ReceiveBitrate   int64   `json:"receive_bitrate"`
	ReceiveFrameRate int     `json:"receive_frame_rate"`
	ReceiveWidth     int     `json:"receive_width"`
	ReceiveHeight    int     `json:"receive_height"`
	PacketLossRate   float64 `json:"packet_loss_rate"`
	EndToEndDelayMS  int64   `json:"end_to_end_delay_ms"`
}

// AudioStats are receive-side statistics of a remote audio track
type AudioStats struct {
	ReceiveBitrate  int64   `json:"receive_bitrate"`
	ReceiveLevel    int     `json:"receive_level"`
	PacketLossRate  float64 `json:"packet_loss_rate"`
	EndToEndDelayMS int64   `json:"end_to_end_delay_ms"`
}

// NetworkQualitySnapshot is the latest telemetry sample
type NetworkQualitySnapshot struct {
	Local     NetworkQuality `json:"local"`
	Remote    NetworkQuality `json:"remote"`
	Video     VideoStats     `json:"video"`
	Audio     AudioStats     `json:"audio"`
	RemoteUID uint32         `json:"remote_uid,omitempty"`
	SampledAt time.Time      `json:"sampled_at"`
}

// IsZero reports whether the snapshot was never sampled
func (s NetworkQualitySnapshot) IsZero() bool {
	return s.SampledAt.IsZero()
}

// Language is an entry of the provisioning API language list
type Language struct {
	Code string `json:"lang_code"`
	Name string `json:"lang_name"`
	URL  string `json:"url,omitempty"`
}

// Voice is an entry of the provisioning API voice list
type Voice struct {
	VoiceID     string `json:"voice_id"`
	Name        string `json:"name"`
	Accent      string `json:"accent,omitempty"`
	Description string `json:"description,omitempty"`
	Language    string `json:"language,omitempty"`
	Preview     string `json:"preview,omitempty"`
}

// Avatar is an entry of the provisioning API avatar list
type Avatar struct {
	AvatarID     string `json:"avatar_id"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	Available    bool   `json:"available"`
	From         int    `json:"from"`
	Gender       string `json:"gender,omitempty"`
	VoiceID      string `json:"voice_id,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}
