// Package protocol implements the versioned chat/control envelopes exchanged
// with the avatar over the transport's data messages.
//
// Every frame is UTF-8 JSON:
//
//	{"v":2,"type":"chat"|"cmd","mid":"...","pld":{...}}
//
// Only version 2 is understood. Frames of any other version are dropped by the
// receiver and never surface as errors to the user.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"

	"live-avatar-demo/internal/models"
)

const (
	// Version is the only envelope version this client speaks
	Version = 2

	// CodeSuccess acknowledges a command
	CodeSuccess = 1000

	TypeChat    = "chat"
	TypeCommand = "cmd"

	FromUser   = "user"
	FromAvatar = "avatar"

	CommandSetParams = "set-params"
	CommandInterrupt = "interrupt"
)

// ErrUnsupportedVersion is matched by every VersionMismatchError
var ErrUnsupportedVersion = errors.New("unsupported message version")

// Envelope is one protocol message unit
type Envelope struct {
	V    int             `json:"v"`
	Type string          `json:"type"`
	MID  string          `json:"mid,omitempty"`
	Pld  json.RawMessage `json:"pld,omitempty"`
}

// ChatPayload is the payload of an inbound chat envelope
type ChatPayload struct {
	Text string `json:"text"`
	From string `json:"from"`
}

// CommandResponse is the payload of an inbound command acknowledgement
type CommandResponse struct {
	Cmd  string `json:"cmd"`
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// VersionMismatchError reports an envelope of a version other than Version
type VersionMismatchError struct {
	Got int
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("unsupported message version, v=%d", e.Got)
}

func (e *VersionMismatchError) Unwrap() error {
	return ErrUnsupportedVersion
}

// CommandFailure is a command acknowledged with a non-success code
type CommandFailure struct {
	Cmd  string
	Code int
	Msg  string
}

func (e *CommandFailure) Error() string {
	return fmt.Sprintf("cmd-response, cmd=%s, code=%d, msg=%s", e.Cmd, e.Code, e.Msg)
}

// Inbound is a decoded inbound envelope: ChatDelta, CommandAck or Unknown
type Inbound interface {
	inbound()
}

// ChatDelta is one fragment of a chat message
type ChatDelta struct {
	MessageID string
	Text      string
	From      string
}

// CommandAck acknowledges a previously sent command
type CommandAck struct {
	Response CommandResponse
}

// Err returns a CommandFailure when the acknowledgement is not a success
func (a CommandAck) Err() error {
	if a.Response.Code == CodeSuccess {
		return nil
	}
	return &CommandFailure{Cmd: a.Response.Cmd, Code: a.Response.Code, Msg: a.Response.Msg}
}

// Unknown is a well-formed envelope of a type this client does not handle
type Unknown struct {
	Type string
}

func (ChatDelta) inbound()  {}
func (CommandAck) inbound() {}
func (Unknown) inbound()    {}

// Decode parses one inbound frame
func Decode(raw []byte) (Inbound, error) {
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("decode envelope: invalid utf-8")
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.V != Version {
		return nil, &VersionMismatchError{Got: env.V}
	}

	switch env.Type {
	case TypeChat:
		var pld ChatPayload
		if err := json.Unmarshal(env.Pld, &pld); err != nil {
			return nil, fmt.Errorf("decode chat payload: %w", err)
		}
		return ChatDelta{MessageID: env.MID, Text: pld.Text, From: pld.From}, nil
	case TypeCommand:
		var pld CommandResponse
		if err := json.Unmarshal(env.Pld, &pld); err != nil {
			return nil, fmt.Errorf("decode command payload: %w", err)
		}
		return CommandAck{Response: pld}, nil
	default:
		return Unknown{Type: env.Type}, nil
	}
}

// NewMessageID returns an id for an outbound envelope
func NewMessageID() string {
	return "msg-" + uuid.NewString()
}

// AvatarParams is the data of a set-params command
type AvatarParams struct {
	VoiceID       string          `json:"vid"`
	Language      string          `json:"lang"`
	Mode          models.ModeType `json:"mode"`
	BackgroundURL string          `json:"bgurl,omitempty"`
	VoiceURL      string          `json:"vurl,omitempty"`
}

type commandPayload struct {
	Cmd  string `json:"cmd"`
	Data any    `json:"data,omitempty"`
}

// EncodeAvatarParams encodes a configuration push
func EncodeAvatarParams(cfg models.AvatarConfiguration, mid string) ([]byte, error) {
	return encode(TypeCommand, mid, commandPayload{
		Cmd: CommandSetParams,
		Data: AvatarParams{
			VoiceID:       cfg.VoiceID,
			Language:      cfg.Language,
			Mode:          cfg.Mode,
			BackgroundURL: cfg.BackgroundURL,
			VoiceURL:      cfg.VoiceURL,
		},
	})
}

// EncodeInterrupt encodes a request to stop the current avatar response
func EncodeInterrupt(mid string) ([]byte, error) {
	return encode(TypeCommand, mid, commandPayload{Cmd: CommandInterrupt})
}

// Prompt is part of the legacy chat payload and is always empty
type Prompt struct {
	From    string `json:"from"`
	Content string `json:"content"`
}

// ChatRequest is the legacy chat payload. It carries the voice and language
// context next to the question, as earlier protocol revisions required.
type ChatRequest struct {
	MessageID string          `json:"message_id"`
	VoiceID   string          `json:"voice_id"`
	VoiceURL  string          `json:"voice_url"`
	Language  string          `json:"language"`
	ModeType  models.ModeType `json:"mode_type"`
	Prompt    Prompt          `json:"prompt"`
	Question  string          `json:"question"`
}

// NewChatRequest fills a ChatRequest from the current configuration
func NewChatRequest(messageID, question string, cfg models.AvatarConfiguration) ChatRequest {
	return ChatRequest{
		MessageID: messageID,
		VoiceID:   cfg.VoiceID,
		VoiceURL:  cfg.VoiceURL,
		Language:  cfg.Language,
		ModeType:  cfg.Mode,
		Prompt:    Prompt{From: "url", Content: ""},
		Question:  question,
	}
}

// EncodeChat encodes an outbound chat message
func EncodeChat(req ChatRequest) ([]byte, error) {
	return encode(TypeChat, req.MessageID, req)
}

func encode(typ, mid string, pld any) ([]byte, error) {
	raw, err := json.Marshal(pld)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return json.Marshal(Envelope{V: Version, Type: typ, MID: mid, Pld: raw})
}
