package protocol

import (
	"errors"

	"go.uber.org/zap"
)

// FragmentSink receives avatar chat fragments
type FragmentSink interface {
	ApplyFragment(messageID, fragment string)
}

// FragmentSinkFunc adapts a function to FragmentSink
type FragmentSinkFunc func(messageID, fragment string)

func (f FragmentSinkFunc) ApplyFragment(messageID, fragment string) { f(messageID, fragment) }

// Dispatcher routes inbound frames. Malformed frames and unsupported versions
// are logged and dropped; they never reach the sinks.
type Dispatcher struct {
	fragments FragmentSink
	onFailure func(*CommandFailure)
	logger    *zap.SugaredLogger
}

// NewDispatcher creates a dispatcher. onFailure receives every command
// acknowledged with a non-success code and may be nil.
func NewDispatcher(fragments FragmentSink, onFailure func(*CommandFailure), logger *zap.SugaredLogger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Dispatcher{
		fragments: fragments,
		onFailure: onFailure,
		logger:    logger,
	}
}

// Dispatch handles one raw frame received from uid
func (d *Dispatcher) Dispatch(uid uint32, raw []byte) {
	d.logger.Debugw("stream-message", "uid", uid, "size", len(raw))

	msg, err := Decode(raw)
	if err != nil {
		if errors.Is(err, ErrUnsupportedVersion) {
			d.logger.Infow("dropping message", "uid", uid, "err", err)
		} else {
			d.logger.Warnw("malformed message", "uid", uid, "err", err)
		}
		return
	}

	switch m := msg.(type) {
	case ChatDelta:
		if m.From == FromUser {
			// Echo of the local user's own speech or text.
			d.logger.Debugw("chat from user", "mid", m.MessageID, "text", m.Text)
			return
		}
		if d.fragments != nil {
			d.fragments.ApplyFragment(m.MessageID, m.Text)
		}
	case CommandAck:
		d.logger.Infow("cmd-response", "cmd", m.Response.Cmd, "code", m.Response.Code, "msg", m.Response.Msg)
		if err := m.Err(); err != nil && d.onFailure != nil {
			var failure *CommandFailure
			if errors.As(err, &failure) {
				d.onFailure(failure)
			}
		}
	case Unknown:
		d.logger.Debugw("ignoring message", "type", m.Type)
	}
}
