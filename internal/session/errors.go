package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotActive is returned by operations that need an active session
	ErrNotActive = errors.New("session is not active")
	// ErrSendInFlight is returned while another chat message is being sent
	ErrSendInFlight = errors.New("a message is already being sent")
	// ErrEmptyMessage is returned for blank chat text
	ErrEmptyMessage = errors.New("message is empty")
)

// ConfigurationError reports missing or invalid settings. It is shown to the
// user and never retried.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return e.Msg
}

// TransportError wraps a failed transport operation
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
