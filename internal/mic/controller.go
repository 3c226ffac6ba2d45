// Package mic owns the local microphone track and its publication.
package mic

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"live-avatar-demo/internal/transport"
)

var (
	// ErrToggleInFlight is returned when a toggle starts while another runs
	ErrToggleInFlight = errors.New("microphone toggle already in progress")
	// ErrNotConnected is returned when the session is not active
	ErrNotConnected = errors.New("microphone unavailable: not connected")
)

// Capture is the preset used for every microphone track
var Capture = transport.MicrophoneConfig{
	Encoder: transport.SpeechLowQuality,
	AEC:     true,
	ANS:     true,
	AGC:     true,
}

// Controller acquires, publishes and releases the microphone track
type Controller struct {
	client   transport.Client
	logger   *zap.SugaredLogger
	gate     func() bool
	onChange func(enabled bool)

	busy sync.Mutex // held for the whole toggle or release

	mu    sync.Mutex
	track transport.LocalTrack
}

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the controller logger
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithGate makes Toggle fail with ErrNotConnected while gate returns false
func WithGate(gate func() bool) Option {
	return func(c *Controller) {
		c.gate = gate
	}
}

// NewController creates a Controller on client
func NewController(client transport.Client, opts ...Option) *Controller {
	c := &Controller{
		client: client,
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetGate replaces the gate after construction
func (c *Controller) SetGate(gate func() bool) {
	c.mu.Lock()
	c.gate = gate
	c.mu.Unlock()
}

// OnChange registers the callback run after the enabled state flips
func (c *Controller) OnChange(fn func(enabled bool)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Enabled reports whether a published track is held
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.track != nil
}

// Toggle publishes a new microphone track when none is held and releases the
// held one otherwise. It returns the new enabled state.
func (c *Controller) Toggle(ctx context.Context) (bool, error) {
	if !c.busy.TryLock() {
		return c.Enabled(), ErrToggleInFlight
	}
	defer c.busy.Unlock()

	c.mu.Lock()
	held := c.track
	gate := c.gate
	c.mu.Unlock()

	if held != nil {
		err := c.release(ctx, held)
		return false, err
	}

	if gate != nil && !gate() {
		return false, ErrNotConnected
	}

	c.logger.Infow("microphone acquire started")
	track, err := c.client.CreateMicrophoneTrack(ctx, Capture)
	if err != nil {
		c.logger.Errorw("microphone acquire failed", "err", err)
		return false, fmt.Errorf("create microphone track: %w", err)
	}

	if err := c.client.Publish(ctx, track); err != nil {
		c.logger.Errorw("microphone publish failed", "track", track.ID(), "err", err)
		if rerr := errors.Join(track.Stop(ctx), track.Close(ctx)); rerr != nil {
			c.logger.Warnw("microphone track release failed", "track", track.ID(), "err", rerr)
		}
		return false, fmt.Errorf("publish microphone track: %w", err)
	}

	c.mu.Lock()
	c.track = track
	c.mu.Unlock()

	c.logger.Infow("microphone acquire completed", "track", track.ID())
	c.notify(true)
	return true, nil
}

// Release stops and unpublishes the held track, if any. It waits for an
// in-flight toggle to finish.
func (c *Controller) Release(ctx context.Context) error {
	c.busy.Lock()
	defer c.busy.Unlock()

	c.mu.Lock()
	held := c.track
	c.mu.Unlock()

	if held == nil {
		return nil
	}
	return c.release(ctx, held)
}

func (c *Controller) release(ctx context.Context, track transport.LocalTrack) error {
	c.logger.Infow("microphone release started", "track", track.ID())

	var errs []error
	if err := track.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop track: %w", err))
	}
	if err := track.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close track: %w", err))
	}
	if err := c.client.Unpublish(ctx, track); err != nil {
		errs = append(errs, fmt.Errorf("unpublish track: %w", err))
	}

	c.mu.Lock()
	c.track = nil
	c.mu.Unlock()

	err := errors.Join(errs...)
	if err != nil {
		c.logger.Warnw("microphone release completed with errors", "track", track.ID(), "err", err)
	} else {
		c.logger.Infow("microphone release completed", "track", track.ID())
	}
	c.notify(false)
	return err
}

func (c *Controller) notify(enabled bool) {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn(enabled)
	}
}
