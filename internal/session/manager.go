// Package session drives one live avatar session: provisioning, channel
// join, the chat protocol handshake and teardown.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"live-avatar-demo/internal/chat"
	"live-avatar-demo/internal/mic"
	"live-avatar-demo/internal/models"
	"live-avatar-demo/internal/protocol"
	"live-avatar-demo/internal/telemetry"
	"live-avatar-demo/internal/transport"
)

// Provisioner creates and closes sessions at the vendor API
type Provisioner interface {
	CreateSession(ctx context.Context, avatarID string, durationSeconds int) (*models.Session, error)
	CloseSession(ctx context.Context, id string) error
}

// Store persists sessions and their transcripts
type Store interface {
	RecordSession(s *models.Session) error
	UpdateSessionStatus(id string, status models.SessionStatus, closedAt *time.Time) error
	UpsertMessage(sessionID string, msg models.ChatMessage) error
}

// StartRequest holds the parameters of Start
type StartRequest struct {
	AvatarID        string                     `json:"avatar_id"`
	DurationMinutes int                        `json:"duration"`
	Config          models.AvatarConfiguration `json:"config"`
}

// DefaultVideoSurface is where remote video is rendered unless overridden
const DefaultVideoSurface = "remote-video"

// Manager owns the single session of a client
type Manager struct {
	client      transport.Client
	provisioner Provisioner
	notifier    Notifier
	store       Store
	logger      *zap.SugaredLogger
	mic         *mic.Controller
	surface     string

	transcript *chat.Transcript
	telemetry  *telemetry.Aggregator
	dispatcher *protocol.Dispatcher

	opMu   sync.Mutex // serializes lifecycle operations
	sendMu sync.Mutex // one chat send at a time

	// chatMu guards chatOpen and orders transcript writes against teardown
	chatMu   sync.Mutex
	chatOpen bool

	mu           sync.RWMutex
	state        State
	session      *models.Session
	config       models.AvatarConfiguration
	channelSubs  *transport.Registry
	protocolSubs *transport.Registry
	remote       map[transport.MediaKind]uint32
}

// Option configures a Manager
type Option func(*Manager)

// WithNotifier sets the notifier. Use MultiNotifier for several.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) {
		m.notifier = n
	}
}

// WithStore persists sessions and messages to s
func WithStore(s Store) Option {
	return func(m *Manager) {
		m.store = s
	}
}

// WithLogger sets the manager logger
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMicrophone hands the microphone controller to the manager, which gates
// it on the active state and releases it on teardown.
func WithMicrophone(c *mic.Controller) Option {
	return func(m *Manager) {
		m.mic = c
	}
}

// WithVideoSurface sets the surface remote video is played into
func WithVideoSurface(surface string) Option {
	return func(m *Manager) {
		m.surface = surface
	}
}

// WithTelemetry replaces the telemetry aggregator
func WithTelemetry(a *telemetry.Aggregator) Option {
	return func(m *Manager) {
		m.telemetry = a
	}
}

// NewManager creates a Manager. provisioner may be nil when no API
// credentials are configured; Start then fails with a ConfigurationError.
func NewManager(client transport.Client, provisioner Provisioner, opts ...Option) *Manager {
	m := &Manager{
		client:      client,
		provisioner: provisioner,
		notifier:    MultiNotifier(nil),
		logger:      zap.NewNop().Sugar(),
		surface:     DefaultVideoSurface,
		transcript:  chat.NewTranscript(),
		telemetry:   telemetry.NewAggregator(),
		remote:      make(map[transport.MediaKind]uint32),
		config: models.AvatarConfiguration{
			Language: "en",
			Mode:     models.ModeDialogue,
		},
	}
	for _, opt := range opts {
		opt(m)
	}

	m.dispatcher = protocol.NewDispatcher(
		protocol.FragmentSinkFunc(m.applyFragment),
		func(f *protocol.CommandFailure) { m.notifier.UserError(f) },
		m.logger,
	)
	m.transcript.OnChange(func(msgs []models.ChatMessage) {
		m.notifier.MessagesChanged(msgs)
	})
	if m.mic != nil {
		m.mic.SetGate(m.IsActive)
		m.mic.OnChange(func(enabled bool) {
			m.notifier.MicrophoneChanged(enabled)
		})
	}
	return m
}

// SetConfiguration replaces the configuration without pushing it
func (m *Manager) SetConfiguration(cfg models.AvatarConfiguration) {
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
}

// Start provisions a session, joins its channel and performs the protocol
// handshake. An existing session is torn down first.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*models.Session, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.validate(req); err != nil {
		m.notifier.UserError(err)
		return nil, err
	}

	if m.State() != StateIdle {
		m.logger.Infow("stopping previous session before start", "state", m.State())
		if err := m.stopLocked(ctx); err != nil {
			m.logger.Warnw("previous session teardown had errors", "err", err)
		}
	}
	m.closeChat()

	m.SetConfiguration(req.Config)
	m.setState(StateProvisioning)

	m.logger.Infow("session create started", "avatar_id", req.AvatarID, "duration_minutes", req.DurationMinutes)
	sess, err := m.provisioner.CreateSession(ctx, req.AvatarID, req.DurationMinutes*60)
	if err != nil {
		m.logger.Errorw("session create failed", "avatar_id", req.AvatarID, "err", err)
		m.setState(StateIdle)
		m.notifier.UserError(err)
		return nil, fmt.Errorf("create session: %w", err)
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	sess.Status = models.SessionStatusProvisioning
	m.logger.Infow("session create completed", "session_id", sess.ID)

	m.mu.Lock()
	m.session = sess
	m.channelSubs = transport.NewRegistry()
	m.protocolSubs = transport.NewRegistry()
	channelSubs := m.channelSubs
	m.mu.Unlock()
	m.recordSession(sess)

	m.setState(StateChannelJoining)
	channelSubs.On(m.client, transport.EventException, m.handleException)
	channelSubs.On(m.client, transport.EventUserPublished, m.handleUserPublished)
	channelSubs.On(m.client, transport.EventUserUnpublished, m.handleUserUnpublished)
	channelSubs.On(m.client, transport.EventTokenWillExpire, m.handleTokenWillExpire)
	channelSubs.On(m.client, transport.EventTokenDidExpire, m.tokenDidExpireHandler(sess.ID))
	channelSubs.On(m.client, transport.EventConnectionChange, m.connectionChangeHandler(sess.ID))

	creds := sess.ConnectionCredentials()
	m.logger.Infow("channel join started", "session_id", sess.ID, "channel", creds.Channel, "uid", creds.UID)
	if err := m.client.Join(ctx, creds.AppID, creds.Channel, creds.Token, creds.UID); err != nil {
		return nil, m.fail("join", err)
	}
	m.setState(StateChannelJoined)
	channelSubs.On(m.client, transport.EventNetworkQuality, m.handleNetworkQuality)

	m.setState(StateProtocolHandshaking)
	m.mu.RLock()
	protocolSubs := m.protocolSubs
	cfg := m.config
	m.mu.RUnlock()
	m.openChat()
	protocolSubs.On(m.client, transport.EventStreamMessage, m.handleStreamMessage)

	if err := m.pushConfiguration(ctx, cfg); err != nil {
		return nil, m.fail("set-params", err)
	}

	m.updateSessionStatus(sess.ID, models.SessionStatusActive, nil)
	m.setState(StateActive)
	m.logger.Infow("session started", "session_id", sess.ID)
	return m.Session(), nil
}

func (m *Manager) validate(req StartRequest) error {
	if m.provisioner == nil {
		return &ConfigurationError{Msg: "please set host and token first"}
	}
	if strings.TrimSpace(req.AvatarID) == "" {
		return &ConfigurationError{Msg: "avatar id is required"}
	}
	if req.DurationMinutes < 1 {
		return &ConfigurationError{Msg: "duration must be at least one minute"}
	}
	if req.Config.Mode != models.ModeRepeat && req.Config.Mode != models.ModeDialogue {
		return &ConfigurationError{Msg: fmt.Sprintf("unknown mode %d", req.Config.Mode)}
	}
	return nil
}

// fail moves to Failed after a transport error during Start. Subscriptions
// are released; the session record stays until Stop.
func (m *Manager) fail(op string, err error) error {
	te := &TransportError{Op: op, Err: err}

	m.mu.Lock()
	channelSubs, protocolSubs := m.channelSubs, m.protocolSubs
	var id string
	if m.session != nil {
		m.session.Status = models.SessionStatusFailed
		id = m.session.ID
	}
	m.mu.Unlock()

	protocolSubs.Close()
	m.closeChat()
	channelSubs.Close()

	m.logger.Errorw("session start failed", "session_id", id, "op", op, "err", err)
	if id != "" {
		m.updateSessionStatus(id, models.SessionStatusFailed, nil)
	}
	m.setState(StateFailed)
	m.notifier.UserError(te)
	return te
}

// Stop tears the session down in reverse order of Start. It is a no-op when
// there is nothing to stop.
func (m *Manager) Stop(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.stopLocked(ctx)
}

func (m *Manager) stopLocked(ctx context.Context) error {
	m.mu.RLock()
	state, sess := m.state, m.session
	channelSubs, protocolSubs := m.channelSubs, m.protocolSubs
	m.mu.RUnlock()

	if state == StateIdle && sess == nil {
		m.logger.Infow("stop ignored, no session")
		return nil
	}

	var id string
	if sess != nil {
		id = sess.ID
	}
	m.logger.Infow("session stop started", "session_id", id, "state", state)
	m.setState(StateLeaving)

	var errs []error
	if protocolSubs != nil {
		protocolSubs.Close()
	}
	m.closeChat()

	if m.mic != nil {
		if err := m.mic.Release(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.client.Unpublish(ctx); err != nil {
		errs = append(errs, &TransportError{Op: "unpublish", Err: err})
	}
	if err := m.client.Leave(ctx); err != nil {
		errs = append(errs, &TransportError{Op: "leave", Err: err})
	}
	if channelSubs != nil {
		channelSubs.Close()
	}

	m.mu.Lock()
	m.remote = make(map[transport.MediaKind]uint32)
	m.mu.Unlock()

	if sess != nil {
		if m.provisioner != nil {
			if err := m.provisioner.CloseSession(ctx, sess.ID); err != nil {
				m.logger.Errorw("session close failed", "session_id", sess.ID, "err", err)
				errs = append(errs, fmt.Errorf("close session: %w", err))
			}
		}
		closedAt := time.Now()
		m.updateSessionStatus(sess.ID, models.SessionStatusClosed, &closedAt)
	}

	m.telemetry.Reset()

	m.mu.Lock()
	m.session = nil
	m.channelSubs = nil
	m.protocolSubs = nil
	m.mu.Unlock()
	m.setState(StateIdle)

	err := errors.Join(errs...)
	if err != nil {
		m.logger.Warnw("session stop completed with errors", "session_id", id, "err", err)
	} else {
		m.logger.Infow("session stop completed", "session_id", id)
	}
	return err
}

// UpdateConfiguration stores cfg and pushes it to the avatar when a session
// is active and a tracked field changed.
func (m *Manager) UpdateConfiguration(ctx context.Context, cfg models.AvatarConfiguration) error {
	if cfg.Mode != models.ModeRepeat && cfg.Mode != models.ModeDialogue {
		return &ConfigurationError{Msg: fmt.Sprintf("unknown mode %d", cfg.Mode)}
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	prev := m.config
	m.config = cfg
	active := m.state == StateActive
	m.mu.Unlock()

	if !active || prev.Equal(cfg) {
		return nil
	}
	if err := m.pushConfiguration(ctx, cfg); err != nil {
		te := &TransportError{Op: "set-params", Err: err}
		m.notifier.UserError(te)
		return te
	}
	return nil
}

func (m *Manager) pushConfiguration(ctx context.Context, cfg models.AvatarConfiguration) error {
	payload, err := protocol.EncodeAvatarParams(cfg, protocol.NewMessageID())
	if err != nil {
		return err
	}
	m.logger.Infow("set-params", "voice_id", cfg.VoiceID, "language", cfg.Language, "mode", cfg.Mode)
	return m.client.SendStreamMessage(ctx, payload)
}

// SendText sends a chat message to the avatar and adds it to the transcript.
// The local entry is removed again when the send fails.
func (m *Manager) SendText(ctx context.Context, text string) (models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.ChatMessage{}, ErrEmptyMessage
	}
	if !m.IsActive() {
		return models.ChatMessage{}, ErrNotActive
	}
	if !m.sendMu.TryLock() {
		return models.ChatMessage{}, ErrSendInFlight
	}
	defer m.sendMu.Unlock()

	id := protocol.NewMessageID()
	payload, err := protocol.EncodeChat(protocol.NewChatRequest(id, text, m.Configuration()))
	if err != nil {
		return models.ChatMessage{}, err
	}

	m.chatMu.Lock()
	if !m.chatOpen {
		m.chatMu.Unlock()
		return models.ChatMessage{}, ErrNotActive
	}
	m.transcript.AddLocal(id, text)
	m.chatMu.Unlock()

	if err := m.client.SendStreamMessage(ctx, payload); err != nil {
		m.chatMu.Lock()
		m.transcript.Remove(id)
		m.chatMu.Unlock()
		te := &TransportError{Op: "send", Err: err}
		m.logger.Errorw("chat send failed", "message_id", id, "err", err)
		m.notifier.UserError(te)
		return models.ChatMessage{}, te
	}

	msg, ok := m.transcript.Get(id)
	if !ok {
		// the session was torn down while the message was in flight
		return models.ChatMessage{}, ErrNotActive
	}
	m.persistMessage(msg)
	return msg, nil
}

// Interrupt asks the avatar to stop speaking
func (m *Manager) Interrupt(ctx context.Context) error {
	if !m.IsActive() {
		return ErrNotActive
	}
	payload, err := protocol.EncodeInterrupt(protocol.NewMessageID())
	if err != nil {
		return err
	}
	if err := m.client.SendStreamMessage(ctx, payload); err != nil {
		te := &TransportError{Op: "interrupt", Err: err}
		m.notifier.UserError(te)
		return te
	}
	m.logger.Infow("interrupt sent")
	return nil
}

// ToggleMicrophone toggles the microphone controller, if any
func (m *Manager) ToggleMicrophone(ctx context.Context) (bool, error) {
	if m.mic == nil {
		return false, &ConfigurationError{Msg: "microphone is not available"}
	}
	return m.mic.Toggle(ctx)
}

// openChat starts accepting transcript writes for a new session
func (m *Manager) openChat() {
	m.chatMu.Lock()
	defer m.chatMu.Unlock()
	m.transcript.Clear()
	m.chatOpen = true
}

// closeChat stops transcript writes and empties the transcript. Handlers
// already in flight when it returns observe the closed gate.
func (m *Manager) closeChat() {
	m.chatMu.Lock()
	defer m.chatMu.Unlock()
	m.chatOpen = false
	m.transcript.Clear()
}

func (m *Manager) applyFragment(messageID, fragment string) {
	m.chatMu.Lock()
	if !m.chatOpen {
		m.chatMu.Unlock()
		m.logger.Debugw("fragment dropped, chat closed", "message_id", messageID)
		return
	}
	m.transcript.ApplyFragment(messageID, fragment)
	msg, ok := m.transcript.Get(messageID)
	m.chatMu.Unlock()

	if ok {
		m.persistMessage(msg)
	}
}

func (m *Manager) handleStreamMessage(ev transport.Event) {
	if s := m.State(); s != StateProtocolHandshaking && s != StateActive {
		m.logger.Debugw("stream message dropped", "uid", ev.UID, "state", s)
		return
	}
	m.dispatcher.Dispatch(ev.UID, ev.Payload)
}

// inChannel reports whether remote media events belong to the current
// channel.
func (m *Manager) inChannel() bool {
	s := m.State()
	return s >= StateChannelJoining && s <= StateActive
}

func (m *Manager) handleException(ev transport.Event) {
	if ev.Exception == nil {
		m.logger.Warnw("transport exception", "uid", ev.UID)
		return
	}
	m.logger.Warnw("transport exception", "uid", ev.UID, "code", ev.Exception.Code, "msg", ev.Exception.Msg)
}

func (m *Manager) handleUserPublished(ev transport.Event) {
	if ev.Media != transport.MediaVideo && ev.Media != transport.MediaAudio {
		return
	}
	if !m.inChannel() {
		m.logger.Debugw("remote published ignored", "uid", ev.UID, "media", ev.Media, "state", m.State())
		return
	}
	ctx := context.Background()

	m.logger.Infow("remote published", "uid", ev.UID, "media", ev.Media)
	track, err := m.client.Subscribe(ctx, ev.UID, ev.Media)
	if err != nil {
		te := &TransportError{Op: "subscribe", Err: err}
		m.logger.Errorw("subscribe failed", "uid", ev.UID, "media", ev.Media, "err", err)
		m.notifier.UserError(te)
		return
	}

	m.mu.Lock()
	current := m.state >= StateChannelJoining && m.state <= StateActive
	if current {
		m.remote[ev.Media] = ev.UID
	}
	m.mu.Unlock()
	if !current {
		m.logger.Infow("remote track left unplayed, session ended", "uid", ev.UID, "media", ev.Media)
		return
	}

	surface := ""
	if ev.Media == transport.MediaVideo {
		surface = m.surface
	}
	if err := track.Play(ctx, surface); err != nil {
		m.logger.Errorw("play failed", "uid", ev.UID, "media", ev.Media, "err", err)
	}
}

func (m *Manager) handleUserUnpublished(ev transport.Event) {
	if ev.Media != transport.MediaVideo && ev.Media != transport.MediaAudio {
		return
	}
	if !m.inChannel() {
		return
	}
	m.logger.Infow("remote unpublished", "uid", ev.UID, "media", ev.Media)
	if err := m.client.Unsubscribe(context.Background(), ev.UID, ev.Media); err != nil {
		m.logger.Warnw("unsubscribe failed", "uid", ev.UID, "media", ev.Media, "err", err)
	}

	m.mu.Lock()
	if m.remote[ev.Media] == ev.UID {
		delete(m.remote, ev.Media)
	}
	m.mu.Unlock()
}

func (m *Manager) handleTokenWillExpire(transport.Event) {
	m.logger.Warnw("token will expire")
	m.notifier.Warning("session token will expire soon")
}

// tokenDidExpireHandler stops the session it was registered for. The stop
// runs on its own goroutine so the transport's dispatcher is not blocked on
// the lifecycle lock.
func (m *Manager) tokenDidExpireHandler(sessionID string) transport.Handler {
	return func(transport.Event) {
		m.logger.Warnw("token expired", "session_id", sessionID)
		m.notifier.Warning("session token expired")

		go m.stopSession(sessionID, "stop after token expiry had errors")
	}
}

// connectionChangeHandler stops the session it was registered for once the
// transport reports the connection as gone. Other transitions are logged.
func (m *Manager) connectionChangeHandler(sessionID string) transport.Handler {
	return func(ev transport.Event) {
		if ev.State != transport.ConnectionDisconnected {
			m.logger.Infow("connection state changed", "session_id", sessionID, "state", ev.State)
			return
		}
		m.logger.Warnw("connection lost", "session_id", sessionID)
		m.notifier.Warning("connection to the avatar was lost")
		go m.stopSession(sessionID, "stop after connection loss had errors")
	}
}

// stopSession stops sessionID unless another session replaced it meanwhile
func (m *Manager) stopSession(sessionID, failMsg string) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if s := m.Session(); s == nil || s.ID != sessionID {
		return
	}
	if err := m.stopLocked(context.Background()); err != nil {
		m.logger.Warnw(failMsg, "session_id", sessionID, "err", err)
	}
}

func (m *Manager) handleNetworkQuality(ev transport.Event) {
	if !m.IsActive() {
		return
	}
	snap := m.telemetry.Sample(ev.Quality, m.client)
	m.notifier.TelemetryUpdated(snap)
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	var sess *models.Session
	if m.session != nil {
		cp := *m.session
		sess = &cp
	}
	m.mu.Unlock()

	if prev == s {
		return
	}
	m.logger.Infow("state changed", "from", prev.String(), "to", s.String())
	m.notifier.StateChanged(s, sess)
}

func (m *Manager) recordSession(s *models.Session) {
	if m.store == nil {
		return
	}
	cp := *s
	if err := m.store.RecordSession(&cp); err != nil {
		m.logger.Warnw("record session failed", "session_id", s.ID, "err", err)
	}
}

func (m *Manager) updateSessionStatus(id string, status models.SessionStatus, closedAt *time.Time) {
	m.mu.Lock()
	if m.session != nil && m.session.ID == id {
		m.session.Status = status
		m.session.ClosedAt = closedAt
	}
	m.mu.Unlock()

	if m.store == nil {
		return
	}
	if err := m.store.UpdateSessionStatus(id, status, closedAt); err != nil {
		m.logger.Warnw("update session status failed", "session_id", id, "err", err)
	}
}

func (m *Manager) persistMessage(msg models.ChatMessage) {
	if m.store == nil || msg.ID == "" {
		return
	}
	s := m.Session()
	if s == nil {
		return
	}
	if err := m.store.UpsertMessage(s.ID, msg); err != nil {
		m.logger.Warnw("persist message failed", "message_id", msg.ID, "err", err)
	}
}

// State returns the current lifecycle state
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsActive reports whether the session is streaming
func (m *Manager) IsActive() bool {
	return m.State() == StateActive
}

// Session returns a copy of the current session, or nil
func (m *Manager) Session() *models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil
	}
	cp := *m.session
	return &cp
}

// Configuration returns the current avatar configuration
func (m *Manager) Configuration() models.AvatarConfiguration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Messages returns the transcript
func (m *Manager) Messages() []models.ChatMessage {
	return m.transcript.Messages()
}

// Telemetry returns the latest network-quality snapshot
func (m *Manager) Telemetry() models.NetworkQualitySnapshot {
	return m.telemetry.Latest()
}

// MicrophoneEnabled reports whether the microphone is published
func (m *Manager) MicrophoneEnabled() bool {
	return m.mic != nil && m.mic.Enabled()
}

// RemoteUID returns the participant currently rendered for media
func (m *Manager) RemoteUID(media transport.MediaKind) (uint32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	uid, ok := m.remote[media]
	return uid, ok
}
