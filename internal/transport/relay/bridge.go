// Package relay implements transport.Client by driving a browser-hosted RTC
// agent over a WebSocket.
//
// The agent page runs the vendor RTC SDK and executes the operations sent to
// it. Frames are JSON text messages:
//
//	server -> agent  {"id":1,"op":"join","args":{...}}
//	agent -> server  {"id":1,"ok":true,"result":{...}}
//	agent -> server  {"id":1,"ok":false,"error":"..."}
//	agent -> server  {"event":"stream-message","uid":42,"data":"<base64>"}
//
// Network-quality events carry the remote statistics maps, which the bridge
// caches for the StatsSource methods.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"live-avatar-demo/internal/models"
	"live-avatar-demo/internal/transport"
)

var (
	// ErrNoAgent is returned when no agent is attached
	ErrNoAgent = errors.New("relay: no agent attached")
	// ErrAgentGone is returned for calls pending when the agent disconnects
	ErrAgentGone = errors.New("relay: agent disconnected")
)

const writeTimeout = 10 * time.Second

// AgentError is an operation the agent reported as failed
type AgentError struct {
	Op  string
	Msg string
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("relay: %s failed: %s", e.Op, e.Msg)
}

type request struct {
	ID   int64  `json:"id"`
	Op   string `json:"op"`
	Args any    `json:"args,omitempty"`
}

type frame struct {
	ID     int64           `json:"id,omitempty"`
	OK     bool            `json:"ok,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`

	Event string          `json:"event,omitempty"`
	UID   uint32          `json:"uid,omitempty"`
	Media string          `json:"media,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type reply struct {
	result json.RawMessage
	err    error
}

type qualityData struct {
	Local  models.NetworkQuality            `json:"local"`
	Video  map[uint32]models.VideoStats     `json:"video"`
	Audio  map[uint32]models.AudioStats     `json:"audio"`
	Remote map[uint32]models.NetworkQuality `json:"remote"`
}

// agent is one attached WebSocket connection
type agent struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	done    chan struct{}
}

// Bridge is a transport.Client backed by a remote agent
type Bridge struct {
	handlers transport.Handlers
	logger   *zap.SugaredLogger
	nextID   atomic.Int64

	mu      sync.Mutex
	agent   *agent
	pending map[int64]chan reply
	stats   qualityData

	queueMu sync.Mutex
	queue   []transport.Event
	wake    chan struct{}
	closed  chan struct{}
	once    sync.Once
}

// Option configures a Bridge
type Option func(*Bridge)

// WithLogger sets the bridge logger
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// NewBridge creates a bridge and starts its event dispatcher
func NewBridge(opts ...Option) *Bridge {
	b := &Bridge{
		logger:  zap.NewNop().Sugar(),
		pending: make(map[int64]chan reply),
		wake:    make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.dispatchLoop()
	return b
}

// Close detaches the agent and stops event dispatch
func (b *Bridge) Close() error {
	b.once.Do(func() {
		close(b.closed)
		b.mu.Lock()
		a := b.agent
		b.mu.Unlock()
		if a != nil {
			_ = a.conn.Close()
		}
	})
	return nil
}

// Attached reports whether an agent is connected
func (b *Bridge) Attached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.agent != nil
}

// Attach makes conn the current agent, replacing any previous one, and
// returns a channel closed when the connection ends.
func (b *Bridge) Attach(conn *websocket.Conn) <-chan struct{} {
	a := &agent{conn: conn, done: make(chan struct{})}

	b.mu.Lock()
	prev := b.agent
	b.agent = a
	b.mu.Unlock()

	if prev != nil {
		b.logger.Infow("replacing agent")
		_ = prev.conn.Close()
	}

	b.logger.Infow("agent attached", "remote", conn.RemoteAddr().String())
	go b.readLoop(a)
	return a.done
}

func (b *Bridge) readLoop(a *agent) {
	defer close(a.done)
	defer b.detach(a)

	for {
		var f frame
		if err := a.conn.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.logger.Infow("agent read ended", "err", err)
			}
			return
		}

		if f.Event != "" {
			b.handleEvent(f)
			continue
		}
		b.resolve(f)
	}
}

func (b *Bridge) detach(a *agent) {
	_ = a.conn.Close()

	b.mu.Lock()
	if b.agent != a {
		b.mu.Unlock()
		return
	}
	b.agent = nil
	pending := b.pending
	b.pending = make(map[int64]chan reply)
	b.mu.Unlock()

	for _, ch := range pending {
		ch <- reply{err: ErrAgentGone}
	}
	b.logger.Infow("agent detached", "failed_calls", len(pending))
	b.enqueue(transport.Event{Name: transport.EventConnectionChange, State: transport.ConnectionDisconnected})
}

func (b *Bridge) resolve(f frame) {
	b.mu.Lock()
	ch, ok := b.pending[f.ID]
	delete(b.pending, f.ID)
	b.mu.Unlock()

	if !ok {
		b.logger.Debugw("reply for unknown call", "id", f.ID)
		return
	}
	if !f.OK {
		ch <- reply{err: errors.New(f.Error)}
		return
	}
	ch <- reply{result: f.Result}
}

func (b *Bridge) handleEvent(f frame) {
	ev := transport.Event{
		Name:  transport.EventName(f.Event),
		UID:   f.UID,
		Media: transport.MediaKind(f.Media),
	}

	switch ev.Name {
	case transport.EventStreamMessage:
		if err := json.Unmarshal(f.Data, &ev.Payload); err != nil {
			b.logger.Warnw("bad stream-message data", "err", err)
			return
		}
	case transport.EventNetworkQuality:
		var q qualityData
		if err := json.Unmarshal(f.Data, &q); err != nil {
			b.logger.Warnw("bad network-quality data", "err", err)
			return
		}
		b.mu.Lock()
		b.stats = q
		b.mu.Unlock()
		ev.Quality = q.Local
	case transport.EventException:
		var ex transport.Exception
		if len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, &ex); err != nil {
				b.logger.Warnw("bad exception data", "err", err)
			}
		}
		ev.Exception = &ex
	case transport.EventConnectionChange:
		_ = json.Unmarshal(f.Data, &ev.State)
	}

	b.enqueue(ev)
}

// enqueue hands ev to the dispatcher. Handlers may issue calls, so they
// never run on the read loop.
func (b *Bridge) enqueue(ev transport.Event) {
	b.queueMu.Lock()
	b.queue = append(b.queue, ev)
	b.queueMu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bridge) dispatchLoop() {
	for {
		select {
		case <-b.closed:
			return
		case <-b.wake:
		}

		for {
			b.queueMu.Lock()
			if len(b.queue) == 0 {
				b.queueMu.Unlock()
				break
			}
			ev := b.queue[0]
			b.queue = b.queue[1:]
			b.queueMu.Unlock()

			b.handlers.Emit(ev)
		}
	}
}

// call sends op to the agent and waits for its reply
func (b *Bridge) call(ctx context.Context, op string, args any, out any) error {
	b.mu.Lock()
	a := b.agent
	if a == nil {
		b.mu.Unlock()
		return ErrNoAgent
	}
	id := b.nextID.Add(1)
	ch := make(chan reply, 1)
	b.pending[id] = ch
	b.mu.Unlock()

	a.writeMu.Lock()
	_ = a.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := a.conn.WriteJSON(request{ID: id, Op: op, Args: args})
	a.writeMu.Unlock()
	if err != nil {
		b.forget(id)
		return fmt.Errorf("relay: write %s: %w", op, err)
	}

	select {
	case r := <-ch:
		if r.err != nil {
			if errors.Is(r.err, ErrAgentGone) {
				return r.err
			}
			return &AgentError{Op: op, Msg: r.err.Error()}
		}
		if out != nil && len(r.result) > 0 {
			if err := json.Unmarshal(r.result, out); err != nil {
				return fmt.Errorf("relay: decode %s result: %w", op, err)
			}
		}
		return nil
	case <-ctx.Done():
		b.forget(id)
		return ctx.Err()
	}
}

func (b *Bridge) forget(id int64) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

func (b *Bridge) Join(ctx context.Context, appID, channel, token string, uid uint32) error {
	return b.call(ctx, "join", map[string]any{
		"app_id":  appID,
		"channel": channel,
		"token":   token,
		"uid":     uid,
	}, nil)
}

func (b *Bridge) Leave(ctx context.Context) error {
	err := b.call(ctx, "leave", nil, nil)
	b.mu.Lock()
	b.stats = qualityData{}
	b.mu.Unlock()
	return err
}

func (b *Bridge) Publish(ctx context.Context, tracks ...transport.LocalTrack) error {
	return b.call(ctx, "publish", map[string]any{"tracks": trackIDs(tracks)}, nil)
}

func (b *Bridge) Unpublish(ctx context.Context, tracks ...transport.LocalTrack) error {
	return b.call(ctx, "unpublish", map[string]any{"tracks": trackIDs(tracks)}, nil)
}

func (b *Bridge) Subscribe(ctx context.Context, uid uint32, media transport.MediaKind) (transport.RemoteTrack, error) {
	if err := b.call(ctx, "subscribe", map[string]any{"uid": uid, "media": media}, nil); err != nil {
		return nil, err
	}
	return &remoteTrack{bridge: b, uid: uid, media: media}, nil
}

func (b *Bridge) Unsubscribe(ctx context.Context, uid uint32, media transport.MediaKind) error {
	return b.call(ctx, "unsubscribe", map[string]any{"uid": uid, "media": media}, nil)
}

func (b *Bridge) SendStreamMessage(ctx context.Context, payload []byte) error {
	return b.call(ctx, "send-stream-message", map[string]any{"data": payload}, nil)
}

func (b *Bridge) On(name transport.EventName, h transport.Handler) transport.Subscription {
	return b.handlers.On(name, h)
}

func (b *Bridge) CreateMicrophoneTrack(ctx context.Context, cfg transport.MicrophoneConfig) (transport.LocalTrack, error) {
	var result struct {
		TrackID string `json:"track_id"`
	}
	if err := b.call(ctx, "create-microphone-track", cfg, &result); err != nil {
		return nil, err
	}
	if result.TrackID == "" {
		return nil, &AgentError{Op: "create-microphone-track", Msg: "missing track_id"}
	}
	return &localTrack{bridge: b, id: result.TrackID, kind: transport.MediaAudio}, nil
}

func (b *Bridge) RemoteVideoStats() map[uint32]models.VideoStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats.Video
}

func (b *Bridge) RemoteAudioStats() map[uint32]models.AudioStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats.Audio
}

func (b *Bridge) RemoteNetworkQuality() map[uint32]models.NetworkQuality {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats.Remote
}

type localTrack struct {
	bridge *Bridge
	id     string
	kind   transport.MediaKind
}

func (t *localTrack) ID() string                { return t.id }
func (t *localTrack) Kind() transport.MediaKind { return t.kind }

func (t *localTrack) Stop(ctx context.Context) error {
	return t.bridge.call(ctx, "track-stop", map[string]string{"track_id": t.id}, nil)
}

func (t *localTrack) Close(ctx context.Context) error {
	return t.bridge.call(ctx, "track-close", map[string]string{"track_id": t.id}, nil)
}

type remoteTrack struct {
	bridge *Bridge
	uid    uint32
	media  transport.MediaKind
}

func (t *remoteTrack) Play(ctx context.Context, surface string) error {
	return t.bridge.call(ctx, "play", map[string]any{"uid": t.uid, "media": t.media, "surface": surface}, nil)
}

func trackIDs(tracks []transport.LocalTrack) []string {
	ids := make([]string, 0, len(tracks))
	for _, t := range tracks {
		ids = append(ids, t.ID())
	}
	return ids
}

var _ transport.Client = (*Bridge)(nil)
