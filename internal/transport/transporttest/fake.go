// Package transporttest provides a recording in-memory transport.Client.
package transporttest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"live-avatar-demo/internal/models"
	"live-avatar-demo/internal/transport"
)

// Fake records every call in order and lets tests inject failures and emit
// events.
type Fake struct {
	transport.Handlers

	mu    sync.Mutex
	calls []string
	sent  [][]byte

	JoinErr        error
	PublishErr     error
	SendErr        error
	SubscribeErr   error
	CreateTrackErr error
	TrackStopErr   error
	TrackCloseErr  error

	VideoStats   map[uint32]models.VideoStats
	AudioStats   map[uint32]models.AudioStats
	QualityStats map[uint32]models.NetworkQuality

	// BeforeCreateTrack, when set, runs inside CreateMicrophoneTrack.
	BeforeCreateTrack func()
	// BeforeSend, when set, runs inside SendStreamMessage.
	BeforeSend func()

	tracks  []*Track
	played  []string
	joined  bool
	trackID int
}

// New creates a Fake
func New() *Fake {
	return &Fake{}
}

func (f *Fake) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

// Calls returns the recorded calls
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsWithPrefix returns the recorded calls starting with prefix
func (f *Fake) CallsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Index returns the position of the first call equal to call, or -1
func (f *Fake) Index(call string) int {
	for i, c := range f.Calls() {
		if c == call {
			return i
		}
	}
	return -1
}

// Sent returns the payloads passed to SendStreamMessage
func (f *Fake) Sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

// Tracks returns the microphone tracks created so far
func (f *Fake) Tracks() []*Track {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Track, len(f.tracks))
	copy(out, f.tracks)
	return out
}

// Played returns "kind:uid:surface" for every remote track played
func (f *Fake) Played() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.played))
	copy(out, f.played)
	return out
}

// Joined reports whether the fake is currently in a channel
func (f *Fake) Joined() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.joined
}

// Emit delivers ev to the registered handlers synchronously
func (f *Fake) Emit(ev transport.Event) {
	f.Handlers.Emit(ev)
}

func (f *Fake) Join(ctx context.Context, appID, channel, token string, uid uint32) error {
	f.record("join %s %s %s %d", appID, channel, token, uid)
	if f.JoinErr != nil {
		return f.JoinErr
	}
	f.mu.Lock()
	f.joined = true
	f.mu.Unlock()
	return nil
}

func (f *Fake) Leave(ctx context.Context) error {
	f.record("leave")
	f.mu.Lock()
	f.joined = false
	f.mu.Unlock()
	return nil
}

func (f *Fake) Publish(ctx context.Context, tracks ...transport.LocalTrack) error {
	f.record("publish %s", trackIDs(tracks))
	return f.PublishErr
}

func (f *Fake) Unpublish(ctx context.Context, tracks ...transport.LocalTrack) error {
	f.record("unpublish %s", trackIDs(tracks))
	return nil
}

func (f *Fake) Subscribe(ctx context.Context, uid uint32, media transport.MediaKind) (transport.RemoteTrack, error) {
	f.record("subscribe %d %s", uid, media)
	if f.SubscribeErr != nil {
		return nil, f.SubscribeErr
	}
	return &remoteTrack{fake: f, uid: uid, media: media}, nil
}

func (f *Fake) Unsubscribe(ctx context.Context, uid uint32, media transport.MediaKind) error {
	f.record("unsubscribe %d %s", uid, media)
	return nil
}

func (f *Fake) SendStreamMessage(ctx context.Context, payload []byte) error {
	f.record("send")
	if f.BeforeSend != nil {
		f.BeforeSend()
	}
	if f.SendErr != nil {
		return f.SendErr
	}
	f.mu.Lock()
	f.sent = append(f.sent, append([]byte(nil), payload...))
	f.mu.Unlock()
	return nil
}

func (f *Fake) On(name transport.EventName, h transport.Handler) transport.Subscription {
	f.record("on %s", name)
	sub := f.Handlers.On(name, h)
	return transport.SubscriptionFunc(func() {
		f.record("off %s", name)
		sub.Unsubscribe()
	})
}

func (f *Fake) CreateMicrophoneTrack(ctx context.Context, cfg transport.MicrophoneConfig) (transport.LocalTrack, error) {
	f.record("create-mic %s aec=%t ans=%t agc=%t", cfg.Encoder, cfg.AEC, cfg.ANS, cfg.AGC)
	if f.BeforeCreateTrack != nil {
		f.BeforeCreateTrack()
	}
	if f.CreateTrackErr != nil {
		return nil, f.CreateTrackErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trackID++
	t := &Track{fake: f, id: fmt.Sprintf("mic-%d", f.trackID)}
	f.tracks = append(f.tracks, t)
	return t, nil
}

func (f *Fake) RemoteVideoStats() map[uint32]models.VideoStats {
	return f.VideoStats
}

func (f *Fake) RemoteAudioStats() map[uint32]models.AudioStats {
	return f.AudioStats
}

func (f *Fake) RemoteNetworkQuality() map[uint32]models.NetworkQuality {
	return f.QualityStats
}

// Track is a fake local microphone track
type Track struct {
	fake    *Fake
	id      string
	mu      sync.Mutex
	stopped bool
	closed  bool
}

func (t *Track) ID() string                { return t.id }
func (t *Track) Kind() transport.MediaKind { return transport.MediaAudio }

func (t *Track) Stop(ctx context.Context) error {
	t.fake.record("track-stop %s", t.id)
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	t.fake.mu.Lock()
	defer t.fake.mu.Unlock()
	return t.fake.TrackStopErr
}

func (t *Track) Close(ctx context.Context) error {
	t.fake.record("track-close %s", t.id)
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.fake.mu.Lock()
	defer t.fake.mu.Unlock()
	return t.fake.TrackCloseErr
}

// Released reports whether the track was both stopped and closed
func (t *Track) Released() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped && t.closed
}

type remoteTrack struct {
	fake  *Fake
	uid   uint32
	media transport.MediaKind
}

func (r *remoteTrack) Play(ctx context.Context, surface string) error {
	r.fake.record("play %d %s %s", r.uid, r.media, surface)
	r.fake.mu.Lock()
	r.fake.played = append(r.fake.played, fmt.Sprintf("%s:%d:%s", r.media, r.uid, surface))
	r.fake.mu.Unlock()
	return nil
}

func trackIDs(tracks []transport.LocalTrack) string {
	if len(tracks) == 0 {
		return "all"
	}
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID()
	}
	return strings.Join(ids, ",")
}

var _ transport.Client = (*Fake)(nil)
