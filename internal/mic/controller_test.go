package mic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"live-avatar-demo/internal/transport/transporttest"
)

func connected() bool { return true }

func TestToggle_AcquireAndPublish(t *testing.T) {
	fake := transporttest.New()
	c := NewController(fake, WithGate(connected))

	var changes []bool
	c.OnChange(func(enabled bool) { changes = append(changes, enabled) })

	enabled, err := c.Toggle(context.Background())
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.True(t, c.Enabled())
	assert.Equal(t, []string{
		"create-mic speech_low_quality aec=true ans=true agc=true",
		"publish mic-1",
	}, fake.Calls())
	assert.Equal(t, []bool{true}, changes)
}

func TestToggle_TwiceReleasesSymmetrically(t *testing.T) {
	fake := transporttest.New()
	c := NewController(fake, WithGate(connected))
	ctx := context.Background()

	_, err := c.Toggle(ctx)
	require.NoError(t, err)
	enabled, err := c.Toggle(ctx)
	require.NoError(t, err)

	assert.False(t, enabled)
	assert.False(t, c.Enabled())
	assert.Equal(t, []string{
		"create-mic speech_low_quality aec=true ans=true agc=true",
		"publish mic-1",
		"track-stop mic-1",
		"track-close mic-1",
		"unpublish mic-1",
	}, fake.Calls())

	tracks := fake.Tracks()
	require.Len(t, tracks, 1)
	assert.True(t, tracks[0].Released())
}

func TestToggle_NotConnected(t *testing.T) {
	fake := transporttest.New()
	c := NewController(fake, WithGate(func() bool { return false }))

	enabled, err := c.Toggle(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, enabled)
	assert.Empty(t, fake.Calls())
}

func TestToggle_InFlightIsRejected(t *testing.T) {
	fake := transporttest.New()
	c := NewController(fake, WithGate(connected))

	var nestedErr error
	fake.BeforeCreateTrack = func() {
		_, nestedErr = c.Toggle(context.Background())
	}

	enabled, err := c.Toggle(context.Background())
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.ErrorIs(t, nestedErr, ErrToggleInFlight)
	assert.Len(t, fake.CallsWithPrefix("create-mic"), 1)
}

func TestToggle_PublishFailureReleasesTrack(t *testing.T) {
	fake := transporttest.New()
	fake.PublishErr = errors.New("not joined")
	c := NewController(fake, WithGate(connected))

	enabled, err := c.Toggle(context.Background())
	require.Error(t, err)
	assert.False(t, enabled)
	assert.False(t, c.Enabled())

	tracks := fake.Tracks()
	require.Len(t, tracks, 1)
	assert.True(t, tracks[0].Released())
}

func TestToggle_PublishFailureLogsReleaseErrors(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	fake := transporttest.New()
	fake.PublishErr = errors.New("not joined")
	fake.TrackStopErr = errors.New("device busy")
	fake.TrackCloseErr = errors.New("device gone")
	c := NewController(fake, WithGate(connected), WithLogger(zap.New(core).Sugar()))

	_, err := c.Toggle(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"track-stop mic-1", "track-close mic-1"}, fake.CallsWithPrefix("track-"))

	entries := logs.FilterMessage("microphone track release failed").All()
	require.Len(t, entries, 1)
	logged, ok := entries[0].ContextMap()["err"].(string)
	require.True(t, ok)
	assert.Contains(t, logged, "device busy")
	assert.Contains(t, logged, "device gone")
}

func TestToggle_CreateFailure(t *testing.T) {
	fake := transporttest.New()
	fake.CreateTrackErr = errors.New("permission denied")
	c := NewController(fake)

	_, err := c.Toggle(context.Background())
	assert.ErrorIs(t, err, fake.CreateTrackErr)
	assert.Empty(t, fake.CallsWithPrefix("publish"))
}

func TestRelease(t *testing.T) {
	fake := transporttest.New()
	c := NewController(fake)
	ctx := context.Background()

	require.NoError(t, c.Release(ctx))
	assert.Empty(t, fake.Calls())

	_, err := c.Toggle(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Release(ctx))

	assert.False(t, c.Enabled())
	assert.Equal(t, []string{"unpublish mic-1"}, fake.CallsWithPrefix("unpublish"))
}
