// Package telemetry folds transport statistics into display snapshots.
package telemetry

import (
	"slices"
	"sync"
	"time"

	"live-avatar-demo/internal/models"
	"live-avatar-demo/internal/transport"
)

// Aggregator keeps the most recent network-quality snapshot
type Aggregator struct {
	mu     sync.RWMutex
	latest models.NetworkQualitySnapshot
	now    func() time.Time
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithClock overrides the time source used to stamp samples
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// NewAggregator creates an Aggregator
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Sample builds a snapshot from the local quality score of a tick and the
// current remote statistics of src, and replaces the latest snapshot with it.
// Only the first remote participant of each map is used; a missing
// participant yields an empty record.
func (a *Aggregator) Sample(local models.NetworkQuality, src transport.StatsSource) models.NetworkQualitySnapshot {
	snap := models.NetworkQualitySnapshot{
		Local:     local,
		SampledAt: a.now(),
	}

	if src != nil {
		video := src.RemoteVideoStats()
		audio := src.RemoteAudioStats()
		remote := src.RemoteNetworkQuality()

		if uid, ok := firstUID(video); ok {
			snap.Video = video[uid]
			snap.RemoteUID = uid
		}
		if uid, ok := firstUID(audio); ok {
			snap.Audio = audio[uid]
			if snap.RemoteUID == 0 {
				snap.RemoteUID = uid
			}
		}
		if uid, ok := firstUID(remote); ok {
			snap.Remote = remote[uid]
		}
	}

	a.mu.Lock()
	a.latest = snap
	a.mu.Unlock()
	return snap
}

// Latest returns the most recent snapshot, or the zero snapshot
func (a *Aggregator) Latest() models.NetworkQualitySnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest
}

// Reset clears the latest snapshot
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.latest = models.NetworkQualitySnapshot{}
	a.mu.Unlock()
}

// firstUID returns the lowest key of m
func firstUID[V any](m map[uint32]V) (uint32, bool) {
	if len(m) == 0 {
		return 0, false
	}
	uids := make([]uint32, 0, len(m))
	for uid := range m {
		uids = append(uids, uid)
	}
	return slices.Min(uids), true
}
