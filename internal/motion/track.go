// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package motion

import (
	"sync"
	"time"

	"github.com/fieldops/livetrack/internal/models"
)

// KeyframePair holds the two most recent distinct samples of a session.
// It is a value: Advance returns a new pair and never mutates the receiver.
type KeyframePair struct {
	Prev models.Sample
	Next models.Sample
	set  bool
}

// Empty reports whether no sample has been seen yet.
func (p KeyframePair) Empty() bool {
	return !p.set
}

// Advance returns the pair shifted forward by s. A sample that is not
// strictly newer than Next leaves the pair unchanged and reports false.
// The first sample fills both ends.
func (p KeyframePair) Advance(s models.Sample) (KeyframePair, bool) {
	if !p.set {
		return KeyframePair{Prev: s, Next: s, set: true}, true
	}
	if !s.NewerThan(p.Next) {
		return p, false
	}
	return KeyframePair{Prev: p.Next, Next: s, set: true}, true
}

// Interval is the device-time gap between Prev and Next.
func (p KeyframePair) Interval() time.Duration {
	return p.Next.CapturedAt.Sub(p.Prev.CapturedAt)
}

// TrackConfig tunes a Track.
type TrackConfig struct {
	// Easing applied to every segment. Nil is linear.
	Easing Easing

	// MaxSegment caps the animation length so a long gap between samples
	// does not crawl. Zero means no cap.
	MaxSegment time.Duration

	// Now is the render clock. Nil is time.Now.
	Now func() time.Time
}

// Track feeds samples through a KeyframePair and plays the current segment.
//
// Each accepted sample starts a new segment at the frame currently on screen,
// so playback never jumps when a sample arrives mid-animation. Safe for
// concurrent use by one producer and any number of renderers.
type Track struct {
	cfg TrackConfig

	mu       sync.Mutex
	pair     KeyframePair
	heading  float64
	animator Animator
	started  time.Time
}

// NewTrack returns an empty track.
func NewTrack(cfg TrackConfig) *Track {
	if cfg.Easing == nil {
		cfg.Easing = Linear
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Track{cfg: cfg}
}

// OnSample advances the track. It reports whether the sample was used.
func (t *Track) OnSample(s models.Sample) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	pair, ok := t.pair.Advance(s)
	if !ok {
		return false
	}
	now := t.cfg.Now()

	target := Keyframe{Position: PointOf(s), Bearing: t.resolveBearing(pair)}
	t.heading = target.Bearing

	if t.pair.Empty() {
		t.pair = pair
		t.animator = BuildAnimator(target, target, 0, t.cfg.Easing)
		t.started = now
		return true
	}

	current := t.animator(now.Sub(t.started))
	from := Keyframe{Position: current.Position, Bearing: current.Bearing}

	duration := pair.Interval()
	if t.cfg.MaxSegment > 0 && duration > t.cfg.MaxSegment {
		duration = t.cfg.MaxSegment
	}

	t.pair = pair
	t.animator = BuildAnimator(from, target, duration, t.cfg.Easing)
	t.started = now
	return true
}

// resolveBearing prefers the device heading, then the direction of travel,
// then the last known heading. Must be called with mu held.
func (t *Track) resolveBearing(pair KeyframePair) float64 {
	if pair.Next.Bearing != nil {
		return NormalizeBearing(*pair.Next.Bearing)
	}
	from, to := PointOf(pair.Prev), PointOf(pair.Next)
	if from != to {
		return InitialBearing(from, to)
	}
	return t.heading
}

// Frame samples the animation at the render clock. ok is false until the
// first sample arrives.
func (t *Track) Frame() (Frame, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.animator == nil {
		return Frame{}, false
	}
	return t.animator(t.cfg.Now().Sub(t.started)), true
}

// Pair returns the current keyframe pair.
func (t *Track) Pair() KeyframePair {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pair
}
