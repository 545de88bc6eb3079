// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package motion

import "time"

// Animator samples one segment at a time offset from its start.
type Animator func(elapsed time.Duration) Frame

// BuildAnimator returns the animation from prev to next over duration.
//
// A non-positive duration snaps to next. Identical keyframes produce a
// constant animator. A nil easing is linear.
func BuildAnimator(prev, next Keyframe, duration time.Duration, easing Easing) Animator {
	final := Frame{Position: next.Position, Bearing: NormalizeBearing(next.Bearing)}
	if duration <= 0 || prev == next {
		return func(time.Duration) Frame { return final }
	}
	if easing == nil {
		easing = Linear
	}

	return func(elapsed time.Duration) Frame {
		if elapsed >= duration {
			return final
		}
		progress := easing(clamp01(float64(elapsed) / float64(duration)))
		return Frame{
			Position: InterpolatePosition(prev.Position, next.Position, progress),
			Bearing:  InterpolateBearing(prev.Bearing, next.Bearing, progress),
		}
	}
}
