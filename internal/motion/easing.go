// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package motion

import (
	"fmt"
	"strings"
)

// Easing maps linear progress in [0, 1] to eased progress in [0, 1].
// Every Easing must satisfy f(0) == 0 and f(1) == 1.
type Easing func(t float64) float64

// Easing names accepted by EasingByName.
const (
	EasingLinear        = "linear"
	EasingEaseInOutQuad = "ease-in-out-quad"
	EasingEaseOutCubic  = "ease-out-cubic"
)

// Linear is the identity easing.
func Linear(t float64) float64 {
	return t
}

// EaseInOutQuad accelerates through the first half and decelerates through
// the second.
func EaseInOutQuad(t float64) float64 {
	if t < 0.5 {
		return 2 * t * t
	}
	u := -2*t + 2
	return 1 - u*u/2
}

// EaseOutCubic starts fast and settles into the target.
func EaseOutCubic(t float64) float64 {
	u := 1 - t
	return 1 - u*u*u
}

// EasingByName resolves a configured easing name. The empty name is linear.
func EasingByName(name string) (Easing, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", EasingLinear:
		return Linear, nil
	case EasingEaseInOutQuad:
		return EaseInOutQuad, nil
	case EasingEaseOutCubic:
		return EaseOutCubic, nil
	default:
		return nil, fmt.Errorf("unknown easing %q (want %s, %s or %s)",
			name, EasingLinear, EasingEaseInOutQuad, EasingEaseOutCubic)
	}
}
