// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package motion

import (
	"testing"
	"time"
)

func TestEasingEndpoints(t *testing.T) {
	for _, name := range []string{EasingLinear, EasingEaseInOutQuad, EasingEaseOutCubic} {
		f, err := EasingByName(name)
		if err != nil {
			t.Fatalf("EasingByName(%q): %v", name, err)
		}
		if f(0) != 0 || f(1) != 1 {
			t.Errorf("%s: f(0)=%v f(1)=%v", name, f(0), f(1))
		}
		prev := 0.0
		for i := 1; i <= 100; i++ {
			v := f(float64(i) / 100)
			if v < prev-eps {
				t.Fatalf("%s not monotonic at %d", name, i)
			}
			prev = v
		}
	}
}

func TestEasingValues(t *testing.T) {
	tests := []struct {
		name string
		f    Easing
		in   float64
		want float64
	}{
		{"quad first half", EaseInOutQuad, 0.25, 0.125},
		{"quad midpoint", EaseInOutQuad, 0.5, 0.5},
		{"quad second half", EaseInOutQuad, 0.75, 0.875},
		{"cubic", EaseOutCubic, 0.5, 0.875},
		{"linear", Linear, 0.3, 0.3},
	}
	for _, tt := range tests {
		if got := tt.f(tt.in); !near(got, tt.want) {
			t.Errorf("%s(%v) = %v, want %v", tt.name, tt.in, got, tt.want)
		}
	}
}

func TestEasingByNameUnknown(t *testing.T) {
	if _, err := EasingByName("bounce"); err == nil {
		t.Error("expected error for unknown easing")
	}
	if f, err := EasingByName(""); err != nil || f(0.4) != 0.4 {
		t.Error("empty name should be linear")
	}
}

func TestBuildAnimator(t *testing.T) {
	prev := Keyframe{Position: Point{0, 0}, Bearing: 350}
	next := Keyframe{Position: Point{10, 20}, Bearing: 10}
	anim := BuildAnimator(prev, next, time.Second, Linear)

	start := anim(0)
	if start.Position != prev.Position || !near(start.Bearing, 350) {
		t.Errorf("start frame = %+v", start)
	}
	mid := anim(500 * time.Millisecond)
	if !near(mid.Position.Lat, 5) || !near(mid.Position.Lon, 10) || !near(mid.Bearing, 0) {
		t.Errorf("mid frame = %+v", mid)
	}
	for _, elapsed := range []time.Duration{time.Second, 5 * time.Second} {
		if f := anim(elapsed); f.Position != next.Position || f.Bearing != 10 {
			t.Errorf("frame at %v = %+v, want final", elapsed, f)
		}
	}
	if f := anim(-time.Second); f.Position != prev.Position {
		t.Errorf("negative elapsed should clamp to start, got %+v", f)
	}
}

func TestBuildAnimatorEased(t *testing.T) {
	prev := Keyframe{Position: Point{0, 0}}
	next := Keyframe{Position: Point{0, 8}}
	anim := BuildAnimator(prev, next, time.Second, EaseOutCubic)
	if f := anim(500 * time.Millisecond); !near(f.Position.Lon, 7) {
		t.Errorf("eased lon = %v, want 7", f.Position.Lon)
	}
}

func TestBuildAnimatorDegenerate(t *testing.T) {
	a := Keyframe{Position: Point{1, 1}, Bearing: 45}
	b := Keyframe{Position: Point{2, 2}, Bearing: 400}

	snap := BuildAnimator(a, b, 0, nil)
	for _, elapsed := range []time.Duration{0, time.Millisecond, time.Hour} {
		if f := snap(elapsed); f.Position != b.Position || f.Bearing != 40 {
			t.Errorf("zero duration frame = %+v", f)
		}
	}

	negative := BuildAnimator(a, b, -time.Second, Linear)
	if f := negative(0); f.Position != b.Position {
		t.Errorf("negative duration should snap to next, got %+v", f)
	}

	constant := BuildAnimator(a, a, time.Second, EaseInOutQuad)
	for _, elapsed := range []time.Duration{0, 300 * time.Millisecond, 2 * time.Second} {
		if f := constant(elapsed); f.Position != a.Position || f.Bearing != 45 {
			t.Errorf("identical keyframes frame = %+v", f)
		}
	}
}
