// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package motion

import (
	"testing"
	"time"

	"github.com/fieldops/livetrack/internal/models"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func sampleAt(offset time.Duration, lat, lon float64) models.Sample {
	return models.Sample{SessionID: "job-1", Latitude: lat, Longitude: lon, CapturedAt: t0.Add(offset)}
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestKeyframePairAdvance(t *testing.T) {
	var p KeyframePair
	if !p.Empty() {
		t.Fatal("zero pair should be empty")
	}

	s1 := sampleAt(0, 1, 1)
	p1, ok := p.Advance(s1)
	if !ok || p1.Prev.CapturedAt != s1.CapturedAt || p1.Next.CapturedAt != s1.CapturedAt {
		t.Fatalf("first advance = %+v ok=%v", p1, ok)
	}
	if !p.Empty() {
		t.Error("Advance must not mutate the receiver")
	}

	s2 := sampleAt(2*time.Second, 2, 2)
	p2, ok := p1.Advance(s2)
	if !ok || p2.Prev.Latitude != 1 || p2.Next.Latitude != 2 {
		t.Fatalf("second advance = %+v", p2)
	}
	if p2.Interval() != 2*time.Second {
		t.Errorf("Interval = %v", p2.Interval())
	}

	for _, stale := range []models.Sample{sampleAt(time.Second, 9, 9), sampleAt(2*time.Second, 9, 9)} {
		p3, ok := p2.Advance(stale)
		if ok || p3 != p2 {
			t.Errorf("stale sample at %v should leave the pair unchanged", stale.CapturedAt)
		}
	}
}

func TestTrackPlaysSegments(t *testing.T) {
	clock := &fakeClock{now: t0}
	tr := NewTrack(TrackConfig{Now: clock.Now})

	if _, ok := tr.Frame(); ok {
		t.Fatal("empty track should not produce frames")
	}

	tr.OnSample(sampleAt(0, 0, 0))
	f, ok := tr.Frame()
	if !ok || f.Position != (Point{0, 0}) {
		t.Fatalf("first frame = %+v ok=%v", f, ok)
	}

	tr.OnSample(sampleAt(4*time.Second, 0, 4))
	clock.now = clock.now.Add(2 * time.Second)
	f, _ = tr.Frame()
	if !near(f.Position.Lon, 2) {
		t.Errorf("halfway lon = %v, want 2", f.Position.Lon)
	}
	if !near(f.Bearing, 45) {
		t.Errorf("halfway bearing = %v, want 45 (turning from north to east)", f.Bearing)
	}

	clock.now = clock.now.Add(10 * time.Second)
	f, _ = tr.Frame()
	if f.Position != (Point{0, 4}) || !near(f.Bearing, 90) {
		t.Errorf("final frame = %+v, want eastbound at lon 4", f)
	}
}

func TestTrackStartsNewSegmentFromScreenPosition(t *testing.T) {
	clock := &fakeClock{now: t0}
	tr := NewTrack(TrackConfig{Now: clock.Now})

	tr.OnSample(sampleAt(0, 0, 0))
	tr.OnSample(sampleAt(10*time.Second, 0, 10))
	clock.now = clock.now.Add(5 * time.Second) // on screen: lon 5

	tr.OnSample(sampleAt(20*time.Second, 0, 20))
	f, _ := tr.Frame()
	if !near(f.Position.Lon, 5) {
		t.Errorf("new segment should start at the rendered position, got lon %v", f.Position.Lon)
	}
}

func TestTrackIgnoresStaleAndCapsSegment(t *testing.T) {
	clock := &fakeClock{now: t0}
	tr := NewTrack(TrackConfig{Now: clock.Now, MaxSegment: time.Second})

	tr.OnSample(sampleAt(0, 0, 0))
	tr.OnSample(sampleAt(time.Minute, 1, 0))
	if tr.OnSample(sampleAt(30*time.Second, 5, 5)) {
		t.Error("older sample should be ignored")
	}

	clock.now = clock.now.Add(time.Second)
	f, _ := tr.Frame()
	if f.Position != (Point{1, 0}) {
		t.Errorf("segment should be capped at MaxSegment, got %+v", f)
	}
	if tr.Pair().Next.Latitude != 1 {
		t.Error("stale sample must not replace Next")
	}
}

func TestTrackPrefersDeviceBearing(t *testing.T) {
	clock := &fakeClock{now: t0}
	tr := NewTrack(TrackConfig{Now: clock.Now})

	s := sampleAt(0, 0, 0)
	s.Bearing = models.Float64(-45)
	tr.OnSample(s)
	f, _ := tr.Frame()
	if f.Bearing != 315 {
		t.Errorf("bearing = %v, want 315", f.Bearing)
	}

	// Same position, no bearing: keep the last heading.
	tr.OnSample(sampleAt(time.Second, 0, 0))
	clock.now = clock.now.Add(time.Second)
	f, _ = tr.Frame()
	if f.Bearing != 315 {
		t.Errorf("bearing after stationary sample = %v, want 315", f.Bearing)
	}
}
