// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/fieldops/livetrack/internal/models"
)

func TestPollerFetchesImmediately(t *testing.T) {
	f := &fakeFetcher{}
	f.set(at(1))
	p := NewPoller(f, PollerConfig{Interval: time.Hour})
	rec := newRecorder()

	start := time.Now()
	if err := p.Start(context.Background(), session, rec.onSample); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	rec.wait(t, at(1).CapturedAt)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("first delivery took %v with an hourly interval", elapsed)
	}
}

func TestPollerKeepsScheduleThroughFailures(t *testing.T) {
	f := &fakeFetcher{failFirst: 3}
	f.set(at(5))
	p := NewPoller(f, PollerConfig{Interval: 10 * time.Millisecond})
	rec := newRecorder()

	if err := p.Start(context.Background(), session, rec.onSample); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	rec.wait(t, at(5).CapturedAt)
	if calls := f.callCount(); calls < 4 {
		t.Errorf("calls = %d, want at least 4", calls)
	}
}

func TestPollerDeliversOnlyNewerSamples(t *testing.T) {
	f := &fakeFetcher{next: func(call int) (models.Sample, error) {
		switch {
		case call == 1:
			return models.Sample{}, models.ErrSessionNotFound
		case call <= 3:
			return at(10), nil
		case call == 4:
			return at(8), nil
		default:
			return at(12), nil
		}
	}}
	p := NewPoller(f, PollerConfig{Interval: 5 * time.Millisecond})
	rec := newRecorder()

	if err := p.Start(context.Background(), session, rec.onSample); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rec.wait(t, at(12).CapturedAt)
	p.Stop()

	got := rec.all()
	if len(got) != 2 || !got[0].CapturedAt.Equal(at(10).CapturedAt) {
		t.Fatalf("deliveries = %v, want [t10 t12]", capturedTimes(got))
	}
}

func TestPollerStop(t *testing.T) {
	f := &fakeFetcher{next: func(call int) (models.Sample, error) {
		return at(call), nil
	}}
	p := NewPoller(f, PollerConfig{Interval: 2 * time.Millisecond})
	rec := newRecorder()

	if err := p.Start(context.Background(), session, rec.onSample); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "a few polls", func() bool { return len(rec.all()) >= 3 })

	p.Stop()
	p.Stop()
	if p.Running() || p.SessionID() != "" {
		t.Error("poller still reports running after Stop")
	}

	n := len(rec.all())
	time.Sleep(20 * time.Millisecond)
	if got := len(rec.all()); got != n {
		t.Errorf("deliveries after Stop: %d -> %d", n, got)
	}
}

func TestPollerRestartReplacesSession(t *testing.T) {
	f := &fakeFetcher{}
	f.set(at(1))
	p := NewPoller(f, PollerConfig{Interval: time.Hour})

	first := newRecorder()
	second := newRecorder()
	if err := p.Start(context.Background(), session, first.onSample); err != nil {
		t.Fatalf("Start: %v", err)
	}
	first.wait(t, at(1).CapturedAt)

	if err := p.Start(context.Background(), "driver-43", second.onSample); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer p.Stop()
	if p.SessionID() != "driver-43" {
		t.Errorf("SessionID = %q", p.SessionID())
	}
	if len(first.all()) != 1 {
		t.Errorf("first callback got %d samples", len(first.all()))
	}
}

func TestPollerStartValidation(t *testing.T) {
	p := NewPoller(&fakeFetcher{}, PollerConfig{})
	if err := p.Start(context.Background(), "", func(models.Sample) {}); err == nil {
		t.Error("empty session id accepted")
	}
	if err := p.Start(context.Background(), session, nil); err == nil {
		t.Error("nil callback accepted")
	}
}
