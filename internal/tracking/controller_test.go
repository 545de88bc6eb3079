// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package tracking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fieldops/livetrack/internal/models"
)

func testController(d PushDialer, f Fetcher, mutate func(*ControllerConfig)) *Controller {
	cfg := ControllerConfig{
		PollInterval:      20 * time.Millisecond,
		PushGracePeriod:   50 * time.Millisecond,
		PushRetryInterval: 30 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewController(d, f, cfg)
}

func waitPhase(t *testing.T, c *Controller, want Phase) {
	t.Helper()
	waitFor(t, "phase "+want.String(), func() bool { return c.State().Phase == want })
}

func TestControllerPushActive(t *testing.T) {
	d := &fakeDialer{}
	conn := newFakeConn()
	conn.sendHeartbeat()
	d.push(conn)
	f := &fakeFetcher{}

	c := testController(d, f, nil)
	rec := newRecorder()
	if err := c.Start(context.Background(), session, rec.onSample); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()
	waitPhase(t, c, PhasePushActive)

	conn.sendSample(at(1))
	conn.sendSample(at(3))
	conn.sendSample(at(2)) // stale
	conn.sendSample(at(3)) // duplicate
	conn.sendSample(at(4))
	rec.wait(t, at(4).CapturedAt)

	got := rec.all()
	if len(got) != 3 {
		t.Fatalf("deliveries = %v, want t1 t3 t4", capturedTimes(got))
	}
	assertStrictlyIncreasing(t, got)
	if f.callCount() != 0 {
		t.Errorf("poller fetched %d times while push was healthy", f.callCount())
	}
	if st := c.State(); st.ConsecutiveFailures != 0 || !st.LastDelivered.Equal(at(4).CapturedAt) {
		t.Errorf("state = %+v", st)
	}
}

func TestControllerFallsBackWithinOnePollInterval(t *testing.T) {
	const grace = 50 * time.Millisecond
	const poll = 500 * time.Millisecond

	tests := []struct {
		name  string
		setup func(d *fakeDialer)
	}{
		{"dial fails", func(d *fakeDialer) {}},
		// Connects but stays silent past the grace period.
		{"silent channel", func(d *fakeDialer) { d.push(newFakeConn()) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDialer{}
			tt.setup(d)
			f := &fakeFetcher{}
			f.set(at(7))

			c := testController(d, f, func(cfg *ControllerConfig) {
				cfg.PushGracePeriod = grace
				cfg.PollInterval = poll
				cfg.PushRetryInterval = time.Hour
			})
			rec := newRecorder()
			start := time.Now()
			if err := c.Start(context.Background(), session, rec.onSample); err != nil {
				t.Fatalf("Start: %v", err)
			}
			defer c.Stop()

			rec.wait(t, at(7).CapturedAt)
			if elapsed := time.Since(start); elapsed > grace+poll {
				t.Errorf("first polled sample after %v, want within %v", elapsed, grace+poll)
			}
			st := c.State()
			if st.Phase != PhasePollingActive || st.ConsecutiveFailures != 1 {
				t.Errorf("state = %+v", st)
			}
		})
	}
}

func TestControllerReturnsToPush(t *testing.T) {
	d := &fakeDialer{}
	f := &fakeFetcher{}
	f.set(at(1))

	c := testController(d, f, nil)
	rec := newRecorder()
	if err := c.Start(context.Background(), session, rec.onSample); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	rec.wait(t, at(1).CapturedAt)
	waitPhase(t, c, PhasePollingActive)

	// The new connection's first frame is flushed on the swap.
	retry := newFakeConn()
	retry.sendSample(at(2))
	d.push(retry)

	rec.wait(t, at(2).CapturedAt)
	waitPhase(t, c, PhasePushActive)
	if c.State().ConsecutiveFailures != 0 {
		t.Errorf("failures not reset: %+v", c.State())
	}
	waitFor(t, "poller stopped", func() bool { return !c.poller.Running() })

	// Polling results no longer reach the callback.
	f.set(at(5))
	retry.sendSample(at(3))
	rec.wait(t, at(3).CapturedAt)
	time.Sleep(60 * time.Millisecond)
	for _, s := range rec.all() {
		if s.CapturedAt.Equal(at(5).CapturedAt) {
			t.Fatal("polled sample delivered while push was active")
		}
	}
}

func TestControllerFailsOverWhenPushDrops(t *testing.T) {
	d := &fakeDialer{}
	conn := newFakeConn()
	conn.sendSample(at(10))
	d.push(conn)
	f := &fakeFetcher{}
	f.set(at(8)) // older than what push already delivered

	c := testController(d, f, func(cfg *ControllerConfig) { cfg.PushRetryInterval = time.Hour })
	rec := newRecorder()
	if err := c.Start(context.Background(), session, rec.onSample); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	rec.wait(t, at(10).CapturedAt)
	_ = conn.Close()

	waitPhase(t, c, PhasePollingActive)
	waitFor(t, "poll of the older sample", func() bool { return f.callCount() >= 2 })
	if got := rec.all(); len(got) != 1 {
		t.Fatalf("older polled sample delivered: %v", capturedTimes(got))
	}

	f.set(at(11))
	rec.wait(t, at(11).CapturedAt)
	assertStrictlyIncreasing(t, rec.all())
	if st := c.State(); st.ConsecutiveFailures != 1 {
		t.Errorf("ConsecutiveFailures = %d, want 1", st.ConsecutiveFailures)
	}
}

func TestControllerMonotonicAcrossRepeatedSwitches(t *testing.T) {
	d := &fakeDialer{}
	f := &fakeFetcher{}
	var mu sync.Mutex
	polled := 0
	f.next = func(int) (models.Sample, error) {
		mu.Lock()
		defer mu.Unlock()
		return at(polled), nil
	}
	setPolled := func(sec int) {
		mu.Lock()
		polled = sec
		mu.Unlock()
	}

	c := testController(d, f, func(cfg *ControllerConfig) { cfg.PollInterval = 5 * time.Millisecond })
	rec := newRecorder()
	setPolled(1)
	if err := c.Start(context.Background(), session, rec.onSample); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()
	rec.wait(t, at(1).CapturedAt)

	for round := 0; round < 3; round++ {
		base := 10 * (round + 1)

		conn := newFakeConn()
		conn.sendSample(at(base + 5))
		d.push(conn)
		rec.wait(t, at(base+5).CapturedAt)
		waitPhase(t, c, PhasePushActive)

		// Polling would now report something older than push delivered.
		setPolled(base + 2)
		_ = conn.Close()
		waitPhase(t, c, PhasePollingActive)

		setPolled(base + 7)
		rec.wait(t, at(base+7).CapturedAt)
	}

	got := rec.all()
	assertStrictlyIncreasing(t, got)
	rec.mu.Lock()
	overlap := rec.overlap
	rec.mu.Unlock()
	if overlap {
		t.Error("onSample was called concurrently")
	}
}

func TestControllerStop(t *testing.T) {
	d := &fakeDialer{}
	f := &fakeFetcher{next: func(call int) (models.Sample, error) { return at(call), nil }}

	var transitions []Phase
	var tmu sync.Mutex
	c := testController(d, f, func(cfg *ControllerConfig) {
		cfg.PollInterval = 2 * time.Millisecond
		cfg.PushGracePeriod = 10 * time.Millisecond
		cfg.OnStateChange = func(_, to TransportState) {
			tmu.Lock()
			transitions = append(transitions, to.Phase)
			tmu.Unlock()
		}
	})
	c.Stop() // before Start

	rec := newRecorder()
	if err := c.Start(context.Background(), session, rec.onSample); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "polling deliveries", func() bool { return len(rec.all()) >= 3 })

	c.Stop()
	c.Stop()
	n := len(rec.all())
	time.Sleep(30 * time.Millisecond)
	if got := len(rec.all()); got != n {
		t.Errorf("deliveries after Stop: %d -> %d", n, got)
	}
	if c.State().Phase != PhaseStopped {
		t.Errorf("phase = %s", c.State().Phase)
	}

	tmu.Lock()
	defer tmu.Unlock()
	want := []Phase{PhaseStopped, PhaseStarting, PhasePollingActive, PhaseStopped}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", transitions, want)
		}
	}
}

func TestControllerStopsWhenContextEnds(t *testing.T) {
	d := &fakeDialer{}
	f := &fakeFetcher{next: func(call int) (models.Sample, error) { return at(call), nil }}
	c := testController(d, f, func(cfg *ControllerConfig) {
		cfg.PollInterval = 2 * time.Millisecond
		cfg.PushGracePeriod = 10 * time.Millisecond
	})

	ctx, cancel := context.WithCancel(context.Background())
	rec := newRecorder()
	if err := c.Start(ctx, session, rec.onSample); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitPhase(t, c, PhasePollingActive)
	waitFor(t, "polling deliveries", func() bool { return len(rec.all()) >= 1 })

	cancel()
	waitPhase(t, c, PhaseStopped)
	n := len(rec.all())
	time.Sleep(30 * time.Millisecond)
	if got := len(rec.all()); got != n {
		t.Errorf("deliveries after ctx ended: %d -> %d", n, got)
	}

	c.Stop()
	if c.State().Phase != PhaseStopped {
		t.Errorf("phase after Stop = %s", c.State().Phase)
	}

	// The controller is reusable.
	if err := c.Start(context.Background(), session, rec.onSample); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer c.Stop()
	waitPhase(t, c, PhasePollingActive)
}

func TestControllerStopDuringPushAttempt(t *testing.T) {
	d := &fakeDialer{}
	d.push(newFakeConn()) // never speaks
	c := testController(d, &fakeFetcher{}, func(cfg *ControllerConfig) { cfg.PushGracePeriod = time.Hour })
	if err := c.Start(context.Background(), session, newRecorder().onSample); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "dial", func() bool { return d.dialCount() == 1 })

	stopped := make(chan struct{})
	go func() {
		c.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on a pending push retry")
	}
}

func TestControllerRestartSwitchesSession(t *testing.T) {
	d := &fakeDialer{}
	f := &fakeFetcher{}
	f.set(at(1))
	c := testController(d, f, nil)

	first := newRecorder()
	if err := c.Start(context.Background(), session, first.onSample); err != nil {
		t.Fatalf("Start: %v", err)
	}
	first.wait(t, at(1).CapturedAt)

	second := newRecorder()
	if err := c.Start(context.Background(), session, second.onSample); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer c.Stop()

	// Delivery state resets, so the same sample reaches the new callback.
	second.wait(t, at(1).CapturedAt)
	n := len(first.all())
	f.set(at(2))
	second.wait(t, at(2).CapturedAt)
	if len(first.all()) != n {
		t.Error("previous callback still receiving samples")
	}
}

func TestControllerStartValidation(t *testing.T) {
	c := testController(&fakeDialer{}, &fakeFetcher{}, nil)
	if err := c.Start(context.Background(), "", newRecorder().onSample); err == nil {
		t.Error("empty session accepted")
	}
	if err := c.Start(context.Background(), session, nil); err == nil {
		t.Error("nil callback accepted")
	}
	if c.State().Phase != PhaseIdle {
		t.Errorf("phase = %s, want idle", c.State().Phase)
	}
}

func TestPhaseString(t *testing.T) {
	tests := map[Phase]string{
		PhaseIdle:          "idle",
		PhaseStarting:      "starting",
		PhasePushActive:    "push",
		PhasePollingActive: "polling",
		PhaseStopped:       "stopped",
		Phase(42):          "phase(42)",
	}
	for p, want := range tests {
		if got := p.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(p), got, want)
		}
	}
}
