// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package tracking

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/fieldops/livetrack/internal/logging"
	"github.com/fieldops/livetrack/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

var t0 = time.Date(2026, 9, 14, 7, 45, 0, 0, time.UTC)

const session = "driver-42"

func at(sec int) models.Sample {
	return models.Sample{
		SessionID:  session,
		Latitude:   51.5 + float64(sec)/1000,
		Longitude:  -0.12,
		CapturedAt: t0.Add(time.Duration(sec) * time.Second),
	}
}

var errBackend = errors.New("backend unavailable")

// fakeFetcher serves a mutable latest sample.
type fakeFetcher struct {
	mu     sync.Mutex
	sample *models.Sample
	err    error
	calls  int
	// failFirst errors out the first n calls.
	failFirst int
	// next, when set, overrides sample and err.
	next func(call int) (models.Sample, error)
}

func (f *fakeFetcher) Latest(_ context.Context, _ string) (models.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.next != nil {
		return f.next(f.calls)
	}
	if f.calls <= f.failFirst {
		return models.Sample{}, errBackend
	}
	if f.err != nil {
		return models.Sample{}, f.err
	}
	if f.sample == nil {
		return models.Sample{}, models.ErrSessionNotFound
	}
	return *f.sample, nil
}

func (f *fakeFetcher) set(s models.Sample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sample = &s
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeConn is a push channel fed by the test.
type fakeConn struct {
	frames chan PushMessage
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan PushMessage, 16), closed: make(chan struct{})}
}

func (c *fakeConn) Read() (PushMessage, error) {
	select {
	case <-c.closed:
		return PushMessage{}, errors.New("use of closed connection")
	default:
	}
	select {
	case m := <-c.frames:
		return m, nil
	case <-c.closed:
		return PushMessage{}, errors.New("use of closed connection")
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) sendSample(s models.Sample) {
	c.frames <- PushMessage{Type: models.MessageTypeLocation, Sample: &s}
}

func (c *fakeConn) sendHeartbeat() {
	c.frames <- PushMessage{Type: models.MessageTypeHeartbeat}
}

// fakeDialer hands out connections from a queue; an empty queue fails.
type fakeDialer struct {
	mu    sync.Mutex
	queue []*fakeConn
	dials int
}

func (d *fakeDialer) push(c *fakeConn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, c)
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (PushConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.queue) == 0 {
		return nil, models.ErrTransportUnavailable
	}
	c := d.queue[0]
	d.queue = d.queue[1:]
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// recorder collects delivered samples.
type recorder struct {
	mu      sync.Mutex
	samples []models.Sample
	active  int
	overlap bool
	ch      chan models.Sample
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan models.Sample, 256)}
}

func (r *recorder) onSample(s models.Sample) {
	r.mu.Lock()
	r.active++
	if r.active > 1 {
		r.overlap = true
	}
	r.samples = append(r.samples, s)
	r.mu.Unlock()

	select {
	case r.ch <- s:
	default:
	}

	r.mu.Lock()
	r.active--
	r.mu.Unlock()
}

func (r *recorder) all() []models.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Sample(nil), r.samples...)
}

func (r *recorder) wait(t *testing.T, want time.Time) {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case s := <-r.ch:
			if s.CapturedAt.Equal(want) {
				return
			}
		case <-timeout:
			t.Fatalf("sample %v never delivered; got %v", want, capturedTimes(r.all()))
		}
	}
}

func capturedTimes(samples []models.Sample) []time.Time {
	out := make([]time.Time, len(samples))
	for i, s := range samples {
		out[i] = s.CapturedAt
	}
	return out
}

func assertStrictlyIncreasing(t *testing.T, samples []models.Sample) {
	t.Helper()
	for i := 1; i < len(samples); i++ {
		if !samples[i].CapturedAt.After(samples[i-1].CapturedAt) {
			t.Fatalf("delivery %d (%v) not after %v", i, samples[i].CapturedAt, samples[i-1].CapturedAt)
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
