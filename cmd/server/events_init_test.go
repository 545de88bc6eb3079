// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package main

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/fieldops/livetrack/internal/config"
	"github.com/fieldops/livetrack/internal/events"
	"github.com/fieldops/livetrack/internal/logging"
	"github.com/fieldops/livetrack/internal/models"
	"github.com/fieldops/livetrack/internal/supervisor"
)

func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

type applied struct {
	mu      sync.Mutex
	samples []models.Sample
}

func (a *applied) ApplyRemote(_ context.Context, s models.Sample) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.samples = append(a.samples, s)
	return nil
}

func (a *applied) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.samples)
}

func TestInitEventsDisabled(t *testing.T) {
	ec, err := initEvents(config.EventsConfig{Enabled: false})
	if err != nil || ec != nil {
		t.Fatalf("initEvents = %v, %v; want nil, nil", ec, err)
	}
}

func TestInitEventsUnknownDriver(t *testing.T) {
	if _, err := initEvents(config.EventsConfig{Enabled: true, Driver: "kafka", Topic: "t"}); err == nil {
		t.Fatal("unknown driver accepted")
	}
}

// Two components on one memory transport stand in for two instances: a
// sample published by one reaches the other's relay but not its own.
func TestEventComponentsRelayBetweenInstances(t *testing.T) {
	ec, err := initEvents(config.EventsConfig{
		Enabled:    true,
		Driver:     "memory",
		Topic:      "livetrack.samples",
		InstanceID: "instance-a",
	})
	if err != nil {
		t.Fatalf("initEvents: %v", err)
	}
	defer ec.close()
	if ec.instanceID != "instance-a" || ec.ready(context.Background()) != nil {
		t.Fatalf("components = %+v", ec)
	}

	tree, _ := supervisor.NewSupervisorTree(nil, supervisor.TreeConfig{ShutdownTimeout: time.Second})
	local := &applied{}
	ec.addServices(tree, local, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	// The relay subscribes asynchronously; keep publishing a foreign sample
	// until it arrives.
	foreign := events.NewPublisher(ec.transport.Publisher, ec.topic, "instance-b", nil)
	deadline := time.Now().Add(3 * time.Second)
	base := time.Date(2026, 9, 14, 8, 0, 0, 0, time.UTC)
	for i := 0; local.count() == 0; i++ {
		if time.Now().After(deadline) {
			t.Fatal("foreign sample never relayed")
		}
		s := models.Sample{SessionID: "van-7", Latitude: 48.1, Longitude: 11.5, CapturedAt: base.Add(time.Duration(i) * time.Second)}
		if err := foreign.Publish(ctx, s); err != nil {
			t.Fatalf("publish: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	before := local.count()
	own := models.Sample{SessionID: "van-7", Latitude: 48.2, Longitude: 11.6, CapturedAt: base.Add(time.Hour)}
	if err := ec.publisher.Publish(ctx, own); err != nil {
		t.Fatalf("publish own: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	local.mu.Lock()
	for _, s := range local.samples[before:] {
		if s.CapturedAt.Equal(own.CapturedAt) {
			t.Error("relay applied this instance's own sample")
		}
	}
	local.mu.Unlock()

	cancel()
	<-errCh
}
