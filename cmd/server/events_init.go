// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package main

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fieldops/livetrack/internal/breaker"
	"github.com/fieldops/livetrack/internal/config"
	"github.com/fieldops/livetrack/internal/events"
	"github.com/fieldops/livetrack/internal/logging"
	"github.com/fieldops/livetrack/internal/supervisor"
	"github.com/fieldops/livetrack/internal/supervisor/services"
)

// eventComponents is the multi-instance fan-out: an optional embedded NATS
// server, the watermill transport, the publishing sink and the relay.
type eventComponents struct {
	instanceID string
	topic      string
	embedded   *events.EmbeddedServer
	transport  *events.Transport
	publisher  *events.Publisher
}

// initEvents returns nil when the event stream is disabled.
func initEvents(cfg config.EventsConfig) (*eventComponents, error) {
	if !cfg.Enabled {
		logging.Info().Msg("Event stream disabled (EVENTS_ENABLED=false)")
		return nil, nil
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	ec := &eventComponents{instanceID: cfg.InstanceID, topic: cfg.Topic}
	var url string
	if cfg.Driver != events.DriverMemory && cfg.NATS.Embedded {
		srv, err := events.NewEmbeddedServer(cfg.NATS)
		if err != nil {
			return nil, err
		}
		ec.embedded = srv
		url = srv.ClientURL()
	}

	transport, err := events.NewTransport(cfg, url, events.NewLoggerAdapter())
	if err != nil {
		if ec.embedded != nil {
			_ = ec.embedded.Shutdown(context.Background())
		}
		return nil, err
	}
	ec.transport = transport

	cb := breaker.New("events-publisher", breaker.Settings{
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	})
	ec.publisher = events.NewPublisher(transport.Publisher, cfg.Topic, cfg.InstanceID, cb)

	logging.Info().
		Str("driver", transport.Driver()).
		Str("topic", cfg.Topic).
		Str("instance_id", cfg.InstanceID).
		Bool("embedded_nats", ec.embedded != nil).
		Msg("Event stream initialized")
	return ec, nil
}

// addServices supervises the embedded server and the relay that applies
// other instances' samples to applier.
func (ec *eventComponents) addServices(tree *supervisor.SupervisorTree, applier events.Applier, shutdownTimeout time.Duration) {
	if ec.embedded != nil {
		tree.AddMessagingService(services.NewNATSServerService(ec.embedded, shutdownTimeout))
	}
	relay := events.NewRelay(ec.transport.Subscriber, ec.topic, ec.instanceID, applier)
	tree.AddMessagingService(services.NewRunnerService(relay.String(), services.RunFunc(relay.Run)))
}

func (ec *eventComponents) ready(context.Context) error {
	if ec.embedded != nil && !ec.embedded.IsRunning() {
		return errors.New("embedded NATS server is not running")
	}
	return nil
}

func (ec *eventComponents) close() {
	_ = ec.publisher.Close()
	if err := ec.transport.Close(); err != nil {
		logging.Warn().Err(err).Msg("Error closing event transport")
	}
	if ec.embedded != nil && ec.embedded.IsRunning() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ec.embedded.Shutdown(ctx)
	}
}
