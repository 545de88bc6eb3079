// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/fieldops/livetrack/internal/logging"
	"github.com/fieldops/livetrack/internal/metrics"
	"github.com/fieldops/livetrack/internal/models"
)

// Applier accepts samples relayed from other instances.
type Applier interface {
	ApplyRemote(ctx context.Context, s models.Sample) error
}

// Relay feeds samples published by other instances into the local
// broadcaster, so a subscriber connected here sees pings ingested anywhere.
type Relay struct {
	sub        message.Subscriber
	topic      string
	instanceID string
	applier    Applier
}

// NewRelay creates a relay. Messages whose origin equals instanceID are
// acknowledged and skipped.
func NewRelay(sub message.Subscriber, topic, instanceID string, applier Applier) *Relay {
	return &Relay{sub: sub, topic: topic, instanceID: instanceID, applier: applier}
}

// Run consumes until ctx is done or the subscription channel closes.
func (r *Relay) Run(ctx context.Context) error {
	messages, err := r.sub.Subscribe(ctx, r.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", r.topic, err)
	}
	logging.Info().Str("topic", r.topic).Str("instance_id", r.instanceID).Msg("Event relay started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return ctx.Err()
			}
			r.handle(ctx, msg)
		}
	}
}

// handle always acks: relayed delivery is best effort, and neither a stale
// nor a malformed sample becomes valid by redelivery.
func (r *Relay) handle(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	s, origin, err := DecodeSample(msg)
	if err != nil {
		metrics.EventsRelayed.WithLabelValues("malformed").Inc()
		logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping malformed sample event")
		return
	}
	if origin == r.instanceID {
		metrics.EventsRelayed.WithLabelValues("own").Inc()
		return
	}

	switch err := r.applier.ApplyRemote(ctx, s); {
	case err == nil:
		metrics.EventsRelayed.WithLabelValues("applied").Inc()
	case errors.Is(err, models.ErrStaleSample):
		metrics.EventsRelayed.WithLabelValues("stale").Inc()
	default:
		metrics.EventsRelayed.WithLabelValues("rejected").Inc()
		logging.Warn().Err(err).
			Str("session_id", s.SessionID).
			Str("origin", origin).
			Msg("Relayed sample rejected")
	}
}

// String implements fmt.Stringer for supervisor logs.
func (r *Relay) String() string {
	return "event-relay"
}
