// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/fieldops/livetrack/internal/breaker"
	"github.com/fieldops/livetrack/internal/metrics"
	"github.com/fieldops/livetrack/internal/models"
)

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("publisher is closed")

// Publisher publishes accepted samples to the event stream. It is a
// broadcaster.Sink.
type Publisher struct {
	pub        message.Publisher
	topic      string
	instanceID string
	breaker    *breaker.Breaker

	mu     sync.RWMutex
	closed bool
}

// NewPublisher wraps a watermill publisher. cb may be nil.
func NewPublisher(pub message.Publisher, topic, instanceID string, cb *breaker.Breaker) *Publisher {
	return &Publisher{pub: pub, topic: topic, instanceID: instanceID, breaker: cb}
}

// Publish sends one sample.
func (p *Publisher) Publish(ctx context.Context, s models.Sample) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := EncodeSample(s, p.instanceID)
	if err != nil {
		return err
	}
	msg.SetContext(ctx)

	publish := func() error { return p.pub.Publish(p.topic, msg) }
	if p.breaker != nil {
		err = p.breaker.Execute(publish)
	} else {
		err = publish()
	}
	if err != nil {
		metrics.EventsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("publish sample to %s: %w", p.topic, err)
	}
	metrics.EventsPublished.WithLabelValues("success").Inc()
	return nil
}

// Name implements broadcaster.Sink.
func (p *Publisher) Name() string { return "events" }

// OnSample implements broadcaster.Sink.
func (p *Publisher) OnSample(ctx context.Context, s models.Sample) error {
	return p.Publish(ctx, s)
}

// Close marks the publisher closed. The underlying watermill publisher is
// owned by the Transport and closed there.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
