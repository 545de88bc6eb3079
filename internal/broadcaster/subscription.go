// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package broadcaster

import (
	"github.com/google/uuid"

	"github.com/fieldops/livetrack/internal/metrics"
	"github.com/fieldops/livetrack/internal/models"
)

// Subscription is one observer of a session.
//
// Samples arrive on C in acceptance order. When the consumer falls behind,
// the oldest queued sample is discarded so the newest always gets through.
// C is closed when the subscription ends, whether by Unsubscribe, session
// close or reaping.
type Subscription struct {
	id        string
	sessionID string
	ch        chan models.Sample
	done      chan struct{}

	owner *Broadcaster
	sess  *session
	// closed is guarded by sess.mu.
	closed bool
}

func newSubscription(sessionID string, buffer int, owner *Broadcaster, sess *session) *Subscription {
	return &Subscription{
		id:        uuid.New().String(),
		sessionID: sessionID,
		ch:        make(chan models.Sample, buffer),
		done:      make(chan struct{}),
		owner:     owner,
		sess:      sess,
	}
}

// ID uniquely identifies the subscription.
func (s *Subscription) ID() string { return s.id }

// SessionID is the observed session.
func (s *Subscription) SessionID() string { return s.sessionID }

// C delivers samples.
func (s *Subscription) C() <-chan models.Sample { return s.ch }

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close is shorthand for Unsubscribe on the owning broadcaster.
func (s *Subscription) Close() {
	s.owner.Unsubscribe(s)
}

// offer enqueues without blocking, dropping the oldest queued sample when
// the buffer is full. Must be called with the session lock held, which makes
// this the only sender.
func (s *Subscription) offer(sample models.Sample) {
	if s.closed {
		return
	}
	select {
	case s.ch <- sample:
		return
	default:
	}
	select {
	case <-s.ch:
		metrics.SubscriberDropped.Inc()
	default:
	}
	select {
	case s.ch <- sample:
	default:
	}
}
