// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package broadcaster

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/fieldops/livetrack/internal/logging"
	"github.com/fieldops/livetrack/internal/metrics"
	"github.com/fieldops/livetrack/internal/models"
	"github.com/fieldops/livetrack/internal/validation"
)

const (
	sourceLocal  = "local"
	sourceRemote = "remote"
)

// Sink receives every sample accepted through Ingest, after subscribers
// have been notified. Errors are logged and counted, never returned to the
// agent.
type Sink interface {
	Name() string
	OnSample(ctx context.Context, s models.Sample) error
}

// SessionCloser is implemented by sinks that want to hear about explicit
// session closes.
type SessionCloser interface {
	OnSessionClosed(ctx context.Context, sessionID string) error
}

// Config tunes a Broadcaster.
type Config struct {
	// IdleTimeout is how long a session with no subscribers survives
	// without pings.
	IdleTimeout time.Duration
	// ReapInterval paces RunWithContext.
	ReapInterval time.Duration
	// SubscriberBuffer is the queue depth of each subscription.
	SubscriberBuffer int
	// RatePerSecond limits Ingest per session. Zero disables the limit.
	RatePerSecond float64
	Burst         int
	// Now is the server clock used for idle bookkeeping. Nil is time.Now.
	Now func() time.Time
}

// DefaultConfig returns sensible defaults for tests and embedding.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:      30 * time.Minute,
		ReapInterval:     time.Minute,
		SubscriberBuffer: 16,
	}
}

// Broadcaster owns the per-session state of every tracked session.
//
// Sessions live in a concurrent map keyed by id and each has its own lock,
// so ingest for one session never waits on another.
type Broadcaster struct {
	cfg   Config
	sinks []Sink

	sessions    sync.Map // string -> *session
	numSessions atomic.Int64
	numSubs     atomic.Int64
}

type session struct {
	id string

	mu           sync.Mutex
	latest       models.Sample
	hasLatest    bool
	subs         []*Subscription
	lastActivity time.Time
	limiter      *rate.Limiter
	closed       bool
}

// New creates a Broadcaster. Sinks run in the order given.
func New(cfg Config, sinks ...Sink) *Broadcaster {
	if cfg.SubscriberBuffer < 1 {
		cfg.SubscriberBuffer = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Broadcaster{cfg: cfg, sinks: sinks}
}

// acquire returns the live session for id, creating it if needed, with its
// lock held. A session that was reaped between the map lookup and the lock is
// skipped and a fresh one is created.
func (b *Broadcaster) acquire(id string) *session {
	for {
		v, ok := b.sessions.Load(id)
		if !ok {
			fresh := &session{id: id, lastActivity: b.cfg.Now()}
			if b.cfg.RatePerSecond > 0 {
				fresh.limiter = rate.NewLimiter(rate.Limit(b.cfg.RatePerSecond), b.cfg.Burst)
			}
			var loaded bool
			v, loaded = b.sessions.LoadOrStore(id, fresh)
			if !loaded {
				b.numSessions.Add(1)
				metrics.ActiveSessions.Inc()
			}
		}
		s := v.(*session)
		s.mu.Lock()
		if !s.closed {
			return s
		}
		s.mu.Unlock()
	}
}

// removeLocked drops s from the arena and closes its subscriptions.
// Must be called with s.mu held.
func (b *Broadcaster) removeLocked(s *session) {
	s.closed = true
	for _, sub := range s.subs {
		b.closeSubLocked(sub)
	}
	s.subs = nil
	if b.sessions.CompareAndDelete(s.id, s) {
		b.numSessions.Add(-1)
		metrics.ActiveSessions.Dec()
	}
}

// Ingest accepts a sample from an agent.
//
// It returns an error wrapping models.ErrInvalidSample, models.ErrRateLimited
// or models.ErrStaleSample when the sample is not accepted. Ingest never
// blocks on subscribers. Sinks run even if ctx is cancelled after the sample
// was accepted.
func (b *Broadcaster) Ingest(ctx context.Context, s models.Sample) error {
	if err := b.ingest(ctx, s, sourceLocal); err != nil {
		return err
	}
	b.runSinks(context.WithoutCancel(ctx), s.Normalized())
	return nil
}

// ApplyRemote accepts a sample relayed from another instance. Sinks and rate
// limits are skipped; staleness is still enforced.
func (b *Broadcaster) ApplyRemote(ctx context.Context, s models.Sample) error {
	return b.ingest(ctx, s, sourceRemote)
}

func (b *Broadcaster) ingest(ctx context.Context, s models.Sample, source string) error {
	if verr := validation.ValidateStruct(&s); verr != nil {
		metrics.RecordIngest(source, metrics.ResultInvalid)
		return fmt.Errorf("%w: %w", models.ErrInvalidSample, verr)
	}
	s = s.Normalized()
	now := b.cfg.Now()

	sess := b.acquire(s.SessionID)

	if source == sourceLocal && sess.limiter != nil && !sess.limiter.AllowN(now, 1) {
		sess.mu.Unlock()
		metrics.RecordIngest(source, metrics.ResultRateLimited)
		return fmt.Errorf("session %s: %w", s.SessionID, models.ErrRateLimited)
	}

	if sess.hasLatest && !s.NewerThan(sess.latest) {
		current := sess.latest.CapturedAt
		sess.mu.Unlock()
		metrics.RecordIngest(source, metrics.ResultStale)
		logging.Ctx(ctx).Debug().
			Str("session_id", s.SessionID).
			Str("source", source).
			Time("captured_at", s.CapturedAt).
			Time("current", current).
			Msg("Stale sample rejected")
		return fmt.Errorf("session %s: captured_at %s is not after %s: %w",
			s.SessionID, s.CapturedAt.Format(time.RFC3339Nano), current.Format(time.RFC3339Nano), models.ErrStaleSample)
	}

	sess.latest = s
	sess.hasLatest = true
	sess.lastActivity = now
	for _, sub := range sess.subs {
		sub.offer(s)
	}
	sess.mu.Unlock()

	metrics.RecordIngest(source, metrics.ResultAccepted)
	return nil
}

func (b *Broadcaster) runSinks(ctx context.Context, s models.Sample) {
	for _, sink := range b.sinks {
		if err := sink.OnSample(ctx, s); err != nil {
			metrics.SinkErrors.WithLabelValues(sink.Name()).Inc()
			logging.Ctx(ctx).Warn().Err(err).
				Str("sink", sink.Name()).
				Str("session_id", s.SessionID).
				Msg("Sample sink failed")
		}
	}
}

// Latest returns the most recent accepted sample of a session.
func (b *Broadcaster) Latest(sessionID string) (models.Sample, error) {
	v, ok := b.sessions.Load(sessionID)
	if !ok {
		return models.Sample{}, fmt.Errorf("session %s: %w", sessionID, models.ErrSessionNotFound)
	}
	s := v.(*session)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.hasLatest {
		return models.Sample{}, fmt.Errorf("session %s: %w", sessionID, models.ErrSessionNotFound)
	}
	return s.latest, nil
}

// Subscribe attaches a new subscriber to a session, creating the session if
// needed. The current sample, if any, is queued immediately.
func (b *Broadcaster) Subscribe(sessionID string) (*Subscription, error) {
	if err := validation.ValidateVar(sessionID, "required,max=128,sessionid"); err != nil {
		return nil, fmt.Errorf("%w: session id: %w", models.ErrInvalidSample, err)
	}

	sess := b.acquire(sessionID)
	defer sess.mu.Unlock()

	sub := newSubscription(sessionID, b.cfg.SubscriberBuffer, b, sess)
	sess.subs = append(sess.subs, sub)
	sess.lastActivity = b.cfg.Now()
	if sess.hasLatest {
		sub.offer(sess.latest)
	}

	b.numSubs.Add(1)
	metrics.ActiveSubscribers.Inc()
	return sub, nil
}

// Unsubscribe detaches sub and closes its channel. Calling it more than once,
// or after the session was closed, is a no-op.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	sess := sub.sess
	sess.mu.Lock()
	defer sess.mu.Unlock()

	for i, s := range sess.subs {
		if s == sub {
			sess.subs = append(sess.subs[:i], sess.subs[i+1:]...)
			break
		}
	}
	b.closeSubLocked(sub)
	sess.lastActivity = b.cfg.Now()
}

// closeSubLocked ends a subscription. Must be called with the owning
// session's lock held; the lock is what makes offer and close exclusive.
func (b *Broadcaster) closeSubLocked(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
	close(sub.done)
	b.numSubs.Add(-1)
	metrics.ActiveSubscribers.Dec()
}

// CloseSession ends a session explicitly: every subscription is closed and
// the state is dropped. It reports whether the session existed.
func (b *Broadcaster) CloseSession(ctx context.Context, sessionID string) bool {
	v, ok := b.sessions.Load(sessionID)
	if !ok {
		return false
	}
	s := v.(*session)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	b.removeLocked(s)
	s.mu.Unlock()

	sinkCtx := context.WithoutCancel(ctx)
	for _, sink := range b.sinks {
		if closer, ok := sink.(SessionCloser); ok {
			if err := closer.OnSessionClosed(sinkCtx, sessionID); err != nil {
				metrics.SinkErrors.WithLabelValues(sink.Name()).Inc()
				logging.Ctx(ctx).Warn().Err(err).Str("sink", sink.Name()).
					Str("session_id", sessionID).Msg("Session close sink failed")
			}
		}
	}
	logging.Ctx(ctx).Info().Str("session_id", sessionID).Msg("Session closed")
	return true
}

// Restore seeds last-known samples, e.g. from the store at startup. Sinks
// and subscribers are not notified. Older samples never replace newer ones.
func (b *Broadcaster) Restore(samples []models.Sample) int {
	restored := 0
	for _, s := range samples {
		if validation.ValidateStruct(&s) != nil {
			continue
		}
		s = s.Normalized()
		sess := b.acquire(s.SessionID)
		if !sess.hasLatest || s.NewerThan(sess.latest) {
			sess.latest = s
			sess.hasLatest = true
			restored++
		}
		sess.mu.Unlock()
	}
	return restored
}

// Reap reclaims sessions that have no subscribers and have been idle for
// at least IdleTimeout as of now. It returns the number reclaimed.
func (b *Broadcaster) Reap(now time.Time) int {
	reaped := 0
	b.sessions.Range(func(_, v any) bool {
		s := v.(*session)
		s.mu.Lock()
		if !s.closed && len(s.subs) == 0 && now.Sub(s.lastActivity) >= b.cfg.IdleTimeout {
			b.removeLocked(s)
			reaped++
		}
		s.mu.Unlock()
		return true
	})
	if reaped > 0 {
		metrics.SessionsReaped.Add(float64(reaped))
		logging.Debug().Int("reaped", reaped).Msg("Reaped idle sessions")
	}
	return reaped
}

// RunWithContext reaps on ReapInterval until ctx is done.
func (b *Broadcaster) RunWithContext(ctx context.Context) error {
	interval := b.cfg.ReapInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Int64("sessions", b.numSessions.Load()).Msg("Broadcaster reaper stopped")
			return ctx.Err()
		case <-ticker.C:
			b.Reap(b.cfg.Now())
		}
	}
}

// Stats is a point-in-time count.
type Stats struct {
	Sessions    int
	Subscribers int
}

// Stats returns current session and subscriber counts.
func (b *Broadcaster) Stats() Stats {
	return Stats{
		Sessions:    int(b.numSessions.Load()),
		Subscribers: int(b.numSubs.Load()),
	}
}
