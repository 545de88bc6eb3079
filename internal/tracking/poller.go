// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fieldops/livetrack/internal/logging"
	"github.com/fieldops/livetrack/internal/metrics"
	"github.com/fieldops/livetrack/internal/models"
)

// DefaultPollInterval is used when PollerConfig.Interval is not positive.
const DefaultPollInterval = 5 * time.Second

// PollerConfig configures a Poller.
type PollerConfig struct {
	Interval time.Duration
}

// Poller fetches the latest sample on a fixed schedule. It is the fallback
// transport when push is unavailable.
type Poller struct {
	fetcher Fetcher
	config  PollerConfig

	mu        sync.Mutex
	running   bool
	stopChan  chan struct{}
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	sessionID string
}

// NewPoller creates a stopped poller.
func NewPoller(fetcher Fetcher, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	return &Poller{fetcher: fetcher, config: cfg}
}

// Start polls sessionID once immediately and then every interval. A poller
// that is already running is stopped first. onSample is called from the
// poll goroutine, only with samples strictly newer than the previous one it
// received, and never after Stop returns.
func (p *Poller) Start(ctx context.Context, sessionID string, onSample func(models.Sample)) error {
	if sessionID == "" {
		return errors.New("poller: session id is required")
	}
	if onSample == nil {
		return errors.New("poller: onSample is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()

	loopCtx, cancel := context.WithCancel(ctx)
	p.running = true
	p.stopChan = make(chan struct{})
	p.cancel = cancel
	p.sessionID = sessionID

	logging.Debug().
		Str("session_id", sessionID).
		Dur("interval", p.config.Interval).
		Msg("Starting location poller")

	p.wg.Add(1)
	go p.pollLoop(loopCtx, p.stopChan, sessionID, onSample)
	return nil
}

// Stop cancels the schedule and any in-flight fetch and waits for the loop
// to exit. It is idempotent.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Poller) stopLocked() {
	if !p.running {
		return
	}
	p.running = false
	close(p.stopChan)
	p.cancel()
	p.wg.Wait()
	p.sessionID = ""
}

// SessionID is the polled session, empty when stopped.
func (p *Poller) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) pollLoop(ctx context.Context, stop <-chan struct{}, sessionID string, onSample func(models.Sample)) {
	defer p.wg.Done()

	var last time.Time
	poll := func() {
		s, err := p.fetch(ctx, sessionID)
		if err != nil || s == nil {
			return
		}
		if !last.IsZero() && !s.CapturedAt.After(last) {
			metrics.PollRequests.WithLabelValues("unchanged").Inc()
			return
		}
		select {
		case <-stop:
			return
		default:
		}
		last = s.CapturedAt
		metrics.PollRequests.WithLabelValues("delivered").Inc()
		onSample(*s)
	}

	poll()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			poll()
		}
	}
}

// fetch returns nil, nil when there is nothing to deliver.
func (p *Poller) fetch(ctx context.Context, sessionID string) (*models.Sample, error) {
	s, err := p.fetcher.Latest(ctx, sessionID)
	switch {
	case err == nil:
		if s.SessionID != "" && s.SessionID != sessionID {
			metrics.PollRequests.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("fetched sample for session %s, want %s", s.SessionID, sessionID)
		}
		return &s, nil
	case errors.Is(err, models.ErrSessionNotFound):
		metrics.PollRequests.WithLabelValues("not_found").Inc()
		logging.Debug().Str("session_id", sessionID).Msg("No location yet")
		return nil, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		metrics.PollRequests.WithLabelValues("error").Inc()
		logging.Warn().Err(err).Str("session_id", sessionID).Msg("Location poll failed")
		return nil, err
	}
}
