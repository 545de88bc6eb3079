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

// Phase is the controller's lifecycle state.
type Phase int

// Controller phases.
const (
	PhaseIdle Phase = iota
	PhaseStarting
	PhasePushActive
	PhasePollingActive
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStarting:
		return "starting"
	case PhasePushActive:
		return "push"
	case PhasePollingActive:
		return "polling"
	case PhaseStopped:
		return "stopped"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// TransportState is a snapshot of the controller.
type TransportState struct {
	Phase     Phase
	SessionID string
	// ConsecutiveFailures counts push failures since the last successful
	// push establishment.
	ConsecutiveFailures int
	// LastDelivered is the CapturedAt of the newest delivered sample.
	LastDelivered time.Time
	// Since is when Phase was entered.
	Since time.Time
}

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	PollInterval time.Duration
	// PushGracePeriod bounds the wait for the first push frame.
	PushGracePeriod time.Duration
	// PushRetryInterval is the delay between push attempts while polling.
	PushRetryInterval time.Duration
	// OnStateChange is called after every phase change, from the goroutine
	// that made it.
	OnStateChange func(from, to TransportState)
	Now           func() time.Time
}

// Controller delivers a session's samples over push, falling back to
// polling while push is unavailable and switching back once a push
// attempt succeeds.
//
// onSample is called only with samples strictly newer than the last one
// delivered, only for the active transport, never concurrently and never
// after Stop returns. It must not call Start or Stop.
type Controller struct {
	dialer PushDialer
	poller *Poller
	cfg    ControllerConfig

	// lifecycle; held across Start and Stop
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// delivery
	deliverMu sync.Mutex
	epoch     uint64
	stopped   bool
	hasLast   bool
	last      time.Time
	onSample  func(models.Sample)

	stateMu sync.Mutex
	state   TransportState
}

// NewController creates an idle controller.
func NewController(dialer PushDialer, fetcher Fetcher, cfg ControllerConfig) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PushGracePeriod <= 0 {
		cfg.PushGracePeriod = 15 * time.Second
	}
	if cfg.PushRetryInterval <= 0 {
		cfg.PushRetryInterval = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Controller{
		dialer: dialer,
		poller: NewPoller(fetcher, PollerConfig{Interval: cfg.PollInterval}),
		cfg:    cfg,
		state:  TransportState{Phase: PhaseIdle, Since: cfg.Now()},
	}
}

// Start begins tracking sessionID, stopping any previous run first. It
// returns once the run goroutine is launched; the push attempt proceeds in
// the background. When ctx ends the controller moves to PhaseStopped as if
// Stop had been called.
func (c *Controller) Start(ctx context.Context, sessionID string, onSample func(models.Sample)) error {
	if sessionID == "" {
		return errors.New("controller: session id is required")
	}
	if onSample == nil {
		return errors.New("controller: onSample is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked(false)

	c.deliverMu.Lock()
	c.epoch++
	c.stopped = false
	c.hasLast = false
	c.last = time.Time{}
	c.onSample = onSample
	c.deliverMu.Unlock()

	c.setState(func(s *TransportState) {
		s.Phase = PhaseStarting
		s.SessionID = sessionID
		s.ConsecutiveFailures = 0
		s.LastDelivered = time.Time{}
	})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	go c.run(ctx, runCtx, sessionID, done)
	return nil
}

// Stop ends tracking. It is idempotent and safe from any phase. When it
// returns no goroutine of the controller is running and onSample will not
// be called again.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked(true)
}

func (c *Controller) stopLocked(final bool) {
	c.deliverMu.Lock()
	c.stopped = true
	c.epoch++
	c.onSample = nil
	c.deliverMu.Unlock()

	if c.cancel != nil {
		c.cancel()
		<-c.done
		c.cancel = nil
		c.done = nil
	}
	c.poller.Stop()

	if final {
		c.setState(func(s *TransportState) { s.Phase = PhaseStopped })
	}
}

// halt is stopLocked for the run goroutine itself, which cannot wait on
// its own done channel.
func (c *Controller) halt() {
	c.deliverMu.Lock()
	c.stopped = true
	c.epoch++
	c.onSample = nil
	c.deliverMu.Unlock()

	c.poller.Stop()
	c.setState(func(s *TransportState) { s.Phase = PhaseStopped })
}

// State returns a snapshot.
func (c *Controller) State() TransportState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Controller) setState(mutate func(*TransportState)) {
	c.stateMu.Lock()
	from := c.state
	mutate(&c.state)
	if c.state.Phase != from.Phase {
		c.state.Since = c.cfg.Now()
	}
	to := c.state
	c.stateMu.Unlock()

	if from.Phase == to.Phase {
		return
	}
	if to.Phase == PhasePushActive || to.Phase == PhasePollingActive {
		metrics.TransportSwitches.WithLabelValues(to.Phase.String()).Inc()
	}
	logging.Debug().
		Str("session_id", to.SessionID).
		Str("from", from.Phase.String()).
		Str("to", to.Phase.String()).
		Int("consecutive_failures", to.ConsecutiveFailures).
		Msg("Transport state change")
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(from, to)
	}
}

// deliverLocked forwards s if epoch is current and s is newer than the last
// delivered sample. deliverMu must be held.
func (c *Controller) deliverLocked(epoch uint64, s models.Sample) {
	if c.stopped || epoch != c.epoch || c.onSample == nil {
		return
	}
	if c.hasLast && !s.CapturedAt.After(c.last) {
		return
	}
	c.last = s.CapturedAt
	c.hasLast = true
	c.onSample(s)

	c.stateMu.Lock()
	c.state.LastDelivered = s.CapturedAt
	c.stateMu.Unlock()
}

func (c *Controller) deliver(epoch uint64, s models.Sample) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	c.deliverLocked(epoch, s)
}

// nextEpoch invalidates deliveries from the previous transport and, when
// pending is a location, flushes it under the same lock.
func (c *Controller) nextEpoch(pending *PushMessage) (uint64, bool) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	if c.stopped {
		return 0, false
	}
	c.epoch++
	if pending != nil && pending.Sample != nil {
		c.deliverLocked(c.epoch, *pending.Sample)
	}
	return c.epoch, true
}

// run owns the transports for one Start. When parent ends without Stop the
// controller stops itself.
func (c *Controller) run(parent, ctx context.Context, sessionID string, done chan struct{}) {
	defer close(done)
	defer func() {
		if parent.Err() != nil {
			c.halt()
		}
	}()
	log := logging.With().Str("session_id", sessionID).Logger()

	polling := false
	conn, first, err := c.establish(ctx, sessionID)
	for {
		if ctx.Err() != nil {
			if conn != nil {
				_ = conn.Close()
			}
			return
		}

		if err == nil {
			epoch, ok := c.nextEpoch(&first)
			if !ok {
				_ = conn.Close()
				return
			}
			if polling {
				c.poller.Stop()
				polling = false
			}
			c.setState(func(s *TransportState) {
				s.Phase = PhasePushActive
				s.ConsecutiveFailures = 0
			})
			log.Info().Msg("Push channel active")

			err = c.consume(ctx, conn, epoch)
			_ = conn.Close()
			conn = nil
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("Push channel lost, falling back to polling")
		} else {
			log.Debug().Err(err).Msg("Push unavailable")
		}

		if !polling {
			epoch, ok := c.nextEpoch(nil)
			if !ok {
				return
			}
			if startErr := c.poller.Start(ctx, sessionID, func(s models.Sample) { c.deliver(epoch, s) }); startErr != nil {
				log.Error().Err(startErr).Msg("Failed to start poller")
				return
			}
			polling = true
		}
		c.setState(func(s *TransportState) {
			s.Phase = PhasePollingActive
			s.ConsecutiveFailures++
		})

		timer := time.NewTimer(c.cfg.PushRetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		conn, first, err = c.establish(ctx, sessionID)
	}
}

// establish dials and waits up to the grace period for the first frame.
func (c *Controller) establish(ctx context.Context, sessionID string) (PushConn, PushMessage, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.PushGracePeriod)
	defer cancel()

	conn, err := c.dialer.Dial(dialCtx, sessionID)
	if err != nil {
		return nil, PushMessage{}, err
	}

	unblock := context.AfterFunc(dialCtx, func() { _ = conn.Close() })
	msg, err := conn.Read()
	if !unblock() || err != nil {
		_ = conn.Close()
		if err == nil {
			err = context.DeadlineExceeded
		}
		return nil, PushMessage{}, fmt.Errorf("%w: no push frame within %s: %w",
			models.ErrTransportUnavailable, c.cfg.PushGracePeriod, err)
	}
	return conn, msg, nil
}

// consume reads the push channel until it fails or ctx ends.
func (c *Controller) consume(ctx context.Context, conn PushConn, epoch uint64) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	for {
		msg, err := conn.Read()
		if err != nil {
			return err
		}
		if msg.Sample != nil {
			c.deliver(epoch, *msg.Sample)
		}
	}
}
