// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fieldops/livetrack/internal/broadcaster"
	"github.com/fieldops/livetrack/internal/logging"
)

// Source hands out subscriptions. *broadcaster.Broadcaster satisfies it.
type Source interface {
	Subscribe(sessionID string) (*broadcaster.Subscription, error)
}

// Config controls push connections.
type Config struct {
	// HeartbeatInterval between heartbeat frames. Zero disables them.
	HeartbeatInterval time.Duration
	// AllowedOrigins for browser connections. "*" allows any. Requests
	// without an Origin header come from non-browser clients and are
	// always accepted.
	AllowedOrigins []string
	Now            func() time.Time
}

// Streamer upgrades HTTP requests into per-session push connections.
type Streamer struct {
	source   Source
	cfg      Config
	upgrader websocket.Upgrader
}

// NewStreamer creates a Streamer.
func NewStreamer(source Source, cfg Config) *Streamer {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Streamer{source: source, cfg: cfg}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      s.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return s
}

// Serve subscribes to sessionID and upgrades the connection. An error is
// returned only when the subscription could not be created, before anything
// was written to w; the caller owns that response. Upgrade failures are
// answered by the upgrader itself.
func (s *Streamer) Serve(w http.ResponseWriter, r *http.Request, sessionID string) error {
	sub, err := s.source.Subscribe(sessionID)
	if err != nil {
		return err
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Push upgrade failed")
		return nil
	}

	logging.Ctx(r.Context()).Debug().
		Str("subscription_id", sub.ID()).
		Str("remote_addr", r.RemoteAddr).
		Msg("Push connection opened")

	newClient(conn, sub, s.cfg.HeartbeatInterval, s.cfg.Now).Start()
	return nil
}

func (s *Streamer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", origin).Msg("Push connection rejected from unauthorized origin")
	return false
}
