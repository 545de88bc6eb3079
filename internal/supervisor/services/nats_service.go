// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package services

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EmbeddedNATS is the lifecycle of *events.EmbeddedServer.
type EmbeddedNATS interface {
	IsRunning() bool
	Shutdown(ctx context.Context) error
}

// ErrNATSServerStopped means the embedded server stopped outside of a
// supervisor shutdown.
var ErrNATSServerStopped = errors.New("embedded NATS server stopped")

// NATSServerService keeps an already started embedded NATS server under
// supervision. It checks liveness every CheckInterval and shuts the server
// down when the supervisor stops.
//
// The server cannot be restarted in place: a dead server makes Serve fail
// every time, which eventually trips the supervisor's failure backoff and
// shows up in the log.
type NATSServerService struct {
	server          EmbeddedNATS
	shutdownTimeout time.Duration
	CheckInterval   time.Duration
}

// NewNATSServerService wraps server.
func NewNATSServerService(server EmbeddedNATS, shutdownTimeout time.Duration) *NATSServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &NATSServerService{
		server:          server,
		shutdownTimeout: shutdownTimeout,
		CheckInterval:   5 * time.Second,
	}
}

// Serve implements suture.Service.
func (s *NATSServerService) Serve(ctx context.Context) error {
	if !s.server.IsRunning() {
		return ErrNATSServerStopped
	}
	ticker := time.NewTicker(s.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
			defer cancel()
			if err := s.server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("embedded NATS shutdown: %w", err)
			}
			return ctx.Err()
		case <-ticker.C:
			if !s.server.IsRunning() {
				return ErrNATSServerStopped
			}
		}
	}
}

func (s *NATSServerService) String() string {
	return "nats-server"
}
