// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package events

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats-server/v2/server"

	"github.com/fieldops/livetrack/internal/config"
	"github.com/fieldops/livetrack/internal/logging"
)

// EmbeddedServer runs a NATS server inside the livetrack process for
// single-node deployments.
type EmbeddedServer struct {
	server    *server.Server
	clientURL string
}

// NewEmbeddedServer starts a NATS server listening on the host and port of
// cfg.URL. A port of -1 picks a random free port.
func NewEmbeddedServer(cfg config.NATSConfig) (*EmbeddedServer, error) {
	host, port, err := listenAddr(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts := &server.Options{
		ServerName: "livetrack-events",
		Host:       host,
		Port:       port,
		JetStream:  cfg.JetStream,
		StoreDir:   cfg.StoreDir,
		NoSigs:     true,
		MaxPayload: 1024 * 1024,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}
	go ns.Start()

	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return nil, errors.New("NATS server not ready within timeout")
	}

	logging.Info().
		Str("url", ns.ClientURL()).
		Bool("jetstream", cfg.JetStream).
		Msg("Embedded NATS server started")

	return &EmbeddedServer{server: ns, clientURL: ns.ClientURL()}, nil
}

func listenAddr(raw string) (string, int, error) {
	if raw == "" {
		return "127.0.0.1", server.DEFAULT_PORT, nil
	}
	// url.Parse rejects the -1 random-port sentinel, so split by hand.
	hostport := raw
	if _, rest, ok := strings.Cut(raw, "://"); ok {
		hostport = rest
	}
	hostport, _, _ = strings.Cut(hostport, "/")
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport, server.DEFAULT_PORT, nil //nolint:nilerr // no port in URL
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid NATS port %q: %w", portStr, err)
	}
	return host, port, nil
}

// ClientURL returns the URL clients should connect to.
func (s *EmbeddedServer) ClientURL() string {
	return s.clientURL
}

// IsRunning reports server health.
func (s *EmbeddedServer) IsRunning() bool {
	return s.server.Running()
}

// Shutdown stops the server and waits for it to exit unless ctx is already
// done.
func (s *EmbeddedServer) Shutdown(ctx context.Context) error {
	s.server.Shutdown()
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		s.server.WaitForShutdown()
		return nil
	}
}
