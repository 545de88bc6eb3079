// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/fieldops/livetrack/internal/api"
	"github.com/fieldops/livetrack/internal/broadcaster"
	"github.com/fieldops/livetrack/internal/config"
	"github.com/fieldops/livetrack/internal/logging"
	"github.com/fieldops/livetrack/internal/models"
	"github.com/fieldops/livetrack/internal/supervisor"
	"github.com/fieldops/livetrack/internal/supervisor/services"
	"github.com/fieldops/livetrack/internal/websocket"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file")
	pflag.Parse()

	cfg, err := config.LoadServer(*configPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	logging.Info().
		Str("version", version).
		Str("addr", cfg.Server.Addr()).
		Bool("store", cfg.Store.Enabled).
		Bool("events", cfg.Events.Enabled).
		Msg("Starting livetrack")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tree, err := supervisor.NewSupervisorTree(nil, supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	st, err := initStore(cfg.Store)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}

	ev, err := initEvents(cfg.Events)
	if err != nil {
		closeStore(st)
		logging.Fatal().Err(err).Msg("Failed to initialize event stream")
	}

	var sinks []broadcaster.Sink
	if st != nil {
		sinks = append(sinks, st)
	}
	if ev != nil {
		sinks = append(sinks, ev.publisher)
	}
	b := broadcaster.New(broadcaster.Config{
		IdleTimeout:      cfg.Tracking.IdleTimeout,
		ReapInterval:     cfg.Tracking.ReapInterval,
		SubscriberBuffer: cfg.Tracking.SubscriberBuffer,
		RatePerSecond:    cfg.Tracking.IngestRatePerSecond,
		Burst:            cfg.Tracking.IngestBurst,
	}, sinks...)

	if st != nil {
		restoreSessions(ctx, st, b)
		addStoreServices(tree, st, cfg.Store)
	}
	if ev != nil {
		ev.addServices(tree, b, cfg.Server.ShutdownTimeout)
	}
	tree.AddMessagingService(services.NewRunnerService("broadcaster-reaper", b))

	streamer := websocket.NewStreamer(b, websocket.Config{
		HeartbeatInterval: cfg.Tracking.HeartbeatInterval,
		AllowedOrigins:    cfg.Security.CORSOrigins,
	})
	handler := api.NewHandler(b, streamer)
	handler.SetVersion(version)
	if st != nil {
		handler.AddReadinessCheck("store", func(ctx context.Context) error {
			_, err := st.Load(ctx, "readiness-check")
			if errors.Is(err, models.ErrSessionNotFound) {
				return nil
			}
			return err
		})
	}
	if ev != nil {
		handler.AddReadinessCheck("events", ev.ready)
	}

	mw := api.NewChiMiddleware(api.ChiMiddlewareConfigFromSecurity(cfg.Security))
	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("HTTP rate limiting is disabled (RATE_LIMIT_DISABLED=true)")
	}
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(handler, mw),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	logging.Info().Str("addr", server.Addr).Msg("Supervisor tree starting")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree stopped with error")
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		logging.Warn().Int("services", len(report)).Msg("Services did not stop within timeout")
	}
	if ev != nil {
		ev.close()
	}
	closeStore(st)
	logging.Info().Msg("livetrack stopped")
}
