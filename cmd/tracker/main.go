// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

// Command tracker follows one session the way a map view would: it runs a
// transport controller against a livetrack server, feeds the samples into
// a motion track and logs the interpolated frame on every render tick.
//
//	LIVETRACK_SERVER_URL=http://localhost:3857 tracker --session driver-42
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/fieldops/livetrack/internal/config"
	"github.com/fieldops/livetrack/internal/logging"
	"github.com/fieldops/livetrack/internal/models"
	"github.com/fieldops/livetrack/internal/motion"
	"github.com/fieldops/livetrack/internal/tracking"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "", "path to a YAML config file")
		sessionID  = pflag.StringP("session", "s", "", "session id to follow (required)")
		serverURL  = pflag.String("server-url", "", "livetrack server URL, overrides LIVETRACK_SERVER_URL")
		frameEvery = pflag.Duration("frame-interval", time.Second, "how often to log the interpolated frame")
	)
	pflag.Parse()

	if *serverURL != "" {
		_ = os.Setenv("LIVETRACK_SERVER_URL", *serverURL)
	}
	cfg, err := config.LoadClient(*configPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	if *sessionID == "" {
		logging.Fatal().Msg("--session is required")
	}

	easing, err := motion.EasingByName(cfg.Client.Easing)
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid animation easing")
	}
	client, err := tracking.NewLocationClient(cfg.Client)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create location client")
	}

	track := motion.NewTrack(motion.TrackConfig{Easing: easing, MaxSegment: cfg.Client.MaxSegment})
	controller := tracking.NewController(
		// Read deadline: the grace period comfortably exceeds the server
		// heartbeat interval.
		tracking.NewPushClient(client, cfg.Client.PushGracePeriod),
		client,
		tracking.ControllerConfig{
			PollInterval:      cfg.Client.PollInterval,
			PushGracePeriod:   cfg.Client.PushGracePeriod,
			PushRetryInterval: cfg.Client.PushRetryInterval,
			OnStateChange: func(from, to tracking.TransportState) {
				logging.Info().
					Str("from", from.Phase.String()).
					Str("to", to.Phase.String()).
					Int("consecutive_failures", to.ConsecutiveFailures).
					Msg("Transport changed")
			},
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = controller.Start(ctx, *sessionID, func(s models.Sample) {
		if track.OnSample(s) {
			logging.Debug().Time("captured_at", s.CapturedAt).Msg("Sample received")
		}
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to start tracking")
	}
	defer controller.Stop()

	logging.Info().Str("session_id", *sessionID).Str("server", cfg.Client.ServerURL).Msg("Tracking")
	render(ctx, track, controller, *frameEvery)
}

func render(ctx context.Context, track *motion.Track, controller *tracking.Controller, every time.Duration) {
	if every <= 0 {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, ok := track.Frame()
			if !ok {
				continue
			}
			st := controller.State()
			logging.Info().
				Float64("lat", frame.Position.Lat).
				Float64("lon", frame.Position.Lon).
				Float64("bearing", frame.Bearing).
				Str("transport", st.Phase.String()).
				Time("last_sample", st.LastDelivered).
				Msg("Frame")
		}
	}
}
