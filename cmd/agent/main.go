// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

// Command agent simulates a field agent: it drives a straight route
// between two points and reports a location every interval.
//
//	agent --server-url http://localhost:3857 --session driver-42 \
//	    --from 52.520,13.405 --to 52.516,13.377 --speed 12
package main

import (
	"context"
	"errors"
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
		sessionID  = pflag.StringP("session", "s", "", "session id to report for (required)")
		serverURL  = pflag.String("server-url", "", "livetrack server URL, overrides LIVETRACK_SERVER_URL")
		from       = pflag.Float64Slice("from", []float64{52.5200, 13.4050}, "route start as lat,lon")
		to         = pflag.Float64Slice("to", []float64{52.5163, 13.3777}, "route end as lat,lon")
		speed      = pflag.Float64("speed", 10, "travel speed in meters per second")
		interval   = pflag.Duration("interval", 2*time.Second, "time between reports")
		loop       = pflag.Bool("loop", false, "drive the route back and forth until interrupted")
	)
	pflag.Parse()

	if *serverURL != "" {
		_ = os.Setenv("LIVETRACK_SERVER_URL", *serverURL)
	}
	cfg, err := config.LoadClient(*configPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Timestamp: true})

	if *sessionID == "" {
		logging.Fatal().Msg("--session is required")
	}
	if len(*from) != 2 || len(*to) != 2 {
		logging.Fatal().Msg("--from and --to take exactly lat,lon")
	}
	if *speed <= 0 || *interval <= 0 {
		logging.Fatal().Msg("--speed and --interval must be positive")
	}

	client, err := tracking.NewLocationClient(cfg.Client)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create location client")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := route{
		from:  motion.Point{Lat: (*from)[0], Lon: (*from)[1]},
		to:    motion.Point{Lat: (*to)[0], Lon: (*to)[1]},
		speed: *speed,
	}
	logging.Info().
		Str("session_id", *sessionID).
		Float64("length_m", r.length()).
		Dur("duration", r.duration()).
		Msg("Driving route")

	drive(ctx, client, *sessionID, r, *interval, *loop)
}

// route is a constant-speed leg between two points.
type route struct {
	from, to motion.Point
	speed    float64
}

func (r route) length() float64 { return motion.DistanceMeters(r.from, r.to) }

func (r route) duration() time.Duration {
	return time.Duration(r.length() / r.speed * float64(time.Second))
}

// at is the sample for elapsed time into the leg. Past the end it stays at
// the destination with zero speed.
func (r route) at(elapsed time.Duration) models.Sample {
	total := r.duration()
	progress := 1.0
	speed := 0.0
	if total > 0 && elapsed < total {
		progress = float64(elapsed) / float64(total)
		speed = r.speed
	}
	p := motion.InterpolatePosition(r.from, r.to, progress)
	return models.Sample{
		Latitude:  p.Lat,
		Longitude: p.Lon,
		Bearing:   models.Float64(motion.InitialBearing(r.from, r.to)),
		Speed:     models.Float64(speed),
	}
}

func (r route) reversed() route {
	return route{from: r.to, to: r.from, speed: r.speed}
}

func drive(ctx context.Context, client *tracking.LocationClient, sessionID string, r route, interval time.Duration, loop bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	for {
		elapsed := time.Since(start)
		s := r.at(elapsed)
		s.SessionID = sessionID
		s.CapturedAt = time.Now().UTC()

		reportCtx, cancel := context.WithTimeout(ctx, interval)
		err := client.Report(reportCtx, s)
		cancel()
		switch {
		case err == nil:
			logging.Info().Float64("lat", s.Latitude).Float64("lon", s.Longitude).Msg("Reported")
		case errors.Is(err, models.ErrRateLimited), errors.Is(err, models.ErrStaleSample):
			logging.Warn().Err(err).Msg("Report rejected")
		case ctx.Err() != nil:
			return
		default:
			logging.Error().Err(err).Str("breaker", client.BreakerState()).Msg("Report failed")
		}

		if elapsed >= r.duration() {
			if !loop {
				logging.Info().Msg("Route complete")
				return
			}
			r = r.reversed()
			start = time.Now()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
