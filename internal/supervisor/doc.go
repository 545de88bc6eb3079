// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

/*
Package supervisor runs livetrack's long-lived services under a suture v4
tree.

	livetrack
	├── data-layer        store GC
	├── messaging-layer   embedded NATS, event relay, broadcaster reaper
	└── api-layer         HTTP server

Each layer is its own supervisor, so a relay that keeps failing to
subscribe backs off without touching the HTTP server. Supervisor events
are logged through sutureslog on top of the zerolog slog handler.

	tree, _ := supervisor.NewSupervisorTree(nil, supervisor.DefaultTreeConfig())
	tree.AddMessagingService(services.NewRunnerService("broadcaster-reaper", b))
	tree.AddAPIService(services.NewHTTPServerService(srv, 10*time.Second))
	err := tree.Serve(ctx)

A service that returns an error is restarted. Returning ctx.Err() after
cancellation is a clean stop. UnstoppedServiceReport lists services that
overran ShutdownTimeout.
*/
package supervisor
