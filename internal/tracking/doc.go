// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

/*
Package tracking is the viewer side of livetrack: it keeps a tracking view
supplied with an agent's samples.

A Controller prefers the websocket push channel and falls back to polling
the HTTP API when push cannot be established within the grace period or
drops later. While polling it tries push again every retry interval and
switches back on the first frame. Only one transport delivers at a time
and the callback only ever sees samples newer than the last one it got.

	client, _ := tracking.NewLocationClient(cfg.Client)
	c := tracking.NewController(tracking.NewPushClient(client, 0), client,
		tracking.ControllerConfig{PollInterval: cfg.Client.PollInterval})
	_ = c.Start(ctx, "driver-42", track.Update)
	defer c.Stop()

LocationClient also reports samples for agents and is guarded by a circuit
breaker; answers such as "not found" or "stale" never trip it.
*/
package tracking
