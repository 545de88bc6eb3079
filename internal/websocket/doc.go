// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

/*
Package websocket serves the push channel for one tracked session.

A Streamer subscribes to the broadcaster and upgrades the request with
gorilla/websocket. Each connection gets a Client with two goroutines:

  - writePump: writes location frames as samples arrive, heartbeat frames
    every HeartbeatInterval and websocket pings for dead-peer detection
  - readPump: services pongs and close frames and discards any data

Frames are JSON objects of the form

	{"type":"location","data":{"session_id":"...","latitude":..., ...}}
	{"type":"heartbeat","data":{"timestamp":"2026-01-02T15:04:05Z"}}

The current sample, when one exists, is the first frame after connecting.
Otherwise, with heartbeats enabled, the first frame is a heartbeat.
When the session is closed or reaped the server sends a normal close frame.
*/
package websocket
