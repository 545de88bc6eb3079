// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

/*
Command server runs the livetrack API: agents POST location reports,
tracking views GET the latest sample or hold a websocket push channel.

# Supervision

	livetrack
	├── data-layer
	│   └── store-gc            (STORE_ENABLED)
	├── messaging-layer
	│   ├── nats-server         (NATS_EMBEDDED)
	│   ├── event-relay         (EVENTS_ENABLED)
	│   └── broadcaster-reaper
	└── api-layer
	    └── http-server

Startup order: configuration, logging, store (and restore of last-known
samples), event transport, broadcaster with its sinks, HTTP API, then the
supervisor tree. SIGINT and SIGTERM cancel the tree; the HTTP server drains
for SERVER_SHUTDOWN_TIMEOUT before the store and transport close.

# Configuration

Defaults, then the YAML file named by --config or LIVETRACK_CONFIG, then
environment variables. A few useful ones:

	HTTP_PORT=3857
	HEARTBEAT_INTERVAL=10s
	INGEST_RATE_PER_SECOND=5
	STORE_ENABLED=true STORE_PATH=/data/livetrack
	EVENTS_ENABLED=true EVENTS_DRIVER=nats NATS_EMBEDDED=true

Port 3857 is a nod to EPSG:3857, the web map projection.
*/
package main
