// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

/*
Package events fans accepted samples out between livetrack instances.

Each instance publishes every sample it accepts to a single topic through
watermill, tagged with its instance id. Every instance also runs a Relay
that consumes the same topic without a queue group and applies samples
from other instances to its local broadcaster, so a subscriber attached to
any instance sees pings ingested anywhere.

Two drivers are available:

  - nats: watermill-nats over core NATS, or JetStream when enabled. An
    EmbeddedServer can host NATS in-process for single-node deployments.
  - memory: watermill's gochannel, used in tests and single-process setups.

Relayed samples go through the same staleness check as direct ingestion,
so duplicates and reordering across instances are harmless.
*/
package events
