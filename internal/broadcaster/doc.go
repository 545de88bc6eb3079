// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

/*
Package broadcaster ingests agent position pings and fans them out to every
observer of the same tracked session.

Each session keeps exactly one current sample. A ping whose captured_at is not
strictly later than the stored one is rejected as stale, which makes ingest
idempotent under retries and reordering:

	b := broadcaster.New(broadcaster.DefaultConfig(), store, publisher)

	sub, _ := b.Subscribe("job-42")
	defer sub.Close()

	_ = b.Ingest(ctx, sample) // sub.C() receives sample

Delivery to subscribers is best effort and latest-wins: a slow subscriber
loses its oldest queued samples, never the newest, and never slows ingest.

Sessions are created by the first ping or the first subscription and are
removed by CloseSession or, once idle with no subscribers, by Reap.
RunWithContext runs the reaper under a supervisor.

Sinks observe every locally ingested sample after subscribers have been
notified. ApplyRemote is the entry point for samples relayed from other
instances and bypasses sinks so relays cannot loop.
*/
package broadcaster
