// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

/*
Package services adapts livetrack components to suture.Service.

Each wrapper turns a component's own lifecycle into Serve(ctx) error and
names itself through fmt.Stringer for the supervisor's event log:

  - HTTPServerService: ListenAndServe plus graceful Shutdown.
  - RunnerService: anything shaped like RunWithContext(ctx) error, such as
    the broadcaster reaper, the event relay and the store GC loop.
  - NATSServerService: keeps an embedded NATS server alive until the
    supervisor stops and then shuts it down.

Serve returns ctx.Err() on a requested stop and a wrapped error on a
failure, which suture answers with a restart under its backoff policy.
*/
package services
