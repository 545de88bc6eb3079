// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

/*
Package api exposes the livetrack HTTP surface on a chi router.

Endpoints:

	POST   /api/v1/sessions/{id}/location  record a location report (201)
	GET    /api/v1/sessions/{id}/location  latest sample, used by polling clients
	GET    /api/v1/sessions/{id}/stream    websocket push channel
	DELETE /api/v1/sessions/{id}           close a session (204)
	GET    /api/v1/health/live             liveness
	GET    /api/v1/health/ready            readiness, runs registered checks
	GET    /metrics                        Prometheus exposition

Every JSON response uses the envelope

	{"success": true, "data": {...}, "meta": {"timestamp": "...", "request_id": "..."}}
	{"success": false, "error": {"code": "STALE_SAMPLE", "message": "..."}, "meta": {...}}

Rejected samples map to 400 VALIDATION_ERROR, 409 STALE_SAMPLE and
429 RATE_LIMITED. Session routes are rate limited per client IP with
go-chi/httprate and measured per route pattern.

Whether a session id is active is decided by a SessionDirectory; the
default accepts every well-formed id.
*/
package api
