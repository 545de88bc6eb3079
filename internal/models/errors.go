// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package models

import "errors"

// Error taxonomy. Callers wrap these with fmt.Errorf("...: %w") and test with
// errors.Is.
var (
	// ErrStaleSample means the sample is not newer than the stored one. It is
	// expected under network reordering and is never a hard failure.
	ErrStaleSample = errors.New("stale sample")

	// ErrTransportUnavailable means the push channel could not be
	// established or was lost.
	ErrTransportUnavailable = errors.New("push transport unavailable")

	// ErrTransientFetchFailure means a poll request failed in a way that may
	// succeed on the next attempt.
	ErrTransientFetchFailure = errors.New("transient fetch failure")

	// ErrSessionNotFound means no sample has ever been accepted for the session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidSample means the sample failed validation.
	ErrInvalidSample = errors.New("invalid sample")

	// ErrRateLimited means the session exceeded its ingest rate.
	ErrRateLimited = errors.New("ingest rate limit exceeded")

	// ErrSessionClosed means the session was closed while the call was in
	// flight.
	ErrSessionClosed = errors.New("session closed")
)
