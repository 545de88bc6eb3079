// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fieldops/livetrack/internal/broadcaster"
	"github.com/fieldops/livetrack/internal/models"
	"github.com/fieldops/livetrack/internal/validation"
)

// maxBodyBytes bounds a location report body.
const maxBodyBytes = 8 * 1024

// Tracker is the broadcaster surface the handlers use.
type Tracker interface {
	Ingest(ctx context.Context, s models.Sample) error
	Latest(sessionID string) (models.Sample, error)
	CloseSession(ctx context.Context, sessionID string) bool
	Stats() broadcaster.Stats
}

// Streamer upgrades a request into a push connection for a session.
type Streamer interface {
	Serve(w http.ResponseWriter, r *http.Request, sessionID string) error
}

// SessionDirectory reports whether a tracking session is active. Identity
// and session lifecycle live outside livetrack.
type SessionDirectory interface {
	IsActive(ctx context.Context, sessionID string) (bool, error)
}

// AllowAllSessions treats every well-formed id as active.
type AllowAllSessions struct{}

// IsActive implements SessionDirectory.
func (AllowAllSessions) IsActive(context.Context, string) (bool, error) { return true, nil }

// HealthCheck reports a component failure for readiness.
type HealthCheck func(ctx context.Context) error

type namedCheck struct {
	name  string
	check HealthCheck
}

// Handler serves the livetrack HTTP API.
type Handler struct {
	tracker   Tracker
	streamer  Streamer
	directory SessionDirectory
	version   string
	startTime time.Time

	mu     sync.RWMutex
	checks []namedCheck
}

// NewHandler creates a handler with an allow-all session directory.
func NewHandler(tracker Tracker, streamer Streamer) *Handler {
	return &Handler{
		tracker:   tracker,
		streamer:  streamer,
		directory: AllowAllSessions{},
		version:   "dev",
		startTime: time.Now(),
	}
}

// SetSessionDirectory replaces the session directory.
func (h *Handler) SetSessionDirectory(d SessionDirectory) {
	if d == nil {
		d = AllowAllSessions{}
	}
	h.directory = d
}

// SetVersion sets the version reported by health endpoints.
func (h *Handler) SetVersion(v string) {
	h.version = v
}

// AddReadinessCheck registers a component checked by /health/ready.
func (h *Handler) AddReadinessCheck(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, namedCheck{name: name, check: check})
}

// sessionID extracts and validates {id}. On failure the response has been
// written.
func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := validation.ValidateVar(id, "required,max=128,sessionid"); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeValidation, "Invalid session id", err)
		return "", false
	}
	return id, true
}

// activeSession is sessionID plus the directory check.
func (h *Handler) activeSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return "", false
	}
	active, err := h.directory.IsActive(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Session directory unavailable", err)
		return "", false
	}
	if !active {
		respondError(w, http.StatusNotFound, ErrCodeSessionNotFound, "Session not found", nil)
		return "", false
	}
	return id, true
}
