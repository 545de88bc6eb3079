// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/fieldops/livetrack/internal/logging"
	"github.com/fieldops/livetrack/internal/models"
)

// PostLocation records a location report from an agent.
//
// POST /api/v1/sessions/{id}/location
func (h *Handler) PostLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.activeSession(w, r)
	if !ok {
		return
	}

	var report models.LocationReport
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&report); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidJSON, "Request body is not a valid location report", err)
		return
	}

	sample := report.Sample(id)
	if err := h.tracker.Ingest(r.Context(), sample); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Location report rejected")
		respondIngestError(w, err)
		return
	}
	respondData(w, http.StatusCreated, sample.Normalized())
}

// GetLocation returns the latest accepted sample. This is the polling
// fallback's endpoint.
//
// GET /api/v1/sessions/{id}/location
func (h *Handler) GetLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	s, err := h.tracker.Latest(id)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, ErrCodeSessionNotFound, "No location for session", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "Failed to read location", err)
		return
	}
	respondData(w, http.StatusOK, s)
}

// Stream upgrades to the websocket push channel.
//
// GET /api/v1/sessions/{id}/stream
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	id, ok := h.activeSession(w, r)
	if !ok {
		return
	}
	if err := h.streamer.Serve(w, r, id); err != nil {
		if errors.Is(err, models.ErrInvalidSample) {
			respondValidationError(w, err)
			return
		}
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "Failed to open stream", err)
	}
}

// DeleteSession closes a session and its subscribers.
//
// DELETE /api/v1/sessions/{id}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	if !h.tracker.CloseSession(r.Context(), id) {
		respondError(w, http.StatusNotFound, ErrCodeSessionNotFound, "Session not found", nil)
		return
	}
	logging.Ctx(r.Context()).Info().Msg("Session closed")
	w.WriteHeader(http.StatusNoContent)
}
