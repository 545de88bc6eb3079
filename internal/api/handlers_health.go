// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/fieldops/livetrack/internal/models"
)

const readinessTimeout = 2 * time.Second

func (h *Handler) healthStatus(status string) models.HealthStatus {
	stats := h.tracker.Stats()
	return models.HealthStatus{
		Status:      status,
		Version:     h.version,
		Uptime:      time.Since(h.startTime).Seconds(),
		Sessions:    stats.Sessions,
		Subscribers: stats.Subscribers,
	}
}

// HealthLive is the liveness check. It never checks dependencies.
//
// GET /api/v1/health/live
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, h.healthStatus("alive"))
}

// HealthReady runs every registered readiness check.
//
// GET /api/v1/health/ready
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	checks := append([]namedCheck(nil), h.checks...)
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := h.healthStatus("ready")
	status.Components = make(map[string]string, len(checks))
	ready := true
	for _, c := range checks {
		if err := c.check(ctx); err != nil {
			status.Components[c.name] = err.Error()
			ready = false
			continue
		}
		status.Components[c.name] = "ok"
	}

	if !ready {
		status.Status = "not_ready"
		respondJSON(w, http.StatusServiceUnavailable, &models.APIResponse{
			Success: false,
			Data:    status,
			Error:   &models.APIError{Code: ErrCodeServiceUnavailable, Message: "One or more components are not ready"},
		})
		return
	}
	respondData(w, http.StatusOK, status)
}
