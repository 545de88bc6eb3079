// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/fieldops/livetrack/internal/logging"
	"github.com/fieldops/livetrack/internal/middleware"
	"github.com/fieldops/livetrack/internal/models"
	"github.com/fieldops/livetrack/internal/validation"
)

// Error codes for API responses.
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeInvalidJSON        = "INVALID_JSON"
	ErrCodeStaleSample        = "STALE_SAMPLE"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeSessionNotFound    = "SESSION_NOT_FOUND"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	if response.Meta == nil {
		response.Meta = &models.Metadata{Timestamp: time.Now().UTC()}
	}
	if response.Meta.RequestID == "" {
		response.Meta.RequestID = w.Header().Get(middleware.RequestIDHeader)
	}

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Debug().Err(err).Msg("Failed to write JSON response")
	}
}

func respondData(w http.ResponseWriter, status int, data interface{}) {
	respondJSON(w, status, &models.APIResponse{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	respondErrorDetails(w, status, code, message, nil, err)
}

func respondErrorDetails(w http.ResponseWriter, status int, code, message string, details map[string]interface{}, err error) {
	if err != nil && status >= http.StatusInternalServerError {
		logging.Error().Str("code", code).Str("error", sanitizeLogValue(err.Error())).Msg("API error")
	}
	respondJSON(w, status, &models.APIResponse{
		Success: false,
		Error:   &models.APIError{Code: code, Message: message, Details: details},
	})
}

// respondIngestError maps a rejected sample to its HTTP status.
func respondIngestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidSample):
		respondValidationError(w, err)
	case errors.Is(err, models.ErrStaleSample):
		respondError(w, http.StatusConflict, ErrCodeStaleSample, "Sample is not newer than the current location", err)
	case errors.Is(err, models.ErrRateLimited):
		respondError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "Too many samples for this session", err)
	case errors.Is(err, models.ErrSessionNotFound), errors.Is(err, models.ErrSessionClosed):
		respondError(w, http.StatusNotFound, ErrCodeSessionNotFound, "Session not found", err)
	default:
		respondError(w, http.StatusInternalServerError, ErrCodeInternal, "Failed to record location", err)
	}
}

func respondValidationError(w http.ResponseWriter, err error) {
	var verr *validation.RequestValidationError
	if errors.As(err, &verr) {
		fields := make(map[string]interface{}, len(verr.Errors()))
		for _, fe := range verr.Errors() {
			fields[fe.Field] = fe.Message
		}
		respondErrorDetails(w, http.StatusBadRequest, ErrCodeValidation, verr.Error(),
			map[string]interface{}{"fields": fields}, err)
		return
	}
	respondError(w, http.StatusBadRequest, ErrCodeValidation, err.Error(), err)
}

// sanitizeLogValue strips control characters so user input cannot forge
// log lines.
func sanitizeLogValue(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, s)
}
