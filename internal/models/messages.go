// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package models

import "time"

// Push channel message types.
const (
	MessageTypeLocation  = "location"
	MessageTypeHeartbeat = "heartbeat"
)

// PushMessage is one frame on the websocket push channel.
type PushMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Heartbeat is the payload of a heartbeat frame.
type Heartbeat struct {
	Timestamp time.Time `json:"timestamp"`
}

// APIResponse is the envelope for every JSON HTTP response.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *Metadata   `json:"meta,omitempty"`
}

// APIError is the error part of APIResponse.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Metadata carries response bookkeeping.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// HealthStatus is returned by the health endpoints.
type HealthStatus struct {
	Status      string            `json:"status"`
	Version     string            `json:"version"`
	Uptime      float64           `json:"uptime_seconds"`
	Sessions    int               `json:"sessions"`
	Subscribers int               `json:"subscribers"`
	Components  map[string]string `json:"components,omitempty"`
}
