// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

// Package models holds the wire and domain types shared by the livetrack
// server and clients, plus the error taxonomy every layer reports with.
package models

import (
	"math"
	"time"
)

// Sample is one position report from an agent's device.
//
// CapturedAt is the agent-device clock. Ordering and staleness are decided on
// it alone; no skew correction against server time is attempted.
type Sample struct {
	SessionID  string    `json:"session_id" validate:"required,max=128,sessionid"`
	Latitude   float64   `json:"latitude" validate:"finite,gte=-90,lte=90"`
	Longitude  float64   `json:"longitude" validate:"finite,gte=-180,lte=180"`
	Bearing    *float64  `json:"bearing,omitempty" validate:"omitempty,finite"`
	Speed      *float64  `json:"speed,omitempty" validate:"omitempty,finite,gte=0"`
	CapturedAt time.Time `json:"captured_at" validate:"required"`
}

// NewerThan reports whether s was captured strictly after other.
func (s Sample) NewerThan(other Sample) bool {
	return s.CapturedAt.After(other.CapturedAt)
}

// HasBearing reports whether the device supplied a heading.
func (s Sample) HasBearing() bool {
	return s.Bearing != nil
}

// Normalized returns a copy with the bearing folded into [0, 360) and the
// timestamp in UTC. Pointer fields are copied so the result shares nothing
// with s.
func (s Sample) Normalized() Sample {
	out := s
	out.CapturedAt = s.CapturedAt.UTC()
	if s.Bearing != nil {
		b := NormalizeDegrees(*s.Bearing)
		out.Bearing = &b
	}
	if s.Speed != nil {
		v := *s.Speed
		out.Speed = &v
	}
	return out
}

// NormalizeDegrees folds any finite angle into [0, 360).
func NormalizeDegrees(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	// math.Mod(-1e-15, 360) + 360 rounds to 360.
	if d >= 360 {
		d = 0
	}
	return d
}

// Float64 returns a pointer to v, for optional sample fields.
func Float64(v float64) *float64 {
	return &v
}

// LocationReport is the POST body an agent sends. The session id comes from
// the URL path.
type LocationReport struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Bearing    *float64  `json:"bearing,omitempty"`
	Speed      *float64  `json:"speed,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// Sample binds the report to a session.
func (r LocationReport) Sample(sessionID string) Sample {
	return Sample{
		SessionID:  sessionID,
		Latitude:   r.Latitude,
		Longitude:  r.Longitude,
		Bearing:    r.Bearing,
		Speed:      r.Speed,
		CapturedAt: r.CapturedAt,
	}
}

// ReportFromSample is the inverse of LocationReport.Sample.
func ReportFromSample(s Sample) LocationReport {
	return LocationReport{
		Latitude:   s.Latitude,
		Longitude:  s.Longitude,
		Bearing:    s.Bearing,
		Speed:      s.Speed,
		CapturedAt: s.CapturedAt,
	}
}
