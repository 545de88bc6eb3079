// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

// Package motion turns sparse position samples into continuous motion.
//
// Everything here except Track is a pure function of its inputs: no clocks,
// no I/O, no shared state. Track is the stateful consumer that a transport
// controller feeds with samples and a render loop polls for frames.
package motion

import (
	"math"

	"github.com/fieldops/livetrack/internal/models"
)

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Frame is one rendered instant: where the agent is drawn and which way it faces.
type Frame struct {
	Position Point   `json:"position"`
	Bearing  float64 `json:"bearing"`
}

// Keyframe is a resolved endpoint of an animation segment.
type Keyframe struct {
	Position Point
	Bearing  float64
}

func clamp01(p float64) float64 {
	switch {
	case math.IsNaN(p), p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}

// InterpolatePosition linearly interpolates latitude and longitude.
// progress is clamped to [0, 1].
func InterpolatePosition(prev, next Point, progress float64) Point {
	p := clamp01(progress)
	return Point{
		Lat: prev.Lat + (next.Lat-prev.Lat)*p,
		Lon: prev.Lon + (next.Lon-prev.Lon)*p,
	}
}

// NormalizeBearing folds deg into [0, 360).
func NormalizeBearing(deg float64) float64 {
	return models.NormalizeDegrees(deg)
}

// InterpolateBearing rotates from prev towards next along the shorter arc.
// The result is in [0, 360). progress is clamped to [0, 1].
func InterpolateBearing(prev, next, progress float64) float64 {
	from := NormalizeBearing(prev)
	to := NormalizeBearing(next)

	diff := to - from
	if diff > 180 {
		diff -= 360
	} else if diff < -180 {
		diff += 360
	}
	return NormalizeBearing(from + diff*clamp01(progress))
}

// InitialBearing is the great-circle forward azimuth from a to b, in [0, 360).
// It returns 0 when the points coincide.
func InitialBearing(a, b Point) float64 {
	if a == b {
		return 0
	}
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return NormalizeBearing(math.Atan2(y, x) * 180 / math.Pi)
}

// DistanceMeters is the haversine distance between a and b.
func DistanceMeters(a, b Point) float64 {
	const earthRadius = 6371000.0
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadius * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// PointOf returns the coordinate of a sample.
func PointOf(s models.Sample) Point {
	return Point{Lat: s.Latitude, Lon: s.Longitude}
}
