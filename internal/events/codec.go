// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package events

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/fieldops/livetrack/internal/models"
)

// Message metadata keys.
const (
	MetadataOrigin    = "origin"
	MetadataSessionID = "session_id"
)

// EncodeSample wraps a sample in a watermill message tagged with the
// publishing instance.
func EncodeSample(s models.Sample, origin string) (*message.Message, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal sample: %w", err)
	}
	msg := message.NewMessage(uuid.New().String(), payload)
	msg.Metadata.Set(MetadataOrigin, origin)
	msg.Metadata.Set(MetadataSessionID, s.SessionID)
	return msg, nil
}

// DecodeSample extracts the sample and origin from a message.
func DecodeSample(msg *message.Message) (models.Sample, string, error) {
	var s models.Sample
	if err := json.Unmarshal(msg.Payload, &s); err != nil {
		return models.Sample{}, "", fmt.Errorf("unmarshal sample %s: %w", msg.UUID, err)
	}
	return s, msg.Metadata.Get(MetadataOrigin), nil
}
