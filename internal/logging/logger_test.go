// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"disabled", zerolog.Disabled},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestInitJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	Info().Str("session_id", "s-1").Msg("hello")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["message"] != "hello" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["session_id"] != "s-1" {
		t.Errorf("session_id = %v", entry["session_id"])
	}
}

func TestCtxAddsContextFields(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	defer Init(DefaultConfig())
	SetLevelString("info")

	ctx := ContextWithCorrelationID(context.Background(), "corr1234")
	ctx = ContextWithRequestID(ctx, "req-1")
	ctx = ContextWithSessionID(ctx, "job-9")
	Ctx(ctx).Info().Msg("with context")

	out := buf.String()
	for _, want := range []string{`"correlation_id":"corr1234"`, `"request_id":"req-1"`, `"session_id":"job-9"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %s", out, want)
		}
	}
}

func TestContextAccessorsEmpty(t *testing.T) {
	ctx := context.Background()
	if CorrelationIDFromContext(ctx) != "" || RequestIDFromContext(ctx) != "" || SessionIDFromContext(ctx) != "" {
		t.Error("expected empty ids on bare context")
	}
	if got := len(GenerateCorrelationID()); got != 8 {
		t.Errorf("correlation id length = %d, want 8", got)
	}
}

func TestSlogHandler(t *testing.T) {
	var buf bytes.Buffer
	SetLevelString("debug")
	defer SetLevelString("info")

	logger := slog.New(NewSlogHandlerWithLogger(NewTestLogger(&buf)))
	logger.With("service", "broadcaster").WithGroup("supervisor").Warn("restarting",
		"attempt", 3, "err", errors.New("boom"))

	out := buf.String()
	for _, want := range []string{`"level":"warn"`, `"service":"broadcaster"`, `"supervisor.attempt":3`, `"supervisor.err":"boom"`, `"message":"restarting"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %s", out, want)
		}
	}
}
