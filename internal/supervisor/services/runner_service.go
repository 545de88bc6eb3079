// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package services

import (
	"context"
	"errors"
	"fmt"
)

// ContextRunner runs until ctx is done or it fails. *broadcaster.Broadcaster
// satisfies it; RunFunc adapts the rest.
type ContextRunner interface {
	RunWithContext(ctx context.Context) error
}

// RunFunc adapts a function to ContextRunner.
type RunFunc func(ctx context.Context) error

// RunWithContext calls f.
func (f RunFunc) RunWithContext(ctx context.Context) error { return f(ctx) }

// RunnerService supervises a ContextRunner under a fixed name.
type RunnerService struct {
	runner ContextRunner
	name   string
}

// NewRunnerService wraps runner.
func NewRunnerService(name string, runner ContextRunner) *RunnerService {
	return &RunnerService{runner: runner, name: name}
}

// Serve implements suture.Service. A runner that returns nil while ctx is
// still live is reported as a failure so suture restarts it.
func (s *RunnerService) Serve(ctx context.Context) error {
	err := s.runner.RunWithContext(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		err = errors.New("exited unexpectedly")
	}
	return fmt.Errorf("%s: %w", s.name, err)
}

func (s *RunnerService) String() string {
	return s.name
}
