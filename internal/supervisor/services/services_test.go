// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

var (
	_ suture.Service = (*HTTPServerService)(nil)
	_ suture.Service = (*RunnerService)(nil)
	_ suture.Service = (*NATSServerService)(nil)
)

// fakeHTTPServer blocks in ListenAndServe until Shutdown unless listenErr
// is set.
type fakeHTTPServer struct {
	listenErr   error
	shutdownErr error
	started     chan struct{}
	stop        chan struct{}
	stopOnce    sync.Once
	shutdowns   atomic.Int32
}

func newFakeHTTPServer() *fakeHTTPServer {
	return &fakeHTTPServer{started: make(chan struct{}, 1), stop: make(chan struct{})}
}

func (f *fakeHTTPServer) ListenAndServe() error {
	select {
	case f.started <- struct{}{}:
	default:
	}
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.stop
	return http.ErrServerClosed
}

func (f *fakeHTTPServer) Shutdown(context.Context) error {
	f.shutdowns.Add(1)
	f.stopOnce.Do(func() { close(f.stop) })
	return f.shutdownErr
}

func serveAsync(ctx context.Context, svc suture.Service) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()
	return errCh
}

func awaitErr(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func TestHTTPServerService(t *testing.T) {
	t.Run("graceful shutdown", func(t *testing.T) {
		srv := newFakeHTTPServer()
		svc := NewHTTPServerService(srv, time.Second)
		ctx, cancel := context.WithCancel(context.Background())
		errCh := serveAsync(ctx, svc)
		<-srv.started
		cancel()
		if err := awaitErr(t, errCh); !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
		if srv.shutdowns.Load() != 1 {
			t.Errorf("shutdowns = %d", srv.shutdowns.Load())
		}
	})

	t.Run("listen failure", func(t *testing.T) {
		bind := errors.New("bind: address already in use")
		srv := newFakeHTTPServer()
		srv.listenErr = bind
		err := NewHTTPServerService(srv, time.Second).Serve(context.Background())
		if !errors.Is(err, bind) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("shutdown failure", func(t *testing.T) {
		drain := errors.New("drain timed out")
		srv := newFakeHTTPServer()
		srv.shutdownErr = drain
		ctx, cancel := context.WithCancel(context.Background())
		errCh := serveAsync(ctx, NewHTTPServerService(srv, time.Second))
		<-srv.started
		cancel()
		if err := awaitErr(t, errCh); !errors.Is(err, drain) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("default timeout and name", func(t *testing.T) {
		svc := NewHTTPServerService(newFakeHTTPServer(), 0)
		if svc.shutdownTimeout != 10*time.Second || svc.String() != "http-server" {
			t.Errorf("svc = %v %v", svc.shutdownTimeout, svc)
		}
	})
}

func TestRunnerService(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name    string
		run     RunFunc
		cancel  bool
		wantErr error
	}{
		{"stops with ctx", func(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }, true, context.Canceled},
		{"failure is wrapped", func(context.Context) error { return boom }, false, boom},
		{"early nil is a failure", func(context.Context) error { return nil }, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.cancel {
				cancel()
			}
			err := NewRunnerService("reaper", tt.run).Serve(ctx)
			if err == nil {
				t.Fatal("Serve returned nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunnerServiceRestartedBySupervisor(t *testing.T) {
	var runs atomic.Int32
	svc := NewRunnerService("relay", RunFunc(func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("subscribe failed")
		}
		<-ctx.Done()
		return ctx.Err()
	}))
	if svc.String() != "relay" {
		t.Errorf("String() = %q", svc.String())
	}

	sup := suture.New("test", suture.Spec{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		Timeout:          time.Second,
	})
	sup.Add(svc)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := sup.ServeBackground(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("runs = %d, want 3", runs.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-errCh
}

type fakeNATS struct {
	running   atomic.Bool
	shutdowns atomic.Int32
}

func (f *fakeNATS) IsRunning() bool { return f.running.Load() }

func (f *fakeNATS) Shutdown(context.Context) error {
	f.shutdowns.Add(1)
	f.running.Store(false)
	return nil
}

func TestNATSServerService(t *testing.T) {
	t.Run("shuts down with supervisor", func(t *testing.T) {
		srv := &fakeNATS{}
		srv.running.Store(true)
		svc := NewNATSServerService(srv, time.Second)
		ctx, cancel := context.WithCancel(context.Background())
		errCh := serveAsync(ctx, svc)
		cancel()
		if err := awaitErr(t, errCh); !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v", err)
		}
		if srv.shutdowns.Load() != 1 {
			t.Errorf("shutdowns = %d", srv.shutdowns.Load())
		}
	})

	t.Run("reports a dead server", func(t *testing.T) {
		srv := &fakeNATS{}
		srv.running.Store(true)
		svc := NewNATSServerService(srv, time.Second)
		svc.CheckInterval = 5 * time.Millisecond
		errCh := serveAsync(context.Background(), svc)
		srv.running.Store(false)
		if err := awaitErr(t, errCh); !errors.Is(err, ErrNATSServerStopped) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("not running at start", func(t *testing.T) {
		err := NewNATSServerService(&fakeNATS{}, 0).Serve(context.Background())
		if !errors.Is(err, ErrNATSServerStopped) {
			t.Errorf("err = %v", err)
		}
	})
}
