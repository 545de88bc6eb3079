// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

package main

import (
	"context"
	"time"

	"github.com/fieldops/livetrack/internal/broadcaster"
	"github.com/fieldops/livetrack/internal/config"
	"github.com/fieldops/livetrack/internal/logging"
	"github.com/fieldops/livetrack/internal/store"
	"github.com/fieldops/livetrack/internal/supervisor"
	"github.com/fieldops/livetrack/internal/supervisor/services"
)

// initStore opens the last-known-sample store, or returns nil when it is
// disabled.
func initStore(cfg config.StoreConfig) (*store.Store, error) {
	if !cfg.Enabled {
		logging.Info().Msg("Sample store disabled (STORE_ENABLED=false)")
		return nil, nil
	}
	return store.Open(store.Config{
		Path:       cfg.Path,
		Retention:  cfg.Retention,
		SyncWrites: cfg.SyncWrites,
	})
}

// restoreSessions seeds the broadcaster so GET /location answers right
// after a restart.
func restoreSessions(ctx context.Context, st *store.Store, b *broadcaster.Broadcaster) {
	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	samples, err := st.LoadAll(loadCtx)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to load stored samples, starting empty")
		return
	}
	n := b.Restore(samples)
	logging.Info().Int("stored", len(samples)).Int("restored", n).Msg("Restored last known samples")
}

func addStoreServices(tree *supervisor.SupervisorTree, st *store.Store, cfg config.StoreConfig) {
	tree.AddDataService(services.NewRunnerService("store-gc", services.RunFunc(func(ctx context.Context) error {
		return st.RunGCWithContext(ctx, cfg.GCInterval)
	})))
}

func closeStore(st *store.Store) {
	if st == nil {
		return
	}
	if err := st.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing sample store")
	}
}
