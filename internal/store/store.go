// Livetrack - Real-time Agent Location Delivery and Playback
// Copyright 2026 The Livetrack Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldops/livetrack

// Package store persists the last known sample of every session in BadgerDB
// so a restarted server can answer GET /location immediately.
//
// Keys are "sample:<session id>"; values are JSON samples written with a TTL
// equal to the configured retention. Writes apply the same staleness rule as
// the broadcaster inside a read-modify-write transaction. Conflicting
// transactions are retried, so concurrent or reordered writes can never
// regress a session.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/fieldops/livetrack/internal/logging"
	"github.com/fieldops/livetrack/internal/metrics"
	"github.com/fieldops/livetrack/internal/models"
)

const keyPrefix = "sample:"

// maxConflictRetries bounds Save's retries when a concurrent write to the
// same session commits first.
const maxConflictRetries = 16

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("store is closed")

// Config configures a Store.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in RAM. Used by tests and ephemeral setups.
	InMemory bool
	// Retention is the TTL of a stored sample. Zero keeps samples forever.
	Retention  time.Duration
	SyncWrites bool
	// GCRatio is passed to RunValueLogGC.
	GCRatio float64
}

// Store is the BadgerDB-backed last-known-sample store.
type Store struct {
	db  *badger.DB
	cfg Config

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the store.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("store path is required")
	}
	if cfg.GCRatio <= 0 || cfg.GCRatio >= 1 {
		cfg.GCRatio = 0.5
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Dur("retention", cfg.Retention).
		Msg("Sample store opened")
	return &Store{db: db, cfg: cfg}, nil
}

func key(sessionID string) []byte {
	return []byte(keyPrefix + sessionID)
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Save stores sample unless an equal or newer one is already stored, in
// which case it returns an error wrapping models.ErrStaleSample.
func (s *Store) Save(ctx context.Context, sample models.Sample) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("marshal sample: %w", err)
	}

	for attempt := 0; ; attempt++ {
		err = s.db.Update(func(txn *badger.Txn) error {
			return s.saveTxn(txn, sample, data)
		})
		if !errors.Is(err, badger.ErrConflict) || attempt >= maxConflictRetries {
			break
		}
		metrics.StoreConflictRetries.Inc()
	}
	if errors.Is(err, models.ErrStaleSample) {
		metrics.RecordStoreOperation("save", nil)
		return fmt.Errorf("session %s: %w", sample.SessionID, err)
	}
	metrics.RecordStoreOperation("save", err)
	if err != nil {
		return fmt.Errorf("save sample: %w", err)
	}
	return nil
}

// saveTxn writes sample unless an equal or newer one is stored. It re-reads
// on every attempt, so a retried conflict still honors staleness.
func (s *Store) saveTxn(txn *badger.Txn, sample models.Sample, data []byte) error {
	item, err := txn.Get(key(sample.SessionID))
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
	case err != nil:
		return err
	default:
		var existing models.Sample
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &existing)
		}); err != nil {
			return fmt.Errorf("decode stored sample: %w", err)
		}
		if !sample.NewerThan(existing) {
			return models.ErrStaleSample
		}
	}

	e := badger.NewEntry(key(sample.SessionID), data)
	if s.cfg.Retention > 0 {
		e = e.WithTTL(s.cfg.Retention)
	}
	return txn.SetEntry(e)
}

// Load returns the stored sample for a session.
func (s *Store) Load(ctx context.Context, sessionID string) (models.Sample, error) {
	if err := s.checkOpen(); err != nil {
		return models.Sample{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.Sample{}, err
	}

	var out models.Sample
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(sessionID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.Sample{}, fmt.Errorf("session %s: %w", sessionID, models.ErrSessionNotFound)
	}
	metrics.RecordStoreOperation("load", err)
	if err != nil {
		return models.Sample{}, fmt.Errorf("load sample: %w", err)
	}
	return out, nil
}

// LoadAll returns every stored sample. Undecodable entries are logged and
// skipped.
func (s *Store) LoadAll(ctx context.Context) ([]models.Sample, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var out []models.Sample
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var sample models.Sample
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &sample)
			}); err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("Skipping undecodable stored sample")
				continue
			}
			out = append(out, sample)
		}
		return nil
	})
	metrics.RecordStoreOperation("load_all", err)
	if err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return out, nil
}

// Delete removes a session's sample. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(sessionID))
	})
	metrics.RecordStoreOperation("delete", err)
	if err != nil {
		return fmt.Errorf("delete sample: %w", err)
	}
	return nil
}

// Name implements broadcaster.Sink.
func (s *Store) Name() string { return "store" }

// OnSample implements broadcaster.Sink. A stale write means another ingest
// already stored something newer, which is fine.
func (s *Store) OnSample(ctx context.Context, sample models.Sample) error {
	if err := s.Save(ctx, sample); err != nil && !errors.Is(err, models.ErrStaleSample) {
		return err
	}
	return nil
}

// OnSessionClosed implements broadcaster.SessionCloser.
func (s *Store) OnSessionClosed(ctx context.Context, sessionID string) error {
	return s.Delete(ctx, sessionID)
}

// RunGC runs value log garbage collection until nothing is left to rewrite.
func (s *Store) RunGC() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.cfg.InMemory {
		return nil
	}
	for {
		err := s.db.RunValueLogGC(s.cfg.GCRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// RunGCWithContext runs RunGC every interval until ctx is done.
func (s *Store) RunGCWithContext(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunGC(); err != nil {
				if errors.Is(err, ErrClosed) {
					return err
				}
				logging.Warn().Err(err).Msg("Sample store GC failed")
			}
		}
	}
}

// Close closes the database. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close BadgerDB: %w", err)
	}
	logging.Info().Msg("Sample store closed")
	return nil
}
