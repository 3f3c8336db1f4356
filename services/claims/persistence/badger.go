// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
)

// =============================================================================
// Configuration
// =============================================================================

// BadgerConfig holds configuration for the embedded result database.
type BadgerConfig struct {
	// Path is the directory for database files. Required unless InMemory.
	Path string

	// InMemory disables disk persistence. Used by tests and ephemeral
	// deployments.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// GCInterval is how often to run value log garbage collection.
	// Zero disables GC.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	GCDiscardRatio float64

	// Logger receives database events. Nil disables Badger's internal
	// logging.
	Logger *slog.Logger
}

// DefaultBadgerConfig returns production defaults: durable writes and
// periodic value log GC.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// =============================================================================
// BadgerStore
// =============================================================================

// BadgerStore is the embedded persistent Store implementation.
//
// # Key layout
//
//	result/<tenant_id>/<claim_id> -> ValidationResult JSON
//	batch/<tenant_id>/<batch_id>  -> Batch JSON
//
// Tenant id prefixes keep tenants fully disjoint; there is no cross-tenant
// scan anywhere in the service.
//
// # Thread Safety
//
// Safe for concurrent use; Badger transactions provide isolation.
type BadgerStore struct {
	db     *badger.DB
	gcStop chan struct{}
	gcDone chan struct{}
	logger *slog.Logger
}

// OpenBadger opens the result database and starts the GC loop when
// configured.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open result database: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &BadgerStore{db: db, logger: logger}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gcStop = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

func (s *BadgerStore) runGC(interval time.Duration, ratio float64) {
	defer close(s.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			// ErrNoRewrite means no GC was needed, not a failure.
			if err := s.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("value log GC error", "error", err)
			}
		}
	}
}

// Close stops GC and closes the database.
func (s *BadgerStore) Close() error {
	if s.gcStop != nil {
		close(s.gcStop)
		<-s.gcDone
	}
	return s.db.Close()
}

func resultKey(tenantID, claimID string) []byte {
	return []byte("result/" + tenantID + "/" + claimID)
}

func batchKey(tenantID, batchID string) []byte {
	return []byte("batch/" + tenantID + "/" + batchID)
}

// SaveResult writes the result, replacing any previous result for the same
// claim.
func (s *BadgerStore) SaveResult(ctx context.Context, result *datatypes.ValidationResult) error {
	return s.put(ctx, resultKey(result.TenantID, result.ClaimID), result)
}

// GetResult loads one claim's result.
func (s *BadgerStore) GetResult(ctx context.Context, tenantID, claimID string) (*datatypes.ValidationResult, error) {
	var out datatypes.ValidationResult
	if err := s.get(ctx, resultKey(tenantID, claimID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveBatch writes the batch record.
func (s *BadgerStore) SaveBatch(ctx context.Context, batch *datatypes.Batch) error {
	return s.put(ctx, batchKey(batch.TenantID, batch.BatchID), batch)
}

// GetBatch loads one batch record.
func (s *BadgerStore) GetBatch(ctx context.Context, tenantID, batchID string) (*datatypes.Batch, error) {
	var out datatypes.Batch
	if err := s.get(ctx, batchKey(tenantID, batchID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResultsForBatch loads the results of every claim in a batch, in the
// batch's claim order. Claims whose results are missing are skipped.
func (s *BadgerStore) ResultsForBatch(ctx context.Context, tenantID, batchID string) ([]datatypes.ValidationResult, error) {
	batch, err := s.GetBatch(ctx, tenantID, batchID)
	if err != nil {
		return nil, err
	}
	out := make([]datatypes.ValidationResult, 0, len(batch.ClaimIDs))
	for _, claimID := range batch.ClaimIDs {
		r, err := s.GetResult(ctx, tenantID, claimID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

func (s *BadgerStore) put(ctx context.Context, key []byte, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, raw)
	})
}

func (s *BadgerStore) get(ctx context.Context, key []byte, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}
