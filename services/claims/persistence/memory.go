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
	"sync"

	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
)

// MemoryStore is the in-memory Store implementation. Records are copied on
// the way in and out, so callers cannot mutate stored state.
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string]datatypes.ValidationResult
	batches map[string]datatypes.Batch
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		results: make(map[string]datatypes.ValidationResult),
		batches: make(map[string]datatypes.Batch),
	}
}

func (m *MemoryStore) SaveResult(ctx context.Context, result *datatypes.ValidationResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[string(resultKey(result.TenantID, result.ClaimID))] = *result
	return nil
}

func (m *MemoryStore) GetResult(ctx context.Context, tenantID, claimID string) (*datatypes.ValidationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[string(resultKey(tenantID, claimID))]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) SaveBatch(ctx context.Context, batch *datatypes.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[string(batchKey(batch.TenantID, batch.BatchID))] = *batch
	return nil
}

func (m *MemoryStore) GetBatch(ctx context.Context, tenantID, batchID string) (*datatypes.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.batches[string(batchKey(tenantID, batchID))]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (m *MemoryStore) ResultsForBatch(ctx context.Context, tenantID, batchID string) ([]datatypes.ValidationResult, error) {
	batch, err := m.GetBatch(ctx, tenantID, batchID)
	if err != nil {
		return nil, err
	}
	out := make([]datatypes.ValidationResult, 0, len(batch.ClaimIDs))
	for _, claimID := range batch.ClaimIDs {
		r, err := m.GetResult(ctx, tenantID, claimID)
		if err != nil {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }
