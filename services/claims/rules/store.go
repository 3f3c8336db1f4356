// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
)

// cacheKey identifies one cached rule set.
type cacheKey struct {
	tenantID string
	ruleType datatypes.RuleType
}

// cacheEntry guards one (tenant, rule type) slot. Lock granularity is the
// entry, never the whole store, so a reload for one tenant cannot stall
// reads for another.
type cacheEntry struct {
	mu          sync.Mutex
	set         *RuleSet
	fingerprint string
}

// Store loads, caches, and invalidates per-tenant rule sets.
//
// # Description
//
// Get compares the cached entry's fingerprint against the backing source and
// reloads only on mismatch, so unchanged documents are served from memory
// and changed documents are picked up without a restart. Tenants without a
// backing document fall back to the default tenant's document while keeping
// their own cache key, so a later custom upload takes effect immediately.
//
// Parse failures on reload fail open: the stale cached value remains in
// effect so live validation never breaks on a bad upload.
//
// # Thread Safety
//
// Safe for concurrent use. Writers lock only the affected entry.
type Store struct {
	source RuleSource

	mu      sync.Mutex // guards the cache map only, never held during I/O
	entries map[cacheKey]*cacheEntry
}

// NewStore creates a Store over the given source.
func NewStore(source RuleSource) *Store {
	return &Store{
		source:  source,
		entries: make(map[cacheKey]*cacheEntry),
	}
}

func (s *Store) entry(key cacheKey) *cacheEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		e = &cacheEntry{}
		s.entries[key] = e
	}
	return e
}

// Get returns the current rule set for (tenantID, ruleType).
//
// # Inputs
//
//   - ctx: Context for cancellation. Checked before any load.
//   - tenantID: Requesting tenant. Falls back to the default tenant's
//     document when it has no document of its own.
//   - ruleType: datatypes.RuleTypeTechnical or datatypes.RuleTypeMedical.
//
// # Outputs
//
//   - *RuleSet: The cached or freshly-loaded rule set. With a stale cached
//     value present, a parse failure on reload returns the stale value and
//     a nil error (fail open); the failure is logged.
//   - error: ErrUnknownRuleType, a *RuleSetError when no usable value
//     exists, or a source error.
func (s *Store) Get(ctx context.Context, tenantID string, ruleType datatypes.RuleType) (*RuleSet, error) {
	if !datatypes.ValidRuleType(ruleType) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRuleType, ruleType)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e := s.entry(cacheKey{tenantID, ruleType})
	e.mu.Lock()
	defer e.mu.Unlock()

	sourceTenant := tenantID
	fp, err := s.source.Fingerprint(sourceTenant, ruleType)
	if errors.Is(err, ErrNoSource) && tenantID != datatypes.DefaultTenant {
		// Fall back to the default tenant's document. The cache key stays
		// the requesting tenant's, so a future custom upload is picked up
		// without disturbing the default entry.
		sourceTenant = datatypes.DefaultTenant
		fp, err = s.source.Fingerprint(sourceTenant, ruleType)
	}
	if errors.Is(err, ErrNoSource) {
		// Not even the default tenant has a document. Serve the built-in
		// defaults, cached like any other rule set.
		if e.set == nil {
			e.set = builtinRuleSet(tenantID, ruleType)
			e.fingerprint = e.set.Fingerprint
			slog.Info("serving built-in rule set", "tenant", tenantID, "rule_type", ruleType)
		}
		return e.set, nil
	}
	if err != nil {
		if e.set != nil {
			slog.Warn("rule source unavailable, serving cached rule set",
				"tenant", tenantID, "rule_type", ruleType, "error", err)
			return e.set, nil
		}
		return nil, err
	}

	if e.set != nil && e.fingerprint == fp {
		return e.set, nil
	}

	raw, fp, err := s.source.Load(sourceTenant, ruleType)
	if err != nil {
		if e.set != nil {
			slog.Warn("rule reload failed, serving cached rule set",
				"tenant", tenantID, "rule_type", ruleType, "error", err)
			return e.set, nil
		}
		return nil, err
	}

	parsed, err := ParseRuleSet(tenantID, ruleType, raw)
	if err != nil {
		if e.set != nil {
			// Fail open: a malformed document must not break live validation.
			slog.Error("rule document failed to parse, keeping stale rule set",
				"tenant", tenantID, "rule_type", ruleType, "error", err)
			return e.set, nil
		}
		return nil, err
	}

	e.set = parsed
	e.fingerprint = fp
	slog.Info("loaded rule set", "tenant", tenantID, "rule_type", ruleType,
		"source_tenant", sourceTenant, "fingerprint", fp[:12])
	return parsed, nil
}

// Put validates and stores a new rule document for the tenant, replacing the
// cached entry immediately on success.
//
// # Outputs
//
//   - error: ErrWriteRejected for the default tenant, a *RuleSetError
//     (wrapping ErrInvalidRuleSet) when the document fails validation, or a
//     source error. On any error the previous rule set remains in effect.
func (s *Store) Put(ctx context.Context, tenantID string, ruleType datatypes.RuleType, raw []byte) error {
	if tenantID == datatypes.DefaultTenant {
		return ErrWriteRejected
	}
	if !datatypes.ValidRuleType(ruleType) {
		return fmt.Errorf("%w: %q", ErrUnknownRuleType, ruleType)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Same parse path as Get: a document that cannot be served is never
	// written.
	parsed, err := ParseRuleSet(tenantID, ruleType, raw)
	if err != nil {
		return err
	}

	e := s.entry(cacheKey{tenantID, ruleType})
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.source.Store(tenantID, ruleType, raw); err != nil {
		return fmt.Errorf("store rule document: %w", err)
	}

	e.set = parsed
	e.fingerprint = parsed.Fingerprint
	slog.Info("stored rule set", "tenant", tenantID, "rule_type", ruleType,
		"fingerprint", parsed.Fingerprint[:12])
	return nil
}

// Invalidate drops the cached entry for (tenantID, ruleType). The next Get
// reloads from the source.
func (s *Store) Invalidate(tenantID string, ruleType datatypes.RuleType) {
	s.mu.Lock()
	e, ok := s.entries[cacheKey{tenantID, ruleType}]
	s.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.set = nil
	e.fingerprint = ""
	e.mu.Unlock()
}

// InvalidateAll drops every cached entry. Used when the default tenant's
// documents change, since any tenant may be serving from the fallback.
func (s *Store) InvalidateAll() {
	s.mu.Lock()
	entries := make([]*cacheEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()
	for _, e := range entries {
		e.mu.Lock()
		e.set = nil
		e.fingerprint = ""
		e.mu.Unlock()
	}
}
