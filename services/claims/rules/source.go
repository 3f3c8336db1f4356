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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/claimsgate/pkg/validation"
	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
)

// ErrNoSource is returned by a RuleSource when the tenant has no backing
// document for the requested rule type. The Store treats it as a signal to
// fall back to the default tenant.
var ErrNoSource = errors.New("no rule source for tenant")

// RuleSource abstracts the backing storage of rule documents. The Store only
// ever sees fingerprints and raw bytes, so the cache logic is independent of
// any particular file-system or object-store layout.
//
// Thread Safety: Implementations must be safe for concurrent use.
type RuleSource interface {
	// Fingerprint returns the content fingerprint for the tenant's document
	// without necessarily reading the whole document. Returns ErrNoSource if
	// the tenant has no document of this type.
	Fingerprint(tenantID string, ruleType datatypes.RuleType) (string, error)

	// Load returns the raw document and its fingerprint. Returns ErrNoSource
	// if the tenant has no document of this type.
	Load(tenantID string, ruleType datatypes.RuleType) ([]byte, string, error)

	// Store writes the raw document for the tenant, creating it if absent.
	Store(tenantID string, ruleType datatypes.RuleType, raw []byte) error
}

// =============================================================================
// File-backed source
// =============================================================================

// FileRuleSource serves rule documents from a directory tree laid out as
// <root>/<tenant_id>/<rule_type>_rules.json.
//
// Thread Safety: Safe for concurrent use; the file system provides the
// consistency, and fingerprints detect mid-flight changes.
type FileRuleSource struct {
	root string
}

// NewFileRuleSource creates a source rooted at dir.
func NewFileRuleSource(dir string) *FileRuleSource {
	return &FileRuleSource{root: dir}
}

func (s *FileRuleSource) path(tenantID string, ruleType datatypes.RuleType) (string, error) {
	// Tenant ids come from the API surface; reject anything that could
	// escape the rules root.
	if err := validation.ValidateTenantID(tenantID); err != nil {
		return "", err
	}
	return filepath.Join(s.root, tenantID, string(ruleType)+"_rules.json"), nil
}

// Fingerprint implements RuleSource.
func (s *FileRuleSource) Fingerprint(tenantID string, ruleType datatypes.RuleType) (string, error) {
	_, fp, err := s.Load(tenantID, ruleType)
	return fp, err
}

// Load implements RuleSource.
func (s *FileRuleSource) Load(tenantID string, ruleType datatypes.RuleType) ([]byte, string, error) {
	p, err := s.path(tenantID, ruleType)
	if err != nil {
		return nil, "", err
	}
	raw, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("%w: %s/%s", ErrNoSource, tenantID, ruleType)
	}
	if err != nil {
		return nil, "", fmt.Errorf("read rule document: %w", err)
	}
	return raw, Fingerprint(raw), nil
}

// Store implements RuleSource.
func (s *FileRuleSource) Store(tenantID string, ruleType datatypes.RuleType, raw []byte) error {
	p, err := s.path(tenantID, ruleType)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create tenant rule dir: %w", err)
	}
	if err := os.WriteFile(p, raw, 0o644); err != nil {
		return fmt.Errorf("write rule document: %w", err)
	}
	return nil
}

// =============================================================================
// Directory watcher
// =============================================================================

// Watcher invalidates Store cache entries when rule files change on disk.
// The fingerprint comparison in Store.Get already catches stale entries on
// the next read; the watcher just makes invalidation eager so a hand-edited
// file takes effect without waiting for a cache miss.
type Watcher struct {
	store   *Store
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher starts watching the rules directory tree rooted at dir.
//
// Outputs:
//
//	*Watcher - Running watcher. Call Close to stop it.
//	error - Non-nil if the underlying fsnotify watcher cannot be created.
func NewWatcher(store *Store, dir string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch rules dir: %w", err)
	}
	// Watch existing tenant subdirectories too; fsnotify is not recursive.
	entries, err := os.ReadDir(dir)
	if err == nil {
		for _, e := range entries {
			if e.IsDir() {
				_ = fw.Add(filepath.Join(dir, e.Name()))
			}
		}
	}

	w := &Watcher{store: store, watcher: fw, done: make(chan struct{})}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("rule watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	// A new tenant directory needs its own watch.
	if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
		_ = w.watcher.Add(ev.Name)
		return
	}

	tenantID := filepath.Base(filepath.Dir(ev.Name))
	base := filepath.Base(ev.Name)
	var ruleType datatypes.RuleType
	switch base {
	case "technical_rules.json":
		ruleType = datatypes.RuleTypeTechnical
	case "medical_rules.json":
		ruleType = datatypes.RuleTypeMedical
	default:
		return
	}

	slog.Info("rule document changed on disk, invalidating cache",
		"tenant", tenantID, "rule_type", ruleType, "op", ev.Op.String())
	w.store.Invalidate(tenantID, ruleType)
	if tenantID == datatypes.DefaultTenant {
		// Tenants served by the default fallback cache under their own key.
		w.store.InvalidateAll()
	}
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
