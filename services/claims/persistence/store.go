// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package persistence stores validation results and batch records. The
// production implementation is an embedded BadgerDB; an in-memory
// implementation backs tests and ephemeral deployments.
package persistence

import (
	"context"
	"errors"

	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store persists per-claim results and batch records.
//
// SaveResult overwrites any previous result for the same tenant and claim
// id; re-submitting a claim replaces its result rather than appending.
type Store interface {
	SaveResult(ctx context.Context, result *datatypes.ValidationResult) error
	GetResult(ctx context.Context, tenantID, claimID string) (*datatypes.ValidationResult, error)
	SaveBatch(ctx context.Context, batch *datatypes.Batch) error
	GetBatch(ctx context.Context, tenantID, batchID string) (*datatypes.Batch, error)
	ResultsForBatch(ctx context.Context, tenantID, batchID string) ([]datatypes.ValidationResult, error)
	Close() error
}
