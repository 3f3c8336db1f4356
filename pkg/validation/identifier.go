// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for caller-provided identifiers that are
// used in file paths, vector store filters, or cache keys. Using these
// validators prevents injection attacks (path traversal, filter injection).
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// tenantIDPattern matches valid tenant identifiers.
// Allows: letters, digits, hyphens, underscores. Max length: 64 characters.
// Must start with an alphanumeric so relative-path tricks like ".." or
// "-rf" never reach the file system.
var tenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`)

// ValidateTenantID validates a tenant identifier before it is used as a
// directory name, cache key, or vector store filter value.
//
// Valid tenant ids:
//   - 1-64 characters
//   - Letters, digits, hyphens, underscores
//   - First character alphanumeric
//
// Returns an error if the id is invalid.
//
// Example:
//
//	if err := validation.ValidateTenantID(tenantID); err != nil {
//	    return nil, fmt.Errorf("invalid tenant: %w", err)
//	}
//	// Safe to use in file paths and filters
func ValidateTenantID(tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant id cannot be empty")
	}

	if !tenantIDPattern.MatchString(tenantID) {
		return fmt.Errorf("invalid tenant id format: %q (must be 1-64 alphanumeric chars, hyphens, or underscores)", tenantID)
	}

	return nil
}

// SanitizeTenantID normalizes and validates a tenant identifier.
// Returns the lowercase id if valid, or an error if invalid.
//
// Use this when you need both validation and normalization:
//
//	tenant, err := validation.SanitizeTenantID(userInput)
//	if err != nil {
//	    return err
//	}
//	// tenant is lowercase and validated
func SanitizeTenantID(tenantID string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(tenantID))
	if err := ValidateTenantID(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
