// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
	"github.com/AleutianAI/claimsgate/services/claims/rules"
)

// maxRuleDocumentBytes caps PUT bodies. Rule documents are hand-maintained
// JSON; anything past this is a mistake, not a rule set.
const maxRuleDocumentBytes = 4 << 20

// ruleParams extracts and validates the :tenant/:type path segments.
func ruleParams(c *gin.Context) (string, datatypes.RuleType, bool) {
	tenantID := c.Param("tenant")
	ruleType := datatypes.RuleType(c.Param("type"))
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant is required"})
		return "", "", false
	}
	if !datatypes.ValidRuleType(ruleType) {
		c.JSON(http.StatusBadRequest,
			gin.H{"error": "rule type must be technical or medical"})
		return "", "", false
	}
	return tenantID, ruleType, true
}

// GetRuleSet serves the rule document a tenant currently resolves to,
// including the default-tenant fallback. The fingerprint lets callers detect
// staleness without diffing documents.
func GetRuleSet(store *rules.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, ruleType, ok := ruleParams(c)
		if !ok {
			return
		}

		rs, err := store.Get(c.Request.Context(), tenantID, ruleType)
		if err != nil {
			if errors.Is(err, rules.ErrNoSource) {
				c.JSON(http.StatusNotFound, gin.H{"error": "no rule set for tenant"})
				return
			}
			slog.Error("Failed to load rule set", "tenant", tenantID,
				"rule_type", ruleType, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rule set"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"tenant_id":   rs.TenantID,
			"rule_type":   rs.Type,
			"fingerprint": rs.Fingerprint,
			"rules":       json.RawMessage(rs.Raw()),
		})
	}
}

// PutRuleSet replaces a tenant's rule document. The body goes through the
// same parse path the pipeline reads with, so a document that stores is a
// document that loads.
func PutRuleSet(store *rules.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, ruleType, ok := ruleParams(c)
		if !ok {
			return
		}

		raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRuleDocumentBytes+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}
		if len(raw) > maxRuleDocumentBytes {
			c.JSON(http.StatusRequestEntityTooLarge,
				gin.H{"error": "rule document exceeds size limit"})
			return
		}

		if err := store.Put(c.Request.Context(), tenantID, ruleType, raw); err != nil {
			var rsErr *rules.RuleSetError
			switch {
			case errors.Is(err, rules.ErrWriteRejected):
				c.JSON(http.StatusForbidden,
					gin.H{"error": "default tenant rule sets are read-only"})
			case errors.As(err, &rsErr):
				c.JSON(http.StatusBadRequest,
					gin.H{"error": "invalid rule set", "key": rsErr.Key, "detail": rsErr.Reason})
			case errors.Is(err, rules.ErrInvalidRuleSet):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			default:
				slog.Error("Failed to store rule set", "tenant", tenantID,
					"rule_type", ruleType, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store rule set"})
			}
			return
		}

		slog.Info("Rule set updated", "tenant", tenantID, "rule_type", ruleType)
		c.JSON(http.StatusOK, gin.H{
			"status":      "success",
			"tenant_id":   tenantID,
			"rule_type":   ruleType,
			"fingerprint": rules.Fingerprint(raw),
		})
	}
}

// InvalidateRuleSet drops the cached entry so the next Get reloads from the
// backing source.
func InvalidateRuleSet(store *rules.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, ruleType, ok := ruleParams(c)
		if !ok {
			return
		}
		store.Invalidate(tenantID, ruleType)
		c.JSON(http.StatusOK, gin.H{"status": "invalidated"})
	}
}
