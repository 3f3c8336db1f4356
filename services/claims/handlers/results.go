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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/claimsgate/services/claims/persistence"
)

// GetResult serves the stored validation result for one claim.
func GetResult(store persistence.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.Param("tenant")
		claimID := c.Param("claim")

		result, err := store.GetResult(c.Request.Context(), tenantID, claimID)
		if err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "no result for claim"})
				return
			}
			slog.Error("Failed to load result", "tenant", tenantID,
				"claim", claimID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load result"})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// GetBatch serves a stored batch record together with its claim results.
func GetBatch(store persistence.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.Param("tenant")
		batchID := c.Param("batch")

		ctx := c.Request.Context()
		batch, err := store.GetBatch(ctx, tenantID, batchID)
		if err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "no such batch"})
				return
			}
			slog.Error("Failed to load batch", "tenant", tenantID,
				"batch", batchID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load batch"})
			return
		}

		results, err := store.ResultsForBatch(ctx, tenantID, batchID)
		if err != nil {
			slog.Error("Failed to load batch results", "tenant", tenantID,
				"batch", batchID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load batch results"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"batch": batch, "results": results})
	}
}
