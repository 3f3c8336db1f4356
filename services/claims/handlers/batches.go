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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
	"github.com/AleutianAI/claimsgate/services/claims/pipeline"
)

// maxBatchRows caps one submission. Callers with more rows split batches.
const maxBatchRows = 5000

// SubmitBatchRequest is the body of POST /v1/batches.
type SubmitBatchRequest struct {
	TenantID string                  `json:"tenant_id"`
	Claims   []datatypes.RawClaimRow `json:"claims"`
}

// SubmitBatch runs one batch of claims through the validation pipeline and
// returns per-row results in input order.
func SubmitBatch(orc *pipeline.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SubmitBatchRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if req.TenantID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
			return
		}
		if len(req.Claims) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "claims must not be empty"})
			return
		}
		if len(req.Claims) > maxBatchRows {
			c.JSON(http.StatusRequestEntityTooLarge,
				gin.H{"error": "batch exceeds maximum row count"})
			return
		}

		result, err := orc.ProcessBatch(c.Request.Context(), req.TenantID, req.Claims)
		if err != nil {
			slog.Error("Batch processing failed", "tenant", req.TenantID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "batch processing failed"})
			return
		}

		slog.Info("Batch processed", "tenant", req.TenantID, "batch_id", result.BatchID,
			"total", result.Summary.Total, "validated", result.Summary.Validated,
			"duration", result.Duration)
		c.JSON(http.StatusOK, result)
	}
}
