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
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/claimsgate/pkg/validation"
	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
	"github.com/AleutianAI/claimsgate/services/claims/vectorstore"
)

// ChunkWriter is the slice of the vector index the document handler needs.
type ChunkWriter interface {
	InsertChunks(ctx context.Context, chunks []vectorstore.RuleChunk) (int, error)
	DeleteTenantChunks(ctx context.Context, tenantID string, ruleType datatypes.RuleType) error
}

// IngestRuleDocumentRequest is the body of POST /v1/documents.
//
// Replace controls whether the tenant's existing chunks for this rule type
// are dropped first. Rule documents are uploaded whole, so replacement is
// the common case.
type IngestRuleDocumentRequest struct {
	TenantID string `json:"tenant_id"`
	RuleType string `json:"rule_type"`
	Source   string `json:"source"`
	Content  string `json:"content"`
	Replace  bool   `json:"replace"`
}

// IngestRuleDocument chunks a rule document, embeds each chunk, and writes
// the chunks into the vector index for the owning tenant.
func IngestRuleDocument(index ChunkWriter, embedder vectorstore.Embedder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req IngestRuleDocumentRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if req.TenantID == "" || req.Content == "" {
			c.JSON(http.StatusBadRequest,
				gin.H{"error": "tenant_id and content are required"})
			return
		}
		// The tenant id becomes a vector store filter value; reject anything
		// that would not survive as an identifier.
		if err := validation.ValidateTenantID(req.TenantID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ruleType := datatypes.RuleType(req.RuleType)
		if !datatypes.ValidRuleType(ruleType) {
			c.JSON(http.StatusBadRequest,
				gin.H{"error": "rule_type must be technical or medical"})
			return
		}

		ctx := c.Request.Context()

		chunks, err := vectorstore.ChunkDocument(req.TenantID, ruleType, req.Source, req.Content)
		if err != nil {
			slog.Error("Failed to chunk rule document", "tenant", req.TenantID,
				"source", req.Source, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to chunk document"})
			return
		}
		if len(chunks) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "document produced no chunks"})
			return
		}

		texts := make([]string, len(chunks))
		for i, ch := range chunks {
			texts[i] = ch.Content
		}
		vectors, err := embedder.Embed(ctx, texts)
		if err != nil {
			slog.Error("Failed to embed rule document", "tenant", req.TenantID,
				"source", req.Source, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "embedding service unavailable"})
			return
		}
		if len(vectors) != len(chunks) {
			c.JSON(http.StatusBadGateway,
				gin.H{"error": "embedding service returned wrong vector count"})
			return
		}
		for i := range chunks {
			chunks[i].Vector = vectors[i]
		}

		if req.Replace {
			if err := index.DeleteTenantChunks(ctx, req.TenantID, ruleType); err != nil {
				slog.Error("Failed to clear existing chunks", "tenant", req.TenantID,
					"rule_type", ruleType, "error", err)
				c.JSON(http.StatusInternalServerError,
					gin.H{"error": "failed to clear existing chunks"})
				return
			}
		}

		inserted, err := index.InsertChunks(ctx, chunks)
		if err != nil {
			slog.Error("Failed to insert chunks", "tenant", req.TenantID,
				"source", req.Source, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to index document"})
			return
		}

		slog.Info("Rule document ingested", "tenant", req.TenantID, "source", req.Source,
			"chunks_inserted", inserted)
		c.JSON(http.StatusCreated, gin.H{
			"status":          "success",
			"tenant_id":       req.TenantID,
			"source":          req.Source,
			"chunks_inserted": inserted,
		})
	}
}
