// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vectorstore

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
)

// RuleChunkClass is the Weaviate class holding rule document chunks.
const RuleChunkClass = "RuleChunk"

// RuleChunk is one write-once chunk of a tenant's rule document, with its
// embedding vector.
type RuleChunk struct {
	TenantID    string
	RuleType    datatypes.RuleType
	ChunkIndex  int
	Content     string
	ContentHash string
	Source      string
	Vector      []float32
}

// SearchResult is one retrieved chunk with its similarity score.
type SearchResult struct {
	Content     string
	ContentHash string
	Source      string
	ChunkIndex  int
	Certainty   float64
}

// ruleChunkSchema returns the class definition for rule chunks. Vectors are
// provided by the embedder, never computed server-side.
func ruleChunkSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       RuleChunkClass,
		Description: "A chunk of a tenant's medical or technical rule document.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:            "tenant_id",
				DataType:        []string{"text"},
				Description:     "Owning tenant. Every search is restricted to one tenant.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "rule_type",
				DataType:        []string{"text"},
				Description:     "technical or medical.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "chunk_index",
				DataType:        []string{"int"},
				Description:     "Position of the chunk within its source document.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "The chunk text as embedded.",
				Tokenization: "word",
			},
			{
				Name:            "content_hash",
				DataType:        []string{"text"},
				Description:     "SHA-256 of the chunk content, used for dedup.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "source",
				DataType:        []string{"text"},
				Description:     "Document the chunk was split from.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
		},
	}
}

// Index is the tenant-scoped vector index over rule document chunks.
//
// # Description
//
// All operations go through the resilient client, so callers inherit retry,
// circuit breaking, and degraded-mode behavior. Chunks are write-once:
// re-ingesting a document replaces its chunks wholesale via deterministic
// content-addressed IDs.
//
// Thread Safety: Safe for concurrent use.
type Index struct {
	rc     *ResilientClient
	logger *slog.Logger
}

// NewIndex creates an index over rc.
func NewIndex(rc *ResilientClient, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{rc: rc, logger: logger.With(slog.String("component", "vector_index"))}
}

// EnsureSchema creates the RuleChunk class if it does not exist.
func (ix *Index) EnsureSchema(ctx context.Context) error {
	return ix.rc.Execute(ctx, func() error {
		exists, err := ix.rc.Client().Schema().ClassExistenceChecker().
			WithClassName(RuleChunkClass).Do(ctx)
		if err != nil {
			return fmt.Errorf("check class existence: %w", err)
		}
		if exists {
			ix.logger.Info("schema already exists", slog.String("class", RuleChunkClass))
			return nil
		}
		if err := ix.rc.Client().Schema().ClassCreator().
			WithClass(ruleChunkSchema()).Do(ctx); err != nil {
			return fmt.Errorf("create class %s: %w", RuleChunkClass, err)
		}
		ix.logger.Info("created schema", slog.String("class", RuleChunkClass))
		return nil
	})
}

// chunkID derives a deterministic object ID from the chunk's identity, so
// re-ingesting the same document overwrites instead of duplicating.
func chunkID(c RuleChunk) strfmt.UUID {
	hash := sha256.Sum256([]byte(c.TenantID + "\x00" + string(c.RuleType) + "\x00" + c.ContentHash))
	id, _ := uuid.FromBytes(hash[:16])
	return strfmt.UUID(id.String())
}

// InsertChunks writes chunks in one batch request.
//
// # Outputs
//
//   - int: Number of chunks successfully written. Partial failures are
//     logged per item, matching the batcher's per-object result model.
//   - error: Non-nil only when the batch request itself fails.
func (ix *Index) InsertChunks(ctx context.Context, chunks []RuleChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	objects := make([]*models.Object, len(chunks))
	for i, c := range chunks {
		objects[i] = &models.Object{
			Class:  RuleChunkClass,
			ID:     chunkID(c),
			Vector: c.Vector,
			Properties: map[string]interface{}{
				"tenant_id":    c.TenantID,
				"rule_type":    string(c.RuleType),
				"chunk_index":  c.ChunkIndex,
				"content":      c.Content,
				"content_hash": c.ContentHash,
				"source":       c.Source,
			},
		}
	}

	var created int
	err := ix.rc.Execute(ctx, func() error {
		resp, err := ix.rc.Client().Batch().ObjectsBatcher().
			WithObjects(objects...).Do(ctx)
		if err != nil {
			return fmt.Errorf("batch import: %w", err)
		}

		created = 0
		for _, item := range resp {
			if item.Result != nil && item.Result.Status != nil && *item.Result.Status == "SUCCESS" {
				created++
				continue
			}
			if item.Result != nil && item.Result.Errors != nil {
				for _, errItem := range item.Result.Errors.Error {
					ix.logger.Warn("batch item failed", slog.String("error", errItem.Message))
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if created < len(chunks) {
		ix.logger.Warn("partial batch import",
			slog.Int("requested", len(chunks)), slog.Int("created", created))
	}
	return created, nil
}

// Search runs a near-vector query restricted to one tenant's chunks.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - tenantID: Tenant whose chunks are searched. Other tenants' chunks are
//     invisible regardless of similarity.
//   - vector: Query embedding.
//   - limit: Maximum results.
//
// # Outputs
//
//   - []SearchResult: Results ordered by certainty, best first. Empty when
//     the tenant has no chunks.
//   - error: ErrUnavailable or ErrCircuitOpen when the index is down.
func (ix *Index) Search(ctx context.Context, tenantID string, vector []float32, limit int) ([]SearchResult, error) {
	tenantFilter := filters.Where().
		WithPath([]string{"tenant_id"}).
		WithOperator(filters.Equal).
		WithValueString(tenantID)

	nearVector := ix.rc.Client().GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	// Certainty is requested instead of distance: always in [0,1] regardless
	// of the distance metric.
	fields := []graphql.Field{
		{Name: "tenant_id"},
		{Name: "rule_type"},
		{Name: "chunk_index"},
		{Name: "content"},
		{Name: "content_hash"},
		{Name: "source"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	var results []SearchResult
	err := ix.rc.Execute(ctx, func() error {
		resp, err := ix.rc.Client().GraphQL().Get().
			WithClassName(RuleChunkClass).
			WithFields(fields...).
			WithWhere(tenantFilter).
			WithNearVector(nearVector).
			WithLimit(limit).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("near-vector search: %w", err)
		}

		parsed, err := datatypes.ParseGraphQLResponse[datatypes.RuleChunkQueryResponse](resp)
		if err != nil {
			return fmt.Errorf("parse search results: %w", err)
		}

		results = results[:0]
		for _, r := range parsed.Get.RuleChunk {
			results = append(results, SearchResult{
				Content:     r.Content,
				ContentHash: r.ContentHash,
				Source:      r.Source,
				ChunkIndex:  r.ChunkIndex,
				Certainty:   r.Additional.Certainty,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// DeleteTenantChunks removes every chunk belonging to (tenantID, ruleType).
// Used before re-ingesting a replacement rule document.
func (ix *Index) DeleteTenantChunks(ctx context.Context, tenantID string, ruleType datatypes.RuleType) error {
	where := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			filters.Where().WithPath([]string{"tenant_id"}).
				WithOperator(filters.Equal).WithValueString(tenantID),
			filters.Where().WithPath([]string{"rule_type"}).
				WithOperator(filters.Equal).WithValueString(string(ruleType)),
		})

	return ix.rc.Execute(ctx, func() error {
		_, err := ix.rc.Client().Batch().ObjectsBatchDeleter().
			WithClassName(RuleChunkClass).
			WithWhere(where).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("delete tenant chunks: %w", err)
		}
		return nil
	})
}
