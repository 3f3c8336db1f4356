// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval implements the multi-query RAG path that finds the rule
// document chunks relevant to one claim.
package retrieval

import (
	"context"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
	"github.com/AleutianAI/claimsgate/services/claims/vectorstore"
)

// perQueryResults is the result count requested for each individual query
// before merging and truncation.
const perQueryResults = 10

// Chunk is one retrieved rule document chunk, ranked by the best similarity
// it achieved across the query family.
type Chunk struct {
	Content     string
	ContentHash string
	Source      string
	Certainty   float64
}

// Searcher is the slice of the vector index the retriever needs.
type Searcher interface {
	Search(ctx context.Context, tenantID string, vector []float32, limit int) ([]vectorstore.SearchResult, error)
}

// Retriever runs the multi-query retrieval for a claim.
//
// # Description
//
// The query family from BuildQueries is embedded in one batch, each query
// searched against the tenant's chunks, and the merged results deduplicated
// by content hash with first occurrence winning. Final ranking is by the
// best certainty a chunk achieved across any query that found it.
//
// Retrieval degrades gracefully: an unavailable index yields an empty result
// and a log line, never a claim failure. The LLM stage carries an explicit
// no-rules marker in that case.
type Retriever struct {
	index    Searcher
	embedder vectorstore.Embedder
	logger   *slog.Logger
}

// NewRetriever creates a retriever over the given index and embedder.
func NewRetriever(index Searcher, embedder vectorstore.Embedder, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{index: index, embedder: embedder, logger: logger}
}

// Retrieve returns up to topK chunks relevant to claim, best ranked first.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - claim: The claim whose fields parameterize the query family.
//   - topK: Maximum chunks returned. Non-positive means no truncation.
//
// # Outputs
//
//   - []Chunk: Deduplicated, ranked chunks. Empty when the tenant has no
//     indexed rules or the index is unavailable.
//   - error: Only embedding failures surface as errors; index failures
//     degrade to an empty result.
func (r *Retriever) Retrieve(ctx context.Context, claim *datatypes.Claim, topK int) ([]Chunk, error) {
	ctx, span := otel.Tracer("claims.retrieval").Start(ctx, "retrieval.Retrieve",
		trace.WithAttributes(
			attribute.String("tenant_id", claim.TenantID),
			attribute.String("claim_id", claim.ClaimID),
			attribute.Int("top_k", topK),
		),
	)
	defer span.End()

	queries := BuildQueries(claim)
	span.SetAttributes(attribute.Int("query_count", len(queries)))

	vectors, err := r.embedder.Embed(ctx, queries)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return nil, err
	}

	type ranked struct {
		chunk Chunk
		order int
	}
	byHash := make(map[string]*ranked)
	var chunks []*ranked

	for i, vec := range vectors {
		results, err := r.index.Search(ctx, claim.TenantID, vec, perQueryResults)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Degraded index: whatever was merged so far still counts.
			r.logger.Warn("rule chunk search failed, degrading retrieval",
				"tenant", claim.TenantID, "claim", claim.ClaimID,
				"query_index", i, "error", err)
			span.AddEvent("search_degraded", trace.WithAttributes(
				attribute.Int("query_index", i)))
			break
		}

		for _, res := range results {
			if existing, ok := byHash[res.ContentHash]; ok {
				// First occurrence keeps its position; only the rank
				// improves.
				if res.Certainty > existing.chunk.Certainty {
					existing.chunk.Certainty = res.Certainty
				}
				continue
			}
			rk := &ranked{
				chunk: Chunk{
					Content:     res.Content,
					ContentHash: res.ContentHash,
					Source:      res.Source,
					Certainty:   res.Certainty,
				},
				order: len(chunks),
			}
			byHash[res.ContentHash] = rk
			chunks = append(chunks, rk)
		}
	}

	// Rank by best certainty, discovery order breaking ties.
	sort.SliceStable(chunks, func(a, b int) bool {
		if chunks[a].chunk.Certainty != chunks[b].chunk.Certainty {
			return chunks[a].chunk.Certainty > chunks[b].chunk.Certainty
		}
		return chunks[a].order < chunks[b].order
	})

	if topK > 0 && len(chunks) > topK {
		chunks = chunks[:topK]
	}

	out := make([]Chunk, len(chunks))
	for i, rk := range chunks {
		out[i] = rk.chunk
	}

	span.SetAttributes(attribute.Int("chunk_count", len(out)))
	span.SetStatus(codes.Ok, "retrieved")
	r.logger.Debug("retrieved rule chunks",
		"tenant", claim.TenantID, "claim", claim.ClaimID,
		"queries", len(queries), "chunks", len(out))
	return out, nil
}

// RuleIDs returns the content hashes of chunks, in rank order. Persisted on
// the validation result for auditability.
func RuleIDs(chunks []Chunk) []string {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ContentHash
	}
	return ids
}
