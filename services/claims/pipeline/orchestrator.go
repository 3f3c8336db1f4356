// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
	"github.com/AleutianAI/claimsgate/services/claims/evaluator"
	"github.com/AleutianAI/claimsgate/services/claims/quality"
	"github.com/AleutianAI/claimsgate/services/claims/retrieval"
	"github.com/AleutianAI/claimsgate/services/claims/rules"
)

// =============================================================================
// Collaborator interfaces
// =============================================================================

// RuleStore is the slice of the rule configuration store the pipeline needs.
type RuleStore interface {
	Get(ctx context.Context, tenantID string, ruleType datatypes.RuleType) (*rules.RuleSet, error)
}

// ChunkRetriever finds the rule chunks relevant to one claim.
type ChunkRetriever interface {
	Retrieve(ctx context.Context, claim *datatypes.Claim, topK int) ([]retrieval.Chunk, error)
}

// Adjudicator runs the LLM evaluation for one claim.
type Adjudicator interface {
	Evaluate(ctx context.Context, in evaluator.PromptInput) (*datatypes.LLMVerdict, error)
}

// ResultStore persists terminal results and batch records. Persistence
// failures are logged, never fatal; the batch response still carries every
// result.
type ResultStore interface {
	SaveResult(ctx context.Context, result *datatypes.ValidationResult) error
	SaveBatch(ctx context.Context, batch *datatypes.Batch) error
}

// =============================================================================
// Configuration
// =============================================================================

// Config controls batch processing.
type Config struct {
	// Workers bounds concurrent per-claim pipelines. The LLM provider is
	// the dominant external resource, so this is effectively the LLM
	// concurrency limit.
	Workers int

	// TopK is the retrieval result budget per claim.
	TopK int

	// RetrievalTimeout and LLMTimeout bound the two suspension points of a
	// claim's pipeline.
	RetrievalTimeout time.Duration
	LLMTimeout       time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Workers:          4,
		TopK:             15,
		RetrievalTimeout: 10 * time.Second,
		LLMTimeout:       90 * time.Second,
	}
}

// Validate checks configuration sanity.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.TopK < 0 {
		return fmt.Errorf("topK must not be negative, got %d", c.TopK)
	}
	return nil
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Workers == 0 {
		c.Workers = d.Workers
	}
	if c.TopK == 0 {
		c.TopK = d.TopK
	}
	if c.RetrievalTimeout == 0 {
		c.RetrievalTimeout = d.RetrievalTimeout
	}
	if c.LLMTimeout == 0 {
		c.LLMTimeout = d.LLMTimeout
	}
}

// =============================================================================
// Orchestrator
// =============================================================================

// Orchestrator runs the full validation pipeline for batches of raw claim
// rows.
//
// # Description
//
// Ingestion runs first and assigns every row a claim identity; afterwards
// each claim's remaining pipeline is dispatched independently onto a bounded
// worker pool. Claims are processed in isolation: one claim's outage or
// degradation never blocks its siblings, and every row yields exactly one
// result in input order.
//
// Cancelling the batch context stops dispatch of not-yet-started claims;
// in-flight LLM calls run to completion under their own timeout so partial
// work is not wasted.
//
// # Thread Safety
//
// ProcessBatch may be called concurrently; all per-batch state is local.
type Orchestrator struct {
	cfg       Config
	rules     RuleStore
	engine    *rules.Engine
	quality   *quality.Validator
	retriever ChunkRetriever
	evaluator Adjudicator
	store     ResultStore
	logger    *slog.Logger
	now       func() time.Time
}

// NewOrchestrator wires the pipeline stages together. The result store may
// be nil for callers that only need the in-memory batch response.
func NewOrchestrator(
	cfg Config,
	ruleStore RuleStore,
	retriever ChunkRetriever,
	adjudicator Adjudicator,
	store ResultStore,
	logger *slog.Logger,
) (*Orchestrator, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:       cfg,
		rules:     ruleStore,
		engine:    rules.NewEngine(),
		quality:   quality.NewValidator(),
		retriever: retriever,
		evaluator: adjudicator,
		store:     store,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// BatchSummary aggregates the terminal outcomes of one batch.
type BatchSummary struct {
	Total         int     `json:"total"`
	Validated     int     `json:"validated"`
	NotValidated  int     `json:"not_validated"`
	Errored       int     `json:"errored"`
	Aborted       int     `json:"aborted"`
	TotalPaid     float64 `json:"total_paid"`
	ValidatedPaid float64 `json:"validated_paid"`
	RejectedPaid  float64 `json:"rejected_paid"`
}

// BatchResult is the response for one processed batch. Results preserve
// input row order.
type BatchResult struct {
	BatchID  string                       `json:"batch_id"`
	TenantID string                       `json:"tenant_id"`
	Results  []datatypes.ValidationResult `json:"results"`
	Summary  BatchSummary                 `json:"summary"`
	Duration time.Duration                `json:"duration"`
}

// ProcessBatch runs the pipeline over a batch of raw rows.
//
// # Inputs
//   - ctx: cancellation stops dispatch of not-yet-started claims
//   - tenantID: owner of the batch
//   - rows: raw claim rows, one result produced per row
//
// # Outputs
//   - *BatchResult: per-row results in input order plus summary
//   - error: only for an empty batch or missing tenant
func (o *Orchestrator) ProcessBatch(ctx context.Context, tenantID string, rows []datatypes.RawClaimRow) (*BatchResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("batch carries no rows")
	}

	tracer := otel.Tracer("claims.pipeline")
	ctx, span := tracer.Start(ctx, "pipeline.ProcessBatch")
	defer span.End()

	start := o.now()
	batchID := uuid.NewString()
	span.SetAttributes(
		attribute.String("batch.id", batchID),
		attribute.String("tenant.id", tenantID),
		attribute.Int("batch.rows", len(rows)),
	)
	o.logger.Info("processing batch",
		"batch_id", batchID,
		"tenant_id", tenantID,
		"rows", len(rows))

	type job struct {
		claim *datatypes.Claim
		row   datatypes.RawClaimRow
	}

	results := make([]datatypes.ValidationResult, len(rows))
	states := make([]ClaimState, len(rows))
	jobs := make([]job, len(rows))
	amounts := make([]float64, len(rows))
	seen := make(map[string]struct{}, len(rows))

	for i, row := range rows {
		claim, err := ingestRow(row, tenantID, batchID, i, seen)
		if err != nil {
			states[i] = StateErrored
			results[i] = datatypes.ValidationResult{
				ClaimID:        fmt.Sprintf("%s_%d", batchID, i),
				TenantID:       tenantID,
				BatchID:        batchID,
				Status:         datatypes.StatusNotValidated,
				Findings:       []datatypes.RuleFinding{errorFinding(err.Error())},
				LLMExplanation: "Row could not be ingested; no validation was attempted.",
			}
			results[i].ProcessedAt = o.now().UTC()
			o.logger.Warn("row rejected during ingestion", "batch_id", batchID, "row", i, "error", err)
			continue
		}
		states[i] = StateIngested
		jobs[i] = job{claim: claim, row: row}
		amounts[i] = claim.PaidAmount
	}

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.Workers)
	for i := range jobs {
		if jobs[i].claim == nil {
			continue
		}
		if ctx.Err() != nil {
			// Batch aborted: claims not yet dispatched stay unprocessed
			// but still carry an explicit terminal result. Errored is
			// reserved for rows that failed ingestion or data quality,
			// so these get their own disposition.
			states[i] = StateAborted
			results[i] = o.abortedResult(jobs[i].claim)
			continue
		}
		i := i
		g.Go(func() error {
			results[i], states[i] = o.processClaim(ctx, jobs[i].claim, jobs[i].row)
			return nil
		})
	}
	_ = g.Wait()

	summary := o.finishBatch(ctx, tenantID, batchID, results, states, amounts)
	duration := o.now().Sub(start)
	batchDuration.WithLabelValues(tenantID).Observe(duration.Seconds())

	return &BatchResult{
		BatchID:  batchID,
		TenantID: tenantID,
		Results:  results,
		Summary:  summary,
		Duration: duration,
	}, nil
}

// processClaim runs one claim through data quality, technical rules,
// retrieval, LLM adjudication, and aggregation.
func (o *Orchestrator) processClaim(ctx context.Context, claim *datatypes.Claim, row datatypes.RawClaimRow) (datatypes.ValidationResult, ClaimState) {
	tracer := otel.Tracer("claims.pipeline")
	ctx, span := tracer.Start(ctx, "pipeline.processClaim")
	defer span.End()
	span.SetAttributes(attribute.String("claim.id", claim.ClaimID))

	state := StateIngested

	dqFindings := o.quality.Validate(row)
	state, _ = state.Advance()

	var techFindings []datatypes.RuleFinding
	var passed []datatypes.PassedRule
	rs, err := o.rules.Get(ctx, claim.TenantID, datatypes.RuleTypeTechnical)
	if err != nil {
		o.logger.Warn("technical rule set unavailable, skipping technical checks",
			"claim_id", claim.ClaimID, "error", err)
	} else {
		techFindings, passed = o.engine.Evaluate(claim, rs.Technical)
	}
	state, _ = state.Advance()

	// A nil retriever means the service runs without a vector store; claims
	// are adjudicated with no retrieved rule context.
	var chunks []retrieval.Chunk
	if o.retriever != nil {
		rctx, rcancel := context.WithTimeout(ctx, o.cfg.RetrievalTimeout)
		chunks, err = o.retriever.Retrieve(rctx, claim, o.cfg.TopK)
		rcancel()
		if err != nil {
			o.logger.Warn("retrieval failed, adjudicating without rules",
				"claim_id", claim.ClaimID, "error", err)
			chunks = nil
		} else if len(chunks) == 0 {
			o.logger.Info("no rules retrieved for claim", "claim_id", claim.ClaimID)
		}
	}
	state, _ = state.Advance()

	// The LLM call survives batch cancellation: an in-flight request runs to
	// completion under its own timeout.
	lctx, lcancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.LLMTimeout)
	verdict, err := o.evaluator.Evaluate(lctx, evaluator.PromptInput{
		Claim:           claim,
		Technical:       techFindings,
		TechnicalPassed: passed,
		DataQuality:     dqFindings,
		Chunks:          chunks,
	})
	lcancel()
	if err != nil || verdict == nil {
		verdict = &datatypes.LLMVerdict{
			Unavailable:       true,
			UnavailableReason: fmt.Sprintf("evaluation aborted: %v", err),
			Explanation:       "LLM evaluation unavailable; deterministic findings stand unmodified.",
		}
	}
	state, _ = state.Advance()

	if verdict.Unavailable {
		llmOutcomes.WithLabelValues(claim.TenantID, "degraded").Inc()
	} else {
		llmOutcomes.WithLabelValues(claim.TenantID, "evaluated").Inc()
	}

	result := Merge(claim, techFindings, dqFindings, verdict, retrieval.RuleIDs(chunks))
	result.ProcessedAt = o.now().UTC()
	state, _ = state.Advance()

	return result, state
}

// abortedResult is the terminal result for claims whose dispatch was stopped
// by batch cancellation.
func (o *Orchestrator) abortedResult(claim *datatypes.Claim) datatypes.ValidationResult {
	return datatypes.ValidationResult{
		ClaimID:        claim.ClaimID,
		TenantID:       claim.TenantID,
		BatchID:        claim.BatchID,
		Status:         datatypes.StatusNotValidated,
		LLMExplanation: "Batch was aborted before this claim was processed.",
		ProcessedAt:    o.now().UTC(),
	}
}

// finishBatch persists results, records metrics, and builds the summary.
func (o *Orchestrator) finishBatch(ctx context.Context, tenantID, batchID string, results []datatypes.ValidationResult, states []ClaimState, amounts []float64) BatchSummary {
	summary := BatchSummary{Total: len(results)}
	claimIDs := make([]string, 0, len(results))

	for i := range results {
		r := &results[i]
		claimIDs = append(claimIDs, r.ClaimID)
		summary.TotalPaid += amounts[i]

		switch {
		case states[i] == StateErrored:
			summary.Errored++
			summary.RejectedPaid += amounts[i]
			claimsProcessed.WithLabelValues(tenantID, "errored").Inc()
		case states[i] == StateAborted:
			summary.Aborted++
			summary.RejectedPaid += amounts[i]
			claimsProcessed.WithLabelValues(tenantID, "aborted").Inc()
		case r.Status == datatypes.StatusValidated:
			summary.Validated++
			summary.ValidatedPaid += amounts[i]
			claimsProcessed.WithLabelValues(tenantID, "validated").Inc()
		default:
			summary.NotValidated++
			summary.RejectedPaid += amounts[i]
			claimsProcessed.WithLabelValues(tenantID, "not_validated").Inc()
		}
		claimErrorTypes.WithLabelValues(tenantID, errorTypeLabel(r.ErrorType)).Inc()

		if o.store != nil {
			if err := o.store.SaveResult(ctx, r); err != nil {
				o.logger.Error("failed to persist result",
					"claim_id", r.ClaimID, "batch_id", batchID, "error", err)
			}
		}
	}

	batchAmounts.WithLabelValues(tenantID, "total").Add(summary.TotalPaid)
	batchAmounts.WithLabelValues(tenantID, "validated").Add(summary.ValidatedPaid)
	batchAmounts.WithLabelValues(tenantID, "rejected").Add(summary.RejectedPaid)

	if o.store != nil {
		processedAt := o.now().UTC()
		batch := &datatypes.Batch{
			BatchID:     batchID,
			TenantID:    tenantID,
			ClaimIDs:    claimIDs,
			CreatedAt:   processedAt,
			ProcessedAt: &processedAt,
		}
		if err := o.store.SaveBatch(ctx, batch); err != nil {
			o.logger.Error("failed to persist batch", "batch_id", batchID, "error", err)
		}
	}

	return summary
}
