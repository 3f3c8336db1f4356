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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
)

// =============================================================================
// Prometheus Metrics for the Validation Pipeline
// =============================================================================

var (
	// claimsProcessed counts claims reaching a terminal state.
	// Labels: tenant, status (validated, not_validated, errored)
	claimsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "claimsgate",
		Subsystem: "pipeline",
		Name:      "claims_processed_total",
		Help:      "Total claims reaching a terminal state",
	}, []string{"tenant", "status"})

	// claimErrorTypes counts terminal error classifications.
	// Labels: tenant, error_type (no_error, technical, medical, both)
	claimErrorTypes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "claimsgate",
		Subsystem: "pipeline",
		Name:      "claim_error_types_total",
		Help:      "Total terminal claims by error classification",
	}, []string{"tenant", "error_type"})

	// llmOutcomes counts LLM evaluation outcomes.
	// Labels: tenant, outcome (evaluated, degraded)
	llmOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "claimsgate",
		Subsystem: "pipeline",
		Name:      "llm_outcomes_total",
		Help:      "Total LLM evaluation outcomes",
	}, []string{"tenant", "outcome"})

	// batchDuration measures wall time per batch.
	// Labels: tenant
	batchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "claimsgate",
		Subsystem: "pipeline",
		Name:      "batch_duration_seconds",
		Help:      "Batch processing wall time in seconds",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"tenant"})

	// batchAmounts tracks monetary totals per processed batch.
	// Labels: tenant, disposition (total, validated, rejected)
	batchAmounts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "claimsgate",
		Subsystem: "pipeline",
		Name:      "batch_amount_total",
		Help:      "Paid amount totals across processed batches",
	}, []string{"tenant", "disposition"})
)

func errorTypeLabel(t datatypes.ErrorType) string {
	switch t {
	case datatypes.ErrorNone:
		return "no_error"
	case datatypes.ErrorTechnical:
		return "technical"
	case datatypes.ErrorMedical:
		return "medical"
	case datatypes.ErrorBoth:
		return "both"
	}
	return "unknown"
}
