// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline orchestrates the claims validation stages: ingestion,
// data quality, technical rules, retrieval, LLM adjudication, and final
// aggregation into one authoritative result per claim.
package pipeline

import (
	"fmt"
)

// ClaimState tracks a claim's progress through the pipeline. Transitions are
// strictly forward; Errored is absorbing and reachable only from the
// ingestion and data quality stages (malformed rows). Aborted marks claims
// the batch never dispatched because processing was cancelled; it is not a
// processing failure and only the dispatch loop may assign it.
type ClaimState string

const (
	StateIngested             ClaimState = "ingested"
	StateDataQualityChecked   ClaimState = "data_quality_checked"
	StateTechnicallyEvaluated ClaimState = "technically_evaluated"
	StateRulesRetrieved       ClaimState = "rules_retrieved"
	StateLLMEvaluated         ClaimState = "llm_evaluated"
	StateAggregated           ClaimState = "aggregated"
	StateErrored              ClaimState = "errored"
	StateAborted              ClaimState = "aborted"
)

// nextState is the single legal successor of each non-terminal state.
var nextState = map[ClaimState]ClaimState{
	StateIngested:             StateDataQualityChecked,
	StateDataQualityChecked:   StateTechnicallyEvaluated,
	StateTechnicallyEvaluated: StateRulesRetrieved,
	StateRulesRetrieved:       StateLLMEvaluated,
	StateLLMEvaluated:         StateAggregated,
}

// Terminal reports whether the state admits no further transitions.
func (s ClaimState) Terminal() bool {
	return s == StateAggregated || s == StateErrored || s == StateAborted
}

// Advance returns the successor of s. Terminal states do not advance.
func (s ClaimState) Advance() (ClaimState, error) {
	next, ok := nextState[s]
	if !ok {
		return s, fmt.Errorf("claim state %q has no successor", s)
	}
	return next, nil
}

// CanFail reports whether the Errored state is reachable from s. Only the
// pre-technical stages can hard-fail a claim; everything later degrades.
func (s ClaimState) CanFail() bool {
	return s == StateIngested || s == StateDataQualityChecked
}
