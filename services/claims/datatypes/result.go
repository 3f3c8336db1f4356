// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// =============================================================================
// Rule findings
// =============================================================================

// Severity grades a rule finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
)

// FindingSource identifies which deterministic stage produced a finding.
type FindingSource string

const (
	SourceTechnical   FindingSource = "technical"
	SourceDataQuality FindingSource = "data_quality"
)

// RuleFinding is a single failed deterministic check.
type RuleFinding struct {
	RuleID    string        `json:"rule_id"`
	Rule      string        `json:"rule"`
	Reference string        `json:"rule_reference,omitempty"`
	Detail    string        `json:"detail"`
	Severity  Severity      `json:"severity"`
	Source    FindingSource `json:"source"`
}

// PassedRule records a deterministic check that succeeded. Passed rules are
// not persisted on the result; they exist to ground the LLM prompt so the
// model does not re-litigate checks that already ran.
type PassedRule struct {
	Rule      string `json:"rule"`
	Reference string `json:"rule_reference,omitempty"`
	Detail    string `json:"detail"`
}

// TechnicalFindings filters findings down to those produced by the technical
// rule engine.
func TechnicalFindings(findings []RuleFinding) []RuleFinding {
	var out []RuleFinding
	for _, f := range findings {
		if f.Source == SourceTechnical {
			out = append(out, f)
		}
	}
	return out
}

// =============================================================================
// LLM verdicts
// =============================================================================

// RuleStatus is one PASS/FAIL line reported by the LLM for a named rule.
type RuleStatus struct {
	Rule   string `json:"rule"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// LLMVerdict is the parsed output of one LLM evaluation attempt.
//
// TechnicalStatus is advisory only: the aggregator never lets it clear a
// deterministic technical finding. MedicalStatus is authoritative for the
// medical side of the verdict.
type LLMVerdict struct {
	TechnicalStatus   string       `json:"technical_status"`
	MedicalStatus     string       `json:"medical_status"`
	OverallStatus     string       `json:"overall_status,omitempty"`
	ExecutiveSummary  string       `json:"executive_summary,omitempty"`
	Explanation       string       `json:"explanation"`
	RecommendedAction string       `json:"recommended_action,omitempty"`
	Confidence        float64      `json:"confidence"`
	TechnicalRules    []RuleStatus `json:"technical_rules_status,omitempty"`
	MedicalRules      []RuleStatus `json:"medical_rules_status,omitempty"`

	// Unavailable marks a degraded verdict produced after the LLM could not
	// be reached or never returned a parseable response. A degraded verdict
	// carries no medical signal.
	Unavailable       bool   `json:"unavailable,omitempty"`
	UnavailableReason string `json:"unavailable_reason,omitempty"`
}

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
)

// MedicalFailed reports whether the verdict carries an authoritative medical
// failure. Degraded verdicts never fail medically.
func (v *LLMVerdict) MedicalFailed() bool {
	return v != nil && !v.Unavailable && v.MedicalStatus == StatusFail
}

// =============================================================================
// Validation results
// =============================================================================

// ValidationResult is the single authoritative per-claim outcome. It is
// written exactly once per pipeline run; re-running the pipeline for the same
// claim overwrites the previous result rather than appending to it.
type ValidationResult struct {
	ClaimID           string        `json:"claim_id"`
	TenantID          string        `json:"tenant_id"`
	BatchID           string        `json:"batch_id"`
	Status            ClaimStatus   `json:"status"`
	ErrorType         ErrorType     `json:"error_type"`
	Findings          []RuleFinding `json:"findings,omitempty"`
	LLMExplanation    string        `json:"llm_explanation,omitempty"`
	RecommendedAction string        `json:"recommended_action,omitempty"`
	LLMConfidence     float64       `json:"llm_confidence"`
	LLMEvaluated      bool          `json:"llm_evaluated"`
	RetrievedRuleIDs  []string      `json:"retrieved_rule_ids,omitempty"`
	ProcessedAt       time.Time     `json:"processed_at,omitempty"`
}
