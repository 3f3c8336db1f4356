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
	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
)

// Merge reconciles the deterministic and LLM signals for one claim into a
// single authoritative result.
//
// # Description
//
// Deterministic technical findings dominate: the error type includes
// TechnicalError whenever the technical engine produced findings, no matter
// what technical status the LLM reported. The LLM's medical verdict solely
// controls MedicalError membership; a degraded (unavailable) verdict carries
// no medical signal. Data quality findings of error or critical severity
// block validation without contributing to the error type, which only
// classifies technical and medical rule failures.
//
// Merge is pure: identical inputs produce byte-identical results.
// ProcessedAt is stamped by the caller before persistence.
//
// # Inputs
//   - claim: the ingested claim
//   - technical: findings from the technical rule engine
//   - dataQuality: findings from the data quality validator
//   - verdict: parsed or degraded LLM verdict, nil when the LLM stage was
//     skipped entirely
//   - retrievedIDs: content hashes of the chunks used for adjudication
//
// # Outputs
//   - datatypes.ValidationResult: the merged result
func Merge(
	claim *datatypes.Claim,
	technical []datatypes.RuleFinding,
	dataQuality []datatypes.RuleFinding,
	verdict *datatypes.LLMVerdict,
	retrievedIDs []string,
) datatypes.ValidationResult {
	hasTechnical := len(technical) > 0
	medicalFailed := verdict.MedicalFailed()

	errType := datatypes.ErrorNone
	switch {
	case hasTechnical && medicalFailed:
		errType = datatypes.ErrorBoth
	case hasTechnical:
		errType = datatypes.ErrorTechnical
	case medicalFailed:
		errType = datatypes.ErrorMedical
	}

	status := datatypes.StatusValidated
	if errType != datatypes.ErrorNone || blockingDataQuality(dataQuality) {
		status = datatypes.StatusNotValidated
	}

	findings := make([]datatypes.RuleFinding, 0, len(technical)+len(dataQuality))
	findings = append(findings, technical...)
	findings = append(findings, dataQuality...)
	if len(findings) == 0 {
		findings = nil
	}

	result := datatypes.ValidationResult{
		ClaimID:   claim.ClaimID,
		TenantID:  claim.TenantID,
		BatchID:   claim.BatchID,
		Status:    status,
		ErrorType: errType,
		Findings:  findings,
	}

	if verdict != nil {
		result.LLMEvaluated = !verdict.Unavailable
		result.LLMConfidence = verdict.Confidence
		result.LLMExplanation = explanationFor(verdict)
		result.RecommendedAction = verdict.RecommendedAction
		result.RetrievedRuleIDs = retrievedIDs
	}
	return result
}

// blockingDataQuality reports whether any data quality finding is severe
// enough to withhold validation. Warnings pass through informationally.
func blockingDataQuality(findings []datatypes.RuleFinding) bool {
	for _, f := range findings {
		if f.Severity == datatypes.SeverityError || f.Severity == datatypes.SeverityCritical {
			return true
		}
	}
	return false
}

// explanationFor flattens the verdict into the audit explanation. Degraded
// verdicts state unavailability explicitly so the result never reads as a
// silent pass.
func explanationFor(v *datatypes.LLMVerdict) string {
	if v.Unavailable {
		if v.Explanation != "" {
			return v.Explanation
		}
		return "LLM evaluation unavailable: " + v.UnavailableReason
	}
	if v.ExecutiveSummary != "" && v.Explanation != "" {
		return "EXECUTIVE SUMMARY:\n" + v.ExecutiveSummary + "\n\nDETAILED EXPLANATION:\n" + v.Explanation
	}
	if v.ExecutiveSummary != "" {
		return v.ExecutiveSummary
	}
	return v.Explanation
}

// errorFinding is the single finding attached to claims whose rows could not
// be ingested at all.
func errorFinding(detail string) datatypes.RuleFinding {
	return datatypes.RuleFinding{
		RuleID:   "ING-001",
		Rule:     "Row Ingestion",
		Detail:   detail,
		Severity: datatypes.SeverityCritical,
		Source:   datatypes.SourceDataQuality,
	}
}
