// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evaluator

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
	"github.com/AleutianAI/claimsgate/services/claims/retrieval"
)

func promptClaim() *datatypes.Claim {
	return &datatypes.Claim{
		ClaimID:        "CLM-001",
		TenantID:       "acme",
		EncounterType:  datatypes.EncounterOutpatient,
		ServiceDate:    time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		ServiceCode:    "SRV2007",
		DiagnosisCodes: []string{"E11.9", "J45.0"},
		FacilityID:     "FAC-77",
		MemberID:       "MBR-42",
		NationalID:     "NAT-9",
		UniqueID:       "NATX-MBRX-FACX",
		PaidAmountRaw:  "1200.00",
		ApprovalNumber: "APP-555",
	}
}

// TestBuildPrompt_ClaimFields verifies every claim field appears in the
// claim block.
func TestBuildPrompt_ClaimFields(t *testing.T) {
	p := BuildPrompt(PromptInput{Claim: promptClaim()})

	assert.Contains(t, p, "Claim ID: CLM-001")
	assert.Contains(t, p, "Encounter Type: OUTPATIENT")
	assert.Contains(t, p, "Service Date: 2025-03-14")
	assert.Contains(t, p, "Service Code: SRV2007")
	assert.Contains(t, p, "Diagnosis Codes: E11.9, J45.0")
	assert.Contains(t, p, "Facility ID: FAC-77")
	assert.Contains(t, p, "Paid Amount: 1200.00")
	assert.Contains(t, p, "Approval Number: APP-555")
}

// TestBuildPrompt_TechnicalFindings verifies findings flip the technical
// instruction from forced PASS to forced FAIL.
func TestBuildPrompt_TechnicalFindings(t *testing.T) {
	clean := BuildPrompt(PromptInput{Claim: promptClaim()})
	assert.Contains(t, clean, "TECHNICAL ERRORS: None detected")
	assert.Contains(t, clean, "TECHNICAL_VALIDATION must be PASS")

	failing := BuildPrompt(PromptInput{
		Claim: promptClaim(),
		Technical: []datatypes.RuleFinding{{
			RuleID:    "TECH-001",
			Rule:      "Service Approval Requirement",
			Detail:    "Service SRV2007 requires approval",
			Reference: "Technical Rules Section 1",
			Severity:  datatypes.SeverityCritical,
			Source:    datatypes.SourceTechnical,
		}},
	})
	assert.Contains(t, failing, "TECHNICAL_VALIDATION must be FAIL")
	assert.Contains(t, failing, "Service Approval Requirement")
	assert.Contains(t, failing, "Reference: Technical Rules Section 1")
	assert.NotContains(t, failing, "TECHNICAL ERRORS: None detected")
}

// TestBuildPrompt_NoRulesMarker verifies the explicit marker appears when
// retrieval found nothing, with a default-PASS instruction.
func TestBuildPrompt_NoRulesMarker(t *testing.T) {
	p := BuildPrompt(PromptInput{Claim: promptClaim()})

	assert.Contains(t, p, "NO RULES RETRIEVED")
	assert.Contains(t, p, "report the claim as VALID for medical validation")
	assert.NotContains(t, p, "APPROVAL NUMBER VALIDATION")
}

// TestBuildPrompt_RetrievedChunks verifies chunks are numbered, labeled, and
// capped in length.
func TestBuildPrompt_RetrievedChunks(t *testing.T) {
	long := strings.Repeat("x", maxRuleChars+200)
	p := BuildPrompt(PromptInput{
		Claim: promptClaim(),
		Chunks: []retrieval.Chunk{
			{Content: "SRV2007 requires diagnosis E11.9", Source: "medical_rules.md"},
			{Content: long, Source: "medical_rules.md"},
		},
	})

	assert.Contains(t, p, "1. [MEDICAL_RULES.MD] SRV2007 requires diagnosis E11.9")
	assert.NotContains(t, p, noRulesMarker)
	assert.NotContains(t, p, strings.Repeat("x", maxRuleChars+1))
	assert.Contains(t, p, strings.Repeat("x", maxRuleChars))
}

// TestBuildPrompt_ApprovalGuidance verifies the approval section tracks
// whether the claim carries an approval number.
func TestBuildPrompt_ApprovalGuidance(t *testing.T) {
	chunks := []retrieval.Chunk{{Content: "approval rules", Source: "medical"}}

	withApproval := BuildPrompt(PromptInput{Claim: promptClaim(), Chunks: chunks})
	assert.Contains(t, withApproval, "Approval number is PRESENT: APP-555")

	c := promptClaim()
	c.ApprovalNumber = ""
	withoutApproval := BuildPrompt(PromptInput{Claim: c, Chunks: chunks})
	assert.Contains(t, withoutApproval, "Approval number is MISSING or empty")
	assert.Contains(t, withoutApproval, "diagnosis code(s): E11.9, J45.0")
}

// TestBuildPrompt_OrderedMedicalChecks verifies the five medical checks
// appear in their mandated order.
func TestBuildPrompt_OrderedMedicalChecks(t *testing.T) {
	p := BuildPrompt(PromptInput{Claim: promptClaim()})

	checks := []string{
		"1. SERVICE-DIAGNOSIS REQUIREMENTS",
		"2. SERVICE-ENCOUNTER TYPE ELIGIBILITY",
		"3. FACILITY-SERVICE ELIGIBILITY",
		"4. MUTUALLY EXCLUSIVE DIAGNOSES",
		"5. APPROVAL REQUIREMENTS",
	}
	last := -1
	for _, check := range checks {
		idx := strings.Index(p, check)
		assert.Greater(t, idx, last, "check %q out of order", check)
		last = idx
	}
}

// TestBuildPrompt_PassedRulesOnlyWhenClean verifies passed technical rules
// are listed for clean claims and suppressed for failing ones.
func TestBuildPrompt_PassedRulesOnlyWhenClean(t *testing.T) {
	passed := []datatypes.PassedRule{{
		Rule:      "Paid Amount Threshold",
		Reference: "Technical Rules Section 3",
		Detail:    "Paid amount within threshold",
	}}

	clean := BuildPrompt(PromptInput{Claim: promptClaim(), TechnicalPassed: passed})
	assert.Contains(t, clean, "TECHNICAL RULES VALIDATED")
	assert.Contains(t, clean, "Paid Amount Threshold")

	failing := BuildPrompt(PromptInput{
		Claim:           promptClaim(),
		TechnicalPassed: passed,
		Technical: []datatypes.RuleFinding{{
			Rule: "Unique ID Format", Detail: "bad format",
			Severity: datatypes.SeverityError, Source: datatypes.SourceTechnical,
		}},
	})
	assert.NotContains(t, failing, "TECHNICAL RULES VALIDATED")
}

// TestBuildPrompt_DataQualityFindings verifies data quality findings carry a
// forced medical FAIL instruction.
func TestBuildPrompt_DataQualityFindings(t *testing.T) {
	p := BuildPrompt(PromptInput{
		Claim: promptClaim(),
		DataQuality: []datatypes.RuleFinding{{
			RuleID: "DQ-004", Detail: "Paid amount is not numeric",
			Severity: datatypes.SeverityError, Source: datatypes.SourceDataQuality,
		}},
	})

	assert.Contains(t, p, "DATA QUALITY ERRORS:")
	assert.Contains(t, p, "Paid amount is not numeric")
	assert.Contains(t, p, "If data quality errors are listed above, MEDICAL_VALIDATION must be FAIL")
}

// TestBuildPrompt_ResponseFormatContract verifies the format block names
// every section the parser looks for.
func TestBuildPrompt_ResponseFormatContract(t *testing.T) {
	p := BuildPrompt(PromptInput{Claim: promptClaim()})

	for _, label := range []string{
		"EXECUTIVE_SUMMARY:", "VALIDATION_STATUS:", "TECHNICAL_VALIDATION:",
		"MEDICAL_VALIDATION:", "OVERALL_STATUS:", "DETAILED_EXPLANATION:",
		"TECHNICAL_RULES_STATUS:", "MEDICAL_RULES_STATUS:",
		"RECOMMENDATIONS:", "CONFIDENCE:", "NOTES:",
	} {
		assert.Contains(t, p, label)
	}
}
