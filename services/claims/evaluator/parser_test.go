// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
)

const wellFormedResponse = `EXECUTIVE_SUMMARY: The claim is technically sound but violates an approval rule.
VALIDATION_STATUS:
  TECHNICAL_VALIDATION: PASS
  MEDICAL_VALIDATION: FAIL
  OVERALL_STATUS: INVALID
DETAILED_EXPLANATION: Service SRV2007 requires approval per Rule #3 and the approval number is missing.
TECHNICAL_RULES_STATUS:
  - Service Approval Requirement: PASS - no approval required for this service
  - Paid Amount Threshold: PASS - amount within threshold
MEDICAL_RULES_STATUS:
  - Rule #3: FAIL - approval required but approval number missing
RECOMMENDATIONS: 1. Obtain an approval number before resubmission (HIGH).
CONFIDENCE: 0.85
NOTES: The facility identifier could not be cross-checked.`

// TestParseResponse_WellFormed verifies a complete response parses into a
// full verdict.
func TestParseResponse_WellFormed(t *testing.T) {
	v, err := ParseResponse(wellFormedResponse)
	require.NoError(t, err)

	assert.Equal(t, datatypes.StatusPass, v.TechnicalStatus)
	assert.Equal(t, datatypes.StatusFail, v.MedicalStatus)
	assert.Equal(t, "INVALID", v.OverallStatus)
	assert.Contains(t, v.ExecutiveSummary, "violates an approval rule")
	assert.Contains(t, v.Explanation, "SRV2007 requires approval")
	assert.Contains(t, v.RecommendedAction, "Obtain an approval number")
	assert.InDelta(t, 0.85, v.Confidence, 1e-9)
	assert.False(t, v.Unavailable)

	require.Len(t, v.TechnicalRules, 2)
	assert.Equal(t, "Service Approval Requirement", v.TechnicalRules[0].Rule)
	assert.Equal(t, datatypes.StatusPass, v.TechnicalRules[0].Status)

	require.Len(t, v.MedicalRules, 1)
	assert.Equal(t, "Rule #3", v.MedicalRules[0].Rule)
	assert.Equal(t, datatypes.StatusFail, v.MedicalRules[0].Status)
	assert.Equal(t, "approval required but approval number missing", v.MedicalRules[0].Reason)
}

// TestParseResponse_Malformed verifies that a response without a usable
// status block is rejected.
func TestParseResponse_Malformed(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"whitespace only", "   \n\t  "},
		{"prose without labels", "The claim looks fine to me overall."},
		{"status block without medical line", "VALIDATION_STATUS:\n  TECHNICAL_VALIDATION: PASS\nDETAILED_EXPLANATION: ok"},
		{"status values outside vocabulary", "VALIDATION_STATUS:\n  TECHNICAL_VALIDATION: MAYBE\n  MEDICAL_VALIDATION: UNSURE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseResponse(tc.text)
			assert.ErrorIs(t, err, ErrResponseMalformed)
		})
	}
}

// TestParseResponse_Defaults verifies fallbacks for optional sections.
func TestParseResponse_Defaults(t *testing.T) {
	v, err := ParseResponse("VALIDATION_STATUS:\n  TECHNICAL_VALIDATION: PASS\n  MEDICAL_VALIDATION: PASS")
	require.NoError(t, err)

	assert.InDelta(t, 0.5, v.Confidence, 1e-9)
	assert.Equal(t, defaultRecommendation, v.RecommendedAction)
	assert.NotEmpty(t, v.Explanation)
	assert.Empty(t, v.OverallStatus)
	assert.Empty(t, v.TechnicalRules)
	assert.Empty(t, v.MedicalRules)
}

// TestParseResponse_CaseInsensitiveLabels verifies labels and statuses parse
// regardless of casing.
func TestParseResponse_CaseInsensitiveLabels(t *testing.T) {
	v, err := ParseResponse("validation_status:\n  technical_validation: pass\n  medical_validation: fail\nconfidence: 0.7")
	require.NoError(t, err)

	assert.Equal(t, datatypes.StatusPass, v.TechnicalStatus)
	assert.Equal(t, datatypes.StatusFail, v.MedicalStatus)
	assert.InDelta(t, 0.7, v.Confidence, 1e-9)
}

// TestParseResponse_ConfidenceClamped verifies out-of-range confidence is
// clamped to [0, 1].
func TestParseResponse_ConfidenceClamped(t *testing.T) {
	v, err := ParseResponse("VALIDATION_STATUS:\n  TECHNICAL_VALIDATION: PASS\n  MEDICAL_VALIDATION: PASS\nCONFIDENCE: 7.5")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.Confidence)
}

// TestParseResponse_SkipsUnparseableRuleLines verifies bullet lines that do
// not match the rule shape are ignored rather than rejected.
func TestParseResponse_SkipsUnparseableRuleLines(t *testing.T) {
	text := `VALIDATION_STATUS:
  TECHNICAL_VALIDATION: PASS
  MEDICAL_VALIDATION: PASS
MEDICAL_RULES_STATUS:
  - Rule #1: PASS - diagnosis matches requirement
  some free text the model added
  - broken line without a status
CONFIDENCE: 0.9`

	v, err := ParseResponse(text)
	require.NoError(t, err)
	require.Len(t, v.MedicalRules, 1)
	assert.Equal(t, "Rule #1", v.MedicalRules[0].Rule)
}

// TestParseResponse_MedicalFailed verifies the verdict helper only reports a
// medical failure for authoritative verdicts.
func TestParseResponse_MedicalFailed(t *testing.T) {
	v, err := ParseResponse(wellFormedResponse)
	require.NoError(t, err)
	assert.True(t, v.MedicalFailed())

	degraded := &datatypes.LLMVerdict{Unavailable: true, MedicalStatus: datatypes.StatusFail}
	assert.False(t, degraded.MedicalFailed())
}
