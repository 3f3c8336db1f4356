// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package quality

import (
	"testing"

	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		row         datatypes.RawClaimRow
		wantRuleIDs []string
	}{
		{
			name: "clean row",
			row: datatypes.RawClaimRow{
				ClaimID:       "c-1",
				EncounterType: "INPATIENT",
				PaidAmount:    "1200.50",
			},
			wantRuleIDs: nil,
		},
		{
			name:        "empty row has no schema findings",
			row:         datatypes.RawClaimRow{},
			wantRuleIDs: nil,
		},
		{
			name: "lowercase encounter type accepted",
			row: datatypes.RawClaimRow{
				EncounterType: " outpatient ",
			},
			wantRuleIDs: nil,
		},
		{
			name: "unknown encounter type",
			row: datatypes.RawClaimRow{
				EncounterType: "DAYCASE",
			},
			wantRuleIDs: []string{"DQ-002"},
		},
		{
			name: "unparseable amount",
			row: datatypes.RawClaimRow{
				PaidAmount: "12,000 AED",
			},
			wantRuleIDs: []string{"DQ-004"},
		},
		{
			name: "negative amount",
			row: datatypes.RawClaimRow{
				PaidAmount: "-50",
			},
			wantRuleIDs: []string{"DQ-003"},
		},
		{
			name: "whitespace claim id",
			row: datatypes.RawClaimRow{
				ClaimID: "   ",
			},
			wantRuleIDs: []string{"DQ-001"},
		},
		{
			name: "multiple findings reported together",
			row: datatypes.RawClaimRow{
				EncounterType: "DAYCASE",
				PaidAmount:    "not-a-number",
			},
			wantRuleIDs: []string{"DQ-002", "DQ-004"},
		},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := v.Validate(tt.row)
			ids := make([]string, 0, len(findings))
			for _, f := range findings {
				ids = append(ids, f.RuleID)
				assert.Equal(t, datatypes.SourceDataQuality, f.Source)
			}
			if tt.wantRuleIDs == nil {
				assert.Empty(t, ids)
				return
			}
			assert.ElementsMatch(t, tt.wantRuleIDs, ids)
		})
	}
}

func TestValidate_SeverityGrades(t *testing.T) {
	v := NewValidator()

	findings := v.Validate(datatypes.RawClaimRow{PaidAmount: "-1"})
	require.Len(t, findings, 1)
	assert.Equal(t, datatypes.SeverityWarning, findings[0].Severity)

	findings = v.Validate(datatypes.RawClaimRow{PaidAmount: "oops"})
	require.Len(t, findings, 1)
	assert.Equal(t, datatypes.SeverityError, findings[0].Severity)

	findings = v.Validate(datatypes.RawClaimRow{ClaimID: " "})
	require.Len(t, findings, 1)
	assert.Equal(t, datatypes.SeverityCritical, findings[0].Severity)
}
