// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rules

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
)

// Stable rule identifiers for the deterministic technical checks. These end
// up in persisted findings, so they must not change between releases.
const (
	RuleServiceApproval   = "TECH-001"
	RuleDiagnosisApproval = "TECH-002"
	RuleAmountThreshold   = "TECH-003"
	RuleUniqueIDFormat    = "TECH-004"
	RuleUniqueIDSegments  = "TECH-005"
	RuleUniqueIDCasing    = "TECH-006"
)

// Engine runs the deterministic technical checks against a single claim.
//
// # Description
//
// Evaluate is a pure function over the claim and an already-fetched rule set.
// Every check runs regardless of earlier failures, so a claim that violates
// three rules produces three findings. Checks that a claim satisfies are
// reported as passed rules for the audit trail.
type Engine struct{}

// NewEngine creates a technical rule engine.
func NewEngine() *Engine { return &Engine{} }

// Evaluate runs all technical checks for claim under rs.
//
// # Inputs
//
//   - claim: The ingested claim. Fields absent from the source row are empty
//     strings and skip the checks that need them.
//   - rs: The technical rule set, typically from Store.Get.
//
// # Outputs
//
//   - []datatypes.RuleFinding: One finding per violated rule, in check order.
//     Empty means the claim is technically clean.
//   - []datatypes.PassedRule: Checks the claim satisfied, for reporting.
func (e *Engine) Evaluate(claim *datatypes.Claim, rs *TechnicalRuleSet) ([]datatypes.RuleFinding, []datatypes.PassedRule) {
	var findings []datatypes.RuleFinding
	var passed []datatypes.PassedRule

	findings, passed = e.checkServiceApproval(claim, rs, findings, passed)
	findings, passed = e.checkDiagnosisApproval(claim, rs, findings, passed)
	findings, passed = e.checkAmountThreshold(claim, rs, findings, passed)
	findings, passed = e.checkUniqueID(claim, rs, findings, passed)

	return findings, passed
}

func (e *Engine) checkServiceApproval(claim *datatypes.Claim, rs *TechnicalRuleSet,
	findings []datatypes.RuleFinding, passed []datatypes.PassedRule) ([]datatypes.RuleFinding, []datatypes.PassedRule) {

	if claim.ServiceCode == "" {
		return findings, passed
	}
	if !rs.ServiceRequiresApproval(claim.ServiceCode) {
		passed = append(passed, datatypes.PassedRule{
			Rule:      "Service Approval Requirement",
			Reference: "Technical Rules Section 1",
			Detail:    fmt.Sprintf("Service code %s does not require prior approval.", claim.ServiceCode),
		})
		return findings, passed
	}
	if claim.HasApproval() {
		passed = append(passed, datatypes.PassedRule{
			Rule:      "Service Approval Requirement",
			Reference: "Technical Rules Section 1",
			Detail: fmt.Sprintf("Service code %s requires approval and approval number %s is provided.",
				claim.ServiceCode, claim.ApprovalNumber),
		})
		return findings, passed
	}
	findings = append(findings, datatypes.RuleFinding{
		RuleID:    RuleServiceApproval,
		Rule:      "Service Requires Prior Approval",
		Reference: "Technical Rules Section 1",
		Detail: fmt.Sprintf("Service code %s requires prior approval but no approval number provided",
			claim.ServiceCode),
		Severity: datatypes.SeverityCritical,
		Source:   datatypes.SourceTechnical,
	})
	return findings, passed
}

func (e *Engine) checkDiagnosisApproval(claim *datatypes.Claim, rs *TechnicalRuleSet,
	findings []datatypes.RuleFinding, passed []datatypes.PassedRule) ([]datatypes.RuleFinding, []datatypes.PassedRule) {

	if len(claim.DiagnosisCodes) == 0 {
		return findings, passed
	}

	requiresApproval := false
	for _, dx := range claim.DiagnosisCodes {
		if !rs.DiagnosisRequiresApproval(strings.TrimSpace(dx)) {
			continue
		}
		requiresApproval = true
		if !claim.HasApproval() {
			findings = append(findings, datatypes.RuleFinding{
				RuleID:    RuleDiagnosisApproval,
				Rule:      "Diagnosis Requires Prior Approval",
				Reference: "Technical Rules Section 2",
				Detail: fmt.Sprintf("Diagnosis code %s requires prior approval but no approval number provided",
					dx),
				Severity: datatypes.SeverityCritical,
				Source:   datatypes.SourceTechnical,
			})
			// One finding covers the claim, not one per code.
			return findings, passed
		}
	}

	joined := strings.Join(claim.DiagnosisCodes, ", ")
	if requiresApproval {
		passed = append(passed, datatypes.PassedRule{
			Rule:      "Diagnosis Approval Requirement",
			Reference: "Technical Rules Section 2",
			Detail: fmt.Sprintf("Diagnosis code(s) %s require approval and approval number %s is provided.",
				joined, claim.ApprovalNumber),
		})
	} else {
		passed = append(passed, datatypes.PassedRule{
			Rule:      "Diagnosis Approval Requirement",
			Reference: "Technical Rules Section 2",
			Detail:    fmt.Sprintf("Diagnosis code(s) %s do not require prior approval.", joined),
		})
	}
	return findings, passed
}

func (e *Engine) checkAmountThreshold(claim *datatypes.Claim, rs *TechnicalRuleSet,
	findings []datatypes.RuleFinding, passed []datatypes.PassedRule) ([]datatypes.RuleFinding, []datatypes.PassedRule) {

	// Unparseable amounts are surfaced by the data quality stage, not here.
	if claim.PaidAmount == 0 && claim.PaidAmountRaw == "" {
		return findings, passed
	}
	if claim.PaidAmount > rs.PaidAmountThreshold {
		findings = append(findings, datatypes.RuleFinding{
			RuleID:    RuleAmountThreshold,
			Rule:      "Paid Amount Threshold",
			Reference: "Technical Rules Section 3",
			Detail: fmt.Sprintf("Paid amount %.2f exceeds threshold %.2f. Requires additional approval.",
				claim.PaidAmount, rs.PaidAmountThreshold),
			Severity: datatypes.SeverityWarning,
			Source:   datatypes.SourceTechnical,
		})
		return findings, passed
	}
	passed = append(passed, datatypes.PassedRule{
		Rule:      "Paid Amount Threshold",
		Reference: "Technical Rules Section 3",
		Detail: fmt.Sprintf("Paid amount %.2f is within threshold of %.2f.",
			claim.PaidAmount, rs.PaidAmountThreshold),
	})
	return findings, passed
}

func (e *Engine) checkUniqueID(claim *datatypes.Claim, rs *TechnicalRuleSet,
	findings []datatypes.RuleFinding, passed []datatypes.PassedRule) ([]datatypes.RuleFinding, []datatypes.PassedRule) {

	uniqueID := strings.TrimSpace(claim.UniqueID)
	if uniqueID == "" {
		return findings, passed
	}

	if !rs.Pattern().MatchString(uniqueID) {
		findings = append(findings, datatypes.RuleFinding{
			RuleID:    RuleUniqueIDFormat,
			Rule:      "Unique ID Format",
			Reference: "Technical Rules Section 4",
			Detail: fmt.Sprintf("Unique ID format is invalid: %s. Expected pattern: %s",
				uniqueID, rs.UniqueIDPattern),
			Severity: datatypes.SeverityError,
			Source:   datatypes.SourceTechnical,
		})
		// Segment checks assume the regex passed.
		return findings, passed
	}

	segmentFindings := e.checkUniqueIDSegments(claim, rs, uniqueID)
	findings = append(findings, segmentFindings...)
	if len(segmentFindings) == 0 {
		passed = append(passed, datatypes.PassedRule{
			Rule:      "Unique ID Format",
			Reference: "Technical Rules Section 4",
			Detail:    fmt.Sprintf("Unique ID %s format is valid.", uniqueID),
		})
	}
	return findings, passed
}

// checkUniqueIDSegments verifies the three dash-separated segments against
// the first four characters of national, member, and facility IDs. The
// expected layout is first4(national)-first4(member)-first4(facility).
func (e *Engine) checkUniqueIDSegments(claim *datatypes.Claim, rs *TechnicalRuleSet, uniqueID string) []datatypes.RuleFinding {
	if !rs.UniqueIDValidation.VerifySegments {
		return nil
	}
	if claim.NationalID == "" || claim.MemberID == "" || claim.FacilityID == "" {
		return nil
	}

	var findings []datatypes.RuleFinding

	expected := [3]struct {
		label string
		want  string
	}{
		{"National ID", firstFour(claim.NationalID)},
		{"Member ID", firstFour(claim.MemberID)},
		{"Facility ID", firstFour(claim.FacilityID)},
	}
	position := [3]string{"first", "middle", "last"}

	parts := strings.Split(uniqueID, "-")
	if len(parts) == 3 {
		for i, part := range parts {
			if part == expected[i].want {
				continue
			}
			findings = append(findings, datatypes.RuleFinding{
				RuleID:    RuleUniqueIDSegments,
				Rule:      "Unique ID Segment Validation",
				Reference: "Technical Rules Section 4",
				Detail: fmt.Sprintf("Unique ID %s segment %q does not match first 4 characters of %s %q",
					position[i], part, expected[i].label, expected[i].want),
				Severity: datatypes.SeverityError,
				Source:   datatypes.SourceTechnical,
			})
		}
	}

	if uniqueID != strings.ToUpper(uniqueID) {
		findings = append(findings, datatypes.RuleFinding{
			RuleID:    RuleUniqueIDCasing,
			Rule:      "Unique ID Casing",
			Reference: "Technical Rules Section 4",
			Detail:    fmt.Sprintf("All IDs must be UPPERCASE alphanumeric. Found: %s", uniqueID),
			Severity:  datatypes.SeverityError,
			Source:    datatypes.SourceTechnical,
		})
	}
	return findings
}

func firstFour(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) > 4 {
		return s[:4]
	}
	return s
}
