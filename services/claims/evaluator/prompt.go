// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package evaluator runs the LLM adjudication stage: it builds the
// validation prompt for a claim, calls the configured LLM backend, and
// parses the structured response into a verdict.
//
// The LLM is authoritative only for the medical side of a claim. Its
// technical PASS/FAIL is advisory; deterministic technical findings always
// dominate during aggregation.
package evaluator

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
	"github.com/AleutianAI/claimsgate/services/claims/retrieval"
)

const (
	// maxPromptRules bounds how many retrieved chunks are quoted in the
	// prompt.
	maxPromptRules = 50

	// maxRuleChars bounds how much of each chunk is quoted.
	maxRuleChars = 1000

	// noRulesMarker tells the model that retrieval found nothing, so the
	// medical verdict must default to PASS rather than being inferred from
	// general knowledge.
	noRulesMarker = "NO RULES RETRIEVED"
)

// PromptInput carries everything the prompt builder needs for one claim.
type PromptInput struct {
	Claim           *datatypes.Claim
	Technical       []datatypes.RuleFinding
	TechnicalPassed []datatypes.PassedRule
	DataQuality     []datatypes.RuleFinding
	Chunks          []retrieval.Chunk
}

// BuildPrompt renders the validation prompt for one claim.
//
// # Description
//
// The prompt grounds the model three ways: the claim fields, the outcomes of
// the deterministic stages (so the model does not re-litigate them), and the
// retrieved rule chunks (the only rules the model may validate against).
// When retrieval found nothing the prompt carries an explicit no-rules
// marker and instructs the model to report the medical side as PASS.
//
// # Inputs
//   - in: claim plus deterministic findings and retrieved chunks
//
// # Outputs
//   - string: the complete prompt
func BuildPrompt(in PromptInput) string {
	var b strings.Builder
	c := in.Claim

	b.WriteString("You are a senior medical claims validation expert with deep knowledge of healthcare billing, coding, and adjudication rules. Your task is to provide a comprehensive, detailed analysis of the following claim.\n\n")

	writeClaimBlock(&b, c)
	writeTechnicalBlock(&b, in.Technical)
	writeDataQualityBlock(&b, in.DataQuality)
	writeMedicalChecklist(&b)
	writeRulesBlock(&b, c, in.Chunks)
	writePassedBlock(&b, in.TechnicalPassed, len(in.Technical) == 0 && len(in.DataQuality) == 0)
	writeResponseFormat(&b)

	return b.String()
}

func writeClaimBlock(b *strings.Builder, c *datatypes.Claim) {
	b.WriteString("CLAIM INFORMATION:\n==================\n")
	fmt.Fprintf(b, "- Claim ID: %s\n", orNA(c.ClaimID))
	fmt.Fprintf(b, "- Encounter Type: %s\n", orNA(string(c.EncounterType)))
	if !c.ServiceDate.IsZero() {
		fmt.Fprintf(b, "- Service Date: %s\n", c.ServiceDate.Format("2006-01-02"))
	} else {
		b.WriteString("- Service Date: N/A\n")
	}
	fmt.Fprintf(b, "- Service Code: %s\n", orNA(c.ServiceCode))
	fmt.Fprintf(b, "- Diagnosis Codes: %s\n", orNA(strings.Join(c.DiagnosisCodes, ", ")))
	fmt.Fprintf(b, "- Facility ID: %s\n", orNA(c.FacilityID))
	fmt.Fprintf(b, "- Member ID: %s\n", orNA(c.MemberID))
	fmt.Fprintf(b, "- National ID: %s\n", orNA(c.NationalID))
	fmt.Fprintf(b, "- Unique ID: %s\n", orNA(c.UniqueID))
	if c.PaidAmountRaw != "" {
		fmt.Fprintf(b, "- Paid Amount: %s\n", c.PaidAmountRaw)
	} else if c.PaidAmount != 0 {
		fmt.Fprintf(b, "- Paid Amount: %.2f\n", c.PaidAmount)
	} else {
		b.WriteString("- Paid Amount: N/A\n")
	}
	fmt.Fprintf(b, "- Approval Number: %s\n\n", orNA(c.ApprovalNumber))

	b.WriteString("CRITICAL: If the claim has an approval number listed above, it MUST be considered valid for approval requirements.\n")
	b.WriteString("Do NOT flag as missing approval if an approval number is present in the claim data above.\n\n")
}

func writeTechnicalBlock(b *strings.Builder, findings []datatypes.RuleFinding) {
	if len(findings) == 0 {
		b.WriteString("TECHNICAL ERRORS: None detected.\n")
		b.WriteString("IMPORTANT: Since no technical errors are listed, TECHNICAL_VALIDATION must be PASS.\n\n")
		return
	}
	b.WriteString("TECHNICAL ERRORS:\n")
	b.WriteString("IMPORTANT: If technical errors are listed below, TECHNICAL_VALIDATION must be FAIL.\n")
	b.WriteString("Only mark TECHNICAL_VALIDATION as PASS if NO technical errors exist.\n\n")
	for i, f := range findings {
		fmt.Fprintf(b, "%d. %s\n", i+1, f.Rule)
		fmt.Fprintf(b, "   Detail: %s\n", f.Detail)
		fmt.Fprintf(b, "   Reference: %s\n", orNA(f.Reference))
		fmt.Fprintf(b, "   Severity: %s\n\n", f.Severity)
	}
}

func writeDataQualityBlock(b *strings.Builder, findings []datatypes.RuleFinding) {
	if len(findings) == 0 {
		return
	}
	b.WriteString("DATA QUALITY ERRORS:\n")
	for i, f := range findings {
		fmt.Fprintf(b, "%d. %s\n", i+1, f.Detail)
		fmt.Fprintf(b, "   Severity: %s\n", f.Severity)
	}
	b.WriteString("CRITICAL: If data quality errors are listed above, MEDICAL_VALIDATION must be FAIL.\n")
	b.WriteString("Only mark MEDICAL_VALIDATION as PASS if NO data quality errors exist.\n\n")
}

// writeMedicalChecklist emits the ordered medical checks the model must run
// and the restrictions that bind it to the retrieved rules.
func writeMedicalChecklist(b *strings.Builder) {
	b.WriteString("IMPORTANT RESTRICTIONS:\n======================\n")
	b.WriteString("1. You MUST ONLY validate against the rules provided in the 'RELEVANT ADJUDICATION RULES' section below.\n")
	b.WriteString("2. DO NOT make assumptions or infer rules that are not explicitly stated in the retrieved rules.\n")
	b.WriteString("3. DO NOT flag violations based on general medical knowledge that is not in the provided rules.\n")
	b.WriteString("4. If a rule is not found in the retrieved rules, assume it does not apply to this claim.\n")
	b.WriteString("5. Only report violations that can be directly referenced to specific rules provided below.\n\n")

	b.WriteString("VALIDATION APPROACH:\n===================\n")
	b.WriteString("CRITICAL: You MUST check the following medical rules in this EXACT order:\n\n")
	b.WriteString("1. SERVICE-DIAGNOSIS REQUIREMENTS (MANDATORY CHECK):\n")
	b.WriteString("   - Check if the service code has a REQUIRED diagnosis code in the rules.\n")
	b.WriteString("   - If the service code requires a specific diagnosis and the claim's diagnosis does NOT match, this is a FAILURE.\n\n")
	b.WriteString("2. SERVICE-ENCOUNTER TYPE ELIGIBILITY:\n")
	b.WriteString("   - Check if the service code is allowed for the encounter type (INPATIENT/OUTPATIENT).\n")
	b.WriteString("   - If service is not in the allowed list for the encounter type, this is a FAILURE.\n\n")
	b.WriteString("3. FACILITY-SERVICE ELIGIBILITY:\n")
	b.WriteString("   - Check if the facility type allows this service code.\n")
	b.WriteString("   - If service is not in the allowed list for the facility type, this is a FAILURE.\n\n")
	b.WriteString("4. MUTUALLY EXCLUSIVE DIAGNOSES:\n")
	b.WriteString("   - Check if the claim has multiple diagnosis codes that are mutually exclusive per the rules.\n\n")
	b.WriteString("5. APPROVAL REQUIREMENTS (CRITICAL CHECK):\n")
	b.WriteString("   - Check if the SERVICE CODE or any DIAGNOSIS CODE requires approval according to the rules.\n")
	b.WriteString("   - If EITHER requires approval and the approval number is MISSING, this is a FAILURE.\n")
	b.WriteString("   - If approval is required and the approval number is PRESENT, this is a PASS.\n")
	b.WriteString("   - If NEITHER requires approval, approval number is optional (PASS).\n\n")
	b.WriteString("IMPORTANT: If you find ANY violation in the above checks based on the provided rules, you MUST mark MEDICAL_VALIDATION as FAIL.\n")
	b.WriteString("Only mark MEDICAL_VALIDATION as PASS if ALL checks pass AND the claim complies with all provided rules.\n\n")
}

func writeRulesBlock(b *strings.Builder, c *datatypes.Claim, chunks []retrieval.Chunk) {
	b.WriteString("RELEVANT ADJUDICATION RULES:\n")
	b.WriteString(strings.Repeat("=", 50) + "\n")

	if len(chunks) == 0 {
		b.WriteString(noRulesMarker + ": Since no relevant rules were found, you should report the claim as VALID for medical validation.\n")
		b.WriteString("Do NOT assume or infer rules that were not provided.\n\n")
		return
	}

	b.WriteString("CRITICAL: You MUST ONLY use these rules for validation. Do NOT use any rules not listed here.\n\n")
	for i, ch := range chunks {
		if i == maxPromptRules {
			break
		}
		content := ch.Content
		if len(content) > maxRuleChars {
			content = content[:maxRuleChars]
		}
		label := ch.Source
		if label == "" {
			label = "rules"
		}
		fmt.Fprintf(b, "%d. [%s] %s\n\n", i+1, strings.ToUpper(label), content)
	}
	b.WriteString("REMINDER: Only validate against the rules listed above. If a rule is not here, it does not apply.\n\n")

	b.WriteString("APPROVAL NUMBER VALIDATION:\n============================\n")
	if c.HasApproval() {
		fmt.Fprintf(b, "Approval number is PRESENT: %s\n", c.ApprovalNumber)
		b.WriteString("  - Check the rules above to see if approval is REQUIRED for this service code or diagnosis code.\n")
		b.WriteString("  - If approval is required per rules AND approval number is present, this is VALID.\n")
		b.WriteString("  - Do NOT flag as 'missing approval' if an approval number exists in the claim.\n\n")
	} else {
		b.WriteString("Approval number is MISSING or empty.\n")
		b.WriteString("  - CRITICAL: Check the rules above to see if approval is REQUIRED for this service code")
		if len(c.DiagnosisCodes) > 0 {
			fmt.Fprintf(b, " or diagnosis code(s): %s", strings.Join(c.DiagnosisCodes, ", "))
		}
		b.WriteString(".\n")
		b.WriteString("  - If EITHER requires approval per rules, but the approval number is MISSING, this is a FAILURE.\n")
		b.WriteString("  - If the rules do NOT require approval for this service/diagnosis, a missing approval number is OK (PASS).\n\n")
	}
}

// writePassedBlock lists the deterministic checks that already passed, but
// only for clean claims; for failing claims the error sections carry the
// signal.
func writePassedBlock(b *strings.Builder, passed []datatypes.PassedRule, clean bool) {
	if len(passed) == 0 || !clean {
		return
	}
	b.WriteString("TECHNICAL RULES VALIDATED:\n")
	b.WriteString(strings.Repeat("=", 50) + "\n")
	b.WriteString("The following technical rules were checked and PASSED:\n\n")
	for i, r := range passed {
		fmt.Fprintf(b, "%d. %s (%s)\n", i+1, r.Rule, orNA(r.Reference))
		fmt.Fprintf(b, "   %s\n\n", r.Detail)
	}
}

func writeResponseFormat(b *strings.Builder) {
	b.WriteString(`FORMAT YOUR RESPONSE AS:
=========================
EXECUTIVE_SUMMARY: [2-3 sentence summary]
VALIDATION_STATUS:
  TECHNICAL_VALIDATION: [PASS/FAIL]
  MEDICAL_VALIDATION: [PASS/FAIL]
  OVERALL_STATUS: [VALID/INVALID]
DETAILED_EXPLANATION: [comprehensive explanation, use bullet points for clarity]
TECHNICAL_RULES_STATUS:
  - Rule Name: [PASS/FAIL] - [Brief reason]
MEDICAL_RULES_STATUS:
  - Rule #N or Rule Name: [PASS/FAIL] - [Brief reason]
RECOMMENDATIONS: [numbered list of specific recommendations with priorities]
CONFIDENCE: [0.0-1.0 number]
NOTES: [any additional observations]

CRITICAL FORMATTING REQUIREMENTS:
- VALIDATION_STATUS must be on separate lines with TECHNICAL_VALIDATION, MEDICAL_VALIDATION, and OVERALL_STATUS
- Use exactly "PASS" or "FAIL" (all caps) for each validation type
- TECHNICAL_VALIDATION must be FAIL if ANY technical errors were listed above, and PASS ONLY if none exist
- MEDICAL_VALIDATION must be FAIL if ANY medical rule from the provided rules is violated
- If no relevant medical rules are provided, MEDICAL_VALIDATION defaults to PASS
- OVERALL_STATUS should be VALID only if both TECHNICAL_VALIDATION and MEDICAL_VALIDATION are PASS
- List each rule that was checked under TECHNICAL_RULES_STATUS and MEDICAL_RULES_STATUS with its status
- Be explicit and clear about which rules passed and which failed
`)
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
