// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evaluator

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
)

// ErrResponseMalformed indicates the LLM response is missing the sections a
// verdict cannot be built without. The caller re-asks once with the same
// prompt before degrading.
var ErrResponseMalformed = errors.New("llm response malformed")

// defaultRecommendation fills RecommendedAction when the model omitted one.
const defaultRecommendation = "Please review the detailed explanation for specific guidance."

// Section regexes. Each body runs to the next known label or end of text;
// labels are matched case-insensitively because models drift on casing.
var (
	execSummaryRe = regexp.MustCompile(`(?is)EXECUTIVE_SUMMARY:\s*(.*?)(?:VALIDATION_STATUS:|DETAILED_EXPLANATION:|RECOMMENDATIONS:|CONFIDENCE:|NOTES:|$)`)
	statusBlockRe = regexp.MustCompile(`(?is)VALIDATION_STATUS:\s*(.*?)(?:DETAILED_EXPLANATION:|TECHNICAL_RULES_STATUS:|RECOMMENDATIONS:|CONFIDENCE:|NOTES:|$)`)
	detailRe      = regexp.MustCompile(`(?is)DETAILED_EXPLANATION:\s*(.*?)(?:TECHNICAL_RULES_STATUS:|MEDICAL_RULES_STATUS:|RECOMMENDATIONS:|CONFIDENCE:|NOTES:|$)`)
	techRulesRe   = regexp.MustCompile(`(?is)TECHNICAL_RULES_STATUS:\s*(.*?)(?:MEDICAL_RULES_STATUS:|RECOMMENDATIONS:|CONFIDENCE:|NOTES:|$)`)
	medRulesRe    = regexp.MustCompile(`(?is)MEDICAL_RULES_STATUS:\s*(.*?)(?:RECOMMENDATIONS:|CONFIDENCE:|NOTES:|$)`)
	recsRe        = regexp.MustCompile(`(?is)RECOMMENDATIONS?:\s*(.*?)(?:CONFIDENCE:|NOTES:|$)`)
	confidenceRe  = regexp.MustCompile(`(?i)CONFIDENCE:\s*([0-9]*\.?[0-9]+)`)
	notesRe       = regexp.MustCompile(`(?is)NOTES:\s*(.*)$`)

	techStatusRe    = regexp.MustCompile(`(?i)TECHNICAL_VALIDATION:\s*(PASS|FAIL)`)
	medStatusRe     = regexp.MustCompile(`(?i)MEDICAL_VALIDATION:\s*(PASS|FAIL)`)
	overallStatusRe = regexp.MustCompile(`(?i)OVERALL_STATUS:\s*(VALID|INVALID)`)

	ruleLineRe = regexp.MustCompile(`(?i)^-\s*(.+?):\s*(PASS|FAIL)\s*-\s*(.+)$`)
)

// ParseResponse parses the labeled sections of an LLM response into a
// verdict.
//
// # Description
//
// The response must carry a VALIDATION_STATUS block with parseable
// TECHNICAL_VALIDATION and MEDICAL_VALIDATION lines; anything else is
// ErrResponseMalformed. All other sections are optional: a missing
// confidence defaults to 0.5 (clamped to [0,1] otherwise), a missing
// recommendation gets a generic fallback, and the explanation falls back to
// the full response text when DETAILED_EXPLANATION is absent.
//
// # Inputs
//   - text: raw LLM completion
//
// # Outputs
//   - *datatypes.LLMVerdict: the parsed verdict
//   - error: ErrResponseMalformed when the status block is unusable
func ParseResponse(text string) (*datatypes.LLMVerdict, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrResponseMalformed
	}

	statusBlock := captureSection(statusBlockRe, text)
	tech := captureUpper(techStatusRe, statusBlock)
	med := captureUpper(medStatusRe, statusBlock)
	if tech == "" || med == "" {
		return nil, ErrResponseMalformed
	}

	v := &datatypes.LLMVerdict{
		TechnicalStatus:   tech,
		MedicalStatus:     med,
		OverallStatus:     captureUpper(overallStatusRe, statusBlock),
		ExecutiveSummary:  captureSection(execSummaryRe, text),
		Explanation:       captureSection(detailRe, text),
		RecommendedAction: captureSection(recsRe, text),
		Confidence:        0.5,
		TechnicalRules:    parseRuleLines(captureSection(techRulesRe, text)),
		MedicalRules:      parseRuleLines(captureSection(medRulesRe, text)),
	}

	if m := confidenceRe.FindStringSubmatch(text); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			v.Confidence = clamp01(f)
		}
	}
	if notes := captureSection(notesRe, text); notes != "" && v.ExecutiveSummary == "" {
		// Notes fold into the summary slot when the model skipped one.
		v.ExecutiveSummary = notes
	}
	if v.Explanation == "" {
		v.Explanation = strings.TrimSpace(text)
	}
	if v.RecommendedAction == "" {
		v.RecommendedAction = defaultRecommendation
	}
	return v, nil
}

func captureSection(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func captureUpper(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

// parseRuleLines parses "- Rule Name: PASS - reason" bullet lines.
// Lines that do not match the shape are skipped.
func parseRuleLines(block string) []datatypes.RuleStatus {
	var out []datatypes.RuleStatus
	for _, line := range strings.Split(block, "\n") {
		m := ruleLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		out = append(out, datatypes.RuleStatus{
			Rule:   strings.TrimSpace(m[1]),
			Status: strings.ToUpper(m[2]),
			Reason: strings.TrimSpace(m[3]),
		})
	}
	return out
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
