// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package quality implements field-level data quality checks on raw claim
// rows, ahead of the deterministic and LLM validation stages.
package quality

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// rowValidate is the validator instance for raw claim rows. Initialized in
// init() with custom validators.
var rowValidate *validator.Validate

func init() {
	rowValidate = validator.New()

	_ = rowValidate.RegisterValidation("encounter", validateEncounterType)
	_ = rowValidate.RegisterValidation("amount", validateAmount)
}

// validateEncounterType accepts empty values and the two known encounter
// types, case-insensitively. Unknown values are flagged, not fatal.
func validateEncounterType(fl validator.FieldLevel) bool {
	v := strings.ToUpper(strings.TrimSpace(fl.Field().String()))
	return v == "" || datatypes.ValidEncounterType(v)
}

// validateAmount accepts empty values and any parseable decimal.
func validateAmount(fl validator.FieldLevel) bool {
	v := strings.TrimSpace(fl.Field().String())
	if v == "" {
		return true
	}
	_, err := strconv.ParseFloat(v, 64)
	return err == nil
}

// rowSchema mirrors the raw row fields the schema pass cares about. The
// custom tags keep the raw strings intact; parsing happens at ingestion.
type rowSchema struct {
	EncounterType string `validate:"encounter"`
	PaidAmount    string `validate:"amount"`
}

// =============================================================================
// Validator
// =============================================================================

// Validator runs data quality checks on a raw claim row.
//
// # Description
//
// Two passes: a schema pass through the shared validator instance covering
// field formats, then value checks that need parsed numbers (negative
// amounts). Findings are advisory for most fields; a row that fails here
// still flows through the technical and LLM stages so one bad field does not
// hide other violations.
type Validator struct{}

// NewValidator creates a data quality validator.
func NewValidator() *Validator { return &Validator{} }

// Validate returns the data quality findings for row. An empty slice means
// the row is clean.
func (v *Validator) Validate(row datatypes.RawClaimRow) []datatypes.RuleFinding {
	var findings []datatypes.RuleFinding

	schema := rowSchema{
		EncounterType: row.EncounterType,
		PaidAmount:    row.PaidAmount,
	}
	if err := rowValidate.Struct(schema); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				findings = append(findings, schemaFinding(fe, row))
			}
		}
	}

	// claim_id, when present, must not be blank padding.
	if row.ClaimID != "" && strings.TrimSpace(row.ClaimID) == "" {
		findings = append(findings, datatypes.RuleFinding{
			RuleID:   "DQ-001",
			Rule:     "Claim ID",
			Detail:   "Claim ID cannot be empty",
			Severity: datatypes.SeverityCritical,
			Source:   datatypes.SourceDataQuality,
		})
	}

	if amt := strings.TrimSpace(row.PaidAmount); amt != "" {
		if parsed, err := strconv.ParseFloat(amt, 64); err == nil && parsed < 0 {
			findings = append(findings, datatypes.RuleFinding{
				RuleID:   "DQ-003",
				Rule:     "Paid Amount",
				Detail:   "Paid amount cannot be negative",
				Severity: datatypes.SeverityWarning,
				Source:   datatypes.SourceDataQuality,
			})
		}
	}

	return findings
}

func schemaFinding(fe validator.FieldError, row datatypes.RawClaimRow) datatypes.RuleFinding {
	switch fe.Tag() {
	case "encounter":
		return datatypes.RuleFinding{
			RuleID: "DQ-002",
			Rule:   "Encounter Type",
			Detail: fmt.Sprintf("Invalid encounter type: %s. Must be INPATIENT or OUTPATIENT",
				strings.ToUpper(strings.TrimSpace(row.EncounterType))),
			Severity: datatypes.SeverityWarning,
			Source:   datatypes.SourceDataQuality,
		}
	case "amount":
		return datatypes.RuleFinding{
			RuleID:   "DQ-004",
			Rule:     "Paid Amount",
			Detail:   "Paid amount must be a valid number",
			Severity: datatypes.SeverityError,
			Source:   datatypes.SourceDataQuality,
		}
	default:
		return datatypes.RuleFinding{
			RuleID:   "DQ-000",
			Rule:     fe.Field(),
			Detail:   fmt.Sprintf("Field %s failed %s validation", fe.Field(), fe.Tag()),
			Severity: datatypes.SeverityError,
			Source:   datatypes.SourceDataQuality,
		}
	}
}
