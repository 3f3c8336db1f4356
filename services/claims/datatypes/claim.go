// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the shared data model for the claims validation
// service: claims, batches, validation results, rule findings, and the
// enumerations used across pipeline stages.
//
// Types in this package are plain data carriers. Business logic lives in the
// stage packages (rules, quality, retrieval, evaluator, pipeline); handlers
// and persistence marshal these types directly.
package datatypes

import (
	"strings"
	"time"
)

// =============================================================================
// Enumerations
// =============================================================================

// ClaimStatus is the terminal validation status of a claim.
type ClaimStatus string

const (
	// StatusProcessing indicates the claim has been ingested but not yet
	// reached a terminal state.
	StatusProcessing ClaimStatus = "Processing"

	// StatusValidated indicates the claim passed every check.
	StatusValidated ClaimStatus = "Validated"

	// StatusNotValidated indicates at least one check failed or the row
	// was malformed.
	StatusNotValidated ClaimStatus = "Not validated"
)

// ErrorType classifies which categories of findings a claim carries.
type ErrorType string

const (
	ErrorNone      ErrorType = "No error"
	ErrorTechnical ErrorType = "Technical error"
	ErrorMedical   ErrorType = "Medical error"
	ErrorBoth      ErrorType = "Both"
)

// HasTechnical reports whether the error type includes a technical error.
func (e ErrorType) HasTechnical() bool {
	return e == ErrorTechnical || e == ErrorBoth
}

// HasMedical reports whether the error type includes a medical error.
func (e ErrorType) HasMedical() bool {
	return e == ErrorMedical || e == ErrorBoth
}

// EncounterType is the admission type under which a service was rendered.
type EncounterType string

const (
	EncounterInpatient  EncounterType = "INPATIENT"
	EncounterOutpatient EncounterType = "OUTPATIENT"
)

// ValidEncounterType reports whether s (after trimming and upcasing) is a
// recognized encounter type. Empty is considered valid; absence of the field
// is handled by data quality checks, not by this predicate.
func ValidEncounterType(s string) bool {
	switch EncounterType(strings.ToUpper(strings.TrimSpace(s))) {
	case EncounterInpatient, EncounterOutpatient, "":
		return true
	}
	return false
}

// RuleType distinguishes the two rule corpora kept per tenant.
type RuleType string

const (
	RuleTypeTechnical RuleType = "technical"
	RuleTypeMedical   RuleType = "medical"
)

// ValidRuleType reports whether t names a known rule corpus.
func ValidRuleType(t RuleType) bool {
	return t == RuleTypeTechnical || t == RuleTypeMedical
}

// DefaultTenant is the fallback tenant whose rule sets serve tenants without
// custom rules. Its rule sets are read-only through the configuration API.
const DefaultTenant = "default"

// =============================================================================
// Raw rows and claims
// =============================================================================

// RawClaimRow is a single untyped row handed to the pipeline by an ingestion
// collaborator (file upload, API submission). All fields are strings as they
// arrive; parsing and coercion happen during ingestion.
type RawClaimRow struct {
	ClaimID        string `json:"claim_id"`
	EncounterType  string `json:"encounter_type"`
	ServiceDate    string `json:"service_date"`
	NationalID     string `json:"national_id"`
	MemberID       string `json:"member_id"`
	FacilityID     string `json:"facility_id"`
	UniqueID       string `json:"unique_id"`
	DiagnosisCodes string `json:"diagnosis_codes"`
	ServiceCode    string `json:"service_code"`
	PaidAmount     string `json:"paid_amount"`
	ApprovalNumber string `json:"approval_number"`
}

// Empty reports whether the row carries no usable identity at all. Such rows
// cannot be ingested and route directly to the Errored state.
func (r RawClaimRow) Empty() bool {
	return strings.TrimSpace(r.ClaimID) == "" &&
		strings.TrimSpace(r.MemberID) == "" &&
		strings.TrimSpace(r.UniqueID) == "" &&
		strings.TrimSpace(r.ServiceCode) == ""
}

// Claim is an immutable ingested claim. Created once during ingestion and
// never mutated afterwards; validation outputs accumulate on the separate
// ValidationResult keyed by ClaimID.
type Claim struct {
	ClaimID        string        `json:"claim_id"`
	TenantID       string        `json:"tenant_id"`
	BatchID        string        `json:"batch_id"`
	EncounterType  EncounterType `json:"encounter_type,omitempty"`
	ServiceDate    time.Time     `json:"service_date,omitempty"`
	NationalID     string        `json:"national_id,omitempty"`
	MemberID       string        `json:"member_id,omitempty"`
	FacilityID     string        `json:"facility_id,omitempty"`
	DiagnosisCodes []string      `json:"diagnosis_codes,omitempty"`
	ServiceCode    string        `json:"service_code,omitempty"`
	PaidAmount     float64       `json:"paid_amount"`
	PaidAmountRaw  string        `json:"paid_amount_raw,omitempty"`
	ApprovalNumber string        `json:"approval_number,omitempty"`
	UniqueID       string        `json:"unique_id,omitempty"`
}

// HasApproval reports whether the claim carries a non-blank approval number.
func (c *Claim) HasApproval() bool {
	return strings.TrimSpace(c.ApprovalNumber) != ""
}

// =============================================================================
// Batches
// =============================================================================

// Batch groups the claims submitted in one ingestion call. Claims within a
// batch are processed independently; there is no cross-claim invariant and no
// partial-batch rollback.
type Batch struct {
	BatchID     string     `json:"batch_id"`
	TenantID    string     `json:"tenant_id"`
	ClaimIDs    []string   `json:"claim_ids"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}
