// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rules implements per-tenant rule set loading, caching, and the
// deterministic technical rule engine.
//
// Rule sets are JSON documents scoped by (tenant, rule type). The Store
// caches parsed rule sets keyed by tenant and rule type and invalidates
// entries by content fingerprint, so a changed backing document is picked up
// on the next read without a restart. Tenants without their own documents
// fall back to the "default" tenant, which is immutable through the API.
package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrInvalidRuleSet is returned when rule content fails to parse or
	// validate. The offending key is carried by the wrapping RuleSetError.
	ErrInvalidRuleSet = errors.New("invalid rule set")

	// ErrWriteRejected is returned when a write targets the default tenant.
	ErrWriteRejected = errors.New("write rejected: default tenant rule sets are read-only")

	// ErrUnknownRuleType is returned for rule types other than technical or
	// medical.
	ErrUnknownRuleType = errors.New("unknown rule type")
)

// RuleSetError wraps ErrInvalidRuleSet with the key that failed validation.
type RuleSetError struct {
	Key    string
	Reason string
}

func (e *RuleSetError) Error() string {
	return fmt.Sprintf("invalid rule set: key %q: %s", e.Key, e.Reason)
}

func (e *RuleSetError) Unwrap() error { return ErrInvalidRuleSet }

// =============================================================================
// Rule set types
// =============================================================================

// UniqueIDValidation configures structural verification of the unique_id
// field beyond the regex pattern.
type UniqueIDValidation struct {
	Description    string `json:"description,omitempty"`
	VerifySegments bool   `json:"verify_segments"`
}

// TechnicalRuleSet holds the deterministic technical rules for one tenant.
type TechnicalRuleSet struct {
	ServicesRequiringApproval  []string           `json:"services_requiring_approval"`
	DiagnosesRequiringApproval []string           `json:"diagnoses_requiring_approval"`
	PaidAmountThreshold        float64            `json:"paid_amount_threshold"`
	UniqueIDPattern            string             `json:"unique_id_pattern"`
	UniqueIDValidation         UniqueIDValidation `json:"unique_id_validation"`

	pattern *regexp.Regexp
}

// Pattern returns the compiled unique_id pattern. Always non-nil on a rule
// set that came out of ParseRuleSet.
func (t *TechnicalRuleSet) Pattern() *regexp.Regexp { return t.pattern }

// ServiceRequiresApproval reports whether code is on the prior-approval list.
func (t *TechnicalRuleSet) ServiceRequiresApproval(code string) bool {
	for _, s := range t.ServicesRequiringApproval {
		if s == code {
			return true
		}
	}
	return false
}

// DiagnosisRequiresApproval reports whether code is on the prior-approval list.
func (t *TechnicalRuleSet) DiagnosisRequiresApproval(code string) bool {
	for _, d := range t.DiagnosesRequiringApproval {
		if d == code {
			return true
		}
	}
	return false
}

// MedicalRuleSet holds the static medical rule corpus for one tenant. The
// medical verdict itself comes from the LLM path; this corpus seeds the
// retrieval index and prompt context.
type MedicalRuleSet struct {
	InpatientServices            []string            `json:"inpatient_services"`
	OutpatientServices           []string            `json:"outpatient_services"`
	FacilityTypes                map[string]string   `json:"facility_types"`
	ServiceDiagnosisRequirements map[string][]string `json:"service_diagnosis_requirements"`
	MutuallyExclusiveDiagnoses   [][]string          `json:"mutually_exclusive_diagnoses"`
}

// RuleSet is the tagged union of the two per-tenant rule corpora, together
// with the content fingerprint of the document it was parsed from.
//
// Exactly one of Technical and Medical is non-nil, matching Type.
type RuleSet struct {
	TenantID    string
	Type        datatypes.RuleType
	Technical   *TechnicalRuleSet
	Medical     *MedicalRuleSet
	Fingerprint string

	// Extra carries forward-compatible unknown keys verbatim. They are not
	// validated and pass through serialization untouched.
	Extra map[string]json.RawMessage

	raw []byte
}

// Raw returns the backing JSON document.
func (rs *RuleSet) Raw() []byte { return rs.raw }

// =============================================================================
// Parsing and validation
// =============================================================================

var technicalKeys = map[string]bool{
	"services_requiring_approval":  true,
	"diagnoses_requiring_approval": true,
	"paid_amount_threshold":        true,
	"unique_id_pattern":            true,
	"unique_id_validation":         true,
}

var medicalKeys = map[string]bool{
	"inpatient_services":             true,
	"outpatient_services":            true,
	"facility_types":                 true,
	"service_diagnosis_requirements": true,
	"mutually_exclusive_diagnoses":   true,
}

// ParseRuleSet parses and validates a raw rule document.
//
// # Description
//
// Unmarshals the document into the typed rule set for ruleType, validates
// the known keys, and preserves unknown keys in Extra so newer documents
// remain loadable by older binaries. The fingerprint is the SHA-256 of the
// raw bytes.
//
// # Inputs
//
//   - tenantID: Owning tenant. Recorded on the rule set, not validated here.
//   - ruleType: datatypes.RuleTypeTechnical or datatypes.RuleTypeMedical.
//   - raw: The JSON document.
//
// # Outputs
//
//   - *RuleSet: The parsed rule set.
//   - error: ErrUnknownRuleType, or a *RuleSetError (wrapping
//     ErrInvalidRuleSet) naming the offending key.
func ParseRuleSet(tenantID string, ruleType datatypes.RuleType, raw []byte) (*RuleSet, error) {
	if !datatypes.ValidRuleType(ruleType) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRuleType, ruleType)
	}

	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keyed); err != nil {
		return nil, &RuleSetError{Key: "(document)", Reason: err.Error()}
	}

	rs := &RuleSet{
		TenantID:    tenantID,
		Type:        ruleType,
		Fingerprint: Fingerprint(raw),
		Extra:       map[string]json.RawMessage{},
		raw:         raw,
	}

	known := technicalKeys
	if ruleType == datatypes.RuleTypeMedical {
		known = medicalKeys
	}
	for k, v := range keyed {
		if !known[k] {
			rs.Extra[k] = v
		}
	}

	switch ruleType {
	case datatypes.RuleTypeTechnical:
		var t TechnicalRuleSet
		if err := unmarshalKnown(keyed, known, &t); err != nil {
			return nil, err
		}
		if t.PaidAmountThreshold < 0 {
			return nil, &RuleSetError{Key: "paid_amount_threshold", Reason: "must be non-negative"}
		}
		if t.UniqueIDPattern == "" {
			t.UniqueIDPattern = DefaultUniqueIDPattern
		}
		pattern, err := regexp.Compile(t.UniqueIDPattern)
		if err != nil {
			return nil, &RuleSetError{Key: "unique_id_pattern", Reason: err.Error()}
		}
		t.pattern = pattern
		rs.Technical = &t

	case datatypes.RuleTypeMedical:
		var m MedicalRuleSet
		if err := unmarshalKnown(keyed, known, &m); err != nil {
			return nil, err
		}
		for i, group := range m.MutuallyExclusiveDiagnoses {
			if len(group) < 2 {
				return nil, &RuleSetError{
					Key:    "mutually_exclusive_diagnoses",
					Reason: fmt.Sprintf("group %d must list at least two codes", i),
				}
			}
		}
		rs.Medical = &m
	}

	return rs, nil
}

// unmarshalKnown decodes only the known keys into dst, attributing type
// errors to the key that caused them.
func unmarshalKnown(keyed map[string]json.RawMessage, known map[string]bool, dst any) error {
	filtered := make(map[string]json.RawMessage, len(known))
	for k, v := range keyed {
		if known[k] {
			filtered[k] = v
		}
	}
	buf, err := json.Marshal(filtered)
	if err != nil {
		return &RuleSetError{Key: "(document)", Reason: err.Error()}
	}
	if err := json.Unmarshal(buf, dst); err != nil {
		key := "(document)"
		var ute *json.UnmarshalTypeError
		if errors.As(err, &ute) && ute.Field != "" {
			key = ute.Field
		}
		return &RuleSetError{Key: key, Reason: err.Error()}
	}
	return nil
}

// Fingerprint returns the hex SHA-256 of content. Used as the cache staleness
// signal for rule documents and as the dedup key for retrieved chunks.
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
