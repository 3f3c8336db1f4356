// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rules

import "github.com/AleutianAI/claimsgate/services/claims/datatypes"

// DefaultUniqueIDPattern is the identifier format enforced when a tenant's
// technical rules do not override it: uppercase alphanumerics and hyphens,
// at least ten characters.
const DefaultUniqueIDPattern = `^[A-Z0-9-]{10,}$`

// defaultTechnicalJSON is the built-in technical rule document used when not
// even the default tenant has a backing source.
var defaultTechnicalJSON = []byte(`{
  "services_requiring_approval": [],
  "diagnoses_requiring_approval": [],
  "paid_amount_threshold": 5000.0,
  "unique_id_pattern": "^[A-Z0-9-]{10,}$",
  "unique_id_validation": {
    "description": "unique_id structure validation",
    "verify_segments": true
  }
}`)

// defaultMedicalJSON is the built-in medical rule document.
var defaultMedicalJSON = []byte(`{
  "inpatient_services": [],
  "outpatient_services": [],
  "facility_types": {},
  "service_diagnosis_requirements": {},
  "mutually_exclusive_diagnoses": []
}`)

// builtinRuleSet returns the compiled-in rule set for ruleType. The built-in
// documents are known-valid, so parse failures here are programmer errors.
func builtinRuleSet(tenantID string, ruleType datatypes.RuleType) *RuleSet {
	raw := defaultTechnicalJSON
	if ruleType == datatypes.RuleTypeMedical {
		raw = defaultMedicalJSON
	}
	rs, err := ParseRuleSet(tenantID, ruleType, raw)
	if err != nil {
		panic("rules: built-in rule set failed to parse: " + err.Error())
	}
	return rs
}
