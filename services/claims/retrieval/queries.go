// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
)

// maxDiagnosisQueries caps the per-diagnosis template expansion so a claim
// with a long diagnosis list does not explode the query count.
const maxDiagnosisQueries = 5

// BuildQueries generates the fixed family of retrieval queries for a claim.
//
// # Description
//
// Each family targets one rule dimension: service eligibility, diagnosis
// requirements, service-diagnosis pairing, approval requirements, encounter
// type restrictions, conflicts, and amount thresholds, closing with generic
// adjudication fallbacks. Queries are deduplicated preserving first
// occurrence, so the family order is also the dedup priority during
// retrieval.
func BuildQueries(claim *datatypes.Claim) []string {
	var queries []string

	serviceCode := claim.ServiceCode
	diagnoses := claim.DiagnosisCodes
	if len(diagnoses) > maxDiagnosisQueries {
		diagnoses = diagnoses[:maxDiagnosisQueries]
	}
	encounter := strings.ToLower(string(claim.EncounterType))

	// Service-specific queries.
	if serviceCode != "" {
		queries = append(queries,
			fmt.Sprintf("service code %s rules requirements eligibility", serviceCode),
			fmt.Sprintf("service %s allowed not allowed restrictions", serviceCode),
			fmt.Sprintf("service code %s approval authorization required", serviceCode),
			fmt.Sprintf("service code %s required diagnosis codes", serviceCode),
			fmt.Sprintf("service %s encounter eligibility inpatient outpatient", serviceCode),
		)
	}

	// Diagnosis-specific queries.
	for _, code := range diagnoses {
		queries = append(queries,
			fmt.Sprintf("diagnosis code %s requirements approval eligibility", code),
			fmt.Sprintf("diagnosis %s allowed not allowed restrictions", code),
			fmt.Sprintf("diagnosis code %s authorization prior approval", code),
		)
	}

	// Service + diagnosis pairing queries.
	if serviceCode != "" {
		for _, code := range diagnoses {
			queries = append(queries,
				fmt.Sprintf("service code %s requires diagnosis code %s", serviceCode, code),
				fmt.Sprintf("service %s with diagnosis %s eligibility requirements", serviceCode, code),
			)
		}
	}

	// Approval requirement queries.
	queries = append(queries,
		"approval requirement prior authorization services diagnoses",
		"services requiring approval diagnosis codes requiring approval",
	)
	if serviceCode != "" {
		queries = append(queries,
			fmt.Sprintf("approval required service code %s", serviceCode))
	}

	// Encounter-type restriction queries.
	if encounter != "" {
		queries = append(queries,
			fmt.Sprintf("%s encounter service eligibility inpatient outpatient", encounter),
			fmt.Sprintf("which services are allowed for %s encounters", encounter),
			fmt.Sprintf("services not allowed for %s encounters", encounter),
		)
	}

	// Mutually exclusive diagnosis queries.
	if len(diagnoses) > 1 {
		capped := diagnoses
		if len(capped) > 3 {
			capped = capped[:3]
		}
		queries = append(queries,
			"mutually exclusive diagnosis codes conflict rules",
			fmt.Sprintf("diagnosis codes %s mutually exclusive conflict", strings.Join(capped, ", ")),
		)
	}

	// Amount threshold queries.
	if claim.PaidAmountRaw != "" || claim.PaidAmount != 0 {
		queries = append(queries,
			"paid amount threshold limit maximum minimum rules")
	}

	// General adjudication fallbacks, always present.
	queries = append(queries,
		"medical adjudication rules service diagnosis encounter facility eligibility",
		"claims validation rules medical adjudication eligibility",
	)

	return dedupeStrings(queries)
}

// dedupeStrings removes duplicates preserving first occurrence.
func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
