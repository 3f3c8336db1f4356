// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
)

// ErrMalformedRow indicates a row carries no usable identity and cannot
// become a claim. The row still produces an Errored result; it is never
// silently dropped.
var ErrMalformedRow = errors.New("malformed claim row")

// serviceDateLayouts are tried in order when parsing the service date.
// Unparseable dates coerce to the zero time; data quality does not treat a
// missing date as fatal.
var serviceDateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"01/02/2006",
}

// ingestRow converts one raw row into an immutable claim.
//
// # Description
//
// Identity handling mirrors the batch contract: a row without a claim id
// gets a generated one, and a duplicate id within the batch is suffixed with
// the row index so every row yields a distinct result. Field coercion is
// lenient; anything unparseable is left for data quality to flag.
//
// # Inputs
//   - row: the raw row
//   - tenantID, batchID: ownership of the resulting claim
//   - index: zero-based row position within the batch
//   - seen: claim ids already assigned in this batch, updated in place
//
// # Outputs
//   - *datatypes.Claim: the ingested claim
//   - error: ErrMalformedRow for rows with no usable identity
func ingestRow(row datatypes.RawClaimRow, tenantID, batchID string, index int, seen map[string]struct{}) (*datatypes.Claim, error) {
	if row.Empty() {
		return nil, fmt.Errorf("%w: row %d has no identifying fields", ErrMalformedRow, index)
	}

	claimID := strings.TrimSpace(row.ClaimID)
	if claimID == "" {
		claimID = uuid.NewString()
	}
	if _, dup := seen[claimID]; dup {
		claimID = fmt.Sprintf("%s_%d", claimID, index)
	}
	seen[claimID] = struct{}{}

	c := &datatypes.Claim{
		ClaimID:        claimID,
		TenantID:       tenantID,
		BatchID:        batchID,
		EncounterType:  datatypes.EncounterType(strings.ToUpper(strings.TrimSpace(row.EncounterType))),
		NationalID:     strings.TrimSpace(row.NationalID),
		MemberID:       strings.TrimSpace(row.MemberID),
		FacilityID:     strings.TrimSpace(row.FacilityID),
		UniqueID:       strings.TrimSpace(row.UniqueID),
		DiagnosisCodes: parseDiagnosisCodes(row.DiagnosisCodes),
		ServiceCode:    strings.TrimSpace(row.ServiceCode),
		ApprovalNumber: strings.TrimSpace(row.ApprovalNumber),
	}

	if raw := strings.TrimSpace(row.ServiceDate); raw != "" {
		for _, layout := range serviceDateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				c.ServiceDate = t
				break
			}
		}
	}

	if raw := strings.TrimSpace(row.PaidAmount); raw != "" {
		c.PaidAmountRaw = raw
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			c.PaidAmount = f
		}
	}

	return c, nil
}

// parseDiagnosisCodes splits a comma or whitespace separated code list.
func parseDiagnosisCodes(raw string) []string {
	fields := strings.Fields(strings.ReplaceAll(raw, ",", " "))
	if len(fields) == 0 {
		return nil
	}
	return fields
}
