// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
	"github.com/AleutianAI/claimsgate/services/claims/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder returns a distinct unit vector per text.
type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(i), 1}
	}
	return vectors, nil
}

type errEmbedder struct{}

func (errEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedding service down")
}

// fakeSearcher serves canned per-call results, then repeats the last set.
type fakeSearcher struct {
	batches [][]vectorstore.SearchResult
	call    int
	err     error
}

func (f *fakeSearcher) Search(_ context.Context, _ string, _ []float32, _ int) ([]vectorstore.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	i := f.call
	if i >= len(f.batches) {
		i = len(f.batches) - 1
	}
	f.call++
	return f.batches[i], nil
}

func testClaim() *datatypes.Claim {
	return &datatypes.Claim{
		ClaimID:        "c-1",
		TenantID:       "acme",
		ServiceCode:    "SRV2007",
		DiagnosisCodes: []string{"E11.9", "J45.0"},
		EncounterType:  datatypes.EncounterInpatient,
		PaidAmountRaw:  "6000",
	}
}

func chunk(hash string, certainty float64) vectorstore.SearchResult {
	return vectorstore.SearchResult{
		Content:     "rule text " + hash,
		ContentHash: hash,
		Source:      "policy.md",
		Certainty:   certainty,
	}
}

func TestBuildQueries_CoversAllFamilies(t *testing.T) {
	queries := BuildQueries(testClaim())
	require.NotEmpty(t, queries)

	joined := strings.Join(queries, "\n")
	assert.Contains(t, joined, "SRV2007")
	assert.Contains(t, joined, "E11.9")
	assert.Contains(t, joined, "J45.0")
	assert.Contains(t, joined, "inpatient encounter")
	assert.Contains(t, joined, "approval requirement prior authorization")
	assert.Contains(t, joined, "mutually exclusive")
	assert.Contains(t, joined, "paid amount threshold")
	assert.Contains(t, joined, "medical adjudication rules")
}

func TestBuildQueries_NoDuplicates(t *testing.T) {
	queries := BuildQueries(testClaim())
	seen := map[string]bool{}
	for _, q := range queries {
		assert.False(t, seen[q], "duplicate query: %s", q)
		seen[q] = true
	}
}

func TestBuildQueries_EmptyClaimStillQueries(t *testing.T) {
	queries := BuildQueries(&datatypes.Claim{ClaimID: "c-2", TenantID: "acme"})
	require.NotEmpty(t, queries, "generic fallback queries always apply")
	joined := strings.Join(queries, "\n")
	assert.Contains(t, joined, "claims validation rules")
}

func TestBuildQueries_CapsDiagnosisExpansion(t *testing.T) {
	claim := testClaim()
	claim.DiagnosisCodes = []string{"A", "B", "C", "D", "E", "F", "G"}
	queries := BuildQueries(claim)
	joined := strings.Join(queries, "\n")
	assert.NotContains(t, joined, "diagnosis code F")
	assert.NotContains(t, joined, "diagnosis code G")
}

func TestRetrieve_DedupByContentHashFirstWins(t *testing.T) {
	searcher := &fakeSearcher{batches: [][]vectorstore.SearchResult{
		{chunk("h1", 0.80), chunk("h2", 0.70)},
		{chunk("h1", 0.95), chunk("h3", 0.60)},
	}}
	r := NewRetriever(searcher, &fakeEmbedder{}, nil)

	chunks, err := r.Retrieve(context.Background(), testClaim(), 10)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	// h1 appears once, carrying its best certainty across queries.
	var h1 *Chunk
	for i := range chunks {
		if chunks[i].ContentHash == "h1" {
			h1 = &chunks[i]
		}
	}
	require.NotNil(t, h1)
	assert.Equal(t, 0.95, h1.Certainty)
}

func TestRetrieve_RankedByBestCertainty(t *testing.T) {
	searcher := &fakeSearcher{batches: [][]vectorstore.SearchResult{
		{chunk("low", 0.50), chunk("high", 0.90), chunk("mid", 0.70)},
	}}
	r := NewRetriever(searcher, &fakeEmbedder{}, nil)

	chunks, err := r.Retrieve(context.Background(), testClaim(), 10)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "high", chunks[0].ContentHash)
	assert.Equal(t, "mid", chunks[1].ContentHash)
	assert.Equal(t, "low", chunks[2].ContentHash)
}

func TestRetrieve_TruncatesToTopK(t *testing.T) {
	searcher := &fakeSearcher{batches: [][]vectorstore.SearchResult{
		{chunk("a", 0.9), chunk("b", 0.8), chunk("c", 0.7), chunk("d", 0.6)},
	}}
	r := NewRetriever(searcher, &fakeEmbedder{}, nil)

	chunks, err := r.Retrieve(context.Background(), testClaim(), 2)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "a", chunks[0].ContentHash)
	assert.Equal(t, "b", chunks[1].ContentHash)
}

func TestRetrieve_EmptyIndexReturnsEmptyNotError(t *testing.T) {
	r := NewRetriever(&fakeSearcher{}, &fakeEmbedder{}, nil)

	chunks, err := r.Retrieve(context.Background(), testClaim(), 10)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestRetrieve_IndexFailureDegrades(t *testing.T) {
	searcher := &fakeSearcher{err: vectorstore.ErrUnavailable}
	r := NewRetriever(searcher, &fakeEmbedder{}, nil)

	chunks, err := r.Retrieve(context.Background(), testClaim(), 10)
	require.NoError(t, err, "index outage must not fail the claim")
	assert.Empty(t, chunks)
}

func TestRetrieve_EmbeddingFailureIsError(t *testing.T) {
	r := NewRetriever(&fakeSearcher{}, errEmbedder{}, nil)
	_, err := r.Retrieve(context.Background(), testClaim(), 10)
	assert.Error(t, err)
}

func TestRuleIDs(t *testing.T) {
	ids := RuleIDs([]Chunk{{ContentHash: "h1"}, {ContentHash: "h2"}})
	assert.Equal(t, []string{"h1", "h2"}, ids)
	assert.Empty(t, RuleIDs(nil))
}
