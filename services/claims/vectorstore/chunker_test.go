// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vectorstore

import (
	"strings"
	"testing"

	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkDocument(t *testing.T) {
	content := strings.Repeat("Service SRV2007 requires prior approval for all inpatient encounters. ", 40)

	chunks, err := ChunkDocument("acme", datatypes.RuleTypeMedical, "policy.md", content)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Greater(t, len(chunks), 1, "long documents should split into multiple chunks")

	for _, c := range chunks {
		assert.Equal(t, "acme", c.TenantID)
		assert.Equal(t, datatypes.RuleTypeMedical, c.RuleType)
		assert.Equal(t, "policy.md", c.Source)
		assert.NotEmpty(t, c.Content)
		assert.Len(t, c.ContentHash, 64)
		assert.Nil(t, c.Vector, "vectors are filled in by the ingestion path")
	}
	assert.Equal(t, HashContent(chunks[0].Content), chunks[0].ContentHash)
}

func TestChunkDocument_Empty(t *testing.T) {
	chunks, err := ChunkDocument("acme", datatypes.RuleTypeMedical, "policy.md", "")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkDocument_ShortDocumentSingleChunk(t *testing.T) {
	chunks, err := ChunkDocument("acme", datatypes.RuleTypeTechnical, "rules.txt",
		"Claims above 5000 AED require additional approval.")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
}

func TestHashContent_CoversFullContent(t *testing.T) {
	long := strings.Repeat("x", 300)
	modified := long[:299] + "y" // differs only past the 200-char mark
	assert.NotEqual(t, HashContent(long), HashContent(modified))
}

func TestChunkID_Deterministic(t *testing.T) {
	c := RuleChunk{
		TenantID:    "acme",
		RuleType:    datatypes.RuleTypeMedical,
		ContentHash: HashContent("some rule text"),
	}
	assert.Equal(t, chunkID(c), chunkID(c))

	other := c
	other.TenantID = "globex"
	assert.NotEqual(t, chunkID(c), chunkID(other),
		"same content under different tenants must not collide")
}
