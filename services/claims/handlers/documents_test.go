// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
	"github.com/AleutianAI/claimsgate/services/claims/vectorstore"
)

type fakeIndex struct {
	inserted  []vectorstore.RuleChunk
	deleted   []string
	insertErr error
}

func (f *fakeIndex) InsertChunks(ctx context.Context, chunks []vectorstore.RuleChunk) (int, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.inserted = append(f.inserted, chunks...)
	return len(chunks), nil
}

func (f *fakeIndex) DeleteTenantChunks(ctx context.Context, tenantID string, ruleType datatypes.RuleType) error {
	f.deleted = append(f.deleted, tenantID+"/"+string(ruleType))
	return nil
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{0.1, 0.2, 0.3}
	}
	return vectors, nil
}

func postDocument(t *testing.T, router *gin.Engine, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/documents", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestIngestRuleDocument_ChunksEmbedsInserts(t *testing.T) {
	index := &fakeIndex{}
	router := gin.New()
	router.POST("/v1/documents", IngestRuleDocument(index, &fakeEmbedder{}))

	w := postDocument(t, router, IngestRuleDocumentRequest{
		TenantID: "acme",
		RuleType: "medical",
		Source:   "medical_rules.md",
		Content:  "## Approval\nOutpatient surgical services require prior approval.",
	})

	require.Equal(t, http.StatusCreated, w.Code)
	require.NotEmpty(t, index.inserted)
	for _, ch := range index.inserted {
		assert.Equal(t, "acme", ch.TenantID)
		assert.Equal(t, datatypes.RuleTypeMedical, ch.RuleType)
		assert.NotEmpty(t, ch.Vector, "every chunk must carry its embedding")
		assert.NotEmpty(t, ch.ContentHash)
	}
	assert.Empty(t, index.deleted, "replace was not requested")
}

func TestIngestRuleDocument_ReplaceClearsFirst(t *testing.T) {
	index := &fakeIndex{}
	router := gin.New()
	router.POST("/v1/documents", IngestRuleDocument(index, &fakeEmbedder{}))

	w := postDocument(t, router, IngestRuleDocumentRequest{
		TenantID: "acme",
		RuleType: "technical",
		Source:   "technical_rules.md",
		Content:  "Claims above the configured threshold require review.",
		Replace:  true,
	})

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"acme/technical"}, index.deleted)
}

func TestIngestRuleDocument_BadRequests(t *testing.T) {
	router := gin.New()
	router.POST("/v1/documents", IngestRuleDocument(&fakeIndex{}, &fakeEmbedder{}))

	tests := []struct {
		name string
		body IngestRuleDocumentRequest
	}{
		{"missing tenant", IngestRuleDocumentRequest{RuleType: "medical", Content: "x"}},
		{"missing content", IngestRuleDocumentRequest{TenantID: "acme", RuleType: "medical"}},
		{"bad rule type", IngestRuleDocumentRequest{TenantID: "acme", RuleType: "dental", Content: "x"}},
		{"tenant escapes identifier rules", IngestRuleDocumentRequest{TenantID: "../etc", RuleType: "medical", Content: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postDocument(t, router, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestIngestRuleDocument_EmbedderOutage(t *testing.T) {
	router := gin.New()
	router.POST("/v1/documents",
		IngestRuleDocument(&fakeIndex{}, &fakeEmbedder{err: errors.New("connection refused")}))

	w := postDocument(t, router, IngestRuleDocumentRequest{
		TenantID: "acme",
		RuleType: "medical",
		Content:  "Prior approval is required for inpatient admissions.",
	})

	assert.Equal(t, http.StatusBadGateway, w.Code)
}
