// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
	"github.com/AleutianAI/claimsgate/services/claims/persistence"
)

func newResultsRouter(t *testing.T) (*gin.Engine, persistence.Store) {
	t.Helper()
	store := persistence.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	router := gin.New()
	router.GET("/v1/results/:tenant/:claim", GetResult(store))
	router.GET("/v1/batches/:tenant/:batch", GetBatch(store))
	return router, store
}

func TestGetResult_Found(t *testing.T) {
	router, store := newResultsRouter(t)
	require.NoError(t, store.SaveResult(context.Background(), &datatypes.ValidationResult{
		ClaimID:  "CLM-1",
		TenantID: "acme",
		Status:   datatypes.StatusValidated,
	}))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/results/acme/CLM-1", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var got datatypes.ValidationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "CLM-1", got.ClaimID)
	assert.Equal(t, datatypes.StatusValidated, got.Status)
}

func TestGetResult_Missing(t *testing.T) {
	router, _ := newResultsRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/results/acme/CLM-404", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetBatch_WithResults(t *testing.T) {
	router, store := newResultsRouter(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.SaveResult(ctx, &datatypes.ValidationResult{
		ClaimID: "CLM-1", TenantID: "acme", BatchID: "B-1",
		Status: datatypes.StatusValidated,
	}))
	require.NoError(t, store.SaveBatch(ctx, &datatypes.Batch{
		BatchID: "B-1", TenantID: "acme", ClaimIDs: []string{"CLM-1"},
		ProcessedAt: &now,
	}))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/batches/acme/B-1", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "B-1")
	assert.Contains(t, w.Body.String(), "CLM-1")
}

func TestGetBatch_Missing(t *testing.T) {
	router, _ := newResultsRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/batches/acme/B-404", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
