// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOllamaClientFor(t *testing.T, url string) *OllamaClient {
	t.Helper()
	t.Setenv("OLLAMA_BASE_URL", url)
	t.Setenv("OLLAMA_MODEL", "test-model")
	client, err := NewOllamaClient()
	require.NoError(t, err)
	return client
}

func TestOllamaGenerate_SendsOptionsAndReturnsResponse(t *testing.T) {
	var gotReq ollamaGenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotReq))
		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{
			Model:    "test-model",
			Response: "VALIDATION_STATUS:",
			Done:     true,
		})
	}))
	defer server.Close()

	client := newOllamaClientFor(t, server.URL)

	temp := float32(0)
	maxTokens := 512
	out, err := client.Generate(context.Background(), "evaluate this claim",
		GenerationParams{Temperature: &temp, MaxTokens: &maxTokens})
	require.NoError(t, err)
	assert.Equal(t, "VALIDATION_STATUS:", out)

	assert.Equal(t, "test-model", gotReq.Model)
	assert.False(t, gotReq.Stream)
	assert.EqualValues(t, 0, gotReq.Options["temperature"])
	assert.EqualValues(t, 512, gotReq.Options["num_predict"])
}

func TestOllamaGenerate_ModelNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "model 'test-model' not found"}`))
	}))
	defer server.Close()

	client := newOllamaClientFor(t, server.URL)

	_, err := client.Generate(context.Background(), "prompt", GenerationParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama pull")
}

func TestOllamaGenerate_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newOllamaClientFor(t, server.URL)

	_, err := client.Generate(context.Background(), "prompt", GenerationParams{})
	assert.Error(t, err)
}

func TestNewOllamaClient_RequiresBaseURL(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "")
	_, err := NewOllamaClient()
	assert.Error(t, err)
}
