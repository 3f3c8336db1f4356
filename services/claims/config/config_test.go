// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "openai", cfg.LLM.Backend)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, 15, cfg.Pipeline.TopK)
	assert.True(t, cfg.Rules.Watch)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "claims.yaml")
	doc := `
server:
  port: "9090"
llm:
  backend: ollama
pipeline:
  workers: 2
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "ollama", cfg.LLM.Backend)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	// Untouched sections keep their defaults.
	assert.Equal(t, 15, cfg.Pipeline.TopK)
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "claims.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"9090\"\n"), 0o600))

	t.Setenv("CLAIMS_PORT", "7070")
	t.Setenv("CLAIMS_PIPELINE_WORKERS", "8")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, 8, cfg.Pipeline.Workers)
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Server.Port = "" }},
		{"non numeric port", func(c *Config) { c.Server.Port = "eighty" }},
		{"unknown backend", func(c *Config) { c.LLM.Backend = "parrot" }},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }},
		{"no store path", func(c *Config) { c.Persistence.Path = "" }},
		{"bad weaviate url", func(c *Config) { c.Weaviate.URL = "://nope" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseWeaviateURL(t *testing.T) {
	ep, err := ParseWeaviateURL(`"http://weaviate:8081"`)
	require.NoError(t, err)
	assert.Equal(t, "weaviate:8081", ep.Host)
	assert.Equal(t, "http", ep.Scheme)

	_, err = ParseWeaviateURL("not a url")
	assert.Error(t, err)
}

func TestLoad_EnvIgnoresUnparseableValues(t *testing.T) {
	t.Setenv("CLAIMS_PIPELINE_WORKERS", "many")
	t.Setenv("CLAIMS_RULES_WATCH", "sometimes")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.True(t, cfg.Rules.Watch)
}
