// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the claims service configuration from an optional
// YAML file with environment variable overrides. Environment always wins so
// container deployments can tune a baked-in config file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port string `yaml:"port"`
}

// RulesConfig holds the rule directory settings.
type RulesConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

// WeaviateConfig holds the vector store connection settings. An empty URL
// puts the service in lightweight mode: deterministic checks still run, the
// retrieval stage returns nothing.
type WeaviateConfig struct {
	URL string `yaml:"url"`
}

// LLMConfig selects and tunes the LLM backend.
type LLMConfig struct {
	Backend           string  `yaml:"backend"`
	MaxTokens         int     `yaml:"max_tokens"`
	MaxAttempts       int     `yaml:"max_attempts"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// PipelineConfig bounds the batch pipeline.
type PipelineConfig struct {
	Workers                 int `yaml:"workers"`
	TopK                    int `yaml:"top_k"`
	RetrievalTimeoutSeconds int `yaml:"retrieval_timeout_seconds"`
	LLMTimeoutSeconds       int `yaml:"llm_timeout_seconds"`
}

// PersistenceConfig holds the result store settings.
type PersistenceConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// Config is the full service configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Rules       RulesConfig       `yaml:"rules"`
	Weaviate    WeaviateConfig    `yaml:"weaviate"`
	LLM         LLMConfig         `yaml:"llm"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Persistence PersistenceConfig `yaml:"persistence"`
}

// DefaultConfig returns the configuration used when neither file nor
// environment says otherwise.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{Port: "8080"},
		Rules:  RulesConfig{Dir: "/app/rules", Watch: true},
		LLM: LLMConfig{
			Backend:           "openai",
			MaxTokens:         2000,
			MaxAttempts:       3,
			RequestsPerSecond: 2,
		},
		Pipeline: PipelineConfig{
			Workers:                 4,
			TopK:                    15,
			RetrievalTimeoutSeconds: 10,
			LLMTimeoutSeconds:       90,
		},
		Persistence: PersistenceConfig{Path: "/app/data/results"},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty the file must exist and parse), then environment
// overrides, then validation.
//
// # Inputs
//
//   - path: Optional YAML config file. Empty skips the file layer.
//
// # Outputs
//
//   - *Config: The merged configuration.
//   - error: Non-nil when the file is unreadable, the YAML is malformed, or
//     validation fails.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays environment variables onto the configuration. Unset or
// unparseable variables leave the current value alone.
func (c *Config) applyEnv() {
	setString(&c.Server.Port, "CLAIMS_PORT")
	setString(&c.Rules.Dir, "CLAIMS_RULES_DIR")
	setBool(&c.Rules.Watch, "CLAIMS_RULES_WATCH")
	setString(&c.Weaviate.URL, "WEAVIATE_SERVICE_URL")
	setString(&c.LLM.Backend, "LLM_BACKEND_TYPE")
	setInt(&c.LLM.MaxTokens, "CLAIMS_LLM_MAX_TOKENS")
	setInt(&c.LLM.MaxAttempts, "CLAIMS_LLM_MAX_ATTEMPTS")
	setInt(&c.Pipeline.Workers, "CLAIMS_PIPELINE_WORKERS")
	setInt(&c.Pipeline.TopK, "CLAIMS_RETRIEVAL_TOP_K")
	setString(&c.Persistence.Path, "CLAIMS_DATA_DIR")
	setBool(&c.Persistence.InMemory, "CLAIMS_STORE_IN_MEMORY")
}

// Validate checks the merged configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("server.port must be numeric, got %q", c.Server.Port)
	}
	if c.Rules.Dir == "" {
		return fmt.Errorf("rules.dir is required")
	}
	switch c.LLM.Backend {
	case "openai", "ollama":
	default:
		return fmt.Errorf("llm.backend must be openai or ollama, got %q", c.LLM.Backend)
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be at least 1")
	}
	if c.Pipeline.TopK < 1 {
		return fmt.Errorf("pipeline.top_k must be at least 1")
	}
	if !c.Persistence.InMemory && c.Persistence.Path == "" {
		return fmt.Errorf("persistence.path is required unless in_memory is set")
	}
	if c.Weaviate.URL != "" {
		if _, err := ParseWeaviateURL(c.Weaviate.URL); err != nil {
			return err
		}
	}
	return nil
}

// WeaviateEndpoint is a sanitized host + scheme pair for the Weaviate client.
type WeaviateEndpoint struct {
	Host   string
	Scheme string
}

// ParseWeaviateURL sanitizes and splits a Weaviate URL. Compose files tend to
// leave stray quotes around the value, so those are trimmed first.
func ParseWeaviateURL(raw string) (*WeaviateEndpoint, error) {
	cleaned := strings.Trim(strings.TrimSpace(raw), `"'`)
	parsed, err := url.Parse(cleaned)
	if err != nil || parsed.Host == "" || parsed.Scheme == "" {
		return nil, fmt.Errorf("weaviate.url %q is not a valid URL", raw)
	}
	return &WeaviateEndpoint{Host: parsed.Host, Scheme: parsed.Scheme}, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
