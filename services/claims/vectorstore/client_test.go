// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vectorstore

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// -----------------------------------------------------------------------------
// ClientConfig Tests
// -----------------------------------------------------------------------------

func TestClientConfig_Validate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := DefaultClientConfig()
		cfg.URL = "http://localhost:8080"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("missing url", func(t *testing.T) {
		cfg := DefaultClientConfig()
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "url")
	})

	t.Run("negative retry_attempts", func(t *testing.T) {
		cfg := DefaultClientConfig()
		cfg.URL = "http://localhost:8080"
		cfg.RetryAttempts = -1
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "retry_attempts")
	})

	t.Run("invalid retry_jitter", func(t *testing.T) {
		cfg := DefaultClientConfig()
		cfg.URL = "http://localhost:8080"
		cfg.RetryJitter = 1.5
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "retry_jitter")
	})

	t.Run("zero circuit_threshold", func(t *testing.T) {
		cfg := DefaultClientConfig()
		cfg.URL = "http://localhost:8080"
		cfg.CircuitThreshold = 0
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "circuit_threshold")
	})
}

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig()
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, 5*time.Second, cfg.MaxRetryBackoff)
	assert.Equal(t, 0.25, cfg.RetryJitter)
	assert.Equal(t, 5, cfg.CircuitThreshold)
	assert.Equal(t, 30*time.Second, cfg.CircuitWindow)
	assert.Equal(t, 30*time.Second, cfg.CircuitCooldown)
	assert.False(t, cfg.AllowStartDegraded)
}

// -----------------------------------------------------------------------------
// ConnectionState Tests
// -----------------------------------------------------------------------------

func TestConnectionState_String(t *testing.T) {
	tests := []struct {
		state    ConnectionState
		expected string
	}{
		{StateConnected, "connected"},
		{StateDegraded, "degraded"},
		{StateCircuitOpen, "circuit_open"},
		{StateHalfOpen, "half_open"},
		{ConnectionState(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
		})
	}
}

func TestNewResilientClient_InvalidConfig(t *testing.T) {
	_, err := NewResilientClient(ClientConfig{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "url")
}

// -----------------------------------------------------------------------------
// Circuit Breaker Tests
// -----------------------------------------------------------------------------

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	client := &ResilientClient{
		config: ClientConfig{
			CircuitThreshold: 3,
			CircuitWindow:    30 * time.Second,
			CircuitCooldown:  1 * time.Second,
		},
		failures: make([]time.Time, 3),
		logger:   slog.Default(),
	}
	client.state.Store(int32(StateConnected))

	for i := 0; i < 3; i++ {
		client.recordFailure()
	}

	assert.Equal(t, StateCircuitOpen, client.GetState())
}

func TestCircuitBreaker_HalfOpenAfterCooldown(t *testing.T) {
	client := &ResilientClient{
		config: ClientConfig{
			CircuitThreshold: 3,
			CircuitWindow:    30 * time.Second,
			CircuitCooldown:  10 * time.Millisecond,
		},
		failures: make([]time.Time, 3),
		logger:   slog.Default(),
	}
	client.state.Store(int32(StateCircuitOpen))
	client.circuitOpenTime.Store(time.Now().Add(-20 * time.Millisecond).Unix())

	assert.True(t, client.shouldTryHalfOpen())
}

func TestCircuitBreaker_DoesNotOpenWithoutThreshold(t *testing.T) {
	client := &ResilientClient{
		config: ClientConfig{
			CircuitThreshold: 5,
			CircuitWindow:    30 * time.Second,
		},
		failures: make([]time.Time, 5),
		logger:   slog.Default(),
	}
	client.state.Store(int32(StateConnected))

	for i := 0; i < 3; i++ {
		client.recordFailure()
	}

	assert.NotEqual(t, StateCircuitOpen, client.GetState())
}

func TestCircuitBreaker_SlidingWindow(t *testing.T) {
	client := &ResilientClient{
		config: ClientConfig{
			CircuitThreshold: 3,
			CircuitWindow:    100 * time.Millisecond,
		},
		failures: make([]time.Time, 3),
		logger:   slog.Default(),
	}
	client.state.Store(int32(StateConnected))

	client.recordFailure()

	// Let the first failure age out of the window.
	time.Sleep(150 * time.Millisecond)

	client.recordFailure()
	client.recordFailure()

	assert.NotEqual(t, StateCircuitOpen, client.GetState())
}

// -----------------------------------------------------------------------------
// Retry Tests
// -----------------------------------------------------------------------------

func TestCalculateBackoff_WithJitter(t *testing.T) {
	client := &ResilientClient{
		config: ClientConfig{
			RetryBackoff:    100 * time.Millisecond,
			MaxRetryBackoff: 1 * time.Second,
			RetryJitter:     0.25,
		},
	}

	backoffs := make([]time.Duration, 10)
	for i := 0; i < 10; i++ {
		backoffs[i] = client.calculateBackoff(1)
	}

	expected := 200 * time.Millisecond // 100ms * 2^1
	minExpected := time.Duration(float64(expected) * 0.75)
	maxExpected := time.Duration(float64(expected) * 1.25)

	for _, b := range backoffs {
		assert.GreaterOrEqual(t, b, minExpected)
		assert.LessOrEqual(t, b, maxExpected)
	}

	allSame := true
	for i := 1; i < len(backoffs); i++ {
		if backoffs[i] != backoffs[0] {
			allSame = false
			break
		}
	}
	assert.False(t, allSame, "jitter should produce some variation")
}

func TestCalculateBackoff_CapsAtMax(t *testing.T) {
	client := &ResilientClient{
		config: ClientConfig{
			RetryBackoff:    100 * time.Millisecond,
			MaxRetryBackoff: 500 * time.Millisecond,
			RetryJitter:     0,
		},
	}

	backoff := client.calculateBackoff(10)
	assert.LessOrEqual(t, backoff, client.config.MaxRetryBackoff)
}

// -----------------------------------------------------------------------------
// Error Categorization Tests
// -----------------------------------------------------------------------------

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil error", nil, false},
		{"context cancelled", context.Canceled, false},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"random error", errors.New("random"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, isRetryable(tt.err))
		})
	}
}

func TestIsRetryable_NetworkErrors(t *testing.T) {
	netErr := &net.OpError{
		Op:  "dial",
		Net: "tcp",
		Err: errors.New("connection refused"),
	}
	assert.True(t, isRetryable(netErr), "connection errors should be retryable")
}

func TestWrapIndexError(t *testing.T) {
	t.Run("deadline exceeded", func(t *testing.T) {
		wrapped := wrapIndexError(context.DeadlineExceeded)
		assert.ErrorIs(t, wrapped, ErrConnectionTimeout)
	})

	t.Run("nil error", func(t *testing.T) {
		assert.Nil(t, wrapIndexError(nil))
	})

	t.Run("other error", func(t *testing.T) {
		wrapped := wrapIndexError(errors.New("some error"))
		assert.Contains(t, wrapped.Error(), "vector index error")
	})
}

// -----------------------------------------------------------------------------
// Close Tests
// -----------------------------------------------------------------------------

func TestClose_Idempotent(t *testing.T) {
	client := &ResilientClient{
		logger: slog.Default(),
	}
	healthCtx, healthCancel := context.WithCancel(context.Background())
	client.healthCtx = healthCtx
	client.healthCancel = healthCancel

	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close())
}
