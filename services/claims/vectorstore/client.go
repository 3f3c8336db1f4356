// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vectorstore provides the tenant-scoped vector index for rule
// document chunks, backed by Weaviate.
//
// The client wraps the Weaviate SDK with a circuit breaker, retry with
// jittered exponential backoff, and periodic health checks, so the retrieval
// path degrades gracefully instead of hammering a struggling index.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrUnavailable is returned when the vector index is not reachable.
	// Callers treat it as a degraded-retrieval signal, not a claim failure.
	ErrUnavailable = errors.New("vector index is not available")

	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open, vector index requests blocked")

	// ErrConnectionTimeout is returned when a request times out.
	ErrConnectionTimeout = errors.New("vector index connection timeout")

	// ErrClientClosed is returned when operations are called on a closed client.
	ErrClientClosed = errors.New("vector index client is closed")
)

// -----------------------------------------------------------------------------
// Connection State
// -----------------------------------------------------------------------------

// ConnectionState represents the current state of the index connection.
type ConnectionState int32

const (
	// StateConnected indicates normal operation.
	StateConnected ConnectionState = iota
	// StateDegraded indicates the index is unavailable but the client works.
	StateDegraded
	// StateCircuitOpen indicates the circuit breaker is open.
	StateCircuitOpen
	// StateHalfOpen indicates the breaker is testing with a single request.
	StateHalfOpen
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	case StateCircuitOpen:
		return "circuit_open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Client Configuration
// -----------------------------------------------------------------------------

// ClientConfig configures the resilient index client.
type ClientConfig struct {
	// URL is the Weaviate server URL (e.g. "http://localhost:8080").
	URL string

	// RetryAttempts is the number of retry attempts for failed requests.
	// Default: 3
	RetryAttempts int

	// RetryBackoff is the initial backoff duration between retries.
	// Default: 100ms
	RetryBackoff time.Duration

	// MaxRetryBackoff caps the exponential backoff.
	// Default: 5s
	MaxRetryBackoff time.Duration

	// RetryJitter adds randomness to backoff (0.0-1.0).
	// Default: 0.25
	RetryJitter float64

	// CircuitThreshold is the number of failures before opening the circuit.
	// Default: 5
	CircuitThreshold int

	// CircuitWindow is the sliding window for counting failures.
	// Default: 30s
	CircuitWindow time.Duration

	// CircuitCooldown is how long the circuit stays open before half-opening.
	// Default: 30s
	CircuitCooldown time.Duration

	// HealthCheckInterval is how often to check health when connected.
	// Default: 10s
	HealthCheckInterval time.Duration

	// DegradedCheckInterval is how often to check health when degraded.
	// Default: 5s
	DegradedCheckInterval time.Duration

	// HealthCheckTimeout prevents health checks from blocking.
	// Default: 5s
	HealthCheckTimeout time.Duration

	// AllowStartDegraded allows starting even if the index is unavailable.
	// The pipeline then runs with empty retrieval until it recovers.
	// Default: false
	AllowStartDegraded bool

	// Logger for client operations.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults for production use.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		RetryAttempts:         3,
		RetryBackoff:          100 * time.Millisecond,
		MaxRetryBackoff:       5 * time.Second,
		RetryJitter:           0.25,
		CircuitThreshold:      5,
		CircuitWindow:         30 * time.Second,
		CircuitCooldown:       30 * time.Second,
		HealthCheckInterval:   10 * time.Second,
		DegradedCheckInterval: 5 * time.Second,
		HealthCheckTimeout:    5 * time.Second,
		AllowStartDegraded:    false,
		Logger:                slog.Default(),
	}
}

// Validate checks if the configuration is valid.
func (c *ClientConfig) Validate() error {
	if c.URL == "" {
		return errors.New("url must not be empty")
	}
	if c.RetryAttempts < 0 {
		return errors.New("retry_attempts must be non-negative")
	}
	if c.RetryJitter < 0 || c.RetryJitter > 1 {
		return errors.New("retry_jitter must be between 0 and 1")
	}
	if c.CircuitThreshold < 1 {
		return errors.New("circuit_threshold must be at least 1")
	}
	if c.CircuitWindow <= 0 {
		return errors.New("circuit_window must be positive")
	}
	if c.HealthCheckTimeout <= 0 {
		return errors.New("health_check_timeout must be positive")
	}
	return nil
}

func (c *ClientConfig) applyDefaults() {
	defaults := DefaultClientConfig()
	if c.RetryAttempts == 0 {
		c.RetryAttempts = defaults.RetryAttempts
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = defaults.RetryBackoff
	}
	if c.MaxRetryBackoff == 0 {
		c.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if c.RetryJitter == 0 {
		c.RetryJitter = defaults.RetryJitter
	}
	if c.CircuitThreshold == 0 {
		c.CircuitThreshold = defaults.CircuitThreshold
	}
	if c.CircuitWindow == 0 {
		c.CircuitWindow = defaults.CircuitWindow
	}
	if c.CircuitCooldown == 0 {
		c.CircuitCooldown = defaults.CircuitCooldown
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = defaults.HealthCheckInterval
	}
	if c.DegradedCheckInterval == 0 {
		c.DegradedCheckInterval = defaults.DegradedCheckInterval
	}
	if c.HealthCheckTimeout == 0 {
		c.HealthCheckTimeout = defaults.HealthCheckTimeout
	}
	if c.Logger == nil {
		c.Logger = defaults.Logger
	}
}

// -----------------------------------------------------------------------------
// Resilient Client
// -----------------------------------------------------------------------------

// ResilientClient wraps the Weaviate client with resilience features.
//
// Thread Safety: Safe for concurrent use from multiple goroutines.
type ResilientClient struct {
	client *weaviate.Client
	config ClientConfig
	logger *slog.Logger

	state           atomic.Int32
	circuitOpenTime atomic.Int64 // Unix timestamp when the circuit opened
	closed          atomic.Bool

	// Circuit breaker sliding window: ring buffer of failure timestamps.
	failures   []time.Time
	failureIdx int
	failureMu  sync.Mutex

	// Half-open state admits a single test request.
	halfOpenTest atomic.Bool

	healthCtx    context.Context
	healthCancel context.CancelFunc
	healthWg     sync.WaitGroup
}

// NewResilientClient creates a new resilient index client.
//
// Inputs:
//
//	config - Client configuration. URL is required.
//
// Outputs:
//
//	*ResilientClient - Ready-to-use client.
//	error - Non-nil if the configuration is invalid, or the index is
//	        unreachable and AllowStartDegraded is false.
//
// Thread Safety: Safe for concurrent use.
func NewResilientClient(config ClientConfig) (*ResilientClient, error) {
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg := weaviate.Config{
		Host:   config.URL,
		Scheme: "http",
	}
	if len(config.URL) > 8 && config.URL[:8] == "https://" {
		cfg.Scheme = "https"
		cfg.Host = config.URL[8:]
	} else if len(config.URL) > 7 && config.URL[:7] == "http://" {
		cfg.Host = config.URL[7:]
	}

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	healthCtx, healthCancel := context.WithCancel(context.Background())

	rc := &ResilientClient{
		client:       client,
		config:       config,
		logger:       config.Logger.With(slog.String("component", "vector_index_client")),
		failures:     make([]time.Time, config.CircuitThreshold),
		healthCtx:    healthCtx,
		healthCancel: healthCancel,
	}
	rc.state.Store(int32(StateDegraded)) // Start degraded until proven healthy

	if err := rc.checkHealth(context.Background()); err != nil {
		if config.AllowStartDegraded {
			rc.logger.Warn("vector index unavailable at startup, starting in degraded mode",
				slog.String("url", config.URL),
				slog.String("error", err.Error()))
			rc.healthWg.Add(1)
			go rc.runHealthChecker()
			return rc, nil
		}
		healthCancel()
		return nil, fmt.Errorf("vector index not available: %w", err)
	}

	rc.transitionState(StateConnected)
	rc.healthWg.Add(1)
	go rc.runHealthChecker()

	rc.logger.Info("vector index client initialized",
		slog.String("url", config.URL),
		slog.String("state", rc.GetState().String()))

	return rc, nil
}

// Client returns the underlying Weaviate client for direct operations.
//
// Thread Safety: Safe for concurrent use.
func (c *ResilientClient) Client() *weaviate.Client {
	return c.client
}

// IsAvailable returns true if the index is available for requests.
func (c *ResilientClient) IsAvailable() bool {
	state := ConnectionState(c.state.Load())
	return state == StateConnected || state == StateHalfOpen
}

// GetState returns the current connection state.
func (c *ResilientClient) GetState() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Execute runs a function with retry and circuit breaker protection.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	fn - Function performing the index operation.
//
// Outputs:
//
//	error - Non-nil if all retries fail or the circuit is open.
//
// Thread Safety: Safe for concurrent use.
func (c *ResilientClient) Execute(ctx context.Context, fn func() error) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	ctx, span := otel.Tracer("claims.vectorstore").Start(ctx, "vectorstore.Execute",
		trace.WithAttributes(
			attribute.String("state", c.GetState().String()),
		),
	)
	defer span.End()

	state := c.GetState()
	switch state {
	case StateCircuitOpen:
		if c.shouldTryHalfOpen() {
			c.transitionState(StateHalfOpen)
		} else {
			span.SetStatus(codes.Error, "circuit open")
			return ErrCircuitOpen
		}
	case StateHalfOpen:
		// Only one test request allowed in half-open.
		if !c.halfOpenTest.CompareAndSwap(false, true) {
			span.SetStatus(codes.Error, "circuit open (half-open busy)")
			return ErrCircuitOpen
		}
		defer c.halfOpenTest.Store(false)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.calculateBackoff(attempt)
			span.AddEvent("retry", trace.WithAttributes(
				attribute.Int("attempt", attempt),
				attribute.Int64("backoff_ms", backoff.Milliseconds()),
			))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			c.recordSuccess()
			span.SetStatus(codes.Ok, "success")
			return nil
		}

		if !isRetryable(lastErr) {
			break
		}
	}

	c.recordFailure()
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "all retries failed")
	return wrapIndexError(lastErr)
}

// WaitForReady blocks until the index is ready or timeout.
func (c *ResilientClient) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("vector index not ready within %v: %w", timeout, ErrUnavailable)
		case <-ticker.C:
			if c.checkHealth(ctx) == nil {
				return nil
			}
		}
	}
}

// Close releases resources and stops the health checker.
func (c *ResilientClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.logger.Info("closing vector index client")
	c.healthCancel()
	c.healthWg.Wait()
	return nil
}

// -----------------------------------------------------------------------------
// Internal Methods
// -----------------------------------------------------------------------------

func (c *ResilientClient) transitionState(newState ConnectionState) {
	oldState := ConnectionState(c.state.Swap(int32(newState)))
	if oldState == newState {
		return
	}
	c.logger.Info("vector index state transition",
		slog.String("from", oldState.String()),
		slog.String("to", newState.String()))
}

func (c *ResilientClient) checkHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.HealthCheckTimeout)
	defer cancel()

	_, span := otel.Tracer("claims.vectorstore").Start(ctx, "vectorstore.health_check")
	defer span.End()

	isReady, err := c.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "health check failed")
		return fmt.Errorf("health check failed: %w", err)
	}
	if !isReady {
		span.SetStatus(codes.Error, "not ready")
		return ErrUnavailable
	}
	span.SetStatus(codes.Ok, "healthy")
	return nil
}

func (c *ResilientClient) runHealthChecker() {
	defer c.healthWg.Done()

	for {
		interval := c.config.HealthCheckInterval
		if !c.IsAvailable() {
			interval = c.config.DegradedCheckInterval
		}

		select {
		case <-c.healthCtx.Done():
			return
		case <-time.After(interval):
			c.performHealthCheck()
		}
	}
}

func (c *ResilientClient) performHealthCheck() {
	err := c.checkHealth(c.healthCtx)
	currentState := c.GetState()

	if err == nil {
		switch currentState {
		case StateDegraded, StateHalfOpen:
			c.transitionState(StateConnected)
			c.resetFailures()
		case StateCircuitOpen:
			// Do not jump straight from open to connected; let a half-open
			// test succeed first.
			if c.shouldTryHalfOpen() {
				c.transitionState(StateHalfOpen)
			}
		}
	} else if currentState == StateConnected {
		c.transitionState(StateDegraded)
	}
}

func (c *ResilientClient) recordSuccess() {
	if c.GetState() == StateHalfOpen {
		c.transitionState(StateConnected)
		c.resetFailures()
	}
}

func (c *ResilientClient) recordFailure() {
	c.failureMu.Lock()
	defer c.failureMu.Unlock()

	now := time.Now()
	c.failures[c.failureIdx] = now
	c.failureIdx = (c.failureIdx + 1) % len(c.failures)

	windowStart := now.Add(-c.config.CircuitWindow)
	count := 0
	for _, t := range c.failures {
		if !t.IsZero() && t.After(windowStart) {
			count++
		}
	}

	if count >= c.config.CircuitThreshold {
		if c.GetState() != StateCircuitOpen {
			c.circuitOpenTime.Store(now.Unix())
			c.transitionState(StateCircuitOpen)
			c.logger.Warn("circuit breaker opened",
				slog.Int("failures", count),
				slog.Duration("window", c.config.CircuitWindow))
		}
	} else if c.GetState() == StateConnected {
		c.transitionState(StateDegraded)
	}
}

func (c *ResilientClient) resetFailures() {
	c.failureMu.Lock()
	defer c.failureMu.Unlock()
	for i := range c.failures {
		c.failures[i] = time.Time{}
	}
	c.failureIdx = 0
}

func (c *ResilientClient) shouldTryHalfOpen() bool {
	openTime := time.Unix(c.circuitOpenTime.Load(), 0)
	return time.Since(openTime) >= c.config.CircuitCooldown
}

// calculateBackoff returns exponential backoff with jitter, capped at
// MaxRetryBackoff.
func (c *ResilientClient) calculateBackoff(attempt int) time.Duration {
	backoff := c.config.RetryBackoff * time.Duration(1<<attempt)
	if backoff > c.config.MaxRetryBackoff {
		backoff = c.config.MaxRetryBackoff
	}

	jitterRange := float64(backoff) * c.config.RetryJitter
	jitter := (rand.Float64()*2 - 1) * jitterRange
	backoff = time.Duration(float64(backoff) + jitter)
	if backoff < 0 {
		backoff = c.config.RetryBackoff
	}
	return backoff
}

// isRetryable determines if an error is worth retrying. Cancellation is
// final; timeouts and connection errors usually mean the server is starting
// or restarting.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// net.OpError implements net.Error, so check it first.
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// wrapIndexError adds sentinel context to terminal errors.
func wrapIndexError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrConnectionTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrConnectionTimeout, err)
	}
	return fmt.Errorf("vector index error: %w", err)
}
