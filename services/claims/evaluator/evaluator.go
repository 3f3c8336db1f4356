// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/claimsgate/services/claims/datatypes"
	"github.com/AleutianAI/claimsgate/services/llm"
)

// ErrUnavailable indicates the LLM backend never produced a usable response
// within the attempt budget. It is carried on the degraded verdict, not
// returned; only context cancellation surfaces as an error from Evaluate.
var ErrUnavailable = errors.New("llm unavailable")

// =============================================================================
// Configuration
// =============================================================================

// Config controls LLM call behavior.
type Config struct {
	// MaxTokens bounds the completion length.
	MaxTokens int

	// MaxAttempts is the transport attempt ceiling per claim. A malformed
	// but transported response earns exactly one re-ask on top of this;
	// a second malformed response degrades the claim immediately.
	MaxAttempts int

	// BaseBackoff and MaxBackoff bound the exponential retry delay.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// JitterFactor randomizes the delay to avoid thundering herd (0.0-1.0).
	JitterFactor float64

	// RequestsPerSecond and Burst configure the provider rate limiter.
	// Zero RequestsPerSecond disables limiting.
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig returns conservative defaults suitable for hosted providers.
func DefaultConfig() Config {
	return Config{
		MaxTokens:         2000,
		MaxAttempts:       3,
		BaseBackoff:       500 * time.Millisecond,
		MaxBackoff:        8 * time.Second,
		JitterFactor:      0.25,
		RequestsPerSecond: 2,
		Burst:             4,
	}
}

// Validate checks configuration sanity.
func (c *Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1 {
		return fmt.Errorf("jitter factor must be 0.0-1.0, got %f", c.JitterFactor)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second must not be negative, got %f", c.RequestsPerSecond)
	}
	return nil
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MaxTokens == 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseBackoff == 0 {
		c.BaseBackoff = d.BaseBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = d.MaxBackoff
	}
}

// =============================================================================
// Evaluator
// =============================================================================

// Evaluator adjudicates claims through an LLM backend.
//
// # Description
//
// Evaluation is deterministic where the provider allows it: temperature is
// pinned to zero and the prompt is fully specified by the claim and the
// deterministic stage outputs. Transport failures retry with jittered
// exponential backoff behind a shared rate limiter; a malformed response is
// re-asked once with the same prompt. When the attempt budget is exhausted
// the evaluator degrades to an unavailable verdict instead of failing the
// claim, so the deterministic technical verdict still stands.
type Evaluator struct {
	client  llm.LLMClient
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewEvaluator creates an evaluator over the given LLM backend.
func NewEvaluator(client llm.LLMClient, cfg Config, logger *slog.Logger) (*Evaluator, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid evaluator config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Evaluator{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}, nil
}

// Evaluate runs the LLM adjudication for one claim.
//
// # Inputs
//   - ctx: cancellation aborts waiting and retries; an in-flight provider
//     call observes the same context
//   - in: claim plus deterministic findings and retrieved chunks
//
// # Outputs
//   - *datatypes.LLMVerdict: parsed verdict, or a degraded verdict with
//     Unavailable set after exhausting the attempt budget
//   - error: only context cancellation; provider outages never error
func (e *Evaluator) Evaluate(ctx context.Context, in PromptInput) (*datatypes.LLMVerdict, error) {
	tracer := otel.Tracer("claims.evaluator")
	ctx, span := tracer.Start(ctx, "evaluator.Evaluate")
	defer span.End()
	span.SetAttributes(
		attribute.String("claim.id", in.Claim.ClaimID),
		attribute.Int("retrieved.chunks", len(in.Chunks)),
	)

	prompt := BuildPrompt(in)

	var lastErr error
	reasked := false
	attempts := e.cfg.MaxAttempts
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, e.backoff(attempt-1)); err != nil {
				span.RecordError(err)
				return nil, err
			}
		}
		if err := e.limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			return nil, err
		}

		raw, err := e.generate(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				span.RecordError(ctx.Err())
				return nil, ctx.Err()
			}
			lastErr = err
			e.logger.Warn("llm call failed",
				"claim_id", in.Claim.ClaimID,
				"attempt", attempt+1,
				"error", err)
			continue
		}

		verdict, err := ParseResponse(raw)
		if err != nil {
			lastErr = err
			e.logger.Warn("llm response malformed",
				"claim_id", in.Claim.ClaimID,
				"attempt", attempt+1)
			// One re-ask with the same prompt; models usually recover the
			// format on the second pass. If the re-ask is malformed too,
			// further identical calls will not recover, so degrade now
			// instead of burning the remaining transport attempts.
			if reasked {
				break
			}
			reasked = true
			attempts++
			continue
		}

		span.SetAttributes(
			attribute.String("verdict.medical", verdict.MedicalStatus),
			attribute.Float64("verdict.confidence", verdict.Confidence),
			attribute.Int("llm.attempts", attempt+1),
		)
		return verdict, nil
	}

	reason := ErrUnavailable.Error()
	if lastErr != nil {
		reason = lastErr.Error()
	}
	span.SetStatus(codes.Error, "llm unavailable")
	e.logger.Error("llm evaluation degraded",
		"claim_id", in.Claim.ClaimID,
		"attempts", attempts,
		"error", lastErr)
	return &datatypes.LLMVerdict{
		Unavailable:       true,
		UnavailableReason: reason,
		Explanation:       "LLM evaluation unavailable; deterministic findings stand unmodified.",
	}, nil
}

func (e *Evaluator) generate(ctx context.Context, prompt string) (string, error) {
	temp := float32(0)
	maxTokens := e.cfg.MaxTokens
	return e.client.Generate(ctx, prompt, llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
}

// backoff computes the jittered exponential delay before retry n.
func (e *Evaluator) backoff(n int) time.Duration {
	d := e.cfg.BaseBackoff * time.Duration(1<<uint(n))
	if d > e.cfg.MaxBackoff {
		d = e.cfg.MaxBackoff
	}
	if e.cfg.JitterFactor > 0 {
		jitter := float64(d) * e.cfg.JitterFactor * (2*rand.Float64() - 1)
		d = time.Duration(float64(d) + jitter)
		if d < 0 {
			d = 0
		}
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
