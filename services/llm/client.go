// Package llm provides interchangeable text generation backends for claim
// adjudication. Backends are selected at startup; the pipeline only ever
// sees LLMClient.
package llm

import "context"

// GenerationParams carries per-call sampling knobs. Nil pointers leave the
// backend default in place; a backend ignores knobs it cannot express.
// Adjudication pins Temperature to zero so repeated evaluation of the same
// claim stays comparable.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient is the single-shot completion interface every backend implements.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}
