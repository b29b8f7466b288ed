// Package llm provides abstractions for LLM provider integration.
//
// Providers handle API communication with LLM services and return plain
// Completion values. This keeps providers focused on transport concerns;
// prompt construction, cost accounting, and retry policy live with the
// callers (synthesis, diagnosis, repair).
package llm

import (
	"context"

	"github.com/entrhq/mend/pkg/types"
)

// CompletionRequest describes one chat completion call.
//
// Each call site tunes its own sampling: script generation favors
// consistency, repair favors variation, diagnosis favors determinism.
type CompletionRequest struct {
	// Messages is the ordered conversation to send.
	Messages []*types.Message

	// Temperature controls sampling randomness.
	Temperature float64

	// MaxTokens caps the response length. Zero means provider default.
	MaxTokens int
}

// Completion is the full response to a CompletionRequest.
type Completion struct {
	// Content is the assistant's response text.
	Content string

	// Model is the model that produced the response.
	Model string

	// Usage records the token counts billed for this call.
	Usage types.Usage
}

// Provider defines the interface for LLM integrations.
//
// Complete blocks until the full response is available and always reports
// token usage, which callers feed into the budget governor. Implementations
// must honor context cancellation.
type Provider interface {
	// Complete sends messages to the LLM and returns the full response.
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)

	// GetModelInfo returns information about the model being used.
	GetModelInfo() *types.ModelInfo

	// GetModel returns the model name being used.
	GetModel() string
}
