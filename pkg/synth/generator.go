// Package synth turns natural-language task descriptions into executable
// step programs via the LLM provider, with budget enforcement and cost
// accounting on every call.
package synth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/mend/pkg/budget"
	"github.com/entrhq/mend/pkg/llm"
	"github.com/entrhq/mend/pkg/script"
	"github.com/entrhq/mend/pkg/task"
	"github.com/entrhq/mend/pkg/types"
)

// ErrBudgetRejected indicates the budget governor refused the synthesis
// call. The wrapped message carries the governor's reason.
var ErrBudgetRejected = errors.New("budget rejected")

const (
	// generationTemperature favors consistent code over variety.
	generationTemperature = 0.3

	// generationMaxTokens caps the script response size.
	generationMaxTokens = 2000
)

// Generator produces version-1 scripts for new tasks.
type Generator struct {
	provider llm.Provider
	governor *budget.Governor
}

// NewGenerator creates a Generator backed by the given provider and governor.
func NewGenerator(provider llm.Provider, governor *budget.Governor) *Generator {
	return &Generator{provider: provider, governor: governor}
}

// Generate synthesizes the first script version for a task. The budget is
// checked before the call; the actual usage is recorded after it. The
// returned source is validated against the step-program contract so a
// malformed generation fails here instead of at execution time.
func (g *Generator) Generate(ctx context.Context, t *task.Task) (*task.ScriptVersion, error) {
	prompt := GenerationPrompt(t.Description, t.URL)
	model := g.provider.GetModel()

	estimated := g.governor.EstimateCost(model, prompt, generationMaxTokens)
	if ok, reason := g.governor.Check(estimated); !ok {
		return nil, fmt.Errorf("%w: %s", ErrBudgetRejected, reason)
	}

	completion, err := g.provider.Complete(ctx, &llm.CompletionRequest{
		Messages: []*types.Message{
			types.NewSystemMessage(SystemGenerator),
			types.NewUserMessage(prompt),
		},
		Temperature: generationTemperature,
		MaxTokens:   generationMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("script generation failed: %w", err)
	}

	// The provider billed these tokens whether or not the output is usable,
	// so post them to the ledger before validating.
	cost, err := g.governor.Record(model, completion.Usage.PromptTokens, completion.Usage.CompletionTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to record generation cost: %w", err)
	}

	source := script.ExtractSource(completion.Content)
	if _, err := script.Parse(source); err != nil {
		return nil, fmt.Errorf("generated script is invalid: %w", err)
	}

	return &task.ScriptVersion{
		TaskID:           t.ID,
		Version:          1,
		Source:           source,
		Backend:          model,
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
		Cost:             cost,
		CreatedAt:        time.Now(),
	}, nil
}
