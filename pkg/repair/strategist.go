// Package repair produces new script versions from failed ones.
//
// Repair is two-tier, cheapest first: deterministic text transforms scoped
// to the diagnosed error kind, then a model-assisted rewrite. Every
// successful repair yields exactly one new ScriptVersion and one
// RepairRecord.
package repair

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/mend/pkg/budget"
	"github.com/entrhq/mend/pkg/llm"
	"github.com/entrhq/mend/pkg/logging"
	"github.com/entrhq/mend/pkg/script"
	"github.com/entrhq/mend/pkg/synth"
	"github.com/entrhq/mend/pkg/task"
	"github.com/entrhq/mend/pkg/types"
)

var (
	// ErrAttemptBudget indicates the repair attempt counter is exhausted.
	ErrAttemptBudget = errors.New("repair attempt budget exhausted")

	// ErrBudgetRejected indicates the governor refused the model-tier call.
	ErrBudgetRejected = errors.New("budget rejected")
)

const (
	// repairTemperature is slightly higher than generation to allow
	// creative fixes.
	repairTemperature = 0.4

	// repairMaxTokens caps the rewritten script response.
	repairMaxTokens = 2000
)

// Result pairs the new script version with the repair record linking it to
// the diagnosis that produced it.
type Result struct {
	Script *task.ScriptVersion
	Record *task.RepairRecord
}

// Strategist selects and applies repair strategies.
type Strategist struct {
	provider    llm.Provider
	governor    *budget.Governor
	maxAttempts int
	logger      *logging.Logger
}

// NewStrategist creates a Strategist bounded by maxAttempts repairs per task.
func NewStrategist(provider llm.Provider, governor *budget.Governor, maxAttempts int, logger *logging.Logger) *Strategist {
	return &Strategist{
		provider:    provider,
		governor:    governor,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Repair produces a new script version addressing the diagnosis. attempt is
// 1-based; exceeding the configured maximum fails with ErrAttemptBudget.
// Model-tier failures propagate to the caller, which treats them as fatal to
// the task.
func (s *Strategist) Repair(ctx context.Context, original *task.ScriptVersion, d *task.Diagnosis, attempt int) (*Result, error) {
	if attempt > s.maxAttempts {
		return nil, fmt.Errorf("%w: attempt %d exceeds maximum %d", ErrAttemptBudget, attempt, s.maxAttempts)
	}

	if res := s.deterministicRepair(original, d, attempt); res != nil {
		s.logger.Infof("deterministic repair applied to task %s v%d: %s",
			original.TaskID, original.Version, res.Record.Strategy)
		return res, nil
	}

	return s.modelRepair(ctx, original, d, attempt)
}

// deterministicRepair applies the rule tier. It returns nil when no rule
// changed the script, passing control to the model tier.
func (s *Strategist) deterministicRepair(original *task.ScriptVersion, d *task.Diagnosis, attempt int) *Result {
	patched, strategy, changed := applyDeterministicRules(original.Source, d.Kind)
	if !changed {
		return nil
	}

	sv := &task.ScriptVersion{
		TaskID:    original.TaskID,
		Version:   original.Version + 1,
		Source:    patched,
		Backend:   task.BackendRulePatch,
		Cost:      0,
		CreatedAt: time.Now(),
	}

	return &Result{
		Script: sv,
		Record: &task.RepairRecord{
			TaskID:          original.TaskID,
			OriginalVersion: original.Version,
			NewVersion:      sv.Version,
			Strategy:        strategy,
			Kind:            d.Kind,
			Attempt:         attempt,
		},
	}
}

// modelRepair requests a rewritten script from the provider. The budget is
// checked before the call and actual usage recorded after it.
func (s *Strategist) modelRepair(ctx context.Context, original *task.ScriptVersion, d *task.Diagnosis, attempt int) (*Result, error) {
	prompt := synth.RepairPrompt(original.Source, d)
	model := s.provider.GetModel()

	estimated := s.governor.EstimateCost(model, prompt, repairMaxTokens)
	if ok, reason := s.governor.Check(estimated); !ok {
		return nil, fmt.Errorf("%w: %s", ErrBudgetRejected, reason)
	}

	completion, err := s.provider.Complete(ctx, &llm.CompletionRequest{
		Messages: []*types.Message{
			types.NewSystemMessage(synth.SystemRepair),
			types.NewUserMessage(prompt),
		},
		Temperature: repairTemperature,
		MaxTokens:   repairMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("model repair failed: %w", err)
	}

	// The provider billed these tokens whether or not the output is usable,
	// so post them to the ledger before validating.
	cost, err := s.governor.Record(model, completion.Usage.PromptTokens, completion.Usage.CompletionTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to record repair cost: %w", err)
	}

	source := script.ExtractSource(completion.Content)
	if _, err := script.Parse(source); err != nil {
		return nil, fmt.Errorf("repaired script is invalid: %w", err)
	}

	sv := &task.ScriptVersion{
		TaskID:           original.TaskID,
		Version:          original.Version + 1,
		Source:           source,
		Backend:          model,
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
		Cost:             cost,
		CreatedAt:        time.Now(),
	}

	return &Result{
		Script: sv,
		Record: &task.RepairRecord{
			TaskID:          original.TaskID,
			OriginalVersion: original.Version,
			NewVersion:      sv.Version,
			Strategy:        fmt.Sprintf("LLM repair for %s", d.Kind),
			Kind:            d.Kind,
			Attempt:         attempt,
		},
	}, nil
}
