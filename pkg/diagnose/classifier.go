// Package diagnose classifies failed executions into typed diagnoses.
//
// Classification is two-tier: a zero-cost rule tier of ordered keyword
// groups, then a model-assisted tier for low-confidence cases. It always
// terminates with a usable diagnosis: model-tier failures degrade silently
// to the rule result.
package diagnose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/entrhq/mend/pkg/budget"
	"github.com/entrhq/mend/pkg/llm"
	"github.com/entrhq/mend/pkg/logging"
	"github.com/entrhq/mend/pkg/synth"
	"github.com/entrhq/mend/pkg/task"
	"github.com/entrhq/mend/pkg/types"
)

// ErrInvalidState indicates Classify was called on a successful outcome.
var ErrInvalidState = errors.New("cannot diagnose a successful execution")

const (
	// modelTierThreshold: rule-tier results at or above this confidence
	// skip the model tier.
	modelTierThreshold = 0.7

	// diagnosisTemperature favors deterministic analysis.
	diagnosisTemperature = 0.2

	// diagnosisMaxTokens caps the structured response.
	diagnosisMaxTokens = 800
)

// Classifier maps raw execution failures to typed diagnoses.
type Classifier struct {
	provider llm.Provider
	governor *budget.Governor
	logger   *logging.Logger
}

// NewClassifier creates a Classifier. The provider is only consulted for
// low-confidence failures; the governor records (but does not gate) that
// spend, since diagnosis is essential triage.
func NewClassifier(provider llm.Provider, governor *budget.Governor, logger *logging.Logger) *Classifier {
	return &Classifier{provider: provider, governor: governor, logger: logger}
}

// Classify analyzes a failed outcome. Calling it on a successful outcome is
// a contract violation and returns ErrInvalidState.
func (c *Classifier) Classify(ctx context.Context, outcome *task.ExecutionOutcome) (*task.Diagnosis, error) {
	if outcome.Success {
		return nil, ErrInvalidState
	}

	ruleResult := ruleClassify(outcome)
	if ruleResult.Confidence >= modelTierThreshold {
		c.logger.Debugf("rule-tier diagnosis for task %s: %s (confidence %.2f)",
			outcome.TaskID, ruleResult.Kind, ruleResult.Confidence)
		return ruleResult, nil
	}

	modelResult, err := c.modelClassify(ctx, outcome)
	if err != nil {
		c.logger.Warnf("model-tier diagnosis failed, falling back to rule tier: %v", err)
		return ruleResult, nil
	}
	return modelResult, nil
}

// modelResponse is the structured result requested from the model.
type modelResponse struct {
	ErrorKind      string   `json:"error_kind"`
	RootCause      string   `json:"root_cause"`
	SuggestedFixes []string `json:"suggested_fixes"`
	Confidence     float64  `json:"confidence"`
}

// modelClassify sends the failure evidence to the model and parses a
// structured diagnosis. Cost is recorded against the governor.
func (c *Classifier) modelClassify(ctx context.Context, outcome *task.ExecutionOutcome) (*task.Diagnosis, error) {
	prompt := synth.DiagnosisPrompt(
		outcome.Error,
		outcome.ConsoleLogs,
		outcome.NetworkEvents,
		len(outcome.Screenshots) > 0,
	)

	completion, err := c.provider.Complete(ctx, &llm.CompletionRequest{
		Messages: []*types.Message{
			types.NewSystemMessage(synth.SystemDiagnostician),
			types.NewUserMessage(prompt),
		},
		Temperature: diagnosisTemperature,
		MaxTokens:   diagnosisMaxTokens,
	})
	if err != nil {
		return nil, err
	}

	cost, err := c.governor.Record(c.provider.GetModel(),
		completion.Usage.PromptTokens, completion.Usage.CompletionTokens)
	if err != nil {
		c.logger.Warnf("failed to record diagnosis cost: %v", err)
	}

	parsed, err := extractJSON(completion.Content)
	if err != nil {
		return nil, err
	}

	confidence := parsed.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	rootCause := parsed.RootCause
	if rootCause == "" {
		rootCause = outcome.Error
	}

	// Model-tier diagnoses carry the same evidence the rule tier assembles,
	// plus the model call's accounting.
	evidence := evidenceContext(outcome)
	evidence["original_error"] = outcome.Error
	evidence["llm_cost"] = cost

	return &task.Diagnosis{
		TaskID:         outcome.TaskID,
		Version:        outcome.Version,
		Kind:           task.ParseErrorKind(parsed.ErrorKind),
		RootCause:      rootCause,
		SuggestedFixes: parsed.SuggestedFixes,
		Confidence:     confidence,
		Context:        evidence,
		DiagnosedAt:    time.Now(),
	}, nil
}

var jsonBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)```")

// extractJSON parses the model response, accepting either bare JSON or a
// fenced JSON block.
func extractJSON(response string) (*modelResponse, error) {
	var parsed modelResponse
	if err := json.Unmarshal([]byte(response), &parsed); err == nil {
		return &parsed, nil
	}

	if m := jsonBlockRe.FindStringSubmatch(response); m != nil {
		if err := json.Unmarshal([]byte(m[1]), &parsed); err == nil {
			return &parsed, nil
		}
	}

	return nil, fmt.Errorf("could not extract valid JSON from diagnosis response")
}
