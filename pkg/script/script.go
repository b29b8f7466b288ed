// Package script defines the wire format of generated automation scripts.
//
// A script is a JSON program of typed steps the executor interprets against
// one fixed contract. Synthesis prompts target exactly this format, so the
// executor never inspects generated text for entry points.
package script

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Action names the operation a step performs.
type Action string

const (
	ActionNavigate   Action = "navigate"
	ActionWait       Action = "wait"
	ActionClick      Action = "click"
	ActionFill       Action = "fill"
	ActionPress      Action = "press"
	ActionEvaluate   Action = "evaluate"
	ActionScreenshot Action = "screenshot"
	ActionAssertText Action = "assert_text"
)

// Step is one browser operation. Fields are action-specific; unused fields
// stay empty and are omitted on the wire.
type Step struct {
	// Action selects the operation.
	Action Action `json:"action"`

	// URL is the navigation target (navigate).
	URL string `json:"url,omitempty"`

	// Selector addresses the target element (wait, click, fill, press,
	// assert_text scope).
	Selector string `json:"selector,omitempty"`

	// Value is the input text (fill) or the expected text (assert_text).
	Value string `json:"value,omitempty"`

	// Key is the key to press (press), e.g. "Enter".
	Key string `json:"key,omitempty"`

	// Expression is the JavaScript to run in the page (evaluate).
	Expression string `json:"expression,omitempty"`

	// Name labels a screenshot (screenshot).
	Name string `json:"name,omitempty"`

	// State is the wait condition (wait): visible, attached, hidden, detached.
	State string `json:"state,omitempty"`

	// WaitUntil qualifies navigation completion (navigate): load,
	// domcontentloaded, networkidle.
	WaitUntil string `json:"wait_until,omitempty"`

	// TimeoutMs overrides the default operation timeout, in milliseconds.
	TimeoutMs float64 `json:"timeout,omitempty"`
}

// Program is a complete script: an ordered list of steps.
type Program struct {
	Steps []Step `json:"steps"`
}

// Parse decodes script source into a Program. The source must be a JSON
// object with a non-empty steps array; anything else is a script error.
func Parse(source string) (*Program, error) {
	var p Program
	dec := json.NewDecoder(strings.NewReader(source))
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("script is not a valid step program: %w", err)
	}
	if len(p.Steps) == 0 {
		return nil, fmt.Errorf("script contains no steps")
	}
	for i, step := range p.Steps {
		if step.Action == "" {
			return nil, fmt.Errorf("step %d is missing an action", i+1)
		}
	}
	return &p, nil
}

// Marshal serializes a Program back to source text.
func (p *Program) Marshal() (string, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize script: %w", err)
	}
	return string(data), nil
}

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)```")

// ExtractSource pulls script source out of an LLM response: the largest
// fenced code block, or the raw response when nothing is fenced.
func ExtractSource(response string) string {
	matches := fencedBlockRe.FindAllStringSubmatch(response, -1)
	if len(matches) == 0 {
		return strings.TrimSpace(response)
	}

	largest := ""
	for _, m := range matches {
		if len(m[1]) > len(largest) {
			largest = m[1]
		}
	}
	return strings.TrimSpace(largest)
}
