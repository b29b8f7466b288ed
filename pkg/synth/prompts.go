package synth

import (
	"fmt"
	"strings"

	"github.com/entrhq/mend/pkg/task"
)

// System messages per call site.
const (
	SystemGenerator     = "You are an expert browser automation engineer. Generate robust, production-ready automation step programs."
	SystemRepair        = "You are a debugging expert specializing in fixing browser automation failures."
	SystemDiagnostician = "You are an expert at analyzing browser automation errors and providing actionable solutions."
)

// stepContract describes the one format the executor accepts. Every prompt
// that requests a script embeds it.
const stepContract = `Scripts are JSON objects with a single "steps" array. Each step has an
"action" plus action-specific fields:

- {"action": "navigate", "url": "...", "wait_until": "load|domcontentloaded|networkidle", "timeout": <ms>}
- {"action": "wait", "selector": "...", "state": "visible|attached|hidden|detached", "timeout": <ms>}
- {"action": "click", "selector": "...", "timeout": <ms>}
- {"action": "fill", "selector": "...", "value": "...", "timeout": <ms>}
- {"action": "press", "selector": "...", "key": "Enter"}
- {"action": "evaluate", "expression": "<javascript>"}
- {"action": "screenshot", "name": "<label>"}
- {"action": "assert_text", "value": "<expected text>", "selector": "<optional scope>"}

RULES:
1. Prefer stable selectors: data attributes, ARIA roles, visible text. Avoid
   generated ids like #input-123.
2. Always wait for an element to be visible before clicking or filling it.
3. Use wait_until "domcontentloaded" for heavy dynamic sites instead of
   "networkidle".
4. Take a screenshot after each meaningful stage.
5. Handle common obstacles (cookie banners, modals) with an optional click
   guarded by a short wait.`

// GenerationPrompt builds the prompt for creating a script from a task
// description.
func GenerationPrompt(description, url string) string {
	urlContext := ""
	if url != "" {
		urlContext = fmt.Sprintf("\nTarget URL: %s", url)
	}

	return fmt.Sprintf(`Generate a browser automation step program for the following task:

Task: %s%s

%s

Respond with ONLY the JSON step program in a fenced code block, no explanations.`,
		description, urlContext, stepContract)
}

// RepairPrompt builds the prompt for rewriting a failed script. It includes
// the full original source, the diagnosis, and up to three suggested fixes.
func RepairPrompt(source string, d *task.Diagnosis) string {
	var b strings.Builder

	fmt.Fprintf(&b, `Fix this failed browser automation step program.

ORIGINAL SCRIPT:
%s%s%s

ERROR DETAILS:
- Error Type: %s
- Error Message: %s
`, "```json\n", source, "\n```", d.Kind, d.RootCause)

	if len(d.Context) > 0 {
		b.WriteString("\nERROR CONTEXT:\n")
		for k, v := range d.Context {
			fmt.Fprintf(&b, "- %s: %v\n", k, v)
		}
	}

	if len(d.SuggestedFixes) > 0 {
		b.WriteString("\nSuggested Fixes:\n")
		for i, fix := range d.SuggestedFixes {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&b, "- %s\n", fix)
		}
	}

	fmt.Fprintf(&b, `
%s

Generate a FIXED version of the program that addresses the error.
Respond with ONLY the JSON step program in a fenced code block, no explanations.`, stepContract)

	return b.String()
}

// DiagnosisPrompt builds the prompt for model-assisted failure analysis.
func DiagnosisPrompt(errorMessage string, consoleLogs []string, events []task.NetworkEvent, screenshotAvailable bool) string {
	consoleStr := "No console logs"
	if len(consoleLogs) > 0 {
		start := len(consoleLogs) - 10
		if start < 0 {
			start = 0
		}
		consoleStr = strings.Join(consoleLogs[start:], "\n")
	}

	networkStr := "No network activity"
	if len(events) > 0 {
		start := len(events) - 5
		if start < 0 {
			start = 0
		}
		var lines []string
		for _, e := range events[start:] {
			lines = append(lines, fmt.Sprintf("- %s %s -> %d", e.Method, e.URL, e.Status))
		}
		networkStr = strings.Join(lines, "\n")
	}

	return fmt.Sprintf(`Analyze this browser automation failure and provide a detailed diagnosis.

ERROR MESSAGE:
%s

CONSOLE LOGS (last 10):
%s

NETWORK ACTIVITY (last 5):
%s

Screenshot Available: %t

Provide a JSON response with:
{
    "error_kind": "selector_not_found|timeout|network_error|script_error|crash|unexpected_state|unknown",
    "root_cause": "Brief explanation of what went wrong",
    "suggested_fixes": ["Fix 1", "Fix 2", "Fix 3"],
    "confidence": 0.0
}

Respond ONLY with valid JSON.`, errorMessage, consoleStr, networkStr, screenshotAvailable)
}

// ExampleTasks is a small catalog of task descriptions useful for demos and
// prompt documentation.
var ExampleTasks = map[string]string{
	"simple_navigation": "Navigate to example.com and take a screenshot",
	"login":             "Go to example.com/login, enter email 'test@example.com' and password 'password123', then click login",
	"form_fill":         "Fill out the contact form at example.com/contact with name 'John Doe', email 'john@example.com', and message 'Hello'",
	"search":            "Search for 'browser automation' on duckduckgo.com and capture the first page of results",
}
