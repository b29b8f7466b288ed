package diagnose

import (
	"strings"
	"time"

	"github.com/entrhq/mend/pkg/task"
)

// rule is one keyword group in the rule tier. Rules are tested in order;
// first match wins.
type rule struct {
	kind       task.ErrorKind
	keywords   []string
	rootCause  string
	fixes      []string
	confidence float64
}

// rules in precedence order: selector, timeout, network, script runtime,
// crash. Confidences are fixed per category.
var rules = []rule{
	{
		kind: task.KindSelectorNotFound,
		keywords: []string{
			"element not found", "no element", "selector", "locator",
			"could not find", "element handle",
		},
		rootCause: "Element selector could not locate the target element",
		fixes: []string{
			"Try alternative selectors (CSS, ARIA role, text content)",
			"Add an explicit wait step with state \"visible\" before the interaction",
			"Check if the element is inside an iframe or shadow DOM",
			"Verify the element is visible and not hidden by CSS",
		},
		confidence: 0.8,
	},
	{
		kind:      task.KindTimeout,
		keywords:  []string{"timeout", "timed out", "exceeded"},
		rootCause: "Operation exceeded time limit",
		fixes: []string{
			"Increase timeout: set \"timeout\": 60000 on the step",
			"Wait for network idle: set \"wait_until\": \"networkidle\" on navigation",
			"Split the step into a wait followed by the interaction",
			"Check if the page is loading too slowly",
		},
		confidence: 0.85,
	},
	{
		kind: task.KindNetworkError,
		keywords: []string{
			"network", "connection", "dns", "refused", "unreachable", "net::",
		},
		rootCause: "Network connectivity or DNS resolution failure",
		fixes: []string{
			"Verify the URL is correct and accessible",
			"Check internet connection",
			"Retry the navigation after a short delay",
			"Handle offline scenarios gracefully",
		},
		confidence: 0.9,
	},
	{
		kind: task.KindScriptError,
		keywords: []string{
			"javascript", "uncaught", "reference error", "type error",
			"evaluation failed",
		},
		rootCause: "Script runtime error on the page",
		fixes: []string{
			"Check browser console for detailed errors",
			"Wait for page JavaScript to load completely",
			"Simplify the evaluate expression",
			"Guard the expression against missing globals",
		},
		confidence: 0.75,
	},
	{
		kind:      task.KindCrash,
		keywords:  []string{"crash", "terminated", "killed", "segmentation fault"},
		rootCause: "Browser or process crashed unexpectedly",
		fixes: []string{
			"Increase memory limits",
			"Run in headless mode",
			"Update the browser version",
			"Check system resources",
		},
		confidence: 0.7,
	},
}

const (
	// unknownConfidence is assigned when no keyword group matches.
	unknownConfidence = 0.5

	// maxEvidenceLines bounds the console and network excerpts carried in
	// the diagnosis context.
	maxEvidenceLines = 5
)

// ruleClassify runs the rule tier: lower-cased error text against the
// ordered keyword groups, first match wins, unknown otherwise.
func ruleClassify(outcome *task.ExecutionOutcome) *task.Diagnosis {
	errText := strings.ToLower(outcome.Error)

	kind := task.KindUnknown
	rootCause := outcome.Error
	var fixes []string
	confidence := unknownConfidence

	for _, r := range rules {
		if matchesAny(errText, r.keywords) {
			kind = r.kind
			rootCause = r.rootCause
			fixes = append([]string(nil), r.fixes...)
			confidence = r.confidence
			break
		}
	}

	return &task.Diagnosis{
		TaskID:         outcome.TaskID,
		Version:        outcome.Version,
		Kind:           kind,
		RootCause:      rootCause,
		SuggestedFixes: fixes,
		Confidence:     confidence,
		Context:        evidenceContext(outcome),
		DiagnosedAt:    time.Now(),
	}
}

func matchesAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// evidenceContext assembles the supporting evidence map: error text,
// duration, screenshot count, flagged console lines, and failed requests.
func evidenceContext(outcome *task.ExecutionOutcome) map[string]interface{} {
	var consoleErrors []string
	for _, line := range outcome.ConsoleLogs {
		if strings.Contains(strings.ToLower(line), "[error]") {
			consoleErrors = append(consoleErrors, line)
			if len(consoleErrors) == maxEvidenceLines {
				break
			}
		}
	}

	var failedRequests []string
	for _, e := range outcome.NetworkEvents {
		if e.Status >= 400 {
			failedRequests = append(failedRequests, e.Method+" "+e.URL)
			if len(failedRequests) == maxEvidenceLines {
				break
			}
		}
	}

	return map[string]interface{}{
		"error_message":         outcome.Error,
		"execution_time":        outcome.Duration.Seconds(),
		"screenshots_available": len(outcome.Screenshots),
		"console_errors":        consoleErrors,
		"failed_requests":       failedRequests,
	}
}
