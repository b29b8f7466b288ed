package repair

import (
	"strings"

	"github.com/entrhq/mend/pkg/script"
	"github.com/entrhq/mend/pkg/task"
)

// deterministicRule is one zero-cost text transform. Apply returns the
// patched source, a strategy note, and whether anything changed. Rules must
// be idempotent: applying a rule to its own output changes nothing.
type deterministicRule struct {
	kinds []task.ErrorKind
	apply func(source string) (string, []string, bool)
}

// deterministicRules run in this fixed order; the tier applies every rule
// whose kind matches and declines when none of them changed the text.
var deterministicRules = []deterministicRule{
	{
		kinds: []task.ErrorKind{task.KindTimeout},
		apply: patchNavigationTimeouts,
	},
}

const (
	patchedTimeoutMs = 60000
	idleWaitState    = "networkidle"
)

// patchNavigationTimeouts ensures every navigation step carries an explicit
// timeout and a network-idle wait. Already-patched programs pass through
// untouched, so the rule is idempotent and the tier falls through to the
// model on a second timeout for the same script.
func patchNavigationTimeouts(source string) (string, []string, bool) {
	prog, err := script.Parse(source)
	if err != nil {
		// Not a parseable program; leave it for the model tier.
		return source, nil, false
	}

	var notes []string
	addedTimeout := false
	addedIdleWait := false

	for i := range prog.Steps {
		step := &prog.Steps[i]
		if step.Action != script.ActionNavigate {
			continue
		}
		if step.TimeoutMs == 0 {
			step.TimeoutMs = patchedTimeoutMs
			addedTimeout = true
		}
		if step.WaitUntil == "" || step.WaitUntil == "load" {
			step.WaitUntil = idleWaitState
			addedIdleWait = true
		}
	}

	if !addedTimeout && !addedIdleWait {
		return source, nil, false
	}

	patched, err := prog.Marshal()
	if err != nil {
		return source, nil, false
	}

	if addedTimeout {
		notes = append(notes, "Increased navigation timeout to 60s")
	}
	if addedIdleWait {
		notes = append(notes, "Added network idle wait")
	}
	return patched, notes, true
}

// applyDeterministicRules runs every rule matching the diagnosis kind, in
// order, threading the patched text through. It reports the combined
// strategy notes and whether any rule changed the source.
func applyDeterministicRules(source string, kind task.ErrorKind) (string, string, bool) {
	current := source
	var allNotes []string

	for _, r := range deterministicRules {
		if !kindMatches(r.kinds, kind) {
			continue
		}
		patched, notes, changed := r.apply(current)
		if changed {
			current = patched
			allNotes = append(allNotes, notes...)
		}
	}

	if len(allNotes) == 0 {
		return source, "", false
	}
	return current, strings.Join(allNotes, "; "), true
}

func kindMatches(kinds []task.ErrorKind, kind task.ErrorKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}
