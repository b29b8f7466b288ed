// Package orchestrator drives the self-healing control loop:
// generate -> execute -> (on failure) classify -> repair -> re-execute,
// bounded by the repair attempt budget and the cost governor.
//
// The loop is strictly sequential for one task; multiple tasks run as
// independent Orchestrator calls sharing only the injected budget governor.
package orchestrator

import (
	"context"
	"time"

	"github.com/entrhq/mend/pkg/logging"
	"github.com/entrhq/mend/pkg/repair"
	"github.com/entrhq/mend/pkg/task"
)

// Synthesizer produces the first script version for a task.
type Synthesizer interface {
	Generate(ctx context.Context, t *task.Task) (*task.ScriptVersion, error)
}

// Executor runs one script version and always returns an outcome, never an
// error: backend failures must arrive as failed outcomes.
type Executor interface {
	Execute(ctx context.Context, sv *task.ScriptVersion, headless bool) *task.ExecutionOutcome
}

// Classifier maps a failed outcome to a diagnosis.
type Classifier interface {
	Classify(ctx context.Context, outcome *task.ExecutionOutcome) (*task.Diagnosis, error)
}

// Strategist produces a repaired script version from a diagnosis.
type Strategist interface {
	Repair(ctx context.Context, original *task.ScriptVersion, d *task.Diagnosis, attempt int) (*repair.Result, error)
}

// Store persists scripts as they are produced and the sealed run record.
type Store interface {
	SaveScript(sv *task.ScriptVersion) (string, error)
	SaveRun(run *task.TestRun) (string, error)
}

// Options sets the loop's defaults; a Request may override the per-task
// flags.
type Options struct {
	// MaxRepairAttempts bounds repairs; the loop allows MaxRepairAttempts+1
	// total executions.
	MaxRepairAttempts int

	// AutoHeal enables the diagnose/repair portion of the loop by default.
	AutoHeal bool

	// Headless is the default browser visibility.
	Headless bool

	// ExecutionTimeout caps one script execution. Zero disables the cap.
	ExecutionTimeout time.Duration
}

// Request describes one automation run.
type Request struct {
	// Description is the natural-language task.
	Description string

	// URL optionally anchors the task to a starting page.
	URL string

	// Headless overrides the default when non-nil.
	Headless *bool

	// AutoHeal overrides the default when non-nil.
	AutoHeal *bool
}

// Orchestrator owns the task state machine.
type Orchestrator struct {
	synth      Synthesizer
	executor   Executor
	classifier Classifier
	strategist Strategist
	store      Store
	opts       Options
	logger     *logging.Logger
}

// New wires an Orchestrator from its collaborators.
func New(synth Synthesizer, executor Executor, classifier Classifier, strategist Strategist, store Store, opts Options, logger *logging.Logger) *Orchestrator {
	return &Orchestrator{
		synth:      synth,
		executor:   executor,
		classifier: classifier,
		strategist: strategist,
		store:      store,
		opts:       opts,
		logger:     logger,
	}
}

// Run executes the full workflow for one task and returns the sealed
// TestRun. It never returns an error: every failure path seals the run as
// failed with the reason recorded on the task metadata and the run's last
// outcome/diagnosis.
func (o *Orchestrator) Run(ctx context.Context, req Request) *task.TestRun {
	headless := o.opts.Headless
	if req.Headless != nil {
		headless = *req.Headless
	}
	autoHeal := o.opts.AutoHeal
	if req.AutoHeal != nil {
		autoHeal = *req.AutoHeal
	}

	t := task.NewTask(req.Description, req.URL)
	run := task.NewTestRun(t)

	o.logger.Infof("starting task %s: %s (auto-heal=%t)", t.ID, t.Description, autoHeal)

	defer func() {
		if path, err := o.store.SaveRun(run); err != nil {
			o.logger.Errorf("failed to persist run for task %s: %v", t.ID, err)
		} else {
			o.logger.Infof("run record saved: %s", path)
		}
	}()

	// Generation failure is fatal: without a script there is nothing to
	// diagnose.
	t.Status = task.StatusGenerating
	first, err := o.synth.Generate(ctx, t)
	if err != nil {
		o.seal(run, task.StatusFailed, "script generation failed: "+err.Error())
		return run
	}
	o.appendScript(run, first)

	current := first
	maxAttempts := o.opts.MaxRepairAttempts + 1

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		// Cancellation is honored between attempts, never mid-execution.
		if err := ctx.Err(); err != nil {
			o.seal(run, task.StatusFailed, "canceled: "+err.Error())
			break
		}

		t.Status = task.StatusExecuting
		outcome := o.executeBounded(ctx, current, headless)
		_ = run.AddExecution(outcome)

		if outcome.Success {
			o.seal(run, task.StatusSuccess, "")
			break
		}

		o.logger.Warnf("task %s v%d failed: %s", t.ID, current.Version, outcome.Error)

		if !autoHeal {
			o.seal(run, task.StatusFailed, "auto-heal disabled")
			break
		}
		if attempt == maxAttempts {
			o.seal(run, task.StatusFailed, "max repair attempts reached")
			break
		}

		t.Status = task.StatusDiagnosing
		diag, err := o.classifier.Classify(ctx, outcome)
		if err != nil {
			// Only reachable through a programming error (classifying a
			// success); treated as fatal to the task.
			o.seal(run, task.StatusFailed, "diagnosis failed: "+err.Error())
			break
		}
		_ = run.AddDiagnosis(diag)
		o.logger.Infof("task %s diagnosed: %s (confidence %.2f)", t.ID, diag.Kind, diag.Confidence)

		t.Status = task.StatusRepairing
		res, err := o.strategist.Repair(ctx, current, diag, attempt)
		if err != nil {
			o.seal(run, task.StatusFailed, "repair failed: "+err.Error())
			break
		}
		_ = run.AddRepair(res.Record)
		o.appendScript(run, res.Script)
		current = res.Script
	}

	return run
}

// executeBounded applies the per-execution timeout around the backend call.
func (o *Orchestrator) executeBounded(ctx context.Context, sv *task.ScriptVersion, headless bool) *task.ExecutionOutcome {
	if o.opts.ExecutionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.ExecutionTimeout)
		defer cancel()
	}
	return o.executor.Execute(ctx, sv, headless)
}

// appendScript records a new version on the ledger, its cost on the run, and
// the source in the artifact store.
func (o *Orchestrator) appendScript(run *task.TestRun, sv *task.ScriptVersion) {
	if err := run.AddScript(sv); err != nil {
		o.logger.Errorf("version ledger rejected script v%d for task %s: %v", sv.Version, sv.TaskID, err)
		return
	}
	run.AddCost(sv.Cost)
	if _, err := o.store.SaveScript(sv); err != nil {
		o.logger.Warnf("failed to save script v%d for task %s: %v", sv.Version, sv.TaskID, err)
	}
}

// seal fixes the terminal status once, recording the failure reason for
// reporting.
func (o *Orchestrator) seal(run *task.TestRun, status task.Status, reason string) {
	if reason != "" {
		run.Task.Metadata["failure_reason"] = reason
		o.logger.Warnf("task %s failed: %s", run.Task.ID, reason)
	}
	if err := run.Seal(status); err != nil {
		o.logger.Errorf("seal rejected for task %s: %v", run.Task.ID, err)
		return
	}
	o.logger.Infof("task %s sealed: %s (total cost $%.4f)", run.Task.ID, status, run.TotalCost)
}
