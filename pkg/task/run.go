package task

import (
	"errors"
	"fmt"
	"time"
)

// ErrSealed indicates an attempt to mutate a sealed TestRun.
var ErrSealed = errors.New("test run is sealed")

// TestRun is the aggregate history of one task: its ordered script versions,
// executions, diagnoses, and repairs, plus the terminal status and total
// cost. It is the unit of persistence and reporting.
//
// Appends keep the version ledger invariants: script versions form the exact
// sequence 1,2,3..., and the run seals exactly once.
type TestRun struct {
	Task        *Task               `json:"task"`
	Scripts     []*ScriptVersion    `json:"scripts"`
	Executions  []*ExecutionOutcome `json:"executions"`
	Diagnoses   []*Diagnosis        `json:"diagnoses"`
	Repairs     []*RepairRecord     `json:"repairs"`
	FinalStatus Status              `json:"final_status"`
	TotalCost   float64             `json:"total_cost"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}

// NewTestRun creates the run shell for a task.
func NewTestRun(t *Task) *TestRun {
	return &TestRun{
		Task:        t,
		FinalStatus: StatusPending,
	}
}

// Sealed reports whether the run has reached its terminal status.
func (r *TestRun) Sealed() bool {
	return r.CompletedAt != nil
}

// AddScript appends a script version, enforcing the gap-free 1,2,3...
// sequence.
func (r *TestRun) AddScript(sv *ScriptVersion) error {
	if r.Sealed() {
		return ErrSealed
	}
	if want := len(r.Scripts) + 1; sv.Version != want {
		return fmt.Errorf("script version %d out of sequence, want %d", sv.Version, want)
	}
	r.Scripts = append(r.Scripts, sv)
	return nil
}

// AddExecution appends an execution outcome.
func (r *TestRun) AddExecution(o *ExecutionOutcome) error {
	if r.Sealed() {
		return ErrSealed
	}
	r.Executions = append(r.Executions, o)
	return nil
}

// AddDiagnosis appends a diagnosis.
func (r *TestRun) AddDiagnosis(d *Diagnosis) error {
	if r.Sealed() {
		return ErrSealed
	}
	r.Diagnoses = append(r.Diagnoses, d)
	return nil
}

// AddRepair appends a repair record.
func (r *TestRun) AddRepair(rec *RepairRecord) error {
	if r.Sealed() {
		return ErrSealed
	}
	r.Repairs = append(r.Repairs, rec)
	return nil
}

// AddCost adds to the running total. Cost accumulates regardless of the
// eventual task outcome.
func (r *TestRun) AddCost(cost float64) {
	r.TotalCost += cost
}

// CurrentVersion returns the latest script version, or nil before the first
// generation.
func (r *TestRun) CurrentVersion() *ScriptVersion {
	if len(r.Scripts) == 0 {
		return nil
	}
	return r.Scripts[len(r.Scripts)-1]
}

// LastExecution returns the most recent execution outcome, or nil.
func (r *TestRun) LastExecution() *ExecutionOutcome {
	if len(r.Executions) == 0 {
		return nil
	}
	return r.Executions[len(r.Executions)-1]
}

// LastDiagnosis returns the most recent diagnosis, or nil.
func (r *TestRun) LastDiagnosis() *Diagnosis {
	if len(r.Diagnoses) == 0 {
		return nil
	}
	return r.Diagnoses[len(r.Diagnoses)-1]
}

// Seal fixes the terminal status and completion time. It succeeds exactly
// once; later calls fail and leave the first result untouched.
func (r *TestRun) Seal(status Status) error {
	if r.Sealed() {
		return ErrSealed
	}
	if !status.Terminal() {
		return fmt.Errorf("cannot seal with non-terminal status %q", status)
	}
	now := time.Now()
	r.FinalStatus = status
	r.Task.Status = status
	r.CompletedAt = &now
	return nil
}
