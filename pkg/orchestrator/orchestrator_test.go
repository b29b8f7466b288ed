package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/entrhq/mend/pkg/logging"
	"github.com/entrhq/mend/pkg/repair"
	"github.com/entrhq/mend/pkg/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testScript = `{"steps": [{"action": "navigate", "url": "https://example.com"}]}`

type fakeSynth struct {
	err   error
	cost  float64
	calls int
}

func (f *fakeSynth) Generate(ctx context.Context, t *task.Task) (*task.ScriptVersion, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &task.ScriptVersion{
		TaskID:    t.ID,
		Version:   1,
		Source:    testScript,
		Backend:   "test-model",
		Cost:      f.cost,
		CreatedAt: time.Now(),
	}, nil
}

// fakeExecutor fails the first failures executions, then succeeds.
type fakeExecutor struct {
	failures int
	errText  string
	calls    int
	headless []bool
}

func (f *fakeExecutor) Execute(ctx context.Context, sv *task.ScriptVersion, headless bool) *task.ExecutionOutcome {
	f.calls++
	f.headless = append(f.headless, headless)
	outcome := &task.ExecutionOutcome{
		TaskID:     sv.TaskID,
		Version:    sv.Version,
		ExecutedAt: time.Now(),
	}
	if f.calls <= f.failures {
		outcome.Error = f.errText
		return outcome
	}
	outcome.Success = true
	return outcome
}

type fakeClassifier struct {
	kind  task.ErrorKind
	err   error
	calls int
}

func (f *fakeClassifier) Classify(ctx context.Context, outcome *task.ExecutionOutcome) (*task.Diagnosis, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &task.Diagnosis{
		TaskID:      outcome.TaskID,
		Version:     outcome.Version,
		Kind:        f.kind,
		RootCause:   outcome.Error,
		Confidence:  0.9,
		DiagnosedAt: time.Now(),
	}, nil
}

type fakeStrategist struct {
	err   error
	cost  float64
	calls int
}

func (f *fakeStrategist) Repair(ctx context.Context, original *task.ScriptVersion, d *task.Diagnosis, attempt int) (*repair.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	sv := &task.ScriptVersion{
		TaskID:    original.TaskID,
		Version:   original.Version + 1,
		Source:    original.Source,
		Backend:   "test-model",
		Cost:      f.cost,
		CreatedAt: time.Now(),
	}
	return &repair.Result{
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

type fakeStore struct {
	scripts  []*task.ScriptVersion
	saved    *task.TestRun
	saveRuns int
	err      error
}

func (f *fakeStore) SaveScript(sv *task.ScriptVersion) (string, error) {
	f.scripts = append(f.scripts, sv)
	return "scripts/" + sv.TaskID, nil
}

func (f *fakeStore) SaveRun(run *task.TestRun) (string, error) {
	f.saveRuns++
	if f.err != nil {
		return "", f.err
	}
	f.saved = run
	return "runs/" + run.Task.ID, nil
}

type fixture struct {
	synth      *fakeSynth
	executor   *fakeExecutor
	classifier *fakeClassifier
	strategist *fakeStrategist
	store      *fakeStore
	orch       *Orchestrator
}

func newFixture(opts Options) *fixture {
	f := &fixture{
		synth:      &fakeSynth{cost: 0.01},
		executor:   &fakeExecutor{errText: "step 1 (navigate): navigation failed: net::ERR_CONNECTION_REFUSED"},
		classifier: &fakeClassifier{kind: task.KindNetworkError},
		strategist: &fakeStrategist{cost: 0.02},
		store:      &fakeStore{},
	}
	f.orch = New(f.synth, f.executor, f.classifier, f.strategist, f.store, opts, logging.NewNop())
	return f
}

func defaultOptions() Options {
	return Options{
		MaxRepairAttempts: 3,
		AutoHeal:          true,
		Headless:          true,
	}
}

func TestRun_SuccessFirstAttempt(t *testing.T) {
	f := newFixture(defaultOptions())

	run := f.orch.Run(context.Background(), Request{Description: "open the homepage"})

	assert.Equal(t, task.StatusSuccess, run.FinalStatus)
	assert.True(t, run.Sealed())
	assert.Len(t, run.Scripts, 1)
	assert.Len(t, run.Executions, 1)
	assert.Empty(t, run.Diagnoses)
	assert.Empty(t, run.Repairs)
	assert.InDelta(t, 0.01, run.TotalCost, 1e-9)

	// The run record and the script were persisted.
	assert.Equal(t, 1, f.store.saveRuns)
	require.NotNil(t, f.store.saved)
	assert.Len(t, f.store.scripts, 1)
}

func TestRun_HealsAfterOneFailure(t *testing.T) {
	f := newFixture(defaultOptions())
	f.executor.failures = 1

	run := f.orch.Run(context.Background(), Request{Description: "open the homepage"})

	assert.Equal(t, task.StatusSuccess, run.FinalStatus)
	assert.Len(t, run.Scripts, 2)
	assert.Len(t, run.Executions, 2)
	assert.Len(t, run.Diagnoses, 1)
	assert.Len(t, run.Repairs, 1)

	// Generation cost plus one repair cost.
	assert.InDelta(t, 0.03, run.TotalCost, 1e-9)

	// The failed execution ran v1, the successful one v2.
	assert.Equal(t, 1, run.Executions[0].Version)
	assert.Equal(t, 2, run.Executions[1].Version)
}

func TestRun_ExhaustsRepairAttempts(t *testing.T) {
	f := newFixture(defaultOptions())
	f.executor.failures = 100 // never succeeds

	run := f.orch.Run(context.Background(), Request{Description: "open the homepage"})

	assert.Equal(t, task.StatusFailed, run.FinalStatus)
	assert.Equal(t, "max repair attempts reached", run.Task.Metadata["failure_reason"])

	// 3 repair attempts allow 4 executions total.
	assert.Equal(t, 4, f.executor.calls)
	assert.Equal(t, 3, f.classifier.calls)
	assert.Equal(t, 3, f.strategist.calls)

	// The version ledger is the exact sequence 1..4.
	require.Len(t, run.Scripts, 4)
	for i, sv := range run.Scripts {
		assert.Equal(t, i+1, sv.Version)
	}

	// Cost accumulated despite the failure.
	assert.InDelta(t, 0.01+3*0.02, run.TotalCost, 1e-9)
	assert.Equal(t, 1, f.store.saveRuns)
}

func TestRun_AutoHealDisabled(t *testing.T) {
	opts := defaultOptions()
	opts.AutoHeal = false
	f := newFixture(opts)
	f.executor.failures = 100

	run := f.orch.Run(context.Background(), Request{Description: "open the homepage"})

	assert.Equal(t, task.StatusFailed, run.FinalStatus)
	assert.Equal(t, "auto-heal disabled", run.Task.Metadata["failure_reason"])
	assert.Equal(t, 1, f.executor.calls)
	assert.Zero(t, f.classifier.calls)
	assert.Zero(t, f.strategist.calls)
}

func TestRun_RequestOverridesDefaults(t *testing.T) {
	f := newFixture(defaultOptions())
	f.executor.failures = 100

	autoHeal := false
	headless := false
	run := f.orch.Run(context.Background(), Request{
		Description: "open the homepage",
		AutoHeal:    &autoHeal,
		Headless:    &headless,
	})

	assert.Equal(t, task.StatusFailed, run.FinalStatus)
	assert.Zero(t, f.classifier.calls)
	require.Len(t, f.executor.headless, 1)
	assert.False(t, f.executor.headless[0])
}

func TestRun_GenerationFailureIsFatal(t *testing.T) {
	f := newFixture(defaultOptions())
	f.synth.err = errors.New("budget rejected: estimated cost $0.9000 exceeds max per run $0.50")

	run := f.orch.Run(context.Background(), Request{Description: "open the homepage"})

	assert.Equal(t, task.StatusFailed, run.FinalStatus)
	assert.Contains(t, run.Task.Metadata["failure_reason"], "script generation failed")
	assert.Empty(t, run.Scripts)
	assert.Zero(t, f.executor.calls)
	assert.Equal(t, 1, f.store.saveRuns)
}

func TestRun_RepairFailureIsFatal(t *testing.T) {
	f := newFixture(defaultOptions())
	f.executor.failures = 100
	f.strategist.err = errors.New("budget rejected: would exceed daily budget")

	run := f.orch.Run(context.Background(), Request{Description: "open the homepage"})

	assert.Equal(t, task.StatusFailed, run.FinalStatus)
	assert.Contains(t, run.Task.Metadata["failure_reason"], "repair failed")
	assert.Equal(t, 1, f.executor.calls)
	assert.Len(t, run.Diagnoses, 1)
	assert.Empty(t, run.Repairs)
}

func TestRun_ClassifierFailureIsFatal(t *testing.T) {
	f := newFixture(defaultOptions())
	f.executor.failures = 100
	f.classifier.err = errors.New("cannot diagnose a successful execution")

	run := f.orch.Run(context.Background(), Request{Description: "open the homepage"})

	assert.Equal(t, task.StatusFailed, run.FinalStatus)
	assert.Contains(t, run.Task.Metadata["failure_reason"], "diagnosis failed")
}

func TestRun_CancellationBetweenAttempts(t *testing.T) {
	f := newFixture(defaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run := f.orch.Run(ctx, Request{Description: "open the homepage"})

	assert.Equal(t, task.StatusFailed, run.FinalStatus)
	assert.Contains(t, run.Task.Metadata["failure_reason"], "canceled")
	assert.Zero(t, f.executor.calls)
	// The run is still persisted for inspection.
	assert.Equal(t, 1, f.store.saveRuns)
}

func TestRun_ZeroRepairAttempts(t *testing.T) {
	opts := defaultOptions()
	opts.MaxRepairAttempts = 0
	f := newFixture(opts)
	f.executor.failures = 100

	run := f.orch.Run(context.Background(), Request{Description: "open the homepage"})

	assert.Equal(t, task.StatusFailed, run.FinalStatus)
	assert.Equal(t, 1, f.executor.calls)
	assert.Zero(t, f.strategist.calls)
}

func TestRun_PersistFailureDoesNotPanic(t *testing.T) {
	f := newFixture(defaultOptions())
	f.store.err = errors.New("disk full")

	run := f.orch.Run(context.Background(), Request{Description: "open the homepage"})

	assert.Equal(t, task.StatusSuccess, run.FinalStatus)
	assert.True(t, run.Sealed())
}
