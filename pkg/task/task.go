// Package task defines the domain model of the self-healing loop: tasks,
// script versions, execution outcomes, diagnoses, repair records, and the
// TestRun aggregate that collects them.
package task

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Status is the lifecycle state of an automation task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusGenerating Status = "generating"
	StatusExecuting  Status = "executing"
	StatusDiagnosing Status = "diagnosing"
	StatusRepairing  Status = "repairing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// ErrorKind classifies an execution failure. The set is closed; anything the
// classifier cannot place lands in KindUnknown.
type ErrorKind string

const (
	KindSelectorNotFound ErrorKind = "selector_not_found"
	KindTimeout          ErrorKind = "timeout"
	KindNetworkError     ErrorKind = "network_error"
	KindScriptError      ErrorKind = "script_error"
	KindCrash            ErrorKind = "crash"
	KindUnexpectedState  ErrorKind = "unexpected_state"
	KindUnknown          ErrorKind = "unknown"
)

// ParseErrorKind maps a string onto the closed ErrorKind set, returning
// KindUnknown for anything unrecognized.
func ParseErrorKind(s string) ErrorKind {
	switch ErrorKind(s) {
	case KindSelectorNotFound, KindTimeout, KindNetworkError,
		KindScriptError, KindCrash, KindUnexpectedState:
		return ErrorKind(s)
	default:
		return KindUnknown
	}
}

// Task is one natural-language automation request. Description and URL are
// immutable after creation; Status advances through the state machine.
type Task struct {
	ID          string                 `json:"id"`
	Description string                 `json:"description"`
	URL         string                 `json:"url,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	Status      Status                 `json:"status"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// NewTask creates a pending task with a time-ordered id.
func NewTask(description, url string) *Task {
	return &Task{
		ID:          ulid.Make().String(),
		Description: description,
		URL:         url,
		CreatedAt:   time.Now(),
		Status:      StatusPending,
		Metadata:    make(map[string]interface{}),
	}
}

// ScriptVersion is one immutable generation of automation source for a task.
// Repairs always produce a new version; version v+1 derives from v plus a
// diagnosis.
type ScriptVersion struct {
	TaskID           string    `json:"task_id"`
	Version          int       `json:"version"`
	Source           string    `json:"source"`
	Backend          string    `json:"backend"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	Cost             float64   `json:"cost"`
	CreatedAt        time.Time `json:"created_at"`
}

// BackendRulePatch identifies versions produced by the deterministic repair
// tier; model-produced versions carry the model name instead.
const BackendRulePatch = "rule_patch"

// NetworkEvent is one captured request/response pair.
type NetworkEvent struct {
	Method    string    `json:"method"`
	URL       string    `json:"url"`
	Status    int       `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ExecutionOutcome records the result of running one script version.
type ExecutionOutcome struct {
	TaskID        string         `json:"task_id"`
	Version       int            `json:"version"`
	Success       bool           `json:"success"`
	Error         string         `json:"error,omitempty"`
	Duration      time.Duration  `json:"duration"`
	ConsoleLogs   []string       `json:"console_logs,omitempty"`
	NetworkEvents []NetworkEvent `json:"network_events,omitempty"`
	Screenshots   []string       `json:"screenshots,omitempty"`
	VideoPath     string         `json:"video_path,omitempty"`
	ExecutedAt    time.Time      `json:"executed_at"`
}

// Diagnosis is a typed classification of one failed execution.
type Diagnosis struct {
	TaskID         string                 `json:"task_id"`
	Version        int                    `json:"version"`
	Kind           ErrorKind              `json:"error_kind"`
	RootCause      string                 `json:"root_cause"`
	SuggestedFixes []string               `json:"suggested_fixes,omitempty"`
	Confidence     float64                `json:"confidence"`
	Context        map[string]interface{} `json:"context,omitempty"`
	DiagnosedAt    time.Time              `json:"diagnosed_at"`
}

// RepairRecord links a diagnosis to the new script version it produced.
type RepairRecord struct {
	TaskID          string    `json:"task_id"`
	OriginalVersion int       `json:"original_version"`
	NewVersion      int       `json:"new_version"`
	Strategy        string    `json:"strategy"`
	Kind            ErrorKind `json:"error_kind"`
	Attempt         int       `json:"attempt"`
}
