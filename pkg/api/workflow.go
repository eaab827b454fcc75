package api

import (
	"context"
	"time"
)

// Status is the lifecycle state reported by the execution backend for a
// single task run, and the derived state of a whole workflow.
//
// The vocabulary is closed; status-derivation logic switches over these
// values exhaustively.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusStarted  Status = "STARTED"
	StatusProgress Status = "PROGRESS"
	StatusRetry    Status = "RETRY"
	StatusRevoked  Status = "REVOKED"
	StatusFailure  Status = "FAILURE"
	StatusSuccess  Status = "SUCCESS"
)

// Terminal reports whether s is a final state for a task run.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusRevoked:
		return true
	}
	return false
}

// Correlation kwargs injected into every dispatched task so the sequencing
// hooks can find their way back to the owning workflow. Tasks that do not
// carry both keys are ordinary work and are ignored by the hooks.
const (
	KwargWorkflowID = "workflow_id"
	KwargStep       = "step"
)

// Correlation extracts the workflow correlation fields from task kwargs.
// ok is false unless both keys are present with non-empty string values.
func Correlation(kwargs map[string]any) (workflowID, step string, ok bool) {
	workflowID, _ = kwargs[KwargWorkflowID].(string)
	step, _ = kwargs[KwargStep].(string)
	return workflowID, step, workflowID != "" && step != ""
}

// StepSpec describes one stage of a workflow at creation time.
type StepSpec struct {
	Name string `json:"name"`
	Task string `json:"task"`
}

// TaskRun is one dispatch attempt of a step's task. Runs are append-only;
// only the last run of a step is current, earlier runs are history.
type TaskRun struct {
	TaskID    string     `json:"task_id"`
	DateStart time.Time  `json:"date_start"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// Step is one stage of a persisted workflow document.
type Step struct {
	Name     string    `json:"name"`
	Task     string    `json:"task"`
	TaskRuns []TaskRun `json:"task_runs,omitempty"`
}

// LastRun returns the step's current run, or nil if it has never been
// dispatched.
func (s *Step) LastRun() *TaskRun {
	if len(s.TaskRuns) == 0 {
		return nil
	}
	return &s.TaskRuns[len(s.TaskRuns)-1]
}

// WorkflowDoc is the persisted workflow document: identity, ordered step
// definitions and per-step run history. Step order is the execution order
// and is fixed for the workflow's lifetime.
type WorkflowDoc struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Steps     []Step    `json:"steps"`
}

// Clone returns a deep copy of the document.
func (d *WorkflowDoc) Clone() *WorkflowDoc {
	out := *d
	out.Steps = make([]Step, len(d.Steps))
	for i, step := range d.Steps {
		cp := step
		cp.TaskRuns = append([]TaskRun(nil), step.TaskRuns...)
		out.Steps[i] = cp
	}
	return &out
}

// TaskRecord is the execution backend's stored record of a task run,
// queried read-only for status reporting and resume argument recovery.
// Result is nil when the task has not produced one, or when the stored
// result payload could not be decoded.
type TaskRecord struct {
	TaskID    string         `json:"task_id"`
	Status    Status         `json:"status"`
	Args      []any          `json:"args,omitempty"`
	Kwargs    map[string]any `json:"kwargs,omitempty"`
	Result    any            `json:"result,omitempty"`
	DateStart *time.Time     `json:"date_start,omitempty"`
	DateDone  *time.Time     `json:"date_done,omitempty"`
}

// PendingStep identifies the first step, in definition order, whose latest
// run has not succeeded. It is the single source of truth for "where is the
// workflow"; start/pause/resume and status derivation all key off it.
type PendingStep struct {
	Index  int
	Status Status
}

// RevokedStep identifies the step whose in-flight run a Pause cancelled.
type RevokedStep struct {
	TaskID string `json:"task_id"`
	Task   string `json:"task"`
	Name   string `json:"name"`
}

// PauseResult is the outcome of Workflow.Pause.
type PauseResult struct {
	Paused      bool         `json:"paused"`
	RevokedStep *RevokedStep `json:"revoked_step,omitempty"`
}

// RestartedStep identifies the step a Resume re-dispatched.
type RestartedStep struct {
	Name string `json:"name"`
	Task string `json:"task"`
}

// ResumeResult is the outcome of Workflow.Resume.
type ResumeResult struct {
	Resumed       bool           `json:"resumed"`
	RestartedStep *RestartedStep `json:"restarted_step,omitempty"`
}

// ResumeOptions controls Workflow.Resume.
//
// Force bypasses the FAILURE/REVOKED status check; it is the caller's
// responsibility to avoid double-dispatching an in-flight step. Args are
// used only when the pending step has no recorded run to recover arguments
// from.
type ResumeOptions struct {
	Force bool
	Args  []any
}

// DescribeOptions controls how much run detail Workflow.Describe includes.
type DescribeOptions struct {
	// LastTaskRun includes the backend record of each step's current run.
	LastTaskRun bool
	// PrevTaskRuns includes the backend records of each step's earlier runs.
	PrevTaskRuns bool
}

// StepView is one step in an embellished workflow projection.
type StepView struct {
	Name         string        `json:"name"`
	Task         string        `json:"task"`
	Status       Status        `json:"status"`
	LastTaskRun  *TaskRecord   `json:"last_task_run,omitempty"`
	PrevTaskRuns []*TaskRecord `json:"prev_task_runs,omitempty"`
}

// WorkflowView is the embellished projection returned by Workflow.Describe,
// intended for external reporting layers (CLIs, APIs).
type WorkflowView struct {
	ID         string     `json:"id"`
	Name       string     `json:"name,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Status     Status     `json:"status"`
	StepsDone  int        `json:"steps_done"`
	TotalSteps int        `json:"total_steps"`
	Steps      []StepView `json:"steps"`
}

// Workflow is a handle bound to one workflow document. Every public
// operation reloads the document first, so concurrent writers (hooks racing
// with pause/resume) are observed rather than clobbered by a stale view.
type Workflow interface {
	// ID returns the workflow's immutable identifier.
	ID() string

	// Document reloads and returns a copy of the persisted document.
	Document(ctx context.Context) (*WorkflowDoc, error)

	// Start dispatches the first step's task with the given arguments plus
	// the injected correlation kwargs. No status check is performed;
	// calling Start twice creates two independent runs of step one.
	Start(ctx context.Context, args []any, kwargs map[string]any) error

	// Pause requests best-effort cancellation of the pending step's
	// in-flight run. The engine does not wait for the cancellation to take
	// effect; a later status read reflects the backend's eventual state.
	Pause(ctx context.Context) (PauseResult, error)

	// Resume re-dispatches the pending step if its latest run FAILED or
	// was REVOKED (or unconditionally with opts.Force), preferring the
	// arguments recorded with the step's last run over opts.Args.
	Resume(ctx context.Context, opts ResumeOptions) (ResumeResult, error)

	// Status derives the workflow-level status from the pending step.
	Status(ctx context.Context) (Status, error)

	// StepStatus returns the backend-reported status of the named step's
	// latest run, or PENDING if the step has never been dispatched.
	StepStatus(ctx context.Context, stepName string) (Status, error)

	// PendingStep returns the first step whose latest run has not
	// succeeded, or nil if every step succeeded.
	PendingStep(ctx context.Context) (*PendingStep, error)

	// Describe returns the embellished projection of the workflow.
	Describe(ctx context.Context, opts DescribeOptions) (*WorkflowView, error)

	// OnStepStart records a new run of the named step. It is invoked by
	// the execution-hook adapter once the backend confirms the task began
	// executing; it is the only place run records are created.
	OnStepStart(ctx context.Context, stepName, taskID string) error

	// OnStepSuccess stamps the named step's run as finished and dispatches
	// the next step (if any) with the first element of retval as its
	// positional argument.
	OnStepSuccess(ctx context.Context, retval []any, stepName string) error
}

// WorkflowStore persists workflow documents. Implementations provide
// per-document read, insert and full-document replace; no cross-document
// transactions are assumed, so concurrent read-modify-write of the same
// document is last-writer-wins.
type WorkflowStore interface {
	Get(ctx context.Context, id string) (*WorkflowDoc, error)
	Insert(ctx context.Context, doc *WorkflowDoc) error
	Update(ctx context.Context, doc *WorkflowDoc) error
}

// Backend is the asynchronous task-execution backend contract.
type Backend interface {
	// Dispatch submits a named task for asynchronous execution and returns
	// its run identifier. Fire-and-forget: completion is reported through
	// the backend's own lifecycle hooks and status store.
	Dispatch(ctx context.Context, task string, args []any, kwargs map[string]any) (string, error)

	// TaskStatus reports the stored status of a run. Backends report
	// PENDING for identifiers they have no record of.
	TaskStatus(ctx context.Context, taskID string) (Status, error)

	// TaskRecord returns the stored record of a run, or nil if the backend
	// has none.
	TaskRecord(ctx context.Context, taskID string) (*TaskRecord, error)

	// Revoke requests best-effort cancellation of an in-flight run.
	Revoke(ctx context.Context, taskID string, terminate bool) error
}
