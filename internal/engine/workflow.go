package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rhythmwf/rhythm/pkg/api"
)

// workflowImpl is a handle bound to one workflow document. It performs no
// internal concurrency: every public operation is a short synchronous
// sequence of one document read, zero or more backend calls and at most one
// document write. The read-modify-write in OnStepStart/OnStepSuccess is not
// atomic against concurrent writers of the same document; the store provides
// no transactions, so a last-writer-wins race is a known property.
type workflowImpl struct {
	store    api.WorkflowStore
	backend  api.Backend
	observer api.Observer

	doc *api.WorkflowDoc
}

// Config describes the collaborators a workflow handle is bound to.
type Config struct {
	Store    api.WorkflowStore
	Backend  api.Backend
	Observer api.Observer
}

func (c Config) observer() api.Observer {
	if c.Observer == nil {
		return api.NoopObserver{}
	}
	return c.Observer
}

// Load binds a handle to an existing workflow document.
func Load(ctx context.Context, cfg Config, id string) (api.Workflow, error) {
	doc, err := cfg.Store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load workflow %s: %w", id, err)
	}
	return &workflowImpl{
		store:    cfg.Store,
		backend:  cfg.Backend,
		observer: cfg.observer(),
		doc:      doc,
	}, nil
}

// Create validates the step list, assigns a new identifier, persists the
// document and returns a handle bound to it. Validation failures abort
// construction entirely; nothing is persisted.
func Create(ctx context.Context, cfg Config, steps []api.StepSpec, name string) (api.Workflow, error) {
	if err := validateSteps(steps); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc := &api.WorkflowDoc{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		Steps:     make([]api.Step, len(steps)),
	}
	for i, spec := range steps {
		doc.Steps[i] = api.Step{Name: spec.Name, Task: spec.Task}
	}

	if err := cfg.Store.Insert(ctx, doc); err != nil {
		return nil, fmt.Errorf("persist workflow %s: %w", doc.ID, err)
	}

	return &workflowImpl{
		store:    cfg.Store,
		backend:  cfg.Backend,
		observer: cfg.observer(),
		doc:      doc,
	}, nil
}

func validateSteps(steps []api.StepSpec) error {
	if len(steps) == 0 {
		return api.NewValidationError("steps is empty")
	}
	for i, step := range steps {
		if step.Name == "" {
			return api.NewValidationError("step %d has no name", i)
		}
		if step.Task == "" {
			return api.NewValidationError("step %d (%s) has no task", i, step.Name)
		}
	}
	if dups := duplicates(steps); len(dups) > 0 {
		return api.NewValidationError("steps with duplicate names: %v", dups)
	}
	return nil
}

func duplicates(steps []api.StepSpec) []string {
	seen := make(map[string]int, len(steps))
	var dups []string
	for _, step := range steps {
		seen[step.Name]++
		if seen[step.Name] == 2 {
			dups = append(dups, step.Name)
		}
	}
	return dups
}

func (w *workflowImpl) ID() string {
	return w.doc.ID
}

// reload fetches a fresh copy of the document. Public operations call it
// first so decisions are never made on a stale cross-operation view.
func (w *workflowImpl) reload(ctx context.Context) error {
	doc, err := w.store.Get(ctx, w.doc.ID)
	if err != nil {
		return fmt.Errorf("reload workflow %s: %w", w.doc.ID, err)
	}
	w.doc = doc
	return nil
}

// persist writes the full document back, stamping updated_at.
func (w *workflowImpl) persist(ctx context.Context) error {
	w.doc.UpdatedAt = time.Now().UTC()
	if err := w.store.Update(ctx, w.doc); err != nil {
		return fmt.Errorf("update workflow %s: %w", w.doc.ID, err)
	}
	return nil
}

func (w *workflowImpl) Document(ctx context.Context) (*api.WorkflowDoc, error) {
	if err := w.reload(ctx); err != nil {
		return nil, err
	}
	return w.doc.Clone(), nil
}

func (w *workflowImpl) Start(ctx context.Context, args []any, kwargs map[string]any) error {
	if err := w.reload(ctx); err != nil {
		return err
	}
	first := &w.doc.Steps[0]
	return w.dispatch(ctx, first, args, kwargs)
}

// dispatch submits a step's task with the correlation kwargs injected. The
// run record is not written here; the before-run hook appends it once the
// backend confirms the task began executing.
func (w *workflowImpl) dispatch(ctx context.Context, step *api.Step, args []any, kwargs map[string]any) error {
	kw := make(map[string]any, len(kwargs)+2)
	for k, v := range kwargs {
		kw[k] = v
	}
	kw[api.KwargWorkflowID] = w.doc.ID
	kw[api.KwargStep] = step.Name

	taskID, err := w.backend.Dispatch(ctx, step.Task, args, kw)
	if err != nil {
		return fmt.Errorf("dispatch step %q task %q: %w", step.Name, step.Task, err)
	}
	w.observer.OnDispatch(ctx, w.doc.ID, step.Name, step.Task, taskID)
	return nil
}

func (w *workflowImpl) StepStatus(ctx context.Context, stepName string) (api.Status, error) {
	if err := w.reload(ctx); err != nil {
		return "", err
	}
	step := w.step(stepName)
	if step == nil {
		return "", fmt.Errorf("workflow %s has no step %q", w.doc.ID, stepName)
	}
	return w.stepStatus(ctx, step)
}

// stepStatus is the backend-reported status of the step's latest run, or
// PENDING if the step has never been dispatched.
func (w *workflowImpl) stepStatus(ctx context.Context, step *api.Step) (api.Status, error) {
	run := step.LastRun()
	if run == nil {
		return api.StatusPending, nil
	}
	status, err := w.backend.TaskStatus(ctx, run.TaskID)
	if err != nil {
		return "", fmt.Errorf("status of task %s (step %q): %w", run.TaskID, step.Name, err)
	}
	return status, nil
}

func (w *workflowImpl) PendingStep(ctx context.Context) (*api.PendingStep, error) {
	if err := w.reload(ctx); err != nil {
		return nil, err
	}
	return w.pendingStep(ctx)
}

// pendingStep scans steps in order and returns the first whose latest run
// has not succeeded, or nil if all steps succeeded.
func (w *workflowImpl) pendingStep(ctx context.Context) (*api.PendingStep, error) {
	for i := range w.doc.Steps {
		status, err := w.stepStatus(ctx, &w.doc.Steps[i])
		if err != nil {
			return nil, err
		}
		if status != api.StatusSuccess {
			return &api.PendingStep{Index: i, Status: status}, nil
		}
	}
	return nil, nil
}

func (w *workflowImpl) Status(ctx context.Context) (api.Status, error) {
	if err := w.reload(ctx); err != nil {
		return "", err
	}
	pending, err := w.pendingStep(ctx)
	if err != nil {
		return "", err
	}
	return deriveStatus(pending), nil
}

// deriveStatus collapses the pending step into one workflow-level status.
// The first incomplete step dominates because steps execute strictly in
// order:
//
//	all steps succeeded                      -> SUCCESS
//	first step never dispatched              -> PENDING
//	pending step STARTED / RETRY / PENDING   -> STARTED
//	anything else (PROGRESS/REVOKED/FAILURE) -> verbatim
func deriveStatus(pending *api.PendingStep) api.Status {
	if pending == nil {
		return api.StatusSuccess
	}
	if pending.Index == 0 && pending.Status == api.StatusPending {
		return api.StatusPending
	}
	switch pending.Status {
	case api.StatusStarted, api.StatusRetry, api.StatusPending:
		return api.StatusStarted
	default:
		return pending.Status
	}
}

func (w *workflowImpl) Pause(ctx context.Context) (api.PauseResult, error) {
	if err := w.reload(ctx); err != nil {
		return api.PauseResult{}, err
	}
	pending, err := w.pendingStep(ctx)
	if err != nil {
		return api.PauseResult{}, err
	}
	if pending == nil {
		return api.PauseResult{Paused: false}, nil
	}

	// A step that already failed (or somehow reads SUCCESS) has nothing
	// in flight to cancel; same for a step that was never dispatched.
	if pending.Status == api.StatusSuccess || pending.Status == api.StatusFailure {
		return api.PauseResult{Paused: false}, nil
	}
	step := &w.doc.Steps[pending.Index]
	run := step.LastRun()
	if run == nil {
		return api.PauseResult{Paused: false}, nil
	}

	if err := w.backend.Revoke(ctx, run.TaskID, true); err != nil {
		return api.PauseResult{}, fmt.Errorf("revoke task %s (step %q): %w", run.TaskID, step.Name, err)
	}
	w.observer.OnPause(ctx, w.doc.ID, step.Name, run.TaskID)

	return api.PauseResult{
		Paused: true,
		RevokedStep: &api.RevokedStep{
			TaskID: run.TaskID,
			Task:   step.Task,
			Name:   step.Name,
		},
	}, nil
}

func (w *workflowImpl) Resume(ctx context.Context, opts api.ResumeOptions) (api.ResumeResult, error) {
	if err := w.reload(ctx); err != nil {
		return api.ResumeResult{}, err
	}
	pending, err := w.pendingStep(ctx)
	if err != nil {
		return api.ResumeResult{}, err
	}
	if pending == nil {
		return api.ResumeResult{Resumed: false}, nil
	}
	resumable := pending.Status == api.StatusFailure || pending.Status == api.StatusRevoked
	if !resumable && !opts.Force {
		return api.ResumeResult{Resumed: false}, nil
	}

	step := &w.doc.Steps[pending.Index]

	// Prefer the arguments recorded with the step's last run; a step that
	// stopped before any run was recorded has no stored arguments, so the
	// caller must supply them.
	record, err := w.lastRunRecord(ctx, step)
	if err != nil {
		return api.ResumeResult{}, err
	}
	args := opts.Args
	if record != nil {
		args = record.Args
	} else if opts.Args == nil {
		return api.ResumeResult{}, api.NewValidationError(
			"step %q has no recorded run and no args were provided", step.Name)
	}

	if err := w.dispatch(ctx, step, args, nil); err != nil {
		return api.ResumeResult{}, err
	}
	w.observer.OnResume(ctx, w.doc.ID, step.Name)

	return api.ResumeResult{
		Resumed: true,
		RestartedStep: &api.RestartedStep{
			Name: step.Name,
			Task: step.Task,
		},
	}, nil
}

// lastRunRecord fetches the backend's stored record for the step's latest
// run, with the run's dispatch time attached. Returns nil if the step has
// never run or the backend has no record of it.
func (w *workflowImpl) lastRunRecord(ctx context.Context, step *api.Step) (*api.TaskRecord, error) {
	run := step.LastRun()
	if run == nil {
		return nil, nil
	}
	record, err := w.backend.TaskRecord(ctx, run.TaskID)
	if err != nil {
		return nil, fmt.Errorf("record of task %s (step %q): %w", run.TaskID, step.Name, err)
	}
	if record == nil {
		return nil, nil
	}
	start := run.DateStart
	record.DateStart = &start
	return record, nil
}

func (w *workflowImpl) OnStepStart(ctx context.Context, stepName, taskID string) error {
	if err := w.reload(ctx); err != nil {
		return err
	}
	step := w.step(stepName)
	if step == nil {
		return fmt.Errorf("workflow %s has no step %q", w.doc.ID, stepName)
	}
	step.TaskRuns = append(step.TaskRuns, api.TaskRun{
		TaskID:    taskID,
		DateStart: time.Now().UTC(),
	})
	if err := w.persist(ctx); err != nil {
		return err
	}
	w.observer.OnRunRecorded(ctx, w.doc.ID, stepName, taskID)
	return nil
}

func (w *workflowImpl) OnStepSuccess(ctx context.Context, retval []any, stepName string) error {
	if err := w.reload(ctx); err != nil {
		return err
	}
	step := w.step(stepName)
	if step == nil {
		return fmt.Errorf("workflow %s has no step %q", w.doc.ID, stepName)
	}

	// Record completion before dispatching the next step: stamp the end
	// time of the run that just finished.
	if run := step.LastRun(); run != nil {
		now := time.Now().UTC()
		run.EndTime = &now
		if err := w.persist(ctx); err != nil {
			return err
		}
	}
	w.observer.OnStepSucceeded(ctx, w.doc.ID, stepName)

	next := w.nextStep(stepName)
	if next == nil {
		// Last step; the workflow reaches SUCCESS once the backend
		// reports this run as succeeded.
		return nil
	}

	var args []any
	if len(retval) > 0 {
		args = []any{retval[0]}
	}
	return w.dispatch(ctx, next, args, nil)
}

func (w *workflowImpl) Describe(ctx context.Context, opts api.DescribeOptions) (*api.WorkflowView, error) {
	if err := w.reload(ctx); err != nil {
		return nil, err
	}
	pending, err := w.pendingStep(ctx)
	if err != nil {
		return nil, err
	}

	view := &api.WorkflowView{
		ID:         w.doc.ID,
		Name:       w.doc.Name,
		CreatedAt:  w.doc.CreatedAt,
		UpdatedAt:  w.doc.UpdatedAt,
		Status:     deriveStatus(pending),
		TotalSteps: len(w.doc.Steps),
		Steps:      make([]api.StepView, 0, len(w.doc.Steps)),
	}
	// Steps done is the index of the pending step; with no pending step
	// every step is done.
	if pending != nil {
		view.StepsDone = pending.Index
	} else {
		view.StepsDone = len(w.doc.Steps)
	}

	for i := range w.doc.Steps {
		step := &w.doc.Steps[i]
		status, err := w.stepStatus(ctx, step)
		if err != nil {
			return nil, err
		}
		sv := api.StepView{
			Name:   step.Name,
			Task:   step.Task,
			Status: status,
		}
		if opts.LastTaskRun {
			record, err := w.lastRunRecord(ctx, step)
			if err != nil {
				return nil, err
			}
			sv.LastTaskRun = record
		}
		if opts.PrevTaskRuns && len(step.TaskRuns) > 1 {
			for _, run := range step.TaskRuns[:len(step.TaskRuns)-1] {
				record, err := w.runRecord(ctx, run)
				if err != nil {
					return nil, err
				}
				sv.PrevTaskRuns = append(sv.PrevTaskRuns, record)
			}
		}
		view.Steps = append(view.Steps, sv)
	}
	return view, nil
}

func (w *workflowImpl) runRecord(ctx context.Context, run api.TaskRun) (*api.TaskRecord, error) {
	record, err := w.backend.TaskRecord(ctx, run.TaskID)
	if err != nil {
		return nil, fmt.Errorf("record of task %s: %w", run.TaskID, err)
	}
	if record == nil {
		return nil, nil
	}
	start := run.DateStart
	record.DateStart = &start
	return record, nil
}

func (w *workflowImpl) step(name string) *api.Step {
	for i := range w.doc.Steps {
		if w.doc.Steps[i].Name == name {
			return &w.doc.Steps[i]
		}
	}
	return nil
}

func (w *workflowImpl) nextStep(name string) *api.Step {
	for i := range w.doc.Steps {
		if w.doc.Steps[i].Name == name && i+1 < len(w.doc.Steps) {
			return &w.doc.Steps[i+1]
		}
	}
	return nil
}
