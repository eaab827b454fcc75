package rhythm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rhythmwf/rhythm/pkg/api"
)

// TaskFunc is a unit of work executed by the LocalRunner. The returned
// slice plays the role of the task's return tuple: its first element is
// passed to the next step of a workflow as the positional argument.
type TaskFunc func(ctx context.Context, args []any, kwargs map[string]any) ([]any, error)

// LocalRunner is an in-process execution backend for development and
// tests. Dispatched tasks run on their own goroutine against a registry of
// named TaskFuncs; task records and statuses are kept in memory, and the
// sequencing hooks are driven exactly as a remote backend would drive
// them.
//
// Typical usage:
//
//	runner := rhythm.NewLocalRunner(store, nil)
//	runner.Register("tasks.stage", stageFn)
//
//	cfg := rhythm.Config{Store: store, Backend: runner}
//	wf, _ := rhythm.Create(ctx, cfg, steps, "ingest")
//	_ = wf.Start(ctx, []any{"input"}, nil)
//	runner.Wait()
//
// LocalRunner is intentionally not crash-durable.
type LocalRunner struct {
	hooks *Hooks
	log   *slog.Logger

	mu       sync.Mutex
	tasks    map[string]TaskFunc
	statuses map[string]Status
	records  map[string]*TaskRecord
	cancels  map[string]context.CancelFunc
	wg       sync.WaitGroup
}

var _ api.Backend = (*LocalRunner)(nil)

// NewLocalRunner constructs a LocalRunner whose hooks persist workflow run
// history in the given store. A nil observer disables observation.
func NewLocalRunner(store WorkflowStore, observer Observer) *LocalRunner {
	r := &LocalRunner{
		log:      slog.Default(),
		tasks:    make(map[string]TaskFunc),
		statuses: make(map[string]Status),
		records:  make(map[string]*TaskRecord),
		cancels:  make(map[string]context.CancelFunc),
	}
	r.hooks = NewHooks(Config{Store: store, Backend: r, Observer: observer})
	return r
}

// Register binds a task name to a function. Dispatching an unregistered
// name fails the run.
func (r *LocalRunner) Register(name string, fn TaskFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[name] = fn
}

// Dispatch starts the named task on a new goroutine and returns its run
// identifier immediately.
func (r *LocalRunner) Dispatch(ctx context.Context, task string, args []any, kwargs map[string]any) (string, error) {
	taskID := uuid.NewString()

	runCtx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	r.statuses[taskID] = StatusPending
	r.records[taskID] = &TaskRecord{
		TaskID: taskID,
		Status: StatusPending,
		Args:   append([]any(nil), args...),
		Kwargs: kwargs,
	}
	r.cancels[taskID] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run(runCtx, taskID, task, args, kwargs)

	return taskID, nil
}

func (r *LocalRunner) run(ctx context.Context, taskID, task string, args []any, kwargs map[string]any) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		delete(r.cancels, taskID)
		r.mu.Unlock()
	}()

	r.mu.Lock()
	fn, ok := r.tasks[task]
	r.mu.Unlock()
	if !ok {
		r.finish(taskID, StatusFailure, nil, fmt.Errorf("unregistered task: %s", task))
		return
	}

	if err := r.hooks.BeforeStart(ctx, taskID, kwargs); err != nil {
		r.log.Error("before-start hook failed", "task_id", taskID, "err", err)
		r.finish(taskID, StatusFailure, nil, err)
		return
	}
	r.setStatus(taskID, StatusStarted)

	retval, err := fn(ctx, args, kwargs)
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		r.finish(taskID, StatusRevoked, nil, ctx.Err())
	case err != nil:
		r.finish(taskID, StatusFailure, nil, err)
	default:
		r.finish(taskID, StatusSuccess, retval, nil)
		if err := r.hooks.OnSuccess(ctx, retval, kwargs); err != nil {
			r.log.Error("on-success hook failed", "task_id", taskID, "err", err)
		}
	}
}

func (r *LocalRunner) setStatus(taskID string, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[taskID] = status
	if record, ok := r.records[taskID]; ok {
		record.Status = status
	}
}

func (r *LocalRunner) finish(taskID string, status Status, retval []any, err error) {
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[taskID] = status
	if record, ok := r.records[taskID]; ok {
		record.Status = status
		record.DateDone = &now
		if len(retval) > 0 {
			record.Result = retval[0]
		}
		if err != nil {
			record.Result = err.Error()
		}
	}
}

// TaskStatus reports a run's status, PENDING for unknown identifiers.
func (r *LocalRunner) TaskStatus(ctx context.Context, taskID string) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status, ok := r.statuses[taskID]
	if !ok {
		return StatusPending, nil
	}
	return status, nil
}

// TaskRecord returns the stored record of a run, or nil for unknown
// identifiers.
func (r *LocalRunner) TaskRecord(ctx context.Context, taskID string) (*TaskRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[taskID]
	if !ok {
		return nil, nil
	}
	cp := *record
	return &cp, nil
}

// Revoke cancels an in-flight run's context. Cancellation is best-effort:
// a task that never checks its context runs to completion regardless.
func (r *LocalRunner) Revoke(ctx context.Context, taskID string, terminate bool) error {
	r.mu.Lock()
	cancel, ok := r.cancels[taskID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

// Wait blocks until every dispatched task (including tasks dispatched by
// the sequencing hooks while waiting) has finished.
func (r *LocalRunner) Wait() {
	r.wg.Wait()
}
