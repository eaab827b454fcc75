// Package hooks adapts the execution backend's task lifecycle to the
// workflow engine. Backends invoke BeforeStart and OnSuccess around every
// unit of work; units carrying the workflow correlation kwargs are recorded
// against their workflow and drive step sequencing, all others pass through
// untouched.
package hooks

import (
	"context"

	"github.com/rhythmwf/rhythm/internal/engine"
	"github.com/rhythmwf/rhythm/pkg/api"
)

// Hooks is the execution-hook adapter. It is stateless between calls; each
// hook loads the workflow fresh by the id carried in the task's kwargs.
type Hooks struct {
	cfg engine.Config
}

// New creates the hook adapter for the given collaborators.
func New(store api.WorkflowStore, backend api.Backend, observer api.Observer) *Hooks {
	return &Hooks{cfg: engine.Config{
		Store:    store,
		Backend:  backend,
		Observer: observer,
	}}
}

// BeforeStart is invoked by the backend once a task begins executing. For
// correlated tasks it appends a run record to the named step and persists
// the document; this is the only place run records are created.
func (h *Hooks) BeforeStart(ctx context.Context, taskID string, kwargs map[string]any) error {
	workflowID, step, ok := api.Correlation(kwargs)
	if !ok {
		return nil
	}
	wf, err := engine.Load(ctx, h.cfg, workflowID)
	if err != nil {
		return err
	}
	return wf.OnStepStart(ctx, step, taskID)
}

// OnSuccess is invoked by the backend after a task completes successfully.
// For correlated tasks it dispatches the step following the named one, with
// the first element of retval as its positional argument. The last step
// dispatches nothing; the workflow reaches SUCCESS once the backend reports
// its run as succeeded.
func (h *Hooks) OnSuccess(ctx context.Context, retval []any, kwargs map[string]any) error {
	workflowID, step, ok := api.Correlation(kwargs)
	if !ok {
		return nil
	}
	wf, err := engine.Load(ctx, h.cfg, workflowID)
	if err != nil {
		return err
	}
	return wf.OnStepSuccess(ctx, retval, step)
}
