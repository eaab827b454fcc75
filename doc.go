// Package rhythm layers ordered, resumable multi-step workflows on top of
// an external asynchronous task-execution backend and a persistent document
// store.
//
// A workflow is a fixed, named sequence of steps; each step maps to one
// unit of asynchronous work dispatched to the backend. The workflow's
// overall status is derived purely from the recorded status of the most
// recent task run of each step, progression from step to step is driven
// automatically on success, and workflows can be paused (cancelling
// in-flight work) and resumed (re-dispatching from the first non-succeeded
// step) without losing history.
//
// # Core Concepts
//
//  1. Workflow — a handle bound to one persisted workflow document.
//  2. Backend — the external system that runs tasks and reports status.
//  3. WorkflowStore — the document store holding workflow documents.
//  4. Hooks — the adapter a backend invokes around every task to record
//     run history and dispatch the next step.
//
// # Workflow
//
// Workflows are created with an ordered list of step specs, or loaded by
// id:
//
//	cfg := rhythm.Config{Store: store, Backend: backend}
//	wf, err := rhythm.Create(ctx, cfg, []rhythm.StepSpec{
//	    {Name: "stage", Task: "tasks.stage"},
//	    {Name: "validate", Task: "tasks.validate"},
//	}, "ingest")
//
// Start dispatches the first step; the after-success hook dispatches each
// following step with the first element of the previous step's return
// value. Pause revokes the pending step's in-flight run; Resume
// re-dispatches a FAILED or REVOKED step with the arguments recorded on
// its last run.
//
// The engine holds no state worth trusting between operations: every
// public operation reloads the document first, so hooks racing with
// pause/resume are observed rather than clobbered.
//
// # Stores and backends
//
// Workflow documents can be persisted in memory, MongoDB, Redis or SQLite.
// The execution backend is anything implementing the Backend interface;
// the celery subpackage speaks the Celery wire protocol for Python worker
// fleets, and LocalRunner runs registered Go task functions in-process for
// development and tests.
//
// For examples, see the /examples directory or the project README.
package rhythm
