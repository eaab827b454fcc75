package api

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Observer receives callbacks from the workflow engine for logging and
// metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay dispatching.
type Observer interface {
	// OnDispatch is called after a task has been submitted to the
	// execution backend, for start, resume and step-sequencing dispatches
	// alike.
	OnDispatch(ctx context.Context, workflowID, stepName, task, taskID string)

	// OnRunRecorded is called after the before-run hook has appended a new
	// run record to a step and persisted the document.
	OnRunRecorded(ctx context.Context, workflowID, stepName, taskID string)

	// OnStepSucceeded is called when the after-success hook fires for a
	// step, before the next step (if any) is dispatched.
	OnStepSucceeded(ctx context.Context, workflowID, stepName string)

	// OnPause is called after a cancel request has been issued for the
	// pending step's run.
	OnPause(ctx context.Context, workflowID, stepName, taskID string)

	// OnResume is called after the pending step has been re-dispatched.
	OnResume(ctx context.Context, workflowID, stepName string)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnDispatch(ctx context.Context, workflowID, stepName, task, taskID string) {}
func (NoopObserver) OnRunRecorded(ctx context.Context, workflowID, stepName, taskID string)    {}
func (NoopObserver) OnStepSucceeded(ctx context.Context, workflowID, stepName string)          {}
func (NoopObserver) OnPause(ctx context.Context, workflowID, stepName, taskID string)          {}
func (NoopObserver) OnResume(ctx context.Context, workflowID, stepName string)                 {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver combines observers into one. Nil entries are skipped;
// zero observers collapse to NoopObserver, one is returned as-is.
func NewCompositeObserver(observers ...Observer) Observer {
	filtered := make([]Observer, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnDispatch(ctx context.Context, workflowID, stepName, task, taskID string) {
	for _, o := range c.observers {
		o.OnDispatch(ctx, workflowID, stepName, task, taskID)
	}
}

func (c *CompositeObserver) OnRunRecorded(ctx context.Context, workflowID, stepName, taskID string) {
	for _, o := range c.observers {
		o.OnRunRecorded(ctx, workflowID, stepName, taskID)
	}
}

func (c *CompositeObserver) OnStepSucceeded(ctx context.Context, workflowID, stepName string) {
	for _, o := range c.observers {
		o.OnStepSucceeded(ctx, workflowID, stepName)
	}
}

func (c *CompositeObserver) OnPause(ctx context.Context, workflowID, stepName, taskID string) {
	for _, o := range c.observers {
		o.OnPause(ctx, workflowID, stepName, taskID)
	}
}

func (c *CompositeObserver) OnResume(ctx context.Context, workflowID, stepName string) {
	for _, o := range c.observers {
		o.OnResume(ctx, workflowID, stepName)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs workflow lifecycle events
// using the provided slog.Logger. If logger is nil, slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnDispatch(ctx context.Context, workflowID, stepName, task, taskID string) {
	o.Logger.InfoContext(ctx, "task_dispatched",
		slog.String("workflow_id", workflowID),
		slog.String("step", stepName),
		slog.String("task", task),
		slog.String("task_id", taskID),
	)
}

func (o *LoggingObserver) OnRunRecorded(ctx context.Context, workflowID, stepName, taskID string) {
	o.Logger.InfoContext(ctx, "run_recorded",
		slog.String("workflow_id", workflowID),
		slog.String("step", stepName),
		slog.String("task_id", taskID),
	)
}

func (o *LoggingObserver) OnStepSucceeded(ctx context.Context, workflowID, stepName string) {
	o.Logger.InfoContext(ctx, "step_succeeded",
		slog.String("workflow_id", workflowID),
		slog.String("step", stepName),
	)
}

func (o *LoggingObserver) OnPause(ctx context.Context, workflowID, stepName, taskID string) {
	o.Logger.InfoContext(ctx, "workflow_paused",
		slog.String("workflow_id", workflowID),
		slog.String("step", stepName),
		slog.String("task_id", taskID),
	)
}

func (o *LoggingObserver) OnResume(ctx context.Context, workflowID, stepName string) {
	o.Logger.InfoContext(ctx, "workflow_resumed",
		slog.String("workflow_id", workflowID),
		slog.String("step", stepName),
	)
}

// BasicMetrics collects simple counters for engine activity.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	dispatches     atomic.Int64
	runsRecorded   atomic.Int64
	stepsSucceeded atomic.Int64
	pauses         atomic.Int64
	resumes        atomic.Int64
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	Dispatches     int64
	RunsRecorded   int64
	StepsSucceeded int64
	Pauses         int64
	Resumes        int64
}

func (m *BasicMetrics) OnDispatch(ctx context.Context, workflowID, stepName, task, taskID string) {
	m.dispatches.Add(1)
}

func (m *BasicMetrics) OnRunRecorded(ctx context.Context, workflowID, stepName, taskID string) {
	m.runsRecorded.Add(1)
}

func (m *BasicMetrics) OnStepSucceeded(ctx context.Context, workflowID, stepName string) {
	m.stepsSucceeded.Add(1)
}

func (m *BasicMetrics) OnPause(ctx context.Context, workflowID, stepName, taskID string) {
	m.pauses.Add(1)
}

func (m *BasicMetrics) OnResume(ctx context.Context, workflowID, stepName string) {
	m.resumes.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	return BasicMetricsSnapshot{
		Dispatches:     m.dispatches.Load(),
		RunsRecorded:   m.runsRecorded.Load(),
		StepsSucceeded: m.stepsSucceeded.Load(),
		Pauses:         m.pauses.Load(),
		Resumes:        m.resumes.Load(),
	}
}
