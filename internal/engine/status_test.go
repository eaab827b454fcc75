package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rhythmwf/rhythm/pkg/api"
)

// stepState seeds one step: "" means never dispatched, anything else is
// the backend-reported status of a single recorded run.
type stepState struct {
	name   string
	status api.Status
}

func seedWorkflow(t *testing.T, states []stepState) (api.Workflow, *fakeBackend) {
	t.Helper()
	ctx := context.Background()

	specs := make([]api.StepSpec, len(states))
	for i, st := range states {
		specs[i] = api.StepSpec{Name: st.name, Task: "task." + st.name}
	}
	wf, backend := newTestWorkflow(t, specs)

	for i, st := range states {
		if st.status == "" {
			continue
		}
		taskID := "seed-" + st.name
		require.NoError(t, wf.OnStepStart(ctx, states[i].name, taskID))
		backend.setStatus(taskID, st.status)
	}
	return wf, backend
}

func TestWorkflowStatusDerivation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		steps []stepState
		want  api.Status
	}{
		{
			name:  "never started",
			steps: []stepState{{"a", ""}, {"b", ""}},
			want:  api.StatusPending,
		},
		{
			name:  "first step in flight",
			steps: []stepState{{"a", api.StatusStarted}, {"b", ""}},
			want:  api.StatusStarted,
		},
		{
			name:  "first step queued but unpicked",
			steps: []stepState{{"a", api.StatusPending}, {"b", ""}},
			want:  api.StatusPending,
		},
		{
			name:  "later step not yet dispatched",
			steps: []stepState{{"a", api.StatusSuccess}, {"b", ""}},
			want:  api.StatusStarted,
		},
		{
			name:  "later step queued",
			steps: []stepState{{"a", api.StatusSuccess}, {"b", api.StatusPending}},
			want:  api.StatusStarted,
		},
		{
			name:  "retrying step collapses to started",
			steps: []stepState{{"a", api.StatusRetry}, {"b", ""}},
			want:  api.StatusStarted,
		},
		{
			name:  "progress propagates verbatim",
			steps: []stepState{{"a", api.StatusProgress}, {"b", ""}},
			want:  api.StatusProgress,
		},
		{
			name:  "failure propagates verbatim",
			steps: []stepState{{"a", api.StatusSuccess}, {"b", api.StatusFailure}},
			want:  api.StatusFailure,
		},
		{
			name:  "revoked propagates verbatim",
			steps: []stepState{{"a", api.StatusRevoked}, {"b", ""}},
			want:  api.StatusRevoked,
		},
		{
			name:  "all succeeded",
			steps: []stepState{{"a", api.StatusSuccess}, {"b", api.StatusSuccess}},
			want:  api.StatusSuccess,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wf, _ := seedWorkflow(t, tc.steps)
			status, err := wf.Status(context.Background())
			require.NoError(t, err)
			require.Equal(t, tc.want, status)
		})
	}
}

func TestStepStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	wf, backend := seedWorkflow(t, []stepState{{"a", api.StatusStarted}, {"b", ""}})

	status, err := wf.StepStatus(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, api.StatusStarted, status)

	// Never dispatched reads as PENDING.
	status, err = wf.StepStatus(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, api.StatusPending, status)

	_, err = wf.StepStatus(ctx, "zz")
	require.Error(t, err)

	// Only the latest run counts: an earlier failed run is history.
	require.NoError(t, wf.OnStepStart(ctx, "a", "retry-run"))
	backend.setStatus("retry-run", api.StatusSuccess)
	status, err = wf.StepStatus(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, api.StatusSuccess, status)
}

func TestPendingStep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	wf, _ := seedWorkflow(t, []stepState{{"a", api.StatusSuccess}, {"b", api.StatusFailure}})
	pending, err := wf.PendingStep(ctx)
	require.NoError(t, err)
	require.NotNil(t, pending)
	require.Equal(t, 1, pending.Index)
	require.Equal(t, api.StatusFailure, pending.Status)

	done, _ := seedWorkflow(t, []stepState{{"a", api.StatusSuccess}, {"b", api.StatusSuccess}})
	pending, err = done.PendingStep(ctx)
	require.NoError(t, err)
	require.Nil(t, pending)
}

func TestWorkflowStatusIndependentOfHistoryLength(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	wf, backend := newTestWorkflow(t, twoSteps)

	// Step a fails twice before succeeding; step b succeeds first try.
	for _, run := range []struct {
		step, id string
		status   api.Status
	}{
		{"a", "a-1", api.StatusFailure},
		{"a", "a-2", api.StatusRevoked},
		{"a", "a-3", api.StatusSuccess},
		{"b", "b-1", api.StatusSuccess},
	} {
		require.NoError(t, wf.OnStepStart(ctx, run.step, run.id))
		backend.setStatus(run.id, run.status)
	}

	status, err := wf.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, api.StatusSuccess, status)
}

func TestDescribe(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	wf, backend := newTestWorkflow(t, twoSteps)

	require.NoError(t, wf.OnStepStart(ctx, "a", "a-1"))
	backend.setStatus("a-1", api.StatusFailure)
	backend.records["a-1"] = &api.TaskRecord{
		TaskID: "a-1",
		Status: api.StatusFailure,
		Args:   []any{"in"},
	}
	require.NoError(t, wf.OnStepStart(ctx, "a", "a-2"))
	backend.setStatus("a-2", api.StatusSuccess)
	backend.records["a-2"] = &api.TaskRecord{
		TaskID: "a-2",
		Status: api.StatusSuccess,
		Args:   []any{"in"},
		Result: float64(3),
	}

	view, err := wf.Describe(ctx, api.DescribeOptions{LastTaskRun: true, PrevTaskRuns: true})
	require.NoError(t, err)

	require.Equal(t, wf.ID(), view.ID)
	require.Equal(t, api.StatusStarted, view.Status)
	require.Equal(t, 1, view.StepsDone)
	require.Equal(t, 2, view.TotalSteps)
	require.Len(t, view.Steps, 2)

	stepA := view.Steps[0]
	require.Equal(t, api.StatusSuccess, stepA.Status)
	require.NotNil(t, stepA.LastTaskRun)
	require.Equal(t, "a-2", stepA.LastTaskRun.TaskID)
	require.NotNil(t, stepA.LastTaskRun.DateStart, "dispatch time attached from the run record")
	require.Len(t, stepA.PrevTaskRuns, 1)
	require.Equal(t, "a-1", stepA.PrevTaskRuns[0].TaskID)

	stepB := view.Steps[1]
	require.Equal(t, api.StatusPending, stepB.Status)
	require.Nil(t, stepB.LastTaskRun)

	// With everything done, steps_done equals the step count.
	backend.setStatus("a-2", api.StatusSuccess)
	require.NoError(t, wf.OnStepStart(ctx, "b", "b-1"))
	backend.setStatus("b-1", api.StatusSuccess)
	view, err = wf.Describe(ctx, api.DescribeOptions{})
	require.NoError(t, err)
	require.Equal(t, api.StatusSuccess, view.Status)
	require.Equal(t, 2, view.StepsDone)
}
