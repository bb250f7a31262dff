package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/suite-runner/internal/model"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ledger", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	run := model.RunRecord{
		ID:         "3f2a9c1e-0000-4000-8000-000000000001",
		Suite:      "demo",
		Backend:    "cluster",
		ConfigPath: "suite.yaml",
		ResultsDir: "results",
		RunDir:     "results/demo_20260101-120000",
		Timestamp:  "20260101-120000",
		TaskCount:  3,
		Status:     model.StatusRunning,
	}
	require.NoError(t, s.CreateRun(ctx, run))
	require.NoError(t, s.RecordSubmission(ctx, run.ID, "4242", "4243"))
	require.NoError(t, s.FinishRun(ctx, run.ID, model.StatusSubmitted, ""))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "demo", got.Suite)
	assert.Equal(t, 3, got.TaskCount)
	assert.Equal(t, "4242", got.ArrayJobID)
	assert.Equal(t, "4243", got.AggregateJobID)
	assert.Equal(t, model.StatusSubmitted, got.Status)
	assert.False(t, got.CreatedAt.IsZero())
	assert.False(t, got.CompletedAt.IsZero())

	require.NoError(t, s.UpdateStatus(ctx, run.ID, "RUNNING"))
	got, err = s.GetRun(ctx, "3f2a9c1e")
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", got.Status)
}

func TestStore_Tasks(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.CreateRun(ctx, model.RunRecord{ID: "run-1", Suite: "demo", Status: model.StatusRunning}))

	started := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordTask(ctx, model.TaskOutcome{RunID: "run-1", TaskID: 2, ExitCode: 1, StartedAt: started, Duration: 1500 * time.Millisecond, Error: "exit status 1"}))
	require.NoError(t, s.RecordTask(ctx, model.TaskOutcome{RunID: "run-1", TaskID: 1, StartedAt: started, Duration: time.Second}))
	require.NoError(t, s.RecordTask(ctx, model.TaskOutcome{RunID: "run-1", TaskID: 2, StartedAt: started, Duration: time.Second}))

	tasks, err := s.Tasks(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, 1, tasks[0].TaskID)
	assert.Equal(t, 2, tasks[1].TaskID)
	assert.Equal(t, 0, tasks[1].ExitCode, "a rerun replaces the earlier outcome")
	assert.Equal(t, time.Second, tasks[1].Duration)
	assert.True(t, started.Equal(tasks[0].StartedAt))
}

func TestStore_ListRuns(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.CreateRun(ctx, model.RunRecord{ID: id, Suite: "demo", CreatedAt: base.Add(time.Duration(i) * time.Hour)}))
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)

	all, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	_, err := s.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, s.FinishRun(ctx, "missing", model.StatusFailed, "boom"), ErrRunNotFound)
}

func TestStore_AmbiguousPrefix(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.CreateRun(ctx, model.RunRecord{ID: "abc-1"}))
	require.NoError(t, s.CreateRun(ctx, model.RunRecord{ID: "abc-2"}))

	_, err := s.GetRun(ctx, "abc")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrRunNotFound)
}
