package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/suite-runner/internal/aggregate"
	"github.com/daryltucker/suite-runner/internal/model"
	"github.com/daryltucker/suite-runner/internal/suite"
)

func demoRun(t *testing.T, tasks int) *Run {
	t.Helper()
	s := &suite.Suite{Name: "demo", Shared: map[string]any{}}
	for i := 0; i < tasks; i++ {
		s.Experiments = append(s.Experiments, map[string]any{})
	}
	return NewRun(s, "suite.yaml", t.TempDir(), time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local))
}

// taskScript writes the artifact of $SUITE_TASK_ID and fails task 2 after
// writing it.
const taskScript = `
dir="$3/demo_$2"
echo "out $SUITE_TASK_ID"
echo "err $SUITE_TASK_ID" >&2
printf '{"metrics":{"mse":0.%s},"parameters":{"task_id":%s}}' "$SUITE_TASK_ID" "$SUITE_TASK_ID" > "$dir/${SUITE_TASK_ID}_results.json"
if [ "$SUITE_TASK_ID" = "2" ]; then exit 1; fi
`

func scriptRunner(t *testing.T, body string) []string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "task.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return []string{"sh", path}
}

type recorder struct {
	mu          sync.Mutex
	created     []model.RunRecord
	tasks       []model.TaskOutcome
	submissions [][2]string
	finished    []string
	errs        []string
	fail        error
}

func (r *recorder) CreateRun(_ context.Context, rr model.RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, rr)
	return r.fail
}

func (r *recorder) RecordTask(_ context.Context, o model.TaskOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, o)
	return r.fail
}

func (r *recorder) RecordSubmission(_ context.Context, _, arrayID, aggID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submissions = append(r.submissions, [2]string{arrayID, aggID})
	return r.fail
}

func (r *recorder) FinishRun(_ context.Context, _, status, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, status)
	r.errs = append(r.errs, errMsg)
	return r.fail
}

func TestLocal_ContinuesPastFailures(t *testing.T) {
	run := demoRun(t, 3)
	var stdout, stderr bytes.Buffer
	local := &Local{
		Invoker: Invoker{Runner: scriptRunner(t, taskScript)},
		Stdout:  &stdout,
		Stderr:  &stderr,
	}
	rec := &recorder{}

	err := (&Dispatcher{Recorder: rec}).Run(context.Background(), run, local)

	var batch *BatchError
	require.ErrorAs(t, err, &batch)
	assert.Equal(t, []int{2}, batch.Failed)
	assert.Equal(t, 3, batch.Total)
	assert.False(t, batch.Aborted)

	assert.Equal(t, "out 1\nout 2\nout 3\n", stdout.String())
	assert.Equal(t, "err 1\nerr 2\nerr 3\n", stderr.String())

	data, err := os.ReadFile(filepath.Join(run.RunDir(), aggregate.ReportName))
	require.NoError(t, err)
	var report model.Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Len(t, report, 3, "the failed task's artifact is still aggregated")
	assert.InDelta(t, 0.3, report["3_model"].Metrics["mse"], 1e-9)
	assert.FileExists(t, filepath.Join(run.RunDir(), aggregate.CSVName))

	require.Len(t, rec.tasks, 3)
	assert.Equal(t, 1, rec.tasks[1].ExitCode)
	assert.Equal(t, []string{model.StatusFailed}, rec.finished)
	require.Len(t, rec.created, 1)
	assert.Equal(t, "local", rec.created[0].Backend)
	assert.Equal(t, 3, rec.created[0].TaskCount)

	lines, err := os.ReadFile(filepath.Join(run.RunDir(), OutcomesName))
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(lines), "\n"))
}

func TestLocal_AbortStopsBatch(t *testing.T) {
	run := demoRun(t, 3)
	local := &Local{
		Invoker: Invoker{Runner: scriptRunner(t, taskScript)},
		Policy:  AbortOnFailure,
		Stdout:  &bytes.Buffer{},
		Stderr:  &bytes.Buffer{},
	}

	status, err := local.Execute(context.Background(), run, safeRecorder{})

	assert.Equal(t, model.StatusFailed, status)
	var batch *BatchError
	require.ErrorAs(t, err, &batch)
	assert.True(t, batch.Aborted)
	assert.NoFileExists(t, filepath.Join(run.RunDir(), "3_results.json"))

	data, err := os.ReadFile(filepath.Join(run.RunDir(), aggregate.ReportName))
	require.NoError(t, err)
	var report model.Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Len(t, report, 2)
}

func TestLocal_AllSucceed(t *testing.T) {
	run := demoRun(t, 2)
	script := `printf '{"metrics":{"acc":1},"parameters":{}}' > "$3/demo_$2/${SUITE_TASK_ID}_results.json"`
	local := &Local{Invoker: Invoker{Runner: scriptRunner(t, script)}, Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}
	rec := &recorder{fail: errors.New("ledger down")}

	err := (&Dispatcher{Recorder: rec}).Run(context.Background(), run, local)

	require.NoError(t, err, "ledger failures never fail the run")
	assert.Equal(t, []string{model.StatusCompleted}, rec.finished)
	assert.FileExists(t, filepath.Join(run.RunDir(), aggregate.ReportName))
}

func TestLocal_Cancelled(t *testing.T) {
	run := demoRun(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	local := &Local{Invoker: Invoker{Runner: []string{"true"}}}
	_, err := local.Execute(ctx, run, safeRecorder{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocal_BackgroundChildDoesNotBlock(t *testing.T) {
	run := demoRun(t, 1)
	var stdout bytes.Buffer
	local := &Local{
		Invoker:     Invoker{Runner: scriptRunner(t, "sleep 30 &\necho done\n")},
		Stdout:      &stdout,
		Stderr:      &bytes.Buffer{},
		OutputGrace: 200 * time.Millisecond,
	}

	start := time.Now()
	_, _ = local.Execute(context.Background(), run, safeRecorder{})
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Contains(t, stdout.String(), "done\n")
}

func TestParseFailurePolicy(t *testing.T) {
	for in, want := range map[string]FailurePolicy{"": ContinueOnFailure, "continue": ContinueOnFailure, "ABORT": AbortOnFailure} {
		got, err := ParseFailurePolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFailurePolicy("retry")
	assert.Error(t, err)
}

func TestInvoker(t *testing.T) {
	run := demoRun(t, 2)
	builtin := Invoker{Executable: "/bin/suite-runner"}

	assert.Equal(t,
		[]string{"/bin/suite-runner", "task", "--task-id", "2", "suite.yaml", "20260102-030405", run.ResultsDir},
		builtin.LocalArgs(run, 2))
	assert.Equal(t,
		[]string{"/bin/suite-runner", "task", "suite.yaml", "20260102-030405", run.ResultsDir},
		builtin.ArrayArgs(run))
	assert.Equal(t,
		[]string{"/bin/suite-runner", "aggregate", run.RunDir(), "--output", filepath.Join(run.RunDir(), aggregate.ReportName)},
		builtin.AggregateArgs(run))

	custom := Invoker{Runner: []string{"python", "run_experiment.py"}, Env: []string{"EXTRA=1"}}
	assert.Equal(t, []string{"python", "run_experiment.py", "suite.yaml", "20260102-030405", run.ResultsDir}, custom.LocalArgs(run, 1))

	env := custom.TaskEnv(7)
	assert.Contains(t, env, "EXTRA=1")
	assert.Contains(t, env, TaskIDEnv+"=7")
	assert.Contains(t, env, ArrayTaskIDEnv+"=7")
}

func TestInvoker_TaskEnvOverridesInheritedIndex(t *testing.T) {
	t.Setenv(ArrayTaskIDEnv, "7")
	t.Setenv(TaskIDEnv, "9")
	iv := Invoker{Env: []string{ArrayTaskIDEnv + "=8", "EXTRA=1"}}

	env := iv.TaskEnv(2)
	var got []string
	for _, kv := range env {
		if strings.HasPrefix(kv, TaskIDEnv+"=") || strings.HasPrefix(kv, ArrayTaskIDEnv+"=") {
			got = append(got, kv)
		}
	}
	assert.ElementsMatch(t, []string{TaskIDEnv + "=2", ArrayTaskIDEnv + "=2"}, got)
	assert.Contains(t, env, "EXTRA=1")
}

func TestLocal_RunnerSeesOneTaskIndex(t *testing.T) {
	t.Setenv(ArrayTaskIDEnv, "7")
	run := demoRun(t, 2)
	var stdout bytes.Buffer
	local := &Local{
		Invoker: Invoker{Runner: scriptRunner(t, `echo "ids $SUITE_TASK_ID $SLURM_ARRAY_TASK_ID"`)},
		Stdout:  &stdout,
		Stderr:  &bytes.Buffer{},
	}

	_, _ = local.Execute(context.Background(), run, safeRecorder{})
	assert.Contains(t, stdout.String(), "ids 1 1\n")
	assert.Contains(t, stdout.String(), "ids 2 2\n")
}

func TestShellJoin(t *testing.T) {
	assert.Equal(t, "a --x=1 'two words' '' 'it'\"'\"'s'", shellJoin([]string{"a", "--x=1", "two words", "", "it's"}))
}

type fakeScheduler struct {
	calls   [][]string
	outputs []string
	fail    map[int]bool
	// missingOutputDirs lists --output directories absent at submit time.
	missingOutputDirs []string
}

func (f *fakeScheduler) run(_ context.Context, argv []string) ([]byte, []byte, error) {
	n := len(f.calls)
	f.calls = append(f.calls, argv)
	for _, arg := range argv {
		if path, ok := strings.CutPrefix(arg, "--output="); ok {
			if info, err := os.Stat(filepath.Dir(path)); err != nil || !info.IsDir() {
				f.missingOutputDirs = append(f.missingOutputDirs, filepath.Dir(path))
			}
		}
	}
	if f.fail[n] {
		return nil, []byte("sbatch: error: invalid partition\n"), exec.Command("sh", "-c", "exit 1").Run()
	}
	return []byte(f.outputs[n]), nil, nil
}

func TestCluster_SubmitsArrayThenAggregation(t *testing.T) {
	run := demoRun(t, 3)
	fake := &fakeScheduler{outputs: []string{"4242\n", "4243;cluster\n"}}
	cluster := &Cluster{
		Invoker:   Invoker{Executable: "/bin/suite-runner"},
		ExtraArgs: []string{"--partition=gpu"},
		run:       fake.run,
	}
	rec := &recorder{}

	require.NoError(t, (&Dispatcher{Recorder: rec}).Run(context.Background(), run, cluster))
	require.Len(t, fake.calls, 2)

	array := fake.calls[0]
	assert.Equal(t, "sbatch", array[0])
	assert.Contains(t, array, "--parsable")
	assert.Contains(t, array, "--array=1-3")
	assert.Contains(t, array, "--partition=gpu")
	assert.Equal(t, "--wrap", array[len(array)-2])
	assert.Equal(t,
		`export SUITE_TASK_ID="$SLURM_ARRAY_TASK_ID"; /bin/suite-runner task suite.yaml 20260102-030405 `+shellQuote(run.ResultsDir),
		array[len(array)-1])
	assert.Contains(t, array, "--output="+filepath.Join(run.RunDir(), "slurm-%A_%a.out"))
	assert.Empty(t, fake.missingOutputDirs, "scheduler log directory must exist before submission")
	assert.DirExists(t, run.RunDir())

	agg := fake.calls[1]
	assert.Contains(t, agg, "--dependency=afterok:4242")
	assert.Contains(t, agg[len(agg)-1], "aggregate")

	assert.Equal(t, [][2]string{{"4242", ""}, {"4242", "4243"}}, rec.submissions)
	assert.Equal(t, []string{model.StatusSubmitted}, rec.finished)
}

func TestCluster_ArrayFailureSubmitsNothingElse(t *testing.T) {
	run := demoRun(t, 2)
	fake := &fakeScheduler{fail: map[int]bool{0: true}}
	cluster := &Cluster{Invoker: Invoker{Executable: "suite-runner"}, run: fake.run}

	status, err := cluster.Execute(context.Background(), run, safeRecorder{})

	assert.Equal(t, model.StatusFailed, status)
	var serr *SubmissionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "array", serr.Stage)
	assert.Equal(t, 1, serr.ExitCode)
	assert.Contains(t, serr.Error(), "invalid partition")
	assert.Len(t, fake.calls, 1)
}

func TestCluster_AggregationFailureKeepsArrayID(t *testing.T) {
	run := demoRun(t, 2)
	fake := &fakeScheduler{outputs: []string{"77\n"}, fail: map[int]bool{1: true}}
	cluster := &Cluster{Invoker: Invoker{Executable: "suite-runner"}, run: fake.run}
	rec := &recorder{}

	_, err := cluster.Execute(context.Background(), run, rec)

	var serr *SubmissionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "aggregate", serr.Stage)
	assert.Equal(t, [][2]string{{"77", ""}}, rec.submissions)
}

func TestCluster_UnwritableRunDirSubmitsNothing(t *testing.T) {
	run := demoRun(t, 2)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	run.ResultsDir = blocker
	fake := &fakeScheduler{}
	cluster := &Cluster{Invoker: Invoker{Executable: "suite-runner"}, run: fake.run}

	status, err := cluster.Execute(context.Background(), run, safeRecorder{})
	assert.Equal(t, model.StatusFailed, status)
	assert.ErrorContains(t, err, "failed to create run directory")
	assert.Empty(t, fake.calls)
}

func TestCluster_ArrayArgs(t *testing.T) {
	run := demoRun(t, 5)
	cluster := &Cluster{
		Invoker:       Invoker{Runner: []string{"python", "run.py"}},
		Scheduler:     Scheduler{Submit: "/opt/slurm/bin/sbatch"},
		MaxConcurrent: 10,
		JobScript:     "job.sh",
	}

	argv := cluster.ArrayArgs(run)
	assert.Equal(t, "/opt/slurm/bin/sbatch", argv[0])
	assert.Contains(t, argv, "--array=1-5%10")
	assert.Contains(t, argv, "--job-name=demo")
	assert.NotContains(t, argv, "--wrap")
	assert.Equal(t, []string{"job.sh", "python", "run.py", "suite.yaml", "20260102-030405", run.ResultsDir}, argv[len(argv)-6:])
}

func TestParseJobID(t *testing.T) {
	tests := map[string]string{
		"4242\n":                      "4242",
		"4242;cluster\n":              "4242",
		"Submitted batch job 31337\n": "31337",
		"warning: x\n99\n":            "99",
	}
	for in, want := range tests {
		got, err := parseJobID([]byte(in))
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, bad := range []string{"", "  \n", "error: nope"} {
		_, err := parseJobID([]byte(bad))
		assert.Error(t, err, bad)
	}
}

func TestQueryJobStatus(t *testing.T) {
	t.Run("queued", func(t *testing.T) {
		fake := &fakeScheduler{outputs: []string{"RUNNING\nPENDING\n"}}
		state, err := queryJobStatus(context.Background(), "1", Scheduler{}, fake.run)
		require.NoError(t, err)
		assert.Equal(t, "RUNNING", state)
		assert.Equal(t, []string{"squeue", "-h", "-j", "1", "-o", "%T"}, fake.calls[0])
	})

	t.Run("finished falls back to accounting", func(t *testing.T) {
		fake := &fakeScheduler{outputs: []string{"", "  CANCELLED+ \n"}}
		state, err := queryJobStatus(context.Background(), "1", Scheduler{}, fake.run)
		require.NoError(t, err)
		assert.Equal(t, "CANCELLED", state)
		assert.Equal(t, "sacct", fake.calls[1][0])
	})

	t.Run("unknown", func(t *testing.T) {
		fake := &fakeScheduler{outputs: []string{"", ""}}
		state, err := queryJobStatus(context.Background(), "1", Scheduler{}, fake.run)
		require.NoError(t, err)
		assert.Equal(t, StatusUnknown, state)
	})

	assert.True(t, IsActiveStatus("PENDING"))
	assert.False(t, IsActiveStatus("COMPLETED"))
}
