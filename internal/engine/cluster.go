/*
PURPOSE:
  Implements the cluster backend: submits a suite as one scheduler job
  array plus an aggregation job that depends on the whole array.

REQUIREMENTS:
  User-specified:
  - One array element per task, optionally capped with %N.
  - The aggregation job starts only after every element succeeded
    (--dependency=afterok).
  - Returns after submission; never waits for the jobs.

  Implementation-discovered:
  - The scheduler does not create the --output directory, so the run
    directory is made before anything is submitted.
  - Wrapped commands export SUITE_TASK_ID from SLURM_ARRAY_TASK_ID so
    runners see one variable on both backends.
  - --parsable output may carry ";<cluster>".

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/runner.go (Dispatcher), internal/cli/run.go
  - Calls: the scheduler submit command via os/exec
  - Uses: internal/engine/invoker.go, internal/output

ERROR HANDLING:
  - *SubmissionError carries stage, argv, exit code and stderr.
  - A failed array submission submits nothing else.
  - A failed aggregation submission keeps the recorded array job id.

IMPLEMENTATION RULES:
  - Build argv slices; only the --wrap payload is a shell string, and
    every word in it goes through shellQuote.
  - Tests swap the command runner through the unexported run field.

USAGE:
  c := &engine.Cluster{Invoker: iv, Scheduler: engine.DefaultScheduler()}
  status, err := c.Execute(ctx, run, rec)

SELF-HEALING INSTRUCTIONS:
  - If jobs fail instantly with no log, check the run directory exists
    and is visible from compute nodes.
  - If job ids fail to parse, run the submit command with --parsable by
    hand and compare its output to parseJobID.

RELATED FILES:
  - internal/engine/status.go
  - internal/engine/invoker.go
  - internal/cli/runs.go

MAINTENANCE:
  - Update when supporting a scheduler other than Slurm.
*/

package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/daryltucker/suite-runner/internal/model"
	"github.com/daryltucker/suite-runner/internal/output"
)

// Scheduler names the cluster scheduler commands.
type Scheduler struct {
	Submit string // sbatch
	Queue  string // squeue
	Acct   string // sacct
}

// DefaultScheduler is Slurm.
func DefaultScheduler() Scheduler {
	return Scheduler{Submit: "sbatch", Queue: "squeue", Acct: "sacct"}
}

// commandFunc runs argv to completion and returns its stdout and stderr.
type commandFunc func(ctx context.Context, argv []string) (stdout, stderr []byte, err error)

func runCommand(ctx context.Context, argv []string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Cluster submits a suite as one scheduler job array plus a dependent
// aggregation job, then returns without waiting for either.
type Cluster struct {
	Invoker   Invoker
	Scheduler Scheduler
	// MaxConcurrent caps how many array elements run at once; 0 means no cap.
	MaxConcurrent int
	// JobScript, when set, is submitted with the runner arguments instead of
	// a --wrap command line. The script reads SLURM_ARRAY_TASK_ID itself.
	JobScript string
	// ExtraArgs are passed to both submissions (partition, account, time...).
	ExtraArgs []string

	run commandFunc
}

// Name implements Backend.
func (c *Cluster) Name() string { return "cluster" }

// ArrayArgs is the argv of the array submission.
func (c *Cluster) ArrayArgs(run *Run) []string {
	array := fmt.Sprintf("--array=1-%d", run.TaskCount())
	if c.MaxConcurrent > 0 {
		array += "%" + strconv.Itoa(c.MaxConcurrent)
	}
	argv := []string{
		c.submitCmd(),
		"--parsable",
		array,
		"--job-name=" + run.Suite.Name,
		"--output=" + filepath.Join(run.RunDir(), "slurm-%A_%a.out"),
	}
	argv = append(argv, c.ExtraArgs...)

	runner := c.Invoker.ArrayArgs(run)
	if c.JobScript != "" {
		return append(append(argv, c.JobScript), runner...)
	}
	return append(argv, "--wrap", exportTaskID+shellJoin(runner))
}

// AggregateArgs is the argv of the aggregation submission, which starts only
// after every element of arrayJobID succeeded.
func (c *Cluster) AggregateArgs(run *Run, arrayJobID string) []string {
	argv := []string{
		c.submitCmd(),
		"--parsable",
		"--dependency=afterok:" + arrayJobID,
		"--job-name=" + run.Suite.Name + "-aggregate",
		"--output=" + filepath.Join(run.RunDir(), "slurm-aggregate-%j.out"),
	}
	argv = append(argv, c.ExtraArgs...)
	return append(argv, "--wrap", shellJoin(c.Invoker.AggregateArgs(run)))
}

func (c *Cluster) submitCmd() string {
	if c.Scheduler.Submit == "" {
		return DefaultScheduler().Submit
	}
	return c.Scheduler.Submit
}

// exportTaskID prefixes wrapped array commands so runners see the element
// index under the same name on both backends.
const exportTaskID = "export " + TaskIDEnv + `="$` + ArrayTaskIDEnv + `"; `

// Execute implements Backend.
func (c *Cluster) Execute(ctx context.Context, run *Run, rec Recorder) (string, error) {
	// The scheduler opens --output files on the node; it does not create
	// their directory.
	dir := run.RunDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return model.StatusFailed, fmt.Errorf("failed to create run directory %s: %w", dir, err)
	}

	arrayID, err := c.submit(ctx, "array", c.ArrayArgs(run))
	if err != nil {
		return model.StatusFailed, err
	}
	output.Logger.Info("Submitted job array", "job_id", arrayID, "tasks", run.TaskCount(), "suite", run.Suite.Name)
	_ = rec.RecordSubmission(ctx, run.ID, arrayID, "")

	aggID, err := c.submit(ctx, "aggregate", c.AggregateArgs(run, arrayID))
	if err != nil {
		return model.StatusFailed, err
	}
	output.Logger.Info("Submitted aggregation job", "job_id", aggID, "after", arrayID, "run_dir", run.RunDir())
	_ = rec.RecordSubmission(ctx, run.ID, arrayID, aggID)

	return model.StatusSubmitted, nil
}

func (c *Cluster) submit(ctx context.Context, stage string, argv []string) (string, error) {
	output.Logger.Debug("Submitting", "stage", stage, "argv", argv)

	runFn := c.run
	if runFn == nil {
		runFn = runCommand
	}
	stdout, stderr, err := runFn(ctx, argv)
	if err != nil {
		serr := &SubmissionError{Stage: stage, Args: argv, ExitCode: -1, Stderr: string(stderr)}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			serr.ExitCode = exitErr.ExitCode()
		} else {
			serr.Err = err
		}
		return "", serr
	}

	id, err := parseJobID(stdout)
	if err != nil {
		return "", &SubmissionError{Stage: stage, Args: argv, Stderr: string(stderr), Err: err}
	}
	return id, nil
}

// parseJobID extracts the job id from --parsable output ("<id>" or
// "<id>;<cluster>"), also accepting "Submitted batch job <id>".
func parseJobID(out []byte) (string, error) {
	text := strings.TrimSpace(string(out))
	if text == "" {
		return "", errors.New("scheduler printed no job id")
	}
	lines := strings.Split(text, "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	last, _, _ = strings.Cut(last, ";")
	fields := strings.Fields(last)
	if len(fields) == 0 {
		return "", fmt.Errorf("cannot parse job id from %q", text)
	}
	id := fields[len(fields)-1]
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return "", fmt.Errorf("cannot parse job id from %q", text)
	}
	return id, nil
}
