/*
PURPOSE:
  Implements the local backend: runs tasks 1..N one after another as
  child processes on this machine, then aggregates the run directory.

REQUIREMENTS:
  User-specified:
  - Tasks run sequentially in index order with output streamed live.
  - A failed task is logged and the batch continues unless the failure
    policy is "abort".
  - Aggregation runs after the batch even when some tasks failed.

  Implementation-discovered:
  - Each outcome is appended to <runDir>/tasks.jsonl as it happens.
  - A task may leave a background process holding its stdout/stderr; the
    output is drained for OutputGrace after exit, then detached.
  - Cancellation stops the batch between and during tasks.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/runner.go (Dispatcher), internal/cli/run.go
  - Calls: internal/engine/invoker.go, internal/engine/stream.go,
    internal/aggregate.Summary
  - Uses: internal/output (logger, JSONWriter), internal/model

ERROR HANDLING:
  - Failed tasks are collected into *BatchError.
  - Aggregation failures are joined with the batch error.
  - ctx errors are returned as-is.

IMPLEMENTATION RULES:
  - Never run tasks concurrently; run directory writes assume one task
    at a time.
  - Close our copies of the pipe write ends right after Start.

USAGE:
  l := &engine.Local{Invoker: iv, Policy: engine.ContinueOnFailure}
  status, err := l.Execute(ctx, run, rec)

SELF-HEALING INSTRUCTIONS:
  - If a run hangs after a task finished, check that the pipe write ends
    are closed in the parent and that OutputGrace is not huge.
  - If exit codes read as -1, the process was killed or never started.

RELATED FILES:
  - internal/engine/invoker.go
  - internal/engine/stream.go
  - internal/aggregate/aggregate.go

MAINTENANCE:
  - Update when adding failure policies or changing the outcome log.
*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/daryltucker/suite-runner/internal/aggregate"
	"github.com/daryltucker/suite-runner/internal/model"
	"github.com/daryltucker/suite-runner/internal/output"
)

// OutcomesName is the NDJSON log of local task outcomes inside a run dir.
const OutcomesName = "tasks.jsonl"

// DefaultOutputGrace bounds how long a finished task's output pipes are
// drained while something else still holds them open.
const DefaultOutputGrace = 5 * time.Second

// FailurePolicy decides what a local batch does after a failed task.
type FailurePolicy string

const (
	// ContinueOnFailure runs every task regardless of earlier failures.
	ContinueOnFailure FailurePolicy = "continue"
	// AbortOnFailure stops the batch at the first failed task.
	AbortOnFailure FailurePolicy = "abort"
)

// ParseFailurePolicy accepts "continue" (also the empty string) or "abort".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ContinueOnFailure:
		return ContinueOnFailure, nil
	case AbortOnFailure:
		return AbortOnFailure, nil
	}
	return "", fmt.Errorf("unknown failure policy %q (want continue or abort)", s)
}

// Local runs every task of a suite one after another on this machine and
// aggregates the results when the batch is done.
type Local struct {
	Invoker Invoker
	Policy  FailurePolicy
	// Stdout and Stderr receive the children's output; nil means os.Stdout
	// and os.Stderr.
	Stdout io.Writer
	Stderr io.Writer
	// OutputGrace is how long output is still streamed after a task exits;
	// 0 means DefaultOutputGrace.
	OutputGrace time.Duration
}

// Name implements Backend.
func (l *Local) Name() string { return "local" }

// Execute implements Backend.
func (l *Local) Execute(ctx context.Context, run *Run, rec Recorder) (string, error) {
	dir := run.RunDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return model.StatusFailed, fmt.Errorf("failed to create run directory %s: %w", dir, err)
	}

	outcomes, err := output.NewJSONWriter(filepath.Join(dir, OutcomesName))
	if err != nil {
		return model.StatusFailed, fmt.Errorf("failed to open task log: %w", err)
	}
	defer outcomes.Close()

	total := run.TaskCount()
	var failed []int
	aborted := false
	for id := 1; id <= total; id++ {
		if err := ctx.Err(); err != nil {
			return model.StatusFailed, err
		}

		output.Logger.Info("Running task", "task", id, "of", total, "suite", run.Suite.Name)
		outcome, taskErr := l.runTask(ctx, run, id)

		if err := outcomes.Write(outcome); err != nil {
			output.Logger.Error("Failed to write task outcome", "task", id, "error", err)
		}
		_ = rec.RecordTask(ctx, outcome)

		if taskErr != nil {
			if ctx.Err() != nil {
				return model.StatusFailed, ctx.Err()
			}
			output.Logger.Error("Task failed", "task", id, "exit_code", outcome.ExitCode, "error", taskErr)
			failed = append(failed, id)
			if l.Policy == AbortOnFailure {
				aborted = true
				output.Logger.Warn("Aborting batch after failed task", "task", id, "skipped", total-id)
				break
			}
			continue
		}
		output.Logger.Info("Task finished", "task", id, "duration", outcome.Duration.Round(time.Millisecond))
	}

	var errs []error
	if len(failed) > 0 {
		errs = append(errs, &BatchError{Failed: failed, Total: total, Aborted: aborted})
	}
	reportPath := filepath.Join(dir, aggregate.ReportName)
	if _, err := aggregate.Summary(dir, reportPath, filepath.Join(dir, aggregate.CSVName)); err != nil {
		errs = append(errs, fmt.Errorf("aggregation failed: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return model.StatusFailed, err
	}
	return model.StatusCompleted, nil
}

// runTask starts one task process and waits for it, streaming its output.
func (l *Local) runTask(ctx context.Context, run *Run, id int) (model.TaskOutcome, error) {
	argv := l.Invoker.LocalArgs(run, id)
	outcome := model.TaskOutcome{RunID: run.ID, TaskID: id, StartedAt: time.Now()}

	err := l.exec(ctx, argv, l.Invoker.TaskEnv(id))
	outcome.Duration = time.Since(outcome.StartedAt)
	if err == nil {
		return outcome, nil
	}

	outcome.ExitCode = -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		outcome.ExitCode = exitErr.ExitCode()
	}
	outcome.Error = err.Error()
	return outcome, &TaskExecutionError{TaskID: id, ExitCode: outcome.ExitCode, Err: err}
}

func (l *Local) exec(ctx context.Context, argv, env []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = env

	outR, outW, err := os.Pipe()
	if err != nil {
		return err
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return err
	}
	defer outR.Close()
	defer errR.Close()

	cmd.Stdout = outW
	cmd.Stderr = errW
	startErr := cmd.Start()
	// The child holds its own copies; ours would keep the readers from EOF.
	outW.Close()
	errW.Close()
	if startErr != nil {
		return startErr
	}

	streamed := make(chan error, 1)
	go func() {
		streamed <- streamOutput(outR, errR, writerOr(l.Stdout, os.Stdout), writerOr(l.Stderr, os.Stderr))
	}()

	waitErr := cmd.Wait()

	// A background process started by the task can keep the pipes open
	// long after the task itself exited.
	var streamErr error
	timer := time.NewTimer(l.outputGrace())
	defer timer.Stop()
	select {
	case streamErr = <-streamed:
	case <-timer.C:
		output.Logger.Warn("Task output still open after exit, detaching", "argv", argv[0], "grace", l.outputGrace())
		outR.Close()
		errR.Close()
		streamErr = <-streamed
	}

	if waitErr != nil {
		return waitErr
	}
	if streamErr != nil {
		output.Logger.Warn("Lost task output", "error", streamErr)
	}
	return nil
}

func (l *Local) outputGrace() time.Duration {
	if l.OutputGrace > 0 {
		return l.OutputGrace
	}
	return DefaultOutputGrace
}

func writerOr(w, fallback io.Writer) io.Writer {
	if w == nil {
		return fallback
	}
	return w
}
