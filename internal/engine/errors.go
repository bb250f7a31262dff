/*
PURPOSE:
  Typed errors of the dispatch engine.

REQUIREMENTS:
  User-specified:
  - Submission failures, task failures and partial batches are
    distinguishable by the exit status of the CLI.

  Implementation-discovered:
  - Submission errors must keep the scheduler's stderr for the user.

ARCHITECTURE INTEGRATION:
  - Produced by: internal/engine/local.go, internal/engine/cluster.go
  - Consumed by: internal/cli/exit.go

ERROR HANDLING:
  - All types implement error; wrapping types implement Unwrap.

IMPLEMENTATION RULES:
  - Match with errors.As, never by message.

USAGE:
  var batch *engine.BatchError
  if errors.As(err, &batch) { ... }

SELF-HEALING INSTRUCTIONS:
  - If the CLI exits 1 where a specific status is expected, check the
    error is wrapped with %w all the way up.

RELATED FILES:
  - internal/cli/exit.go

MAINTENANCE:
  - Update exit.go whenever a type is added here.
*/

package engine

import (
	"fmt"
	"strings"
)

// SubmissionError reports a scheduler submission that exited non-zero or
// could not be started.
type SubmissionError struct {
	Stage    string // "array" or "aggregate"
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *SubmissionError) Error() string {
	msg := fmt.Sprintf("%s submission failed", e.Stage)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	} else {
		msg = fmt.Sprintf("%s (exit %d)", msg, e.ExitCode)
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// TaskExecutionError reports a local task whose process did not exit 0.
type TaskExecutionError struct {
	TaskID   int
	ExitCode int
	Err      error
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task %d failed (exit %d): %v", e.TaskID, e.ExitCode, e.Err)
}

func (e *TaskExecutionError) Unwrap() error { return e.Err }

// BatchError reports that a local batch finished with failed tasks.
type BatchError struct {
	Failed []int
	Total  int
	// Aborted is set when the batch stopped at the first failure.
	Aborted bool
}

func (e *BatchError) Error() string {
	ids := make([]string, len(e.Failed))
	for i, id := range e.Failed {
		ids[i] = fmt.Sprint(id)
	}
	msg := fmt.Sprintf("%d of %d tasks failed (%s)", len(e.Failed), e.Total, strings.Join(ids, ", "))
	if e.Aborted {
		msg += "; batch aborted"
	}
	return msg
}
