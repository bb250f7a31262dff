/*
PURPOSE:
  Builds the command lines and environments of task runners and of the
  aggregation step, for both backends.

REQUIREMENTS:
  User-specified:
  - Runners receive (configPath, timestamp, resultsDir) positionally.
  - The task index is passed out of band through the environment.

  Implementation-discovered:
  - Local tasks get SUITE_TASK_ID and SLURM_ARRAY_TASK_ID set to the
    same index; inherited values of either are dropped.
  - The built-in runner is this binary's "task" command.

ARCHITECTURE INTEGRATION:
  - Used by: internal/engine/local.go, internal/engine/cluster.go
  - Uses: internal/aggregate (report name)

ERROR HANDLING:
  - None; pure argv construction.

IMPLEMENTATION RULES:
  - Return fresh slices; callers append to them.
  - shellQuote is POSIX single-quote quoting, nothing else.

USAGE:
  argv := iv.LocalArgs(run, 3)
  env := iv.TaskEnv(3)

SELF-HEALING INSTRUCTIONS:
  - If a runner writes the wrong artifact index, print its environment
    and check for a stale index variable.

RELATED FILES:
  - internal/cli/task.go
  - internal/engine/cluster.go

MAINTENANCE:
  - Update when the runner calling convention changes.
*/

package engine

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/daryltucker/suite-runner/internal/aggregate"
)

const (
	// TaskIDEnv carries the task index to runners on both backends.
	TaskIDEnv = "SUITE_TASK_ID"
	// ArrayTaskIDEnv is set by the scheduler on every array element, and
	// by the local backend to the same index.
	ArrayTaskIDEnv = "SLURM_ARRAY_TASK_ID"
)

// Invoker builds the command lines that start a task runner or the
// aggregation step.
//
// The runner receives the positional arguments (configPath, timestamp,
// resultsDir). With no custom Runner, the current executable's "task"
// command is used and local runs also pass --task-id explicitly.
type Invoker struct {
	Runner     []string
	Executable string
	// Env holds extra KEY=VALUE pairs appended to every child environment.
	Env []string
}

func (iv Invoker) builtin() bool {
	return len(iv.Runner) == 0
}

func (iv Invoker) runner() []string {
	if iv.builtin() {
		return []string{iv.Executable, "task"}
	}
	return append([]string(nil), iv.Runner...)
}

func positional(run *Run) []string {
	return []string{run.ConfigPath, run.Timestamp, run.ResultsDir}
}

// LocalArgs is the argv of local task taskID.
func (iv Invoker) LocalArgs(run *Run, taskID int) []string {
	args := iv.runner()
	if iv.builtin() {
		args = append(args, "--task-id", strconv.Itoa(taskID))
	}
	return append(args, positional(run)...)
}

// ArrayArgs is the argv every array element runs; the element learns its
// index from the scheduler at execution time.
func (iv Invoker) ArrayArgs(run *Run) []string {
	return append(iv.runner(), positional(run)...)
}

// AggregateArgs is the argv of the aggregation step for run.
func (iv Invoker) AggregateArgs(run *Run) []string {
	dir := run.RunDir()
	return []string{iv.Executable, "aggregate", dir, "--output", filepath.Join(dir, aggregate.ReportName)}
}

// TaskEnv is the environment of local task taskID. Both index variables are
// set to taskID; values inherited from the parent or Env are dropped.
func (iv Invoker) TaskEnv(taskID int) []string {
	base := append(os.Environ(), iv.Env...)
	env := make([]string, 0, len(base)+2)
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if key == TaskIDEnv || key == ArrayTaskIDEnv {
			continue
		}
		env = append(env, kv)
	}
	id := strconv.Itoa(taskID)
	return append(env, TaskIDEnv+"="+id, ArrayTaskIDEnv+"="+id)
}

// shellQuote quotes s for a POSIX shell.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, needsQuote) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, `'`, `'"'"'`) + "'"
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case strings.ContainsRune("-_./=:,+@%", r):
		return false
	}
	return true
}

// shellJoin renders argv as one shell command line.
func shellJoin(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}
