/*
PURPOSE:
  Asks the scheduler for the state of a submitted job.

REQUIREMENTS:
  User-specified:
  - Report the state of a cluster run's array and aggregation jobs.

  Implementation-discovered:
  - squeue only knows queued/running jobs; finished ones are in sacct.
  - sacct decorates states ("CANCELLED by 123", "FAILED+").

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli/runs.go (runs status)
  - Uses: internal/engine/cluster.go (Scheduler, commandFunc)

ERROR HANDLING:
  - A job neither command knows is StatusUnknown, not an error.

IMPLEMENTATION RULES:
  - Only the first state line counts; array jobs print one per element.

USAGE:
  state, err := engine.QueryJobStatus(ctx, "4242", engine.DefaultScheduler())

SELF-HEALING INSTRUCTIONS:
  - If every job reads UNKNOWN, check that accounting is enabled on the
    cluster (sacct -j <id>).

RELATED FILES:
  - internal/engine/cluster.go
  - internal/cli/runs.go

MAINTENANCE:
  - Update when the scheduler's output formats change.
*/

package engine

import (
	"context"
	"strings"
)

// StatusUnknown is reported when neither the queue nor accounting knows a job.
const StatusUnknown = "UNKNOWN"

// QueryJobStatus returns the scheduler state of jobID (PENDING, RUNNING,
// COMPLETED, FAILED...). Queued jobs are asked of the queue command; jobs
// that already left the queue are looked up in accounting.
func QueryJobStatus(ctx context.Context, jobID string, sched Scheduler) (string, error) {
	return queryJobStatus(ctx, jobID, sched, runCommand)
}

func queryJobStatus(ctx context.Context, jobID string, sched Scheduler, run commandFunc) (string, error) {
	def := DefaultScheduler()
	if sched.Queue == "" {
		sched.Queue = def.Queue
	}
	if sched.Acct == "" {
		sched.Acct = def.Acct
	}

	if out, _, err := run(ctx, []string{sched.Queue, "-h", "-j", jobID, "-o", "%T"}); err == nil {
		if state := firstState(out); state != "" {
			return state, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	out, _, err := run(ctx, []string{sched.Acct, "-n", "-X", "-j", jobID, "-o", "State"})
	if err != nil {
		return StatusUnknown, err
	}
	if state := firstState(out); state != "" {
		return state, nil
	}
	return StatusUnknown, nil
}

// firstState picks the first state of possibly multi-line output. Array jobs
// print one line per element; "CANCELLED+" style suffixes are dropped.
func firstState(out []byte) string {
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		return strings.TrimRight(fields[0], "+")
	}
	return ""
}

// IsActiveStatus reports whether a job in state may still change.
func IsActiveStatus(state string) bool {
	switch state {
	case "PENDING", "RUNNING", "CONFIGURING", "COMPLETING", "REQUEUED", "RESIZING", "SUSPENDED":
		return true
	}
	return false
}
