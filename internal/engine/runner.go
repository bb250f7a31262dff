/*
PURPOSE:
  Dispatches one run of a suite to a backend: sequential local execution
  or a scheduler job array with a dependent aggregation job.

REQUIREMENTS:
  User-specified:
  - Every task of a run shares one timestamp and run directory.
  - Local runs keep going after a failed task unless told to abort.
  - Cluster runs submit the array, then the aggregation job chained on
    the array's job id, and never wait for either.

  Implementation-discovered:
  - The ledger is optional and must never fail a dispatch.
  - The final ledger update has to land even when the run was cancelled.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (run local, run cluster)
  - Uses: internal/aggregate, internal/output, internal/suite

ERROR HANDLING:
  - Backends return typed errors (*SubmissionError, *BatchError).
  - Ledger errors are logged as warnings.

IMPLEMENTATION RULES:
  - Backends receive a Recorder that never returns an error.

USAGE:
  d := engine.Dispatcher{Recorder: store}
  err := d.Run(ctx, engine.NewRun(s, path, results, time.Now()), &engine.Local{...})

SELF-HEALING INSTRUCTIONS:
  - If a run stays "running" in the ledger, the process died before
    FinishRun; the status can be fixed with "runs status".

RELATED FILES:
  - internal/engine/local.go
  - internal/engine/cluster.go
  - internal/ledger/ledger.go

MAINTENANCE:
  - Update when adding a backend.
*/

package engine

import (
	"context"

	"github.com/daryltucker/suite-runner/internal/model"
	"github.com/daryltucker/suite-runner/internal/output"
)

// Backend executes the tasks of a run.
type Backend interface {
	Name() string
	// Execute returns the run status to record with the error, if any.
	Execute(ctx context.Context, run *Run, rec Recorder) (string, error)
}

// Dispatcher runs suites on a backend and records them.
type Dispatcher struct {
	Recorder Recorder
}

// Run dispatches run on backend.
func (d *Dispatcher) Run(ctx context.Context, run *Run, backend Backend) error {
	rec := safeRecorder{rec: d.Recorder}
	_ = rec.CreateRun(ctx, run.Record(backend.Name()))

	output.Logger.Info("Dispatching suite",
		"suite", run.Suite.Name,
		"backend", backend.Name(),
		"tasks", run.TaskCount(),
		"run_id", run.ID,
		"run_dir", run.RunDir(),
	)

	status, err := backend.Execute(ctx, run, rec)
	if status == "" {
		status = model.StatusCompleted
		if err != nil {
			status = model.StatusFailed
		}
	}

	var msg string
	if err != nil {
		msg = err.Error()
	}
	_ = rec.FinishRun(context.WithoutCancel(ctx), run.ID, status, msg)

	if err != nil {
		return err
	}
	output.Logger.Info("Dispatch finished", "run_id", run.ID, "status", status)
	return nil
}
