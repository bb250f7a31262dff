/*
PURPOSE:
  Defines the identity of one dispatch and the recorder interface the
  backends report progress to.

REQUIREMENTS:
  User-specified:
  - All tasks of one dispatch share one timestamp and one run directory.

  Implementation-discovered:
  - Runs get a UUID so the ledger can address them.
  - Ledger failures must never stop a dispatch.

ARCHITECTURE INTEGRATION:
  - Used by: internal/engine backends, internal/cli/run.go
  - Implemented by: internal/ledger.Store (Recorder)
  - Uses: github.com/google/uuid, internal/suite

ERROR HANDLING:
  - safeRecorder logs recorder errors as warnings and returns nil.

IMPLEMENTATION RULES:
  - Backends receive a safeRecorder, never a nil Recorder.

USAGE:
  run := engine.NewRun(s, suitePath, resultsDir, time.Now())

SELF-HEALING INSTRUCTIONS:
  - If runs are missing from "runs list", look for "Ledger update
    failed" warnings.

RELATED FILES:
  - internal/engine/runner.go
  - internal/ledger/ledger.go

MAINTENANCE:
  - Update when RunRecord gains fields.
*/

package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/daryltucker/suite-runner/internal/model"
	"github.com/daryltucker/suite-runner/internal/output"
	"github.com/daryltucker/suite-runner/internal/suite"
)

// Run is the identity of one dispatch of a suite. Every task of the run sees
// the same timestamp and therefore writes into the same run directory.
type Run struct {
	ID         string
	Suite      *suite.Suite
	ConfigPath string
	ResultsDir string
	Timestamp  string
}

// NewRun stamps a new dispatch of s at now.
func NewRun(s *suite.Suite, configPath, resultsDir string, now time.Time) *Run {
	return &Run{
		ID:         uuid.NewString(),
		Suite:      s,
		ConfigPath: configPath,
		ResultsDir: resultsDir,
		Timestamp:  suite.FormatTimestamp(now),
	}
}

// TaskCount is the number of tasks in the run.
func (r *Run) TaskCount() int {
	return r.Suite.TaskCount()
}

// RunDir is where every artifact of the run is written.
func (r *Run) RunDir() string {
	return suite.RunDir(r.ResultsDir, r.Suite.Name, r.Timestamp)
}

// Record is the ledger row describing r on backend.
func (r *Run) Record(backend string) model.RunRecord {
	return model.RunRecord{
		ID:         r.ID,
		Suite:      r.Suite.Name,
		Backend:    backend,
		ConfigPath: r.ConfigPath,
		ResultsDir: r.ResultsDir,
		RunDir:     r.RunDir(),
		Timestamp:  r.Timestamp,
		TaskCount:  r.TaskCount(),
		Status:     model.StatusRunning,
	}
}

// Recorder stores the progress of runs. *ledger.Store implements it.
type Recorder interface {
	CreateRun(ctx context.Context, r model.RunRecord) error
	RecordTask(ctx context.Context, o model.TaskOutcome) error
	RecordSubmission(ctx context.Context, runID, arrayJobID, aggregateJobID string) error
	FinishRun(ctx context.Context, runID, status, errMsg string) error
}

// safeRecorder turns a nil Recorder into a no-op and downgrades recording
// failures to warnings; a broken ledger never stops a dispatch.
type safeRecorder struct {
	rec Recorder
}

func (s safeRecorder) warn(op string, err error) {
	if err != nil {
		output.Logger.Warn("Ledger update failed", "op", op, "error", err)
	}
}

func (s safeRecorder) CreateRun(ctx context.Context, r model.RunRecord) error {
	if s.rec != nil {
		s.warn("create run", s.rec.CreateRun(ctx, r))
	}
	return nil
}

func (s safeRecorder) RecordTask(ctx context.Context, o model.TaskOutcome) error {
	if s.rec != nil {
		s.warn("record task", s.rec.RecordTask(ctx, o))
	}
	return nil
}

func (s safeRecorder) RecordSubmission(ctx context.Context, runID, arrayJobID, aggregateJobID string) error {
	if s.rec != nil {
		s.warn("record submission", s.rec.RecordSubmission(ctx, runID, arrayJobID, aggregateJobID))
	}
	return nil
}

func (s safeRecorder) FinishRun(ctx context.Context, runID, status, errMsg string) error {
	if s.rec != nil {
		s.warn("finish run", s.rec.FinishRun(ctx, runID, status, errMsg))
	}
	return nil
}
