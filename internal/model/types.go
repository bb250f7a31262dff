/*
PURPOSE:
  Defines the core data structures shared across Suite Runner.
  These models represent per-task result artifacts, the combined report,
  local task outcomes and the record of one dispatch.

REQUIREMENTS:
  User-specified:
  - Artifact layout is {metrics, parameters}, one JSON file per task.
  - Combined report is keyed by "<task_index>_model".

  Implementation-discovered:
  - The ledger and the dispatcher both need run/task records without
    importing each other.

ARCHITECTURE INTEGRATION:
  - Used by: internal/experiment, internal/aggregate, internal/engine,
    internal/ledger, internal/output
  - Shared across boundaries.

ERROR HANDLING:
  - None (pure data structs).

IMPLEMENTATION RULES:
  - Keep structs simple and public.
  - JSON tags match the on-disk artifact format exactly.
  - Report entries carry the raw artifact bytes; never rebuild a report
    entry from the decoded struct alone.

SELF-HEALING INSTRUCTIONS:
  - If a report loses fields, check that Entry.Raw is set wherever an
    entry is built.

RELATED FILES:
  - internal/aggregate/aggregate.go
  - internal/output/json.go

MAINTENANCE:
  - Update when the artifact layout or run record changes.
*/

package model

import (
	"encoding/json"
	"time"
)

// Metrics maps a metric name to its numeric value.
type Metrics map[string]float64

// Artifact is the result file one task writes after evaluation.
type Artifact struct {
	Metrics    Metrics        `json:"metrics"`
	Parameters map[string]any `json:"parameters"`
}

// Entry is one artifact as it appears in the report. Artifact holds the
// decoded fields; Raw is the document exactly as the task wrote it, so keys
// outside {metrics, parameters} and integer precision survive aggregation.
type Entry struct {
	Artifact
	Raw json.RawMessage `json:"-"`
}

// MarshalJSON emits Raw when present, else the decoded artifact.
func (e Entry) MarshalJSON() ([]byte, error) {
	if len(e.Raw) > 0 {
		return e.Raw, nil
	}
	return json.Marshal(e.Artifact)
}

// UnmarshalJSON decodes the artifact fields and keeps a copy of data.
func (e *Entry) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &e.Artifact); err != nil {
		return err
	}
	e.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Report is the combined mapping written to final_results.json.
type Report map[string]Entry

// TaskOutcome records how one locally executed task finished.
type TaskOutcome struct {
	RunID     string        `json:"run_id"`
	TaskID    int           `json:"task_id"`
	ExitCode  int           `json:"exit_code"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// Failed reports whether the task did not exit cleanly.
func (o TaskOutcome) Failed() bool {
	return o.ExitCode != 0 || o.Error != ""
}

// Run statuses stored in the ledger. Cluster runs additionally store the
// scheduler's own job state text.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSubmitted = "submitted"
)

// RunRecord describes one dispatch of a suite.
type RunRecord struct {
	ID             string    `json:"id"`
	Suite          string    `json:"suite"`
	Backend        string    `json:"backend"`
	ConfigPath     string    `json:"config_path"`
	ResultsDir     string    `json:"results_dir"`
	RunDir         string    `json:"run_dir"`
	Timestamp      string    `json:"timestamp"`
	TaskCount      int       `json:"task_count"`
	ArrayJobID     string    `json:"array_job_id,omitempty"`
	AggregateJobID string    `json:"aggregate_job_id,omitempty"`
	Status         string    `json:"status"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	CompletedAt    time.Time `json:"completed_at,omitempty"`
}
