package suite

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"
)

// TimestampLayout is the sortable local-time layout shared by all tasks of a run.
const TimestampLayout = "20060102-150405"

// KindKey selects the experiment kind inside a task's merged parameters.
const KindKey = "kind"

// Identity keys are injected by the suite and cannot be overridden by
// shared defaults or per-task overrides.
const (
	KeyName        = "name"
	KeyDescription = "description"
	KeyTaskID      = "task_id"
	KeyTimestamp   = "timestamp"
	KeyResultsDir  = "results_dir"
)

var identityKeys = []string{KeyName, KeyDescription, KeyTaskID, KeyTimestamp, KeyResultsDir}

// FormatTimestamp renders t in local time using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.Local().Format(TimestampLayout)
}

// TaskConfig is the resolved configuration of one task.
type TaskConfig struct {
	Name        string
	Description string
	TaskID      int
	Timestamp   string
	ResultsDir  string
	Kind        string

	// Parameters is the merged mapping without the kind and identity keys.
	Parameters map[string]any
}

// Resolve builds the configuration of task taskID (1-based) from the suite's
// shared defaults and that task's overrides.
func Resolve(s *Suite, taskID int, timestamp, resultsDir string) (TaskConfig, error) {
	if taskID < 1 || taskID > s.TaskCount() {
		return TaskConfig{}, fmt.Errorf("%w: %d not in [1, %d]", ErrTaskOutOfRange, taskID, s.TaskCount())
	}

	merged := Merge(s.Shared, s.Experiments[taskID-1])

	tc := TaskConfig{
		Name:        s.Name,
		Description: s.Description,
		TaskID:      taskID,
		Timestamp:   timestamp,
		ResultsDir:  resultsDir,
	}

	if raw, ok := merged[KindKey]; ok {
		kind, ok := raw.(string)
		if !ok {
			return TaskConfig{}, fmt.Errorf("task %d: %q must be a string, got %T", taskID, KindKey, raw)
		}
		tc.Kind = kind
		delete(merged, KindKey)
	}
	for _, k := range identityKeys {
		delete(merged, k)
	}
	tc.Parameters = merged

	return tc, nil
}

// Values returns the flat resolved mapping: merged parameters, the kind when
// set, and the identity fields.
func (tc TaskConfig) Values() map[string]any {
	out := Merge(tc.Parameters, nil)
	if tc.Kind != "" {
		out[KindKey] = tc.Kind
	}
	out[KeyName] = tc.Name
	out[KeyDescription] = tc.Description
	out[KeyTaskID] = tc.TaskID
	out[KeyTimestamp] = tc.Timestamp
	out[KeyResultsDir] = tc.ResultsDir
	return out
}

// RunDir is the directory grouping every task output of one run.
func (tc TaskConfig) RunDir() string {
	return RunDir(tc.ResultsDir, tc.Name, tc.Timestamp)
}

// ArtifactPath is where the task's result artifact is written.
func (tc TaskConfig) ArtifactPath() string {
	return filepath.Join(tc.RunDir(), ArtifactName(tc.TaskID))
}

// RunDir joins the results directory with the "<name>_<timestamp>" run folder.
func RunDir(resultsDir, name, timestamp string) string {
	return filepath.Join(resultsDir, name+"_"+timestamp)
}

// ArtifactName is the file name of task taskID's result artifact.
func ArtifactName(taskID int) string {
	return strconv.Itoa(taskID) + "_results.json"
}
