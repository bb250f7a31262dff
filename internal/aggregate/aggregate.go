/*
PURPOSE:
  Combines the per-task result artifacts of one run directory into a
  single report keyed by "<task_index>_model".

REQUIREMENTS:
  User-specified:
  - A malformed artifact is skipped with a warning; it never aborts the
    aggregation of the others.
  - A missing results directory is fatal for this step only.
  - Reports the number of artifacts combined.

  Implementation-discovered:
  - The run directory also holds model files and tasks.jsonl, so only
    "<digits>_results.json" names are artifacts.
  - The report is written through a temp file and a rename so readers
    never see a half-written final_results.json.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (local backend), internal/cli (aggregate
    command, which is what the dependent cluster job runs)
  - Uses: internal/model, internal/output

ERROR HANDLING:
  - *AggregationError for a missing directory.
  - Per-file failures become Warnings on the Result.

IMPLEMENTATION RULES:
  - Artifacts are validated by decoding but stored as read; the report
    must not drop unknown keys or round integers through float64.

SELF-HEALING INSTRUCTIONS:
  - If an artifact is skipped unexpectedly, the warning names the file
    and the decode error; validate it with a JSON linter.
  - If final_results.json is missing, look for a leftover
    .final_results-*.tmp in the run directory.

MAINTENANCE:
  - Update when the artifact name pattern or report layout changes.
*/

package aggregate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/daryltucker/suite-runner/internal/model"
	"github.com/daryltucker/suite-runner/internal/output"
)

// ReportName is the default file name of the combined report.
const ReportName = "final_results.json"

// CSVName is the default file name of the flattened metrics table.
const CSVName = "final_results.csv"

var artifactPattern = regexp.MustCompile(`^(\d+)_results\.json$`)

var ErrMissingResultsDir = errors.New("results directory does not exist")

// AggregationError is a fatal failure of the aggregation step.
type AggregationError struct {
	Kind error
	Dir  string
	Err  error
}

func (e *AggregationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Dir, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Dir)
}

func (e *AggregationError) Unwrap() error { return e.Kind }

// Warning describes an artifact that was skipped.
type Warning struct {
	File string
	Err  error
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %v", w.File, w.Err)
}

// Result is the outcome of one Combine call.
type Result struct {
	Report   model.Report
	Warnings []Warning
}

// Combined is the number of artifacts in the report.
func (r *Result) Combined() int {
	return len(r.Report)
}

// Combine reads every artifact directly inside dir.
func Combine(dir string) (*Result, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &AggregationError{Kind: ErrMissingResultsDir, Dir: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &AggregationError{Kind: ErrMissingResultsDir, Dir: dir, Err: errors.New("not a directory")}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &AggregationError{Kind: ErrMissingResultsDir, Dir: dir, Err: err}
	}

	res := &Result{Report: make(model.Report)}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := artifactPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}

		artifact, err := readArtifact(filepath.Join(dir, entry.Name()))
		if err != nil {
			w := Warning{File: entry.Name(), Err: err}
			output.Logger.Warn("Skipping malformed artifact", "file", w.File, "error", w.Err)
			res.Warnings = append(res.Warnings, w)
			continue
		}
		res.Report[m[1]+"_model"] = *artifact
	}

	return res, nil
}

// readArtifact checks the {metrics, parameters} shape of an artifact and
// keeps the document itself for the report.
func readArtifact(path string) (*model.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.New("artifact is not a JSON object")
	}
	var e model.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("error decoding JSON: %w", err)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		return nil, fmt.Errorf("error decoding JSON: %w", err)
	}
	e.Raw = compact.Bytes()
	return &e, nil
}

// Write persists the report as one indented JSON document.
func Write(report model.Report, path string) error {
	data, err := json.MarshalIndent(report, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".final_results-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move report into place: %w", err)
	}
	return nil
}

// WriteCSV writes one row per report entry, ordered by task index.
func WriteCSV(report model.Report, path string) error {
	keys := make([]string, 0, len(report))
	names := map[string]struct{}{}
	for k, a := range report {
		keys = append(keys, k)
		for name := range a.Metrics {
			names[name] = struct{}{}
		}
	}
	sort.Slice(keys, func(i, j int) bool { return taskIndex(keys[i]) < taskIndex(keys[j]) })

	metrics := make([]string, 0, len(names))
	for name := range names {
		metrics = append(metrics, name)
	}
	sort.Strings(metrics)

	w, err := output.NewCSVWriter(path, metrics)
	if err != nil {
		return fmt.Errorf("failed to init CSV writer at %s: %w", path, err)
	}
	defer w.Close()

	for _, k := range keys {
		if err := w.Write(k, report[k].Artifact); err != nil {
			return fmt.Errorf("failed to write CSV row %s: %w", k, err)
		}
	}
	return nil
}

// taskIndex parses the numeric prefix of a report key.
func taskIndex(key string) int {
	var n int
	fmt.Sscanf(key, "%d_", &n)
	return n
}

// Summary combines dir and writes the JSON report (and CSV table when
// csvPath is set). It is the whole aggregation step as run after a batch.
func Summary(dir, reportPath, csvPath string) (*Result, error) {
	res, err := Combine(dir)
	if err != nil {
		return nil, err
	}
	if err := Write(res.Report, reportPath); err != nil {
		return res, err
	}
	if csvPath != "" {
		if err := WriteCSV(res.Report, csvPath); err != nil {
			return res, err
		}
	}
	output.Logger.Info("Combined results", "count", res.Combined(), "skipped", len(res.Warnings), "output", reportPath)
	return res, nil
}
