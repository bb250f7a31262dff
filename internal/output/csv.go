/*
PURPOSE:
  Writes the combined report as a flat CSV table: one row per task, one
  column per metric.

REQUIREMENTS:
  User-specified:
  - Output to CSV next to final_results.json for spreadsheet use.

  Implementation-discovered:
  - Tasks of different kinds report different metrics, so the header is
    the sorted union of metric names and missing cells stay empty.

ARCHITECTURE INTEGRATION:
  - Called by: internal/aggregate
  - Consumes: internal/model.Artifact

ERROR HANDLING:
  - Returns error on file creation or write failure.

IMPLEMENTATION RULES:
  - Use encoding/csv.
  - Flush() after every write.

USAGE:
  w, err := output.NewCSVWriter("final_results.csv", []string{"mse", "r2"})
  w.Write("1_model", artifact)
  w.Close()

SELF-HEALING INSTRUCTIONS:
  - If columns shift, check the metric list passed to NewCSVWriter is
    sorted and complete.

MAINTENANCE:
  - Update when the report gains non-metric columns.
*/

package output

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"

	"github.com/daryltucker/suite-runner/internal/model"
)

// CSVWriter handles writing report rows to a CSV file.
type CSVWriter struct {
	file    *os.File
	writer  *csv.Writer
	metrics []string
	mu      sync.Mutex
}

// NewCSVWriter creates a new CSVWriter with a "task" column followed by
// the given metric columns. It overwrites the file if it exists.
func NewCSVWriter(path string, metrics []string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)

	header := append([]string{"task"}, metrics...)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()

	return &CSVWriter{
		file:    f,
		writer:  w,
		metrics: metrics,
	}, nil
}

// Write writes one report entry. It is thread-safe.
func (cw *CSVWriter) Write(key string, a model.Artifact) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	record := make([]string, 0, len(cw.metrics)+1)
	record = append(record, key)
	for _, name := range cw.metrics {
		v, ok := a.Metrics[name]
		if !ok {
			record = append(record, "")
			continue
		}
		record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
	}

	if err := cw.writer.Write(record); err != nil {
		return err
	}
	cw.writer.Flush()
	return cw.writer.Error()
}

// Close closes the underlying file.
func (cw *CSVWriter) Close() error {
	cw.writer.Flush()
	return cw.file.Close()
}
