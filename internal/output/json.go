/*
PURPOSE:
  Writes local task outcomes to a JSON Lines file (NDJSON) inside the run
  directory, one line per finished task.

REQUIREMENTS:
  User-specified:
  - A failed task must not lose the record of tasks that already ran.

  Implementation-discovered:
  - JSON Lines is append-friendly: a crash mid-batch leaves every earlier
    line intact.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (local backend)
  - Consumes: internal/model.TaskOutcome

ERROR HANDLING:
  - Returns error on file creation or write failure.

IMPLEMENTATION RULES:
  - Use encoding/json.NewEncoder.
  - Thread-safe.

USAGE:
  w, err := output.NewJSONWriter("results/demo_20260101-120000/tasks.jsonl")
  w.Write(outcome)
  w.Close()

SELF-HEALING INSTRUCTIONS:
  - If tasks.jsonl has partial lines, the process was killed mid-write.

MAINTENANCE:
  - Update when TaskOutcome changes.
*/

package output

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/daryltucker/suite-runner/internal/model"
)

// JSONWriter handles writing task outcomes to a JSON Lines file.
type JSONWriter struct {
	file    *os.File
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter opens path for appending, creating it if needed.
func NewJSONWriter(path string) (*JSONWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	return &JSONWriter{
		file:    f,
		encoder: json.NewEncoder(f),
	}, nil
}

// Write writes a single outcome as a JSON line.
func (jw *JSONWriter) Write(o model.TaskOutcome) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	return jw.encoder.Encode(o)
}

// Close closes the underlying file.
func (jw *JSONWriter) Close() error {
	return jw.file.Close()
}
