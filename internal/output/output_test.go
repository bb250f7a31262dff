package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/suite-runner/internal/model"
)

func TestJSONWriter_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.jsonl")

	w, err := NewJSONWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(model.TaskOutcome{RunID: "r", TaskID: 1}))
	require.NoError(t, w.Close())

	w, err = NewJSONWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(model.TaskOutcome{RunID: "r", TaskID: 2, ExitCode: 3, Duration: time.Second}))
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var ids []int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var o model.TaskOutcome
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &o))
		ids = append(ids, o.TaskID)
	}
	assert.Equal(t, []int{1, 2}, ids)
}

func TestCSVWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "final_results.csv")

	w, err := NewCSVWriter(path, []string{"mae", "mse"})
	require.NoError(t, err)
	require.NoError(t, w.Write("1_model", model.Artifact{Metrics: model.Metrics{"mse": 0.5, "mae": 0.25}}))
	require.NoError(t, w.Write("2_model", model.Artifact{Metrics: model.Metrics{"mse": 1}}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "task,mae,mse\n1_model,0.25,0.5\n2_model,,1\n", string(data))
}

func TestConfigure(t *testing.T) {
	prev := Logger
	t.Cleanup(func() { SetLogger(prev) })

	var buf bytes.Buffer
	require.NoError(t, Configure("warn", "json", &buf))
	Logger.Info("hidden")
	Logger.Warn("shown", "task_id", 2)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, float64(2), line["task_id"])

	assert.Error(t, Configure("loud", "text", &buf))
	assert.Error(t, Configure("info", "xml", &buf))
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)
}
