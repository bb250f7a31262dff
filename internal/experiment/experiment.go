/*
PURPOSE:
  Defines the trainable experiment abstraction and the per-task run
  protocol: setup data, train, evaluate, persist results, save the model.

REQUIREMENTS:
  User-specified:
  - Experiments expose setup_data, train, evaluate and save_model.
  - Results land at <results_dir>/<name>_<timestamp>/<task_id>_results.json
    as {metrics, parameters}.

  Implementation-discovered:
  - Concurrent array elements share one run directory, so every file a task
    writes is namespaced by its task id.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (task command)
  - Uses: internal/suite, internal/model

ERROR HANDLING:
  - Each phase error is wrapped with the phase name and returned.

SELF-HEALING INSTRUCTIONS:
  - If a kind is reported unknown, check it is registered in Default().
  - If parameters fail to decode, compare the suite values with the
    struct tags of the experiment's params type.

RELATED FILES:
  - internal/experiment/registry.go

MAINTENANCE:
  - Update when adding experiment kinds.
*/

package experiment

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/daryltucker/suite-runner/internal/model"
	"github.com/daryltucker/suite-runner/internal/output"
	"github.com/daryltucker/suite-runner/internal/suite"
)

// Experiment is one trainable variant. Data and model values are opaque to
// the run protocol and only passed between the experiment's own methods.
type Experiment interface {
	SetupData(ctx context.Context) (any, error)
	Train(ctx context.Context, data any) (any, error)
	Evaluate(ctx context.Context, trained, data any) (model.Metrics, error)
	SaveModel(ctx context.Context, dir string, trained any) error
}

// Run executes exp for the task described by tc and returns the artifact it
// wrote.
func Run(ctx context.Context, exp Experiment, tc suite.TaskConfig) (*model.Artifact, error) {
	log := output.Logger.With("task_id", tc.TaskID, "kind", tc.Kind)

	log.Info("Setting up data")
	data, err := exp.SetupData(ctx)
	if err != nil {
		return nil, fmt.Errorf("setup data: %w", err)
	}

	log.Info("Training")
	trained, err := exp.Train(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	metrics, err := exp.Evaluate(ctx, trained, data)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	log.Info("Evaluated", "metrics", metrics)

	artifact := &model.Artifact{Metrics: metrics, Parameters: tc.Parameters}
	if err := SaveResults(tc.ArtifactPath(), artifact); err != nil {
		return nil, err
	}

	if err := exp.SaveModel(ctx, tc.RunDir(), trained); err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}
	return artifact, nil
}

// SaveResults writes artifact as indented JSON, creating parent directories.
func SaveResults(path string, artifact *model.Artifact) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	data, err := json.MarshalIndent(artifact, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write results to %s: %w", path, err)
	}
	return nil
}

// ModelName is the file name a task uses for its saved model.
func ModelName(taskID int) string {
	return fmt.Sprintf("%d_model.json", taskID)
}
