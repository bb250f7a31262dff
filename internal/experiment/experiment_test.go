package experiment

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/suite-runner/internal/model"
	"github.com/daryltucker/suite-runner/internal/suite"
)

func taskConfig(t *testing.T, kind string, params map[string]any) suite.TaskConfig {
	t.Helper()
	return suite.TaskConfig{
		Name:       "demo",
		TaskID:     2,
		Timestamp:  "20260101-120000",
		ResultsDir: t.TempDir(),
		Kind:       kind,
		Parameters: params,
	}
}

func TestRegistry_Build(t *testing.T) {
	r := Default()
	assert.Equal(t, []string{KindLinearRegression, KindMeanBaseline}, r.Kinds())

	exp, err := r.Build(taskConfig(t, KindLinearRegression, map[string]any{"epochs": 5}))
	require.NoError(t, err)
	assert.IsType(t, &linearRegression{}, exp)
}

func TestRegistry_UnknownKind(t *testing.T) {
	r := Default()

	_, err := r.Build(taskConfig(t, "transformer", nil))
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = r.Build(taskConfig(t, "", nil))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestRegistry_InvalidParameters(t *testing.T) {
	tests := []struct {
		name   string
		kind   string
		params map[string]any
	}{
		{name: "wrong type", kind: KindLinearRegression, params: map[string]any{"epochs": []any{1, 2}}},
		{name: "negative rate", kind: KindLinearRegression, params: map[string]any{"learning_rate": -0.1}},
		{name: "too few samples", kind: KindMeanBaseline, params: map[string]any{"samples": 1}},
		{name: "bad split", kind: KindMeanBaseline, params: map[string]any{"test_fraction": 1.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Default().Build(taskConfig(t, tt.kind, tt.params))
			assert.ErrorIs(t, err, ErrInvalidParameters)
		})
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("custom", newMeanBaseline))
	assert.Error(t, r.Register("custom", newMeanBaseline))
	assert.Error(t, r.Register("", newMeanBaseline))
	assert.Error(t, r.Register("nil", nil))
}

func TestRegistry_UnusedParametersIgnored(t *testing.T) {
	_, err := Default().Build(taskConfig(t, KindMeanBaseline, map[string]any{"notes": "ablation"}))
	assert.NoError(t, err)
}

func TestRun_LinearRegression(t *testing.T) {
	params := map[string]any{"features": 3, "noise": 0.05, "epochs": 300, "seed": 7}
	tc := taskConfig(t, KindLinearRegression, params)

	exp, err := Default().Build(tc)
	require.NoError(t, err)

	artifact, err := Run(context.Background(), exp, tc)
	require.NoError(t, err)
	assert.Greater(t, artifact.Metrics["r2"], 0.8)
	assert.Contains(t, artifact.Metrics, "mse")
	assert.Contains(t, artifact.Metrics, "train_mse")

	data, err := os.ReadFile(tc.ArtifactPath())
	require.NoError(t, err)
	var onDisk model.Artifact
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, artifact.Metrics, onDisk.Metrics)
	assert.Equal(t, float64(3), onDisk.Parameters["features"])

	assert.FileExists(t, filepath.Join(tc.RunDir(), "2_model.json"))
}

func TestRun_MeanBaselineIsWorseThanLinear(t *testing.T) {
	params := map[string]any{"features": 2, "noise": 0.05, "seed": 3}

	linTC := taskConfig(t, KindLinearRegression, params)
	lin, err := Default().Build(linTC)
	require.NoError(t, err)
	linArtifact, err := Run(context.Background(), lin, linTC)
	require.NoError(t, err)

	baseTC := taskConfig(t, KindMeanBaseline, params)
	base, err := Default().Build(baseTC)
	require.NoError(t, err)
	baseArtifact, err := Run(context.Background(), base, baseTC)
	require.NoError(t, err)

	assert.Less(t, linArtifact.Metrics["mse"], baseArtifact.Metrics["mse"])
}

type failingExperiment struct{ meanBaseline }

func (failingExperiment) Train(context.Context, any) (any, error) {
	return nil, errors.New("diverged")
}

func TestRun_PhaseErrorWritesNothing(t *testing.T) {
	tc := taskConfig(t, KindMeanBaseline, nil)
	exp := &failingExperiment{meanBaseline{taskID: tc.TaskID, params: defaultDataParams()}}

	_, err := Run(context.Background(), exp, tc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "train: diverged")
	assert.NoFileExists(t, tc.ArtifactPath())
}

func TestTrain_Cancelled(t *testing.T) {
	tc := taskConfig(t, KindLinearRegression, nil)
	exp, err := Default().Build(tc)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	data, err := exp.SetupData(ctx)
	require.NoError(t, err)
	_, err = exp.Train(ctx, data)
	assert.ErrorIs(t, err, context.Canceled)
}
