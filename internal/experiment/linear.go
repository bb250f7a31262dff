package experiment

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/daryltucker/suite-runner/internal/model"
	"github.com/daryltucker/suite-runner/internal/suite"
)

const KindLinearRegression = "linear_regression"

// LinearParams are the parameters of the linear_regression kind.
type LinearParams struct {
	DataParams   `mapstructure:",squash"`
	LearningRate float64 `mapstructure:"learning_rate"`
	Epochs       int     `mapstructure:"epochs"`
}

// LinearModel is a fitted linear predictor.
type LinearModel struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

func (m *LinearModel) predict(x []float64) float64 {
	y := m.Bias
	for j, w := range m.Weights {
		y += w * x[j]
	}
	return y
}

type linearRegression struct {
	taskID int
	params LinearParams
}

func newLinearRegression(tc suite.TaskConfig) (Experiment, error) {
	p := LinearParams{
		DataParams:   defaultDataParams(),
		LearningRate: 0.1,
		Epochs:       200,
	}
	if err := decodeParams(tc.Parameters, &p); err != nil {
		return nil, err
	}
	if err := p.DataParams.validate(); err != nil {
		return nil, err
	}
	if p.LearningRate <= 0 {
		return nil, fmt.Errorf("%w: learning_rate must be positive, got %g", ErrInvalidParameters, p.LearningRate)
	}
	if p.Epochs < 1 {
		return nil, fmt.Errorf("%w: epochs must be at least 1, got %d", ErrInvalidParameters, p.Epochs)
	}
	return &linearRegression{taskID: tc.TaskID, params: p}, nil
}

func (e *linearRegression) SetupData(_ context.Context) (any, error) {
	return generateDataset(e.params.DataParams), nil
}

// Train fits the model with full-batch gradient descent on squared error.
func (e *linearRegression) Train(ctx context.Context, data any) (any, error) {
	ds, err := asDataset(data)
	if err != nil {
		return nil, err
	}

	m := &LinearModel{Weights: make([]float64, e.params.Features)}
	n := float64(len(ds.TrainY))
	gradW := make([]float64, e.params.Features)

	for epoch := 0; epoch < e.params.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		clear(gradW)
		var gradB float64
		for i, x := range ds.TrainX {
			d := m.predict(x) - ds.TrainY[i]
			for j := range gradW {
				gradW[j] += d * x[j]
			}
			gradB += d
		}
		for j := range m.Weights {
			m.Weights[j] -= e.params.LearningRate * 2 * gradW[j] / n
		}
		m.Bias -= e.params.LearningRate * 2 * gradB / n
	}
	return m, nil
}

func (e *linearRegression) Evaluate(_ context.Context, trained, data any) (model.Metrics, error) {
	ds, err := asDataset(data)
	if err != nil {
		return nil, err
	}
	m, ok := trained.(*LinearModel)
	if !ok {
		return nil, fmt.Errorf("expected *LinearModel, got %T", trained)
	}

	pred := make([]float64, len(ds.TestX))
	for i, x := range ds.TestX {
		pred[i] = m.predict(x)
	}
	mse, mae, r2 := regressionMetrics(pred, ds.TestY)

	trainPred := make([]float64, len(ds.TrainX))
	for i, x := range ds.TrainX {
		trainPred[i] = m.predict(x)
	}
	trainMSE, _, _ := regressionMetrics(trainPred, ds.TrainY)

	return model.Metrics{"mse": mse, "mae": mae, "r2": r2, "train_mse": trainMSE}, nil
}

func (e *linearRegression) SaveModel(_ context.Context, dir string, trained any) error {
	return writeModel(filepath.Join(dir, ModelName(e.taskID)), KindLinearRegression, trained)
}

func writeModel(path, kind string, trained any) error {
	data, err := json.MarshalIndent(map[string]any{"kind": kind, "model": trained}, "", "    ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
