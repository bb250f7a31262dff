package experiment

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/daryltucker/suite-runner/internal/model"
	"github.com/daryltucker/suite-runner/internal/suite"
)

const KindMeanBaseline = "mean_baseline"

// MeanModel always predicts the training target mean.
type MeanModel struct {
	Mean float64 `json:"mean"`
}

type meanBaseline struct {
	taskID int
	params DataParams
}

func newMeanBaseline(tc suite.TaskConfig) (Experiment, error) {
	p := defaultDataParams()
	if err := decodeParams(tc.Parameters, &p); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &meanBaseline{taskID: tc.TaskID, params: p}, nil
}

func (e *meanBaseline) SetupData(_ context.Context) (any, error) {
	return generateDataset(e.params), nil
}

func (e *meanBaseline) Train(_ context.Context, data any) (any, error) {
	ds, err := asDataset(data)
	if err != nil {
		return nil, err
	}
	var sum float64
	for _, y := range ds.TrainY {
		sum += y
	}
	return &MeanModel{Mean: sum / float64(len(ds.TrainY))}, nil
}

func (e *meanBaseline) Evaluate(_ context.Context, trained, data any) (model.Metrics, error) {
	ds, err := asDataset(data)
	if err != nil {
		return nil, err
	}
	m, ok := trained.(*MeanModel)
	if !ok {
		return nil, fmt.Errorf("expected *MeanModel, got %T", trained)
	}

	pred := make([]float64, len(ds.TestY))
	for i := range pred {
		pred[i] = m.Mean
	}
	mse, mae, r2 := regressionMetrics(pred, ds.TestY)
	return model.Metrics{"mse": mse, "mae": mae, "r2": r2}, nil
}

func (e *meanBaseline) SaveModel(_ context.Context, dir string, trained any) error {
	return writeModel(filepath.Join(dir, ModelName(e.taskID)), KindMeanBaseline, trained)
}
