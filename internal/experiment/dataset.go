package experiment

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// DataParams controls the synthetic regression dataset shared by the
// built-in kinds.
type DataParams struct {
	Samples      int     `mapstructure:"samples"`
	Features     int     `mapstructure:"features"`
	Noise        float64 `mapstructure:"noise"`
	Seed         uint64  `mapstructure:"seed"`
	TestFraction float64 `mapstructure:"test_fraction"`
}

func defaultDataParams() DataParams {
	return DataParams{
		Samples:      200,
		Features:     1,
		Noise:        0.1,
		Seed:         1,
		TestFraction: 0.2,
	}
}

func (p DataParams) validate() error {
	switch {
	case p.Samples < 2:
		return fmt.Errorf("%w: samples must be at least 2, got %d", ErrInvalidParameters, p.Samples)
	case p.Features < 1:
		return fmt.Errorf("%w: features must be at least 1, got %d", ErrInvalidParameters, p.Features)
	case p.Noise < 0:
		return fmt.Errorf("%w: noise must not be negative, got %g", ErrInvalidParameters, p.Noise)
	case p.TestFraction <= 0 || p.TestFraction >= 1:
		return fmt.Errorf("%w: test_fraction must be in (0, 1), got %g", ErrInvalidParameters, p.TestFraction)
	}
	if p.testSize() < 1 || p.Samples-p.testSize() < 1 {
		return fmt.Errorf("%w: %d samples cannot be split with test_fraction %g", ErrInvalidParameters, p.Samples, p.TestFraction)
	}
	return nil
}

func (p DataParams) testSize() int {
	return int(math.Round(float64(p.Samples) * p.TestFraction))
}

// Dataset is a train/test split of a linear target with gaussian noise.
type Dataset struct {
	TrainX [][]float64
	TrainY []float64
	TestX  [][]float64
	TestY  []float64
}

func generateDataset(p DataParams) *Dataset {
	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))

	weights := make([]float64, p.Features)
	for i := range weights {
		weights[i] = rng.NormFloat64()
	}
	bias := rng.NormFloat64()

	xs := make([][]float64, p.Samples)
	ys := make([]float64, p.Samples)
	for i := range xs {
		row := make([]float64, p.Features)
		y := bias
		for j := range row {
			row[j] = rng.Float64()*2 - 1
			y += weights[j] * row[j]
		}
		xs[i] = row
		ys[i] = y + p.Noise*rng.NormFloat64()
	}

	split := p.Samples - p.testSize()
	return &Dataset{
		TrainX: xs[:split],
		TrainY: ys[:split],
		TestX:  xs[split:],
		TestY:  ys[split:],
	}
}

// regressionMetrics scores predictions against targets.
func regressionMetrics(pred, target []float64) (mse, mae, r2 float64) {
	n := float64(len(target))
	var mean float64
	for _, y := range target {
		mean += y
	}
	mean /= n

	var ssRes, ssTot float64
	for i, y := range target {
		d := pred[i] - y
		ssRes += d * d
		mae += math.Abs(d)
		ssTot += (y - mean) * (y - mean)
	}
	mse = ssRes / n
	mae /= n
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}
	return mse, mae, r2
}

func asDataset(data any) (*Dataset, error) {
	ds, ok := data.(*Dataset)
	if !ok || ds == nil {
		return nil, fmt.Errorf("expected *Dataset, got %T", data)
	}
	return ds, nil
}
