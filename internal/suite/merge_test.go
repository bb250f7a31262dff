package suite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name     string
		base     map[string]any
		override map[string]any
		want     map[string]any
	}{
		{
			name:     "override wins at leaf",
			base:     map[string]any{"lr": 0.01},
			override: map[string]any{"lr": 0.02},
			want:     map[string]any{"lr": 0.02},
		},
		{
			name:     "base only keys survive",
			base:     map[string]any{"lr": 0.01, "epochs": 10},
			override: map[string]any{"batch": 32},
			want:     map[string]any{"lr": 0.01, "epochs": 10, "batch": 32},
		},
		{
			name: "nested mappings merge recursively",
			base: map[string]any{
				"optimizer": map[string]any{"name": "sgd", "momentum": 0.9},
			},
			override: map[string]any{
				"optimizer": map[string]any{"name": "adam"},
			},
			want: map[string]any{
				"optimizer": map[string]any{"name": "adam", "momentum": 0.9},
			},
		},
		{
			name:     "sequences are replaced, not merged",
			base:     map[string]any{"layers": []any{64, 64, 32}},
			override: map[string]any{"layers": []any{128}},
			want:     map[string]any{"layers": []any{128}},
		},
		{
			name:     "mapping replaced by scalar",
			base:     map[string]any{"schedule": map[string]any{"step": 10}},
			override: map[string]any{"schedule": "constant"},
			want:     map[string]any{"schedule": "constant"},
		},
		{
			name:     "scalar replaced by mapping",
			base:     map[string]any{"schedule": "constant"},
			override: map[string]any{"schedule": map[string]any{"step": 10}},
			want:     map[string]any{"schedule": map[string]any{"step": 10}},
		},
		{
			name:     "yaml any-keyed mapping is normalized",
			base:     map[string]any{"data": map[any]any{"seed": 1, "size": 100}},
			override: map[string]any{"data": map[string]any{"seed": 2}},
			want:     map[string]any{"data": map[string]any{"seed": 2, "size": 100}},
		},
		{
			name:     "nil override",
			base:     map[string]any{"lr": 0.01},
			override: nil,
			want:     map[string]any{"lr": 0.01},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Merge(tt.base, tt.override))
		})
	}
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	base := map[string]any{
		"optimizer": map[string]any{"name": "sgd", "momentum": 0.9},
		"layers":    []any{64},
	}
	override := map[string]any{
		"optimizer": map[string]any{"name": "adam"},
	}

	merged := Merge(base, override)
	merged["optimizer"].(map[string]any)["momentum"] = 0.5
	merged["layers"].([]any)[0] = 1

	assert.Equal(t, map[string]any{"name": "sgd", "momentum": 0.9}, base["optimizer"])
	assert.Equal(t, []any{64}, base["layers"])
	assert.Equal(t, map[string]any{"name": "adam"}, override["optimizer"])
}
