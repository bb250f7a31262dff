package experiment

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"

	"github.com/daryltucker/suite-runner/internal/suite"
)

var (
	ErrUnknownKind       = errors.New("unknown experiment kind")
	ErrInvalidParameters = errors.New("invalid experiment parameters")
)

// Factory builds an experiment for one resolved task. It should decode and
// validate the task parameters and fail fast on bad input.
type Factory func(tc suite.TaskConfig) (Experiment, error)

// Registry maps an experiment kind to its factory.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Default returns a registry holding the built-in kinds.
func Default() *Registry {
	r := NewRegistry()
	r.MustRegister(KindLinearRegression, newLinearRegression)
	r.MustRegister(KindMeanBaseline, newMeanBaseline)
	return r
}

// Register adds a factory. Registering a kind twice is an error.
func (r *Registry) Register(kind string, f Factory) error {
	if kind == "" {
		return fmt.Errorf("experiment kind must not be empty")
	}
	if f == nil {
		return fmt.Errorf("factory for %q is nil", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[kind]; ok {
		return fmt.Errorf("experiment kind %q already registered", kind)
	}
	r.factories[kind] = f
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(kind string, f Factory) {
	if err := r.Register(kind, f); err != nil {
		panic(err)
	}
}

// Build constructs the experiment selected by tc.Kind.
func (r *Registry) Build(tc suite.TaskConfig) (Experiment, error) {
	r.mu.RLock()
	f, ok := r.factories[tc.Kind]
	r.mu.RUnlock()
	if !ok {
		if tc.Kind == "" {
			return nil, fmt.Errorf("task %d: %w: %q is not set", tc.TaskID, ErrUnknownKind, suite.KindKey)
		}
		return nil, fmt.Errorf("task %d: %w %q (known: %v)", tc.TaskID, ErrUnknownKind, tc.Kind, r.Kinds())
	}

	exp, err := f(tc)
	if err != nil {
		return nil, fmt.Errorf("task %d (%s): %w", tc.TaskID, tc.Kind, err)
	}
	return exp, nil
}

// Kinds lists registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// decodeParams fills target from the task parameters. Keys target does not
// declare are ignored; type mismatches are errors.
func decodeParams(params map[string]any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           target,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	return nil
}
