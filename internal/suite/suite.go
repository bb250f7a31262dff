/*
PURPOSE:
  Defines the experiment suite document and its loading logic.
  A suite is one YAML (or JSON) file listing every task of a batch.

REQUIREMENTS:
  User-specified:
  - name, optional description, optional shared defaults, experiments list.
  - Loading fails when the experiments list is absent or empty.

  Implementation-discovered:
  - JSON is a YAML subset, so one decoder serves both formats.
  - A bare "-" list entry decodes to nil and means "no overrides".

ARCHITECTURE INTEGRATION:
  - Used by: internal/cli, internal/engine, internal/experiment
  - Dependencies: gopkg.in/yaml.v3

ERROR HANDLING:
  - Returns *ConfigError wrapping ErrEmptySuite or ErrInvalidConfig.

IMPLEMENTATION RULES:
  - No schema validation beyond the non-empty experiments list.

USAGE:
  s, n, err := suite.Load("suite.yaml")

SELF-HEALING INSTRUCTIONS:
  - If a task index is out of range, count the experiments list; the
    index is 1-based.

RELATED FILES:
  - internal/suite/task.go
  - internal/suite/merge.go

MAINTENANCE:
  - Update when the suite file format changes.
*/

package suite

import (
	"bytes"
	"os"

	"gopkg.in/yaml.v3"
)

// Suite is the declarative description of one batch of experiments.
type Suite struct {
	Name        string           `yaml:"name" json:"name"`
	Description string           `yaml:"description,omitempty" json:"description,omitempty"`
	Shared      map[string]any   `yaml:"shared,omitempty" json:"shared,omitempty"`
	Experiments []map[string]any `yaml:"experiments" json:"experiments"`
}

// TaskCount is the number of tasks, which bounds task ids to [1, TaskCount].
func (s *Suite) TaskCount() int {
	return len(s.Experiments)
}

// Load reads a suite file and returns it together with its task count.
func Load(path string) (*Suite, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, &ConfigError{Kind: ErrInvalidConfig, Path: path, Err: err}
	}
	return Parse(path, data)
}

// Parse decodes suite bytes. path is used only for error messages.
func Parse(path string, data []byte) (*Suite, int, error) {
	s := &Suite{}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, 0, &ConfigError{Kind: ErrInvalidConfig, Path: path, Err: err}
		}
	}

	if len(s.Experiments) == 0 {
		return nil, 0, &ConfigError{Kind: ErrEmptySuite, Path: path}
	}
	if s.Shared == nil {
		s.Shared = map[string]any{}
	}
	for i, exp := range s.Experiments {
		if exp == nil {
			s.Experiments[i] = map[string]any{}
		}
	}

	return s, len(s.Experiments), nil
}
