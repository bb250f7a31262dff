// Package assets holds the example files written by "suite-runner init".
package assets

import "embed"

// Examples contains examples/suite.yaml and examples/suite-runner.yaml.
//
//go:embed examples/*.yaml
var Examples embed.FS

const (
	SuitePath    = "examples/suite.yaml"
	SettingsPath = "examples/suite-runner.yaml"
)
