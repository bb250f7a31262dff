/*
PURPOSE:
  Maps errors returned by the command tree to process exit statuses.

REQUIREMENTS:
  User-specified:
  - Distinct statuses for configuration, submission, failed tasks and
    aggregation.

  Implementation-discovered:
  - A batch with failed tasks and a failed aggregation reports the task
    failure.

ARCHITECTURE INTEGRATION:
  - Called by: cmd/suite-runner/main.go
  - Uses: error types of internal/engine, internal/aggregate,
    internal/suite, internal/experiment

ERROR HANDLING:
  - Unknown errors are ExitError.

USAGE:
  os.Exit(cli.ExitCode(err))

SELF-HEALING INSTRUCTIONS:
  - If a status is wrong, check the case order in ExitCode.

RELATED FILES:
  - internal/engine/errors.go

MAINTENANCE:
  - Update when an error type is added anywhere.
*/

package cli

import (
	"errors"
	"fmt"

	"github.com/daryltucker/suite-runner/internal/aggregate"
	"github.com/daryltucker/suite-runner/internal/engine"
	"github.com/daryltucker/suite-runner/internal/experiment"
	"github.com/daryltucker/suite-runner/internal/suite"
)

// Process exit statuses.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitConfig      = 2
	ExitSubmission  = 3
	ExitTasksFailed = 4
	ExitAggregation = 5
)

var errConfig = errors.New("configuration error")

func configError(err error) error {
	return fmt.Errorf("%w: %w", errConfig, err)
}

// ExitCode maps an error returned by Execute to a process exit status.
func ExitCode(err error) int {
	var (
		submission *engine.SubmissionError
		batch      *engine.BatchError
		agg        *aggregate.AggregationError
	)
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errConfig),
		errors.Is(err, suite.ErrEmptySuite),
		errors.Is(err, suite.ErrInvalidConfig),
		errors.Is(err, suite.ErrTaskOutOfRange),
		errors.Is(err, experiment.ErrUnknownKind),
		errors.Is(err, experiment.ErrInvalidParameters):
		return ExitConfig
	case errors.As(err, &submission):
		return ExitSubmission
	case errors.As(err, &batch):
		return ExitTasksFailed
	case errors.As(err, &agg):
		return ExitAggregation
	}
	return ExitError
}
