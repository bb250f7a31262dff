/*
PURPOSE:
  Defines the 'task' command, the built-in task runner: resolves one
  task of a suite, runs its experiment and writes its artifact.

REQUIREMENTS:
  User-specified:
  - Invoked as task <suite> <timestamp> <resultsDir>.
  - Writes <resultsDir>/<name>_<timestamp>/<id>_results.json.

  Implementation-discovered:
  - The index comes from --task-id, SUITE_TASK_ID or
    SLURM_ARRAY_TASK_ID, in that order.

ARCHITECTURE INTEGRATION:
  - Started by: internal/engine (local and cluster backends)
  - Calls: internal/suite, internal/experiment

ERROR HANDLING:
  - A missing or bad index is a configuration error.
  - Experiment failures are returned with the task index.

USAGE:
  suite-runner task --task-id 2 suite.yaml 20260102-030405 results

SELF-HEALING INSTRUCTIONS:
  - If a task reports an out-of-range index, compare the array range
    with "suite-runner validate".

RELATED FILES:
  - internal/engine/invoker.go
  - internal/experiment/experiment.go

MAINTENANCE:
  - Update when the runner calling convention changes.
*/

package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/daryltucker/suite-runner/internal/engine"
	"github.com/daryltucker/suite-runner/internal/experiment"
	"github.com/daryltucker/suite-runner/internal/suite"
)

func newTaskCmd(_ *app) *cobra.Command {
	var taskID int

	cmd := &cobra.Command{
		Use:   "task <suite> <timestamp> <resultsDir>",
		Short: "Run one task of a suite (the built-in task runner)",
		Long: `Resolves task <id> of the suite, runs its experiment and writes
<resultsDir>/<name>_<timestamp>/<id>_results.json.

The task index comes from --task-id, else SUITE_TASK_ID, else the
scheduler's SLURM_ARRAY_TASK_ID. This is what 'run local' and 'run cluster'
start for each task.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolveTaskID(taskID)
			if err != nil {
				return configError(err)
			}

			s, _, err := suite.Load(args[0])
			if err != nil {
				return err
			}
			tc, err := suite.Resolve(s, id, args[1], args[2])
			if err != nil {
				return err
			}
			exp, err := experiment.Default().Build(tc)
			if err != nil {
				return err
			}

			artifact, err := experiment.Run(cmd.Context(), exp, tc)
			if err != nil {
				return fmt.Errorf("task %d: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %d wrote %s (%d metrics)\n", id, tc.ArtifactPath(), len(artifact.Metrics))
			return nil
		},
	}
	cmd.Flags().IntVar(&taskID, "task-id", 0, "1-based task index (default from "+engine.TaskIDEnv+" or "+engine.ArrayTaskIDEnv+")")
	return cmd
}

// resolveTaskID picks the task index from the flag or the environment.
func resolveTaskID(flagValue int) (int, error) {
	if flagValue != 0 {
		return flagValue, nil
	}
	for _, name := range []string{engine.TaskIDEnv, engine.ArrayTaskIDEnv} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		id, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s=%q is not a task index", name, v)
		}
		return id, nil
	}
	return 0, fmt.Errorf("task index not set: pass --task-id or set %s", engine.TaskIDEnv)
}
