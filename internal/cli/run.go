/*
PURPOSE:
  Defines the 'run' command group: 'run local' executes every task of a
  suite on this machine, 'run cluster' submits them as a job array.

REQUIREMENTS:
  User-specified:
  - Dispatch a suite file to a backend, results under <resultsDir>
    (default "results").
  - All tasks of one dispatch share one timestamp.

  Implementation-discovered:
  - Paths are made absolute before they are handed to task processes,
    which may start in another working directory on cluster nodes.
  - The built-in runner is this same binary, found via os.Executable.

ARCHITECTURE INTEGRATION:
  - Calls: internal/suite.Load, internal/engine (Dispatcher, Local,
    Cluster)
  - Uses: internal/config settings resolved by root

ERROR HANDLING:
  - Suite errors stop the dispatch before anything runs.
  - Dispatch errors are returned unchanged so ExitCode can classify them.

USAGE:
  suite-runner run local suite.yaml results
  suite-runner run cluster suite.yaml results --max-concurrent 10

SELF-HEALING INSTRUCTIONS:
  - If a custom runner is not found, check its quoting in --runner and
    that paths are absolute.

RELATED FILES:
  - internal/engine/runner.go
  - internal/engine/local.go
  - internal/engine/cluster.go

MAINTENANCE:
  - Update when adding backends or run flags.
*/

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/daryltucker/suite-runner/internal/config"
	"github.com/daryltucker/suite-runner/internal/engine"
	"github.com/daryltucker/suite-runner/internal/suite"
)

const defaultResultsDir = "results"

func newRunCmd(a *app) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Dispatch a suite locally or to a cluster scheduler",
	}

	localCmd := &cobra.Command{
		Use:   "local <suite> [resultsDir]",
		Short: "Run every task sequentially on this machine, then aggregate",
		Long: `Runs tasks 1..N one after another, streaming each task's output as it is
produced. A failed task is logged and the batch continues (unless
--on-failure=abort). The results of every task that produced an artifact are
combined into <resultsDir>/<name>_<timestamp>/final_results.json.`,
		Example: `  # Run with the built-in task runner
  suite-runner run local suite.yaml

  # Use a custom runner; it receives <suite> <timestamp> <resultsDir>
  # and finds its index in SUITE_TASK_ID (quote paths with spaces)
  suite-runner run local suite.yaml out --runner "python 'my tools/run.py'"

  # Stop at the first failure
  suite-runner run local suite.yaml --on-failure abort`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, invoker, err := a.prepareRun(args)
			if err != nil {
				return err
			}

			policy, err := engine.ParseFailurePolicy(a.settings.OnFailure)
			if err != nil {
				return configError(err)
			}
			env, err := config.LoadEnvFile(a.settings.EnvFile)
			if err != nil {
				return configError(err)
			}
			invoker.Env = env

			rec, closeLedger := a.recorder()
			defer closeLedger()

			d := engine.Dispatcher{Recorder: rec}
			return d.Run(cmd.Context(), run, &engine.Local{
				Invoker: invoker,
				Policy:  policy,
				Stdout:  cmd.OutOrStdout(),
				Stderr:  cmd.ErrOrStderr(),
			})
		},
	}
	localCmd.Flags().String("on-failure", "continue", "what to do after a failed task (continue, abort)")
	localCmd.Flags().String("runner", "", "task runner command line (default is this binary's 'task' command)")
	localCmd.Flags().String("env-file", "", "dotenv file with extra environment for every task")

	clusterCmd := &cobra.Command{
		Use:   "cluster <suite> [resultsDir]",
		Short: "Submit the suite as a job array plus a dependent aggregation job",
		Long: `Submits one job array with an element per task, then an aggregation job that
starts only after every element succeeded. Returns once both are submitted;
use 'suite-runner runs status' to follow them.`,
		Example: `  suite-runner run cluster suite.yaml results --max-concurrent 10

  # Pass scheduler options to both submissions
  suite-runner run cluster suite.yaml --sbatch-arg=--partition=gpu --sbatch-arg=--time=02:00:00

  # Submit a job script instead of a wrapped command
  suite-runner run cluster suite.yaml --job-script job.sh`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, invoker, err := a.prepareRun(args)
			if err != nil {
				return err
			}

			rec, closeLedger := a.recorder()
			defer closeLedger()

			c := a.settings.Cluster
			d := engine.Dispatcher{Recorder: rec}
			if err := d.Run(cmd.Context(), run, &engine.Cluster{
				Invoker:       invoker,
				Scheduler:     schedulerFor(c),
				MaxConcurrent: c.MaxConcurrent,
				JobScript:     c.JobScript,
				ExtraArgs:     c.ExtraArgs,
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Submitted run %s (%d tasks); results in %s\n", run.ID, run.TaskCount(), run.RunDir())
			return nil
		},
	}
	clusterCmd.Flags().Int("max-concurrent", 0, "max array elements running at once (0 = no cap)")
	clusterCmd.Flags().String("submit-cmd", "sbatch", "scheduler submission command")
	clusterCmd.Flags().String("job-script", "", "job script submitted with the runner arguments instead of --wrap")
	clusterCmd.Flags().StringArray("sbatch-arg", nil, "extra argument for both submissions (repeatable)")
	clusterCmd.Flags().String("runner", "", "task runner command line (default is this binary's 'task' command)")

	runCmd.AddCommand(localCmd, clusterCmd)
	return runCmd
}

// prepareRun loads the suite and stamps a new run.
func (a *app) prepareRun(args []string) (*engine.Run, engine.Invoker, error) {
	suitePath, err := filepath.Abs(args[0])
	if err != nil {
		return nil, engine.Invoker{}, err
	}
	resultsDir := defaultResultsDir
	if len(args) > 1 {
		resultsDir = args[1]
	}
	if resultsDir, err = filepath.Abs(resultsDir); err != nil {
		return nil, engine.Invoker{}, err
	}

	s, _, err := suite.Load(suitePath)
	if err != nil {
		return nil, engine.Invoker{}, err
	}

	runner, err := a.settings.RunnerArgs()
	if err != nil {
		return nil, engine.Invoker{}, configError(err)
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, engine.Invoker{}, fmt.Errorf("failed to locate suite-runner executable: %w", err)
	}
	invoker := engine.Invoker{Runner: runner, Executable: exe}
	return engine.NewRun(s, suitePath, resultsDir, time.Now()), invoker, nil
}
