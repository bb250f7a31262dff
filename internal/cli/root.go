/*
PURPOSE:
  Defines the root Cobra command for the Suite Runner CLI.
  Handles global flags, settings resolution and logger setup.

REQUIREMENTS:
  User-specified:
  - Provide a CLI interface.
  - Support global flags like --config, --log-level and --ledger.

  Implementation-discovered:
  - Needs to expose an Execute() function for main.go.
  - Settings must be resolved after flag parsing so set flags win over
    SUITE_RUNNER_* variables and the settings file.
  - Tests need a fresh command tree per case, so the tree is built by
    NewRootCmd instead of package-level vars.

ARCHITECTURE INTEGRATION:
  - Called by: cmd/suite-runner/main.go
  - Calls: Child commands (run, task, aggregate, validate, list-kinds,
    init, runs)
  - Uses: internal/config, internal/output, internal/ledger

ERROR HANDLING:
  - Returns error to main.go; ExitCode maps it to a process status.
  - Settings errors are wrapped as configuration errors.

IMPLEMENTATION RULES:
  - Use `PersistentFlags()` for flags available to all subcommands.
  - Keep Run logic in subcommands, Root only prepares shared state.

USAGE:
  Called by main.go.

SELF-HEALING INSTRUCTIONS:
  - If a flag seems ignored, check it is listed in flagKeys.

RELATED FILES:
  - cmd/suite-runner/main.go
  - internal/cli/exit.go
  - internal/config/config.go

MAINTENANCE:
  - Update when adding global flags or subcommands.
*/

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/daryltucker/suite-runner/internal/config"
	"github.com/daryltucker/suite-runner/internal/engine"
	"github.com/daryltucker/suite-runner/internal/ledger"
	"github.com/daryltucker/suite-runner/internal/output"
)

// flagKeys maps command-line flag names to settings keys. Each command binds
// the flags it defines.
var flagKeys = map[string]string{
	"log-level":      "log_level",
	"log-format":     "log_format",
	"ledger":         "ledger",
	"runner":         "runner",
	"env-file":       "env_file",
	"on-failure":     "on_failure",
	"submit-cmd":     "cluster.submit",
	"max-concurrent": "cluster.max_concurrent",
	"job-script":     "cluster.job_script",
	"sbatch-arg":     "cluster.extra_args",
}

// app is the state shared by the commands of one invocation.
type app struct {
	cfgFile  string
	settings *config.Settings
}

// Execute runs the CLI with os.Args, cancelling on SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd builds the full command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "suite-runner",
		Short: "Run experiment suites locally or as cluster job arrays",
		Long: `Suite Runner expands one declarative suite file into indexed tasks,
runs them sequentially on this machine or submits them as a scheduler job
array, and combines every task's results into a single report.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "settings file (default is ./suite-runner.yaml or ./.suite-runner.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().String("ledger", "", "run ledger database (default is ~/.suite-runner/runs.db)")

	rootCmd.AddCommand(
		newRunCmd(a),
		newTaskCmd(a),
		newAggregateCmd(a),
		newValidateCmd(a),
		newListKindsCmd(a),
		newInitCmd(a),
		newRunsCmd(a),
	)
	return rootCmd
}

// setup resolves settings for cmd and configures the logger.
func (a *app) setup(cmd *cobra.Command) error {
	l := config.NewLoader()
	for name, key := range flagKeys {
		if err := l.BindFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return err
		}
	}

	s, err := l.Load(a.cfgFile)
	if err != nil {
		return configError(err)
	}
	if err := output.Configure(s.LogLevel, s.LogFormat, cmd.ErrOrStderr()); err != nil {
		return configError(err)
	}
	if s.File != "" {
		output.Logger.Debug("Loaded settings", "file", s.File)
	}
	a.settings = s
	return nil
}

// ledgerPath is the configured ledger file or the default location.
func (a *app) ledgerPath() (string, error) {
	if a.settings.LedgerPath != "" {
		return a.settings.LedgerPath, nil
	}
	return ledger.DefaultPath()
}

// openLedger opens the ledger for commands that require it.
func (a *app) openLedger() (*ledger.Store, error) {
	path, err := a.ledgerPath()
	if err != nil {
		return nil, err
	}
	store, err := ledger.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %s: %w", path, err)
	}
	return store, nil
}

// recorder opens the ledger for a dispatch. A ledger that cannot be opened
// only costs the record of this run.
func (a *app) recorder() (engine.Recorder, func()) {
	store, err := a.openLedger()
	if err != nil {
		output.Logger.Warn("Run ledger unavailable", "error", err)
		return nil, func() {}
	}
	return store, func() { store.Close() }
}
