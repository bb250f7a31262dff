/*
PURPOSE:
  Defines the 'runs' command group for the run ledger: list, show and
  status.

REQUIREMENTS:
  User-specified:
  - Follow a cluster run after submission returned.

  Implementation-discovered:
  - The run state is the array state while it is active, then the
    aggregation job's state.

ARCHITECTURE INTEGRATION:
  - Calls: internal/ledger, internal/engine.QueryJobStatus
  - Uses: internal/config cluster settings

ERROR HANDLING:
  - Ledger and scheduler errors are returned to the user.

USAGE:
  suite-runner runs list -n 5
  suite-runner runs status 1f2e3d4c

SELF-HEALING INSTRUCTIONS:
  - If a run id is not found, the ledger path may differ; pass --ledger.

RELATED FILES:
  - internal/ledger/ledger.go
  - internal/engine/status.go

MAINTENANCE:
  - Update when the ledger schema changes.
*/

package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/daryltucker/suite-runner/internal/config"
	"github.com/daryltucker/suite-runner/internal/engine"
	"github.com/daryltucker/suite-runner/internal/model"
)

func newRunsCmd(a *app) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect past dispatches recorded in the run ledger",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openLedger()
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSUITE\tBACKEND\tTASKS\tSTATUS\tCREATED\tRUN DIR")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
					shortID(r.ID), r.Suite, r.Backend, r.TaskCount, r.Status,
					r.CreatedAt.Local().Format(time.DateTime), r.RunDir)
			}
			return w.Flush()
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show (0 = all)")

	showCmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run and its task outcomes as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openLedger()
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tasks, err := store.Tasks(cmd.Context(), run.ID)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				*model.RunRecord
				Tasks []model.TaskOutcome `json:"tasks,omitempty"`
			}{run, tasks})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Ask the scheduler for the state of a cluster run's jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openLedger()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			run, err := store.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			if run.ArrayJobID == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Run %s (%s): %s\n", shortID(run.ID), run.Backend, run.Status)
				return nil
			}

			sched := schedulerFor(a.settings.Cluster)
			arrayState, err := engine.QueryJobStatus(ctx, run.ArrayJobID, sched)
			if err != nil {
				return fmt.Errorf("query job %s: %w", run.ArrayJobID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "array     %s  %s\n", run.ArrayJobID, arrayState)

			state := arrayState
			if run.AggregateJobID != "" {
				aggState, err := engine.QueryJobStatus(ctx, run.AggregateJobID, sched)
				if err != nil {
					return fmt.Errorf("query job %s: %w", run.AggregateJobID, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "aggregate %s  %s\n", run.AggregateJobID, aggState)
				if !engine.IsActiveStatus(arrayState) {
					state = aggState
				}
			}
			return store.UpdateStatus(ctx, run.ID, state)
		},
	}

	runsCmd.AddCommand(listCmd, showCmd, statusCmd)
	return runsCmd
}

func schedulerFor(c config.Cluster) engine.Scheduler {
	return engine.Scheduler{Submit: c.Submit, Queue: c.Queue, Acct: c.Acct}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
