/*
PURPOSE:
  Defines the 'aggregate' command, which combines a run directory's
  per-task artifacts into one report and a CSV table.

REQUIREMENTS:
  User-specified:
  - Skips malformed artifacts with a warning.
  - A missing directory fails this step only.

  Implementation-discovered:
  - This is what the dependent cluster job runs.

ARCHITECTURE INTEGRATION:
  - Started by: internal/engine/cluster.go (aggregation job)
  - Calls: internal/aggregate.Summary

ERROR HANDLING:
  - *aggregate.AggregationError maps to the aggregation exit status.

USAGE:
  suite-runner aggregate results/demo_20260102-030405 --no-csv

SELF-HEALING INSTRUCTIONS:
  - If the report is empty, check the artifact names match
    <digits>_results.json.

RELATED FILES:
  - internal/aggregate/aggregate.go

MAINTENANCE:
  - Update when report formats are added.
*/

package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/daryltucker/suite-runner/internal/aggregate"
)

func newAggregateCmd(_ *app) *cobra.Command {
	var reportPath, csvPath string
	var noCSV bool

	cmd := &cobra.Command{
		Use:   "aggregate <dir>",
		Short: "Combine the per-task results in a run directory",
		Long: `Reads every <id>_results.json directly inside <dir> and writes one report
keyed "<id>_model". Unreadable or malformed result files are skipped with a
warning. A flat CSV of the metrics is written next to the report.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			if reportPath == "" {
				reportPath = filepath.Join(dir, aggregate.ReportName)
			}
			if csvPath == "" && !noCSV {
				csvPath = filepath.Join(filepath.Dir(reportPath), aggregate.CSVName)
			}
			if noCSV {
				csvPath = ""
			}

			res, err := aggregate.Summary(dir, reportPath, csvPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Combined %d results into %s\n", res.Combined(), reportPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&reportPath, "output", "o", "", "report path (default <dir>/"+aggregate.ReportName+")")
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV path (default next to the report)")
	cmd.Flags().BoolVar(&noCSV, "no-csv", false, "do not write the CSV table")
	return cmd
}
