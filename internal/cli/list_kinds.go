/*
PURPOSE:
  Defines the 'list-kinds' subcommand.
  Shows which experiment kinds a suite's "kind" key can name.

REQUIREMENTS:
  User-specified:
  - List available experiment kinds.

  Implementation-discovered:
  - Useful check before writing a suite.

ARCHITECTURE INTEGRATION:
  - Calls: internal/experiment.Default().Kinds()

IMPLEMENTATION RULES:
  - Simple output to stdout, one kind per line.

USAGE:
  suite-runner list-kinds

SELF-HEALING INSTRUCTIONS:
  - If a kind is missing, check experiment.Default().

MAINTENANCE:
  - Update when the listing format changes.
*/

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daryltucker/suite-runner/internal/experiment"
)

func newListKindsCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list-kinds",
		Short: "List registered experiment kinds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, kind := range experiment.Default().Kinds() {
				fmt.Fprintf(cmd.OutOrStdout(), "- %s\n", kind)
			}
			return nil
		},
	}
}
