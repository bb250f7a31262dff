package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/daryltucker/suite-runner/internal/experiment"
	"github.com/daryltucker/suite-runner/internal/suite"
)

func newValidateCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <suite>",
		Short: "Check that every task of a suite resolves to a runnable experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, n, err := suite.Load(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Suite %s: %d tasks\n", s.Name, n)

			reg := experiment.Default()
			ts := suite.FormatTimestamp(time.Now())
			var errs []error
			for id := 1; id <= n; id++ {
				tc, err := suite.Resolve(s, id, ts, defaultResultsDir)
				if err == nil {
					_, err = reg.Build(tc)
				}
				if err != nil {
					fmt.Fprintf(out, "  task %d: FAIL %v\n", id, err)
					errs = append(errs, err)
					continue
				}
				fmt.Fprintf(out, "  task %d: %s %s\n", id, tc.Kind, formatParams(tc.Parameters))
			}
			return errors.Join(errs...)
		},
	}
}

func formatParams(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, params[k])
	}
	return strings.Join(parts, " ")
}
