/*
PURPOSE:
  Entry point for the Suite Runner application.
  Initializes the CLI root command and executes it.

REQUIREMENTS:
  User-specified:
  - Must serve as the single binary entry point.
  - Exit status tells scripts what kind of failure happened.

  Implementation-discovered:
  - Uses cobra for CLI command management.
  - The same binary is re-executed as the per-task runner ("task") and
    as the cluster aggregation job ("aggregate").

ARCHITECTURE INTEGRATION:
  - Calls: internal/cli.Execute(), internal/cli.ExitCode()
  - Depends on: internal/cli package

ERROR HANDLING:
  - Explicit error check on Execute(); exit status from cli.ExitCode.

IMPLEMENTATION RULES:
  - Critical: Keep main() minimal. All logic belongs in internal/ packages.
  - Do not put business logic here.

USAGE:
  go build -o suite-runner ./cmd/suite-runner
  ./suite-runner [command] [flags]

SELF-HEALING INSTRUCTIONS:
  - If the CLI fails to start, check internal/cli/root.go.
  - If imports fail, run `go mod tidy`.

RELATED FILES:
  - internal/cli/root.go - The actual root command definition.
  - internal/cli/exit.go - Exit status mapping.

MAINTENANCE:
  - Update when changing the CLI framework or signal handling.
*/

package main

import (
	"fmt"
	"os"

	"github.com/daryltucker/suite-runner/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.ExitCode(err))
	}
}
