/*
PURPOSE:
  Streams a child's stdout and stderr line by line to the caller's
  writers while the child runs.

REQUIREMENTS:
  User-specified:
  - Task output is visible as it is produced, not after the task ends.

  Implementation-discovered:
  - Both pipes must be drained concurrently or a chatty child blocks.
  - Lines from the two streams must not interleave mid-line.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/local.go
  - Uses: golang.org/x/sync/errgroup

ERROR HANDLING:
  - EOF and a read end closed by the caller are normal ends.
  - A writer error stops writing but keeps draining the pipe.

IMPLEMENTATION RULES:
  - One mutex guards both writers.

USAGE:
  err := streamOutput(outR, errR, os.Stdout, os.Stderr)

SELF-HEALING INSTRUCTIONS:
  - If output arrives in bursts, the child is buffering; it is not this
    code.

RELATED FILES:
  - internal/engine/local.go

MAINTENANCE:
  - Update when adding per-task output prefixes or log capture.
*/

package engine

import (
	"bufio"
	"errors"
	"io"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"
)

// streamOutput copies a child's stdout and stderr to out and errOut as the
// child produces them. Both streams are read concurrently so a child that
// fills one pipe while we wait on the other cannot stall. Writes happen a
// whole line at a time under one lock.
func streamOutput(stdout, stderr io.Reader, out, errOut io.Writer) error {
	var mu sync.Mutex
	var g errgroup.Group
	g.Go(func() error { return copyLines(stdout, out, &mu) })
	g.Go(func() error { return copyLines(stderr, errOut, &mu) })
	return g.Wait()
}

func copyLines(r io.Reader, w io.Writer, mu *sync.Mutex) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			mu.Lock()
			_, werr := w.Write(line)
			mu.Unlock()
			if werr != nil {
				// Keep draining so the child never blocks on a full pipe.
				_, _ = io.Copy(io.Discard, br)
				return werr
			}
		}
		if err != nil {
			// The read end is closed by us when a task's descendants keep
			// the write end open past the grace period.
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}
