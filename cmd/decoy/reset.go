package main

import (
	"context"
	"flag"
	"fmt"
	"os"
)

// runResetCommand destroys every stored session row and rewrites the
// canonical header. Refuses to run without -yes.
func runResetCommand(ctx context.Context, args []string, quietLogs bool) int {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	yes := fs.Bool("yes", false, "confirm destruction of all stored session data")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if !*yes {
		fmt.Fprintln(os.Stderr, "reset destroys ALL stored session data; re-run with -yes to confirm")
		return 2
	}

	tracker, _, cleanup, err := openTracker(quietLogs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cleanup()

	if err := tracker.Reset(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "reset: %v\n", err)
		return 1
	}
	fmt.Println("store reset: all session data destroyed, schema rewritten")
	return 0
}
