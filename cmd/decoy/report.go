package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/basket/decoy/internal/report"
)

// runReportCommand generates the analytics report and CSV export once and
// exits. The same code path the in-process scheduler runs.
func runReportCommand(ctx context.Context, args []string, quietLogs bool) int {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	outDir := fs.String("out", "", "output directory (default: report.output_dir from config)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	tracker, cfg, cleanup, err := openTracker(quietLogs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cleanup()

	dir := cfg.Report.OutputDir
	if *outDir != "" {
		dir = *outDir
	}

	runner := report.NewRunner(tracker, dir, nil)
	rep, err := runner.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "report: %v\n", err)
		return 1
	}

	fmt.Printf("report written to %s\n", dir)
	fmt.Printf("sessions: %d, completed: %d, conversion: %.2f%%\n",
		rep.Basic.TotalSessions, rep.Basic.CompletedSessions, rep.Basic.ConversionRate)
	return 0
}
