package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/basket/decoy/internal/report"
)

// runExportCommand writes the anonymized CSV to stdout or a file.
func runExportCommand(ctx context.Context, args []string, quietLogs bool) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	outPath := fs.String("out", "", "output file (default: stdout)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	tracker, _, cleanup, err := openTracker(quietLogs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cleanup()

	records, err := tracker.ReadAll(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read records: %v\n", err)
		return 1
	}

	var w io.Writer = os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create %s: %v\n", *outPath, err)
			return 1
		}
		defer f.Close()
		w = f
	}

	if err := report.WriteCSV(w, records); err != nil {
		fmt.Fprintf(os.Stderr, "export: %v\n", err)
		return 1
	}
	if *outPath != "" {
		fmt.Fprintf(os.Stderr, "exported %d records to %s\n", len(records), *outPath)
	}
	return 0
}
