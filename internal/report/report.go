package report

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/basket/decoy/internal/tracking"
)

const (
	reportFileName = "analytics-report.md"
	exportDirName  = "data"
	exportFileName = "decoy_data_anonymous.csv"
)

// RecordSource yields the full record set for a batch run. *tracking.Tracker
// satisfies it.
type RecordSource interface {
	ReadAll(ctx context.Context) ([]tracking.SessionRecord, error)
}

// Runner reads the record set, computes the report, and writes the
// markdown report plus the anonymized CSV export under OutputDir.
type Runner struct {
	Source    RecordSource
	OutputDir string
	Logger    *slog.Logger

	// ReportDuration, when set, records batch run durations.
	ReportDuration metric.Float64Histogram

	now func() time.Time
}

func NewRunner(source RecordSource, outputDir string, logger *slog.Logger) *Runner {
	return &Runner{
		Source:    source,
		OutputDir: outputDir,
		Logger:    logger,
		now:       time.Now,
	}
}

// Run executes one batch cycle and returns the computed report.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	start := r.now()

	records, err := r.Source.ReadAll(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("read records: %w", err)
	}

	rep := Compute(records, r.now())

	if err := os.MkdirAll(r.OutputDir, 0o755); err != nil {
		return Report{}, fmt.Errorf("create output dir: %w", err)
	}
	reportPath := filepath.Join(r.OutputDir, reportFileName)
	if err := os.WriteFile(reportPath, []byte(Render(rep)), 0o644); err != nil {
		return Report{}, fmt.Errorf("write report: %w", err)
	}

	exportDir := filepath.Join(r.OutputDir, exportDirName)
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return Report{}, fmt.Errorf("create export dir: %w", err)
	}
	exportPath := filepath.Join(exportDir, exportFileName)
	f, err := os.Create(exportPath)
	if err != nil {
		return Report{}, fmt.Errorf("create export file: %w", err)
	}
	if err := WriteCSV(f, records); err != nil {
		f.Close()
		return Report{}, fmt.Errorf("write export: %w", err)
	}
	if err := f.Close(); err != nil {
		return Report{}, fmt.Errorf("close export file: %w", err)
	}

	elapsed := r.now().Sub(start)
	if r.ReportDuration != nil {
		r.ReportDuration.Record(ctx, elapsed.Seconds())
	}
	if r.Logger != nil {
		r.Logger.Info("report generated",
			"report", reportPath,
			"export", exportPath,
			"sessions", rep.Basic.TotalSessions,
			"completed", rep.Basic.CompletedSessions,
			"duration_ms", elapsed.Milliseconds(),
		)
	}
	return rep, nil
}
