package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds all decoy metrics instruments.
type Metrics struct {
	RequestDuration  metric.Float64Histogram
	VisitsTracked    metric.Int64Counter
	VisitsRejected   metric.Int64Counter
	UpsertDuration   metric.Float64Histogram
	UpsertErrors     metric.Int64Counter
	SchemaHeals      metric.Int64Counter
	ReportDuration   metric.Float64Histogram
	RateLimitRejects metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.RequestDuration, err = meter.Float64Histogram("decoy.request.duration",
		metric.WithDescription("Form request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.VisitsTracked, err = meter.Int64Counter("decoy.visits.tracked",
		metric.WithDescription("Page views accepted by the visit classifier"),
	)
	if err != nil {
		return nil, err
	}

	m.VisitsRejected, err = meter.Int64Counter("decoy.visits.rejected",
		metric.WithDescription("Page views rejected as bots or health checks"),
	)
	if err != nil {
		return nil, err
	}

	m.UpsertDuration, err = meter.Float64Histogram("decoy.upsert.duration",
		metric.WithDescription("Session upsert duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.UpsertErrors, err = meter.Int64Counter("decoy.upsert.errors",
		metric.WithDescription("Failed session upserts"),
	)
	if err != nil {
		return nil, err
	}

	m.SchemaHeals, err = meter.Int64Counter("decoy.schema.heals",
		metric.WithDescription("Destructive schema self-healing events"),
	)
	if err != nil {
		return nil, err
	}

	m.ReportDuration, err = meter.Float64Histogram("decoy.report.duration",
		metric.WithDescription("Batch report generation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.RateLimitRejects, err = meter.Int64Counter("decoy.ratelimit.rejects",
		metric.WithDescription("Requests rejected by rate limiter"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
