// Package report computes funnel and demographic aggregates over the
// collected session records and renders them as a markdown report plus an
// anonymized CSV export. It is a pure consumer of the grid: it never
// writes session data.
package report

import (
	"sort"
	"time"

	"github.com/basket/decoy/internal/tracking"
)

// Report is the full set of aggregates for one batch run.
type Report struct {
	GeneratedAt  time.Time
	Basic        BasicMetrics
	Funnel       FunnelMetrics
	Locations    LocationMetrics
	Demographics DemographicMetrics
	Temporal     TemporalMetrics
}

type BasicMetrics struct {
	TotalSessions     int
	CompletedSessions int
	// ConversionRate is completed/total as a percentage.
	ConversionRate float64
}

// FunnelMetrics counts sessions that reached at least each stage, so a
// fully completed session is counted in every stage.
type FunnelMetrics struct {
	PageOpens       int
	FormStarts      int
	Step2Completes  int
	FullCompletes   int
	StatusBreakdown map[tracking.Status]int
}

type LocationMetrics struct {
	// Counts is sessions per QR location.
	Counts map[string]int
	// Conversion is the completion percentage per QR location.
	Conversion map[string]float64
}

type DemographicMetrics struct {
	AgeDistribution       map[string]int
	GenderDistribution    map[string]int
	EducationDistribution map[string]int
}

type TemporalMetrics struct {
	// RecentActivity is sessions opened in the 7 days before now.
	RecentActivity int
	// DailyTrend is recent sessions per day, keyed YYYY-MM-DD.
	DailyTrend map[string]int
}

var statusStageRank = map[tracking.Status]int{
	tracking.StatusPageOpened:     1,
	tracking.StatusFormStarted:    2,
	tracking.StatusStep2Completed: 3,
	tracking.StatusFullyCompleted: 4,
}

// Compute builds the full report from the record set. now anchors the
// temporal window.
func Compute(records []tracking.SessionRecord, now time.Time) Report {
	rep := Report{
		GeneratedAt: now,
		Funnel: FunnelMetrics{
			StatusBreakdown: make(map[tracking.Status]int),
		},
		Locations: LocationMetrics{
			Counts:     make(map[string]int),
			Conversion: make(map[string]float64),
		},
		Demographics: DemographicMetrics{
			AgeDistribution:       make(map[string]int),
			GenderDistribution:    make(map[string]int),
			EducationDistribution: make(map[string]int),
		},
		Temporal: TemporalMetrics{
			DailyTrend: make(map[string]int),
		},
	}

	locationTotals := make(map[string]int)
	locationCompleted := make(map[string]int)
	weekAgo := now.AddDate(0, 0, -7)

	for _, rec := range records {
		rep.Basic.TotalSessions++
		if rec.Completed {
			rep.Basic.CompletedSessions++
		}

		rank := statusStageRank[rec.Status]
		if rank >= 1 {
			rep.Funnel.PageOpens++
		}
		if rank >= 2 {
			rep.Funnel.FormStarts++
		}
		if rank >= 3 {
			rep.Funnel.Step2Completes++
		}
		if rank >= 4 {
			rep.Funnel.FullCompletes++
		}
		if rec.Status != "" {
			rep.Funnel.StatusBreakdown[rec.Status]++
		}

		if rec.QRLocation != "" {
			locationTotals[rec.QRLocation]++
			if rec.Completed {
				locationCompleted[rec.QRLocation]++
			}
		}
		if rec.AgeRange != "" {
			rep.Demographics.AgeDistribution[rec.AgeRange]++
		}
		if rec.Gender != "" {
			rep.Demographics.GenderDistribution[rec.Gender]++
		}
		if rec.Education != "" {
			rep.Demographics.EducationDistribution[rec.Education]++
		}

		if !rec.PageOpenedAt.IsZero() && !rec.PageOpenedAt.Before(weekAgo) {
			rep.Temporal.RecentActivity++
			day := rec.PageOpenedAt.UTC().Format("2006-01-02")
			rep.Temporal.DailyTrend[day]++
		}
	}

	if rep.Basic.TotalSessions > 0 {
		rep.Basic.ConversionRate = float64(rep.Basic.CompletedSessions) / float64(rep.Basic.TotalSessions) * 100
	}
	for loc, total := range locationTotals {
		rep.Locations.Counts[loc] = total
		if total > 0 {
			rep.Locations.Conversion[loc] = float64(locationCompleted[loc]) / float64(total) * 100
		}
	}

	return rep
}

// rankedLocation pairs a QR location with its conversion rate for sorting.
type rankedLocation struct {
	Location   string
	Conversion float64
	Count      int
}

// rankedLocations returns locations sorted by conversion rate descending,
// ties broken by count then name so the report is deterministic.
func (r Report) rankedLocations() []rankedLocation {
	out := make([]rankedLocation, 0, len(r.Locations.Counts))
	for loc, count := range r.Locations.Counts {
		out = append(out, rankedLocation{
			Location:   loc,
			Conversion: r.Locations.Conversion[loc],
			Count:      count,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Conversion != out[j].Conversion {
			return out[i].Conversion > out[j].Conversion
		}
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Location < out[j].Location
	})
	return out
}

// topKey returns the most frequent key of a distribution, ties broken
// alphabetically. ok is false for an empty distribution.
func topKey(dist map[string]int) (string, bool) {
	best := ""
	bestCount := -1
	for k, v := range dist {
		if v > bestCount || (v == bestCount && k < best) {
			best, bestCount = k, v
		}
	}
	return best, bestCount >= 0
}

// sortedKeys returns the distribution keys in lexical order, which is
// chronological for YYYY-MM-DD day keys.
func sortedKeys(dist map[string]int) []string {
	keys := make([]string, 0, len(dist))
	for k := range dist {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
