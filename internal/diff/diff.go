// Package diff compares consecutive monthly snapshots of a project and
// reports per-metric deltas, an overall trend and narrative warnings.
package diff

import (
	"fmt"

	"github.com/gradometer/gradometer/internal/domain"
)

// Metric keys used in change entries. Stable identifiers for API clients.
const (
	MetricSMR = "smrCompletion"
	MetricGPR = "gprDelayPercent"
	MetricDDU = "dduPayment"
)

// warnDeltaThreshold is the month-over-month movement, in points, past
// which a per-metric warning is emitted.
const warnDeltaThreshold = 5.0

// Compare diffs the current snapshot against the previous one. A nil
// previous snapshot yields an empty change list with a single first-report
// warning. Two snapshots sharing a month key indicate a deduplication
// failure upstream and yield a warning instead of a meaningless zero-diff.
func Compare(current domain.HistoryEntry, previous *domain.HistoryEntry) domain.ReportDiff {
	if previous == nil {
		return domain.ReportDiff{
			MonthCurrent: current.Month,
			OverallTrend: domain.OverallStable,
			Changes:      []domain.MetricChange{},
			Warnings:     []string{"first report for this project, nothing to compare"},
		}
	}

	if current.Month == previous.Month {
		return domain.ReportDiff{
			MonthCurrent: current.Month,
			OverallTrend: domain.OverallStable,
			Changes:      []domain.MetricChange{},
			Warnings:     []string{"duplicate month key in history, comparison skipped"},
		}
	}

	changes := []domain.MetricChange{
		metricChange(MetricSMR, previous.Metrics.SMRCompletion, current.Metrics.SMRCompletion, false),
		metricChange(MetricGPR, previous.Metrics.GPRDelayPercent, current.Metrics.GPRDelayPercent, true),
		metricChange(MetricDDU, previous.DDUPayment, current.DDUPayment, false),
	}

	var warnings []string
	if d := changes[0].Change; d < -warnDeltaThreshold {
		warnings = append(warnings, fmt.Sprintf("SMR completion dropped %.1f points over the month", -d))
	}
	if d := changes[1].Change; d > warnDeltaThreshold {
		warnings = append(warnings, fmt.Sprintf("schedule delay grew %.1f points over the month", d))
	}
	if d := changes[2].Change; d < -warnDeltaThreshold {
		warnings = append(warnings, fmt.Sprintf("DDU payment inflow dropped %.1f points over the month", -d))
	}

	warnings = append(warnings, tierWarnings(current.Tier, previous.Tier)...)

	return domain.ReportDiff{
		MonthCurrent:  current.Month,
		MonthPrevious: previous.Month,
		Changes:       changes,
		OverallTrend:  overallTrend(changes),
		Warnings:      warnings,
	}
}

// metricChange builds one per-metric delta entry. For inverted metrics a
// decrease counts as improvement (schedule delay shrinking is good news).
// Percentage change is 0 when the previous value is 0; a zero baseline
// carries no meaningful relative scale.
func metricChange(metric string, previous, current float64, inverted bool) domain.MetricChange {
	change := current - previous

	var changePercent float64
	if previous != 0 {
		changePercent = change / previous * 100
	}

	improvement := change > 0
	if inverted {
		improvement = change < 0
	}

	trend := domain.TrendStable
	icon := "➡️"
	switch {
	case change == 0:
	case improvement:
		trend = domain.TrendImproved
		icon = "📈"
	default:
		trend = domain.TrendDegraded
		icon = "📉"
	}

	prev := previous
	return domain.MetricChange{
		Metric:        metric,
		Previous:      &prev,
		Current:       current,
		Change:        change,
		ChangePercent: changePercent,
		Trend:         trend,
		Icon:          icon,
	}
}

// overallTrend is a majority vote among the per-metric trends; ties are
// stable.
func overallTrend(changes []domain.MetricChange) domain.OverallTrend {
	var improved, degraded int
	for _, c := range changes {
		switch c.Trend {
		case domain.TrendImproved:
			improved++
		case domain.TrendDegraded:
			degraded++
		}
	}

	switch {
	case degraded > improved:
		return domain.OverallDegrading
	case improved > degraded:
		return domain.OverallImproving
	default:
		return domain.OverallStable
	}
}

func tierWarnings(current, previous domain.RiskTier) []string {
	var warnings []string

	if current != previous {
		switch {
		case current == domain.TierCritical:
			warnings = append(warnings, "project entered critical state")
		case previous == domain.TierCritical:
			warnings = append(warnings, "project recovered from critical state")
		}
		return warnings
	}

	if current != domain.TierNormal {
		warnings = append(warnings, "status has not improved for a second consecutive month")
	}
	return warnings
}
