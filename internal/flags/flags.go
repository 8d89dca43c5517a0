// Package flags derives alert flags from a project's current snapshot and
// its recent history. Rules are independent: any subset can fire at once.
package flags

import (
	"fmt"
	"sort"
	"time"

	"github.com/gradometer/gradometer/internal/domain"
)

const (
	nearCriticalScore     = 45  // warning-tier score past which the near-critical flag fires
	criticalScoreCeiling  = 60  // informational distance target in the near-critical flag
	severeDelayThreshold  = 40.0
	lowInflowThreshold    = 30.0
	sustainedCriticalRuns = 3
	criticalRunCap        = domain.HistoryRetention
)

// Generate evaluates every flag rule against the current snapshot.
// previous may be nil for a project's first report.
func Generate(project *domain.Project, current domain.HistoryEntry, previous *domain.HistoryEntry) []domain.Flag {
	var out []domain.Flag
	now := time.Now()

	if current.Tier == domain.TierCritical && (previous == nil || previous.Tier != domain.TierCritical) {
		out = append(out, domain.Flag{
			ID:          "first-critical-" + current.Month,
			Type:        domain.FlagCritical,
			Title:       "First transition into critical state",
			Description: fmt.Sprintf("Project %s entered critical state for the first time, immediate review required", project.Name),
			Severity:    5,
			CreatedAt:   now,
			Icon:        "🚨",
		})
	}

	if current.Tier == domain.TierCritical {
		if run := criticalRun(project.History); run >= sustainedCriticalRuns {
			out = append(out, domain.Flag{
				ID:          "long-critical-" + current.Month,
				Type:        domain.FlagCritical,
				Title:       fmt.Sprintf("Project critical for %d consecutive months", run),
				Description: "Management intervention required",
				Severity:    5,
				CreatedAt:   now,
				Icon:        "🔴",
			})
		}
	}

	if previous != nil && current.Metrics.SMRCompletion < previous.Metrics.SMRCompletion-5 {
		drop := previous.Metrics.SMRCompletion - current.Metrics.SMRCompletion
		out = append(out, domain.Flag{
			ID:          "smr-degradation-" + current.Month,
			Type:        domain.FlagWarning,
			Title:       "SMR completion degrading",
			Description: fmt.Sprintf("SMR completion fell %.1f points, possible on-site delays", drop),
			Severity:    4,
			CreatedAt:   now,
			Icon:        "📉",
		})
	}

	if current.Tier == domain.TierWarning {
		score := int(current.Probability*100 + 0.5)
		if score > nearCriticalScore {
			out = append(out, domain.Flag{
				ID:          "near-critical-" + current.Month,
				Type:        domain.FlagWarning,
				Title:       "Project approaching critical state",
				Description: fmt.Sprintf("Risk score %d%%, %d points short of critical, close monitoring required", score, criticalScoreCeiling-score),
				Severity:    3,
				CreatedAt:   now,
				Icon:        "🟡",
			})
		}
	}

	if current.Metrics.GPRDelayPercent > severeDelayThreshold {
		out = append(out, domain.Flag{
			ID:          "high-gpr-delay-" + current.Month,
			Type:        domain.FlagWarning,
			Title:       "Severe schedule slip",
			Description: fmt.Sprintf("Schedule delay %.1f%% (%d days), deadline at risk", current.Metrics.GPRDelayPercent, current.Metrics.GPRDelayDays),
			Severity:    4,
			CreatedAt:   now,
			Icon:        "⏰",
		})
	}

	if current.DDUPayment < lowInflowThreshold {
		out = append(out, domain.Flag{
			ID:          "low-ddu-" + current.Month,
			Type:        domain.FlagWarning,
			Title:       "Critically low DDU payment inflow",
			Description: fmt.Sprintf("Only %.1f%% of planned payments received, financing at risk", current.DDUPayment),
			Severity:    4,
			CreatedAt:   now,
			Icon:        "💰",
		})
	}

	if current.Tier == domain.TierNormal && previous != nil && previous.Tier != domain.TierNormal {
		out = append(out, domain.Flag{
			ID:          "returned-to-normal-" + current.Month,
			Type:        domain.FlagInfo,
			Title:       "Project returned to normal state",
			Description: "Key metrics improved, project stabilized",
			Severity:    1,
			CreatedAt:   now,
			Icon:        "✅",
		})
	}

	if current.Tier == domain.TierNormal && current.Metrics.SMRCompletion >= 80 && current.Metrics.GPRDelayPercent < 10 {
		out = append(out, domain.Flag{
			ID:          "stable-progress-" + current.Month,
			Type:        domain.FlagInfo,
			Title:       "Stable project progress",
			Description: "SMR above 80% with schedule delay under 10%, project on plan",
			Severity:    1,
			CreatedAt:   now,
			Icon:        "📊",
		})
	}

	return out
}

// criticalRun counts consecutive critical entries from the newest end of
// history, capped at the retention window.
func criticalRun(history []domain.HistoryEntry) int {
	run := 0
	for i, h := range history {
		if i == criticalRunCap || h.Tier != domain.TierCritical {
			break
		}
		run++
	}
	return run
}

// Prioritize orders flags by descending severity, breaking ties by most
// recent creation time. The input slice is sorted in place and returned.
func Prioritize(list []domain.Flag) []domain.Flag {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Severity != list[j].Severity {
			return list[i].Severity > list[j].Severity
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}
