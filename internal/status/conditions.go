package status

import (
	"fmt"

	"github.com/gradometer/gradometer/internal/domain"
)

// Condition thresholds per the supervisory methodology.
const (
	smrBaselineThreshold  = 80.0 // condition A: completion below this
	gprDelayThreshold     = 30.0 // conditions b1 and C
	lenderDelayThreshold  = 30   // condition b2, days
	complaintsThreshold   = 1    // conditions b3/d2: more than this
	ratingDropThreshold   = 20.0 // conditions b4/d3: at least this
	debtToEquityThreshold = 6.0  // condition b5
)

// Payment-pattern thresholds for the three cumulative DDU shares
// (conditions b6 and B-critical).
var paymentPatternThresholds = [3]float64{70, 60, 50}

// checkResult is the outcome of one condition evaluator: whether the
// condition is met plus the ordered justification trail.
type checkResult struct {
	met     bool
	reasons []domain.StatusReason
}

// subCondition is one entry of a first-match-OR rule table. The producer
// returns the reason only when the predicate holds.
type subCondition struct {
	tag   string
	check func(m *domain.Metrics) (bool, domain.StatusReason)
}

// evalFirstMatch walks an ordered rule table and stops at the first
// sub-condition that holds.
func evalFirstMatch(m *domain.Metrics, table []subCondition) checkResult {
	for _, sc := range table {
		if met, reason := sc.check(m); met {
			return checkResult{met: true, reasons: []domain.StatusReason{reason}}
		}
	}
	return checkResult{}
}

// conditionA is the baseline gate: SMR completion below 80%. Everything
// downstream is moot when A does not hold.
func conditionA(m *domain.Metrics) checkResult {
	if m.SMRCompletion >= smrBaselineThreshold {
		return checkResult{}
	}
	return checkResult{
		met: true,
		reasons: []domain.StatusReason{{
			Reason:    fmt.Sprintf("Condition A: SMR completion below 80%% (current %.1f%%)", m.SMRCompletion),
			Metric:    "smrCompletion",
			Value:     fmt.Sprintf("%.1f%%", m.SMRCompletion),
			Threshold: "80%",
			Condition: "A",
		}},
	}
}

// warningTable is the fixed-order b1..b6 rule table for the Warning tier.
// First match wins.
var warningTable = []subCondition{
	{tag: "b1", check: func(m *domain.Metrics) (bool, domain.StatusReason) {
		if m.GPRDelayPercent <= gprDelayThreshold {
			return false, domain.StatusReason{}
		}
		return true, domain.StatusReason{
			Reason:    fmt.Sprintf("Condition b1: schedule delay above 30%% (current %.1f%%)", m.GPRDelayPercent),
			Metric:    "gprDelayPercent",
			Value:     fmt.Sprintf("%.1f%%", m.GPRDelayPercent),
			Threshold: "30%",
			Condition: "b1",
		}
	}},
	{tag: "b2", check: func(m *domain.Metrics) (bool, domain.StatusReason) {
		if m.LenderDelayDays <= lenderDelayThreshold {
			return false, domain.StatusReason{}
		}
		return true, domain.StatusReason{
			Reason:    fmt.Sprintf("Condition b2: loan payments overdue more than 30 days (current %d days)", m.LenderDelayDays),
			Metric:    "lenderDelayDays",
			Condition: "b2",
		}
	}},
	{tag: "b3", check: func(m *domain.Metrics) (bool, domain.StatusReason) {
		if m.ComplaintsCount <= complaintsThreshold {
			return false, domain.StatusReason{}
		}
		return true, domain.StatusReason{
			Reason:    fmt.Sprintf("Condition b3: more than one official buyer complaint (current %d)", m.ComplaintsCount),
			Metric:    "complaintsCount",
			Condition: "b3",
		}
	}},
	{tag: "b4", check: func(m *domain.Metrics) (bool, domain.StatusReason) {
		if m.RatingDrop < ratingDropThreshold {
			return false, domain.StatusReason{}
		}
		return true, domain.StatusReason{
			Reason:    fmt.Sprintf("Condition b4: counterparty rating dropped %.0f points (threshold 20)", m.RatingDrop),
			Metric:    "ratingDrop",
			Condition: "b4",
		}
	}},
	{tag: "b5", check: func(m *domain.Metrics) (bool, domain.StatusReason) {
		if m.DebtToEquity <= debtToEquityThreshold {
			return false, domain.StatusReason{}
		}
		return true, domain.StatusReason{
			Reason:    fmt.Sprintf("Condition b5: debt-to-equity ratio above 6 (current %.2f)", m.DebtToEquity),
			Metric:    "debtToEquity",
			Condition: "b5",
		}
	}},
	{tag: "b6", check: func(m *domain.Metrics) (bool, domain.StatusReason) {
		triple, ok := paymentTriple(m)
		if !ok || !patternBelow(triple) {
			return false, domain.StatusReason{}
		}
		return true, domain.StatusReason{
			Reason: fmt.Sprintf("Condition b6: cumulative DDU inflow shares below 70%%/60%%/50%% (M1 %.1f%%, M1+M2 %.1f%%, M1+M2+M3 %.1f%%)",
				triple[0], triple[1], triple[2]),
			Metric:    "dduPaymentsPercent",
			Condition: "b6",
		}
	}},
}

// conditionBWarning evaluates the six Warning sub-conditions in fixed
// order, short-circuiting on the first match.
func conditionBWarning(m *domain.Metrics) checkResult {
	return evalFirstMatch(m, warningTable)
}

// patternBelow reports whether all three cumulative shares fall under the
// 70/60/50 pattern.
func patternBelow(triple [3]float64) bool {
	for i, threshold := range paymentPatternThresholds {
		if triple[i] >= threshold {
			return false
		}
	}
	return true
}

// conditionBCritical applies the same three-threshold payment pattern as
// b6 but standalone, producing reasons for both acceptance and rejection.
// With fewer than three months of data the condition is not met and no
// reason is emitted.
func conditionBCritical(m *domain.Metrics) checkResult {
	triple, ok := paymentTriple(m)
	if !ok {
		return checkResult{}
	}

	if patternBelow(triple) {
		return checkResult{
			met: true,
			reasons: []domain.StatusReason{{
				Reason:    "Condition B (critical): cumulative DDU inflows match the below-70%/60%/50% pattern",
				Metric:    "dduPaymentsPercent",
				Value:     fmt.Sprintf("M1 %.1f%% | M1+M2 %.1f%% | M1+M2+M3 %.1f%%", triple[0], triple[1], triple[2]),
				Condition: "B",
			}},
		}
	}

	var failed []string
	labels := [3]string{"M1", "M1+M2", "M1+M2+M3"}
	for i, threshold := range paymentPatternThresholds {
		if triple[i] >= threshold {
			failed = append(failed, fmt.Sprintf("%s %.1f%% >= %.0f%%", labels[i], triple[i], threshold))
		}
	}

	return checkResult{
		reasons: []domain.StatusReason{{
			Reason:    "Condition B (critical) not met: " + joinReasons(failed),
			Metric:    "dduPaymentsPercent",
			Condition: "B_not_met",
		}},
	}
}

func joinReasons(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " | "
		}
		out += p
	}
	return out
}

// conditionC requires schedule delay above 30% as a precondition for the
// Critical tier. Same field as b1, different semantic role.
func conditionC(m *domain.Metrics) checkResult {
	if m.GPRDelayPercent <= gprDelayThreshold {
		return checkResult{}
	}
	return checkResult{
		met: true,
		reasons: []domain.StatusReason{{
			Reason:    fmt.Sprintf("Condition C: schedule delay above 30%% (current %.1f%%)", m.GPRDelayPercent),
			Metric:    "gprDelayPercent",
			Condition: "C",
		}},
	}
}

// criticalDTable is the fixed-order d1..d4 rule table. First match wins.
var criticalDTable = []subCondition{
	{tag: "d1", check: func(m *domain.Metrics) (bool, domain.StatusReason) {
		if !m.GuaranteeExtension {
			return false, domain.StatusReason{}
		}
		return true, domain.StatusReason{
			Reason:    "Condition d1: project guarantee was extended",
			Metric:    "guaranteeExtension",
			Condition: "d1",
		}
	}},
	{tag: "d2", check: func(m *domain.Metrics) (bool, domain.StatusReason) {
		if m.ComplaintsCount <= complaintsThreshold {
			return false, domain.StatusReason{}
		}
		return true, domain.StatusReason{
			Reason:    fmt.Sprintf("Condition d2: more than one official buyer complaint (current %d)", m.ComplaintsCount),
			Metric:    "complaintsCount",
			Condition: "d2",
		}
	}},
	{tag: "d3", check: func(m *domain.Metrics) (bool, domain.StatusReason) {
		if m.RatingDrop < ratingDropThreshold {
			return false, domain.StatusReason{}
		}
		return true, domain.StatusReason{
			Reason:    fmt.Sprintf("Condition d3: counterparty rating dropped %.0f points (threshold 20)", m.RatingDrop),
			Metric:    "ratingDrop",
			Condition: "d3",
		}
	}},
	{tag: "d4", check: func(m *domain.Metrics) (bool, domain.StatusReason) {
		if m.LenderDelayDays <= 0 {
			return false, domain.StatusReason{}
		}
		return true, domain.StatusReason{
			Reason:    fmt.Sprintf("Condition d4: loan payments overdue by %d days", m.LenderDelayDays),
			Metric:    "lenderDelayDays",
			Condition: "d4",
		}
	}},
}

// conditionD evaluates the automatic d1..d4 sub-conditions.
func conditionD(m *domain.Metrics) checkResult {
	return evalFirstMatch(m, criticalDTable)
}

// mergeManualD combines the automatic D result with reviewer-supplied
// override flags via logical OR. Manual reasons are appended after the
// automatic ones so the audit trail distinguishes their origin.
func mergeManualD(auto checkResult, manual *domain.ManualFlags) checkResult {
	if !manual.Any() {
		return auto
	}

	merged := checkResult{
		met:     true,
		reasons: append([]domain.StatusReason{}, auto.reasons...),
	}
	if manual.D1GuaranteeCase {
		merged.reasons = append(merged.reasons, domain.StatusReason{
			Reason: "Reviewer flagged d1 (guarantee extension)", Condition: "d1",
		})
	}
	if manual.D2Complaints {
		merged.reasons = append(merged.reasons, domain.StatusReason{
			Reason: "Reviewer flagged d2 (buyer complaints)", Condition: "d2",
		})
	}
	if manual.D3RatingDrop {
		merged.reasons = append(merged.reasons, domain.StatusReason{
			Reason: "Reviewer flagged d3 (rating drop)", Condition: "d3",
		})
	}
	if manual.D4LoanDelinquent {
		merged.reasons = append(merged.reasons, domain.StatusReason{
			Reason: "Reviewer flagged d4 (loan delinquency)", Condition: "d4",
		})
	}
	return merged
}
