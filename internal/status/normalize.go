// Package status implements the risk-tier classification engine for
// construction projects: metric normalization, the A/B/C/D condition
// evaluators, and the tier state machine.
package status

import (
	"github.com/gradometer/gradometer/internal/domain"
)

// minorUnitsPerMillion converts raw inflows (minor currency units) to the
// plan's "millions" unit. Domain convention, not configurable.
const minorUnitsPerMillion = 1_000_000

// Normalize coerces a possibly-partial metrics structure into canonical
// form. Missing numerics stay zero; when raw monthly inflows and a plan
// value are present and no precomputed percentages were supplied, the
// cumulative payment shares are derived from the monetary path.
//
// Canonical DDU ordering is oldest to newest. Callers that accumulate
// history newest-first must reverse before building Metrics.
func Normalize(m domain.Metrics) domain.Metrics {
	if len(m.DDUPaymentsPercent) == 0 && len(m.DDUMonthlyValues) > 0 && m.GPRValue > 0 {
		m.DDUPaymentsPercent = cumulativeSharesAll(m.DDUMonthlyValues, m.GPRValue)
	}
	return m
}

// cumulativeSharesAll computes share(k) = sum(inflows 1..k) / plan * 100
// for every month, converting inflows from minor currency units first.
func cumulativeSharesAll(monthly []float64, plan float64) []float64 {
	shares := make([]float64, len(monthly))
	var running float64
	for i, v := range monthly {
		running += v / minorUnitsPerMillion
		shares[i] = running / plan * 100
	}
	return shares
}

// paymentTriple returns the first three cumulative DDU shares, preferring
// the monetary-conversion path over precomputed percentages. ok is false
// when neither representation carries three months of data.
func paymentTriple(m *domain.Metrics) (triple [3]float64, ok bool) {
	if len(m.DDUMonthlyValues) >= 3 && m.GPRValue > 0 {
		shares := cumulativeSharesAll(m.DDUMonthlyValues[:3], m.GPRValue)
		copy(triple[:], shares)
		return triple, true
	}
	if len(m.DDUPaymentsPercent) >= 3 {
		copy(triple[:], m.DDUPaymentsPercent[:3])
		return triple, true
	}
	return triple, false
}

// hasPaymentTriple reports whether three months of DDU data exist in either
// representation.
func hasPaymentTriple(m *domain.Metrics) bool {
	_, ok := paymentTriple(m)
	return ok
}

// MergeHistoryPayments backfills the DDU share sequence from retained
// history when the incoming report alone carries fewer than three months.
// History is stored newest first; the merge takes the current month's value
// followed by up to two prior months, then reverses into canonical
// oldest-to-newest order.
func MergeHistoryPayments(m domain.Metrics, history []domain.HistoryEntry) domain.Metrics {
	if len(m.DDUPaymentsPercent) >= 3 {
		return m
	}

	newestFirst := []float64{m.LatestDDUPayment()}
	for _, h := range history {
		if len(newestFirst) == 3 {
			break
		}
		newestFirst = append(newestFirst, h.DDUPayment)
	}

	merged := make([]float64, len(newestFirst))
	for i, v := range newestFirst {
		merged[len(newestFirst)-1-i] = v
	}
	m.DDUPaymentsPercent = merged
	return m
}
