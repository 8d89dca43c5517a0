package status

import (
	"math"
	"reflect"
	"testing"

	"github.com/gradometer/gradometer/internal/domain"
)

func almostEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9 {
			return false
		}
	}
	return true
}

func TestNormalizeMonetaryDerivation(t *testing.T) {
	m := Normalize(domain.Metrics{
		DDUMonthlyValues: []float64{30_000_000, 10_000_000, 5_000_000},
		GPRValue:         100,
	})

	want := []float64{30, 40, 45}
	if !almostEqual(m.DDUPaymentsPercent, want) {
		t.Errorf("derived shares %v, want %v", m.DDUPaymentsPercent, want)
	}
}

func TestNormalizeKeepsExplicitPercentages(t *testing.T) {
	in := domain.Metrics{
		DDUPaymentsPercent: []float64{10, 20, 30},
		DDUMonthlyValues:   []float64{90_000_000},
		GPRValue:           100,
	}

	m := Normalize(in)
	if !reflect.DeepEqual(m.DDUPaymentsPercent, in.DDUPaymentsPercent) {
		t.Error("explicit percentages must not be overwritten")
	}
}

func TestNormalizeSkipsZeroPlan(t *testing.T) {
	m := Normalize(domain.Metrics{DDUMonthlyValues: []float64{1_000_000}})
	if m.DDUPaymentsPercent != nil {
		t.Error("no shares can be derived without a plan value")
	}
}

func TestCumulativeSharesAll(t *testing.T) {
	shares := cumulativeSharesAll([]float64{50_000_000, 25_000_000}, 200)
	if !almostEqual(shares, []float64{25, 37.5}) {
		t.Errorf("got %v", shares)
	}
}

func TestPaymentTriple(t *testing.T) {
	t.Run("PercentPath", func(t *testing.T) {
		m := domain.Metrics{DDUPaymentsPercent: []float64{65, 55, 45, 40}}
		triple, ok := paymentTriple(&m)
		if !ok || triple != [3]float64{65, 55, 45} {
			t.Errorf("got %v, ok=%v", triple, ok)
		}
	})

	t.Run("InsufficientData", func(t *testing.T) {
		m := domain.Metrics{DDUPaymentsPercent: []float64{65, 55}}
		if _, ok := paymentTriple(&m); ok {
			t.Error("two months must not yield a triple")
		}
	})

	t.Run("MonetaryWins", func(t *testing.T) {
		m := domain.Metrics{
			DDUPaymentsPercent: []float64{1, 1, 1},
			DDUMonthlyValues:   []float64{30_000_000, 10_000_000, 5_000_000},
			GPRValue:           100,
		}
		triple, ok := paymentTriple(&m)
		if !ok || triple != [3]float64{30, 40, 45} {
			t.Errorf("got %v, ok=%v", triple, ok)
		}
	})
}

func TestMergeHistoryPayments(t *testing.T) {
	history := []domain.HistoryEntry{
		{Month: "202502", DDUPayment: 55},
		{Month: "202501", DDUPayment: 65},
		{Month: "202412", DDUPayment: 70},
	}

	t.Run("BackfillsTwoMonths", func(t *testing.T) {
		m := MergeHistoryPayments(domain.Metrics{DDUPaymentsPercent: []float64{45}}, history)
		want := []float64{65, 55, 45}
		if !almostEqual(m.DDUPaymentsPercent, want) {
			t.Errorf("got %v, want %v", m.DDUPaymentsPercent, want)
		}
	})

	t.Run("FullTripleUntouched", func(t *testing.T) {
		in := []float64{70, 60, 50}
		m := MergeHistoryPayments(domain.Metrics{DDUPaymentsPercent: in}, history)
		if !reflect.DeepEqual(m.DDUPaymentsPercent, in) {
			t.Error("three supplied months must pass through unchanged")
		}
	})

	t.Run("ShortHistory", func(t *testing.T) {
		m := MergeHistoryPayments(domain.Metrics{DDUPaymentsPercent: []float64{45}}, history[:1])
		want := []float64{55, 45}
		if !almostEqual(m.DDUPaymentsPercent, want) {
			t.Errorf("got %v, want %v", m.DDUPaymentsPercent, want)
		}
	})
}
