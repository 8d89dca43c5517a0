package status

import (
	"reflect"
	"testing"

	"github.com/gradometer/gradometer/internal/domain"
)

// criticalMetrics returns a snapshot satisfying all four conditions:
// A (SMR < 80), B (payment pattern), C (delay > 30) and D (d1).
func criticalMetrics() domain.Metrics {
	return domain.Metrics{
		SMRCompletion:      50,
		GPRDelayPercent:    35,
		DDUPaymentsPercent: []float64{65, 55, 45},
		GuaranteeExtension: true,
	}
}

func TestClassifyBaselineGate(t *testing.T) {
	// SMR at or above 80 short-circuits to Normal regardless of anything else.
	cases := []struct {
		name string
		m    domain.Metrics
	}{
		{"CleanProject", domain.Metrics{SMRCompletion: 95}},
		{"ExactThreshold", domain.Metrics{SMRCompletion: 80}},
		{"EverythingElseBad", domain.Metrics{
			SMRCompletion:      85,
			GPRDelayPercent:    90,
			DDUPaymentsPercent: []float64{10, 10, 10},
			GuaranteeExtension: true,
			ComplaintsCount:    5,
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := Classify(tc.m, nil, nil)
			if result.Tier != domain.TierNormal {
				t.Errorf("expected normal, got %s", result.Tier)
			}
			if result.Probability != 0.05 {
				t.Errorf("expected probability 0.05, got %.2f", result.Probability)
			}
			if result.Needs3Reports {
				t.Error("baseline gate must not set needs3Reports")
			}
		})
	}
}

func TestClassifyDelayAlwaysAtLeastWarning(t *testing.T) {
	// SMR < 80 plus delay > 30 satisfies b1 and can never stay Normal.
	result := Classify(domain.Metrics{
		SMRCompletion:   40,
		GPRDelayPercent: 31,
	}, nil, nil)

	if result.Tier == domain.TierNormal {
		t.Fatalf("expected at least warning, got %s", result.Tier)
	}
}

func TestClassifyCritical(t *testing.T) {
	result := Classify(criticalMetrics(), nil, nil)

	if result.Tier != domain.TierCritical {
		t.Fatalf("expected critical, got %s (reasons: %+v)", result.Tier, result.Reasons)
	}
	if result.Probability != 1.0 {
		t.Errorf("expected probability 1.0, got %.2f", result.Probability)
	}

	// The confirmation block lists all four conditions after the evidence.
	var confirmed []string
	for _, r := range result.Reasons {
		switch r.Condition {
		case "a_met", "b_critical_met", "c_met", "d_met":
			confirmed = append(confirmed, r.Condition)
		}
	}
	want := []string{"a_met", "b_critical_met", "c_met", "d_met"}
	if !reflect.DeepEqual(confirmed, want) {
		t.Errorf("expected confirmation block %v, got %v", want, confirmed)
	}
}

func TestClassifyCriticalRequiresConjunction(t *testing.T) {
	// Flipping any one of B, C, D to false must never yield Critical.
	cases := []struct {
		name   string
		mutate func(m *domain.Metrics)
		want   domain.RiskTier
	}{
		{
			// Pattern broken (M1 >= 70); b1 still fires via the delay.
			name:   "WithoutB",
			mutate: func(m *domain.Metrics) { m.DDUPaymentsPercent = []float64{75, 55, 45} },
			want:   domain.TierWarning,
		},
		{
			// Delay drops below 30; b6 still fires via the payment pattern.
			name:   "WithoutC",
			mutate: func(m *domain.Metrics) { m.GPRDelayPercent = 20 },
			want:   domain.TierWarning,
		},
		{
			// No d sub-condition; b1 still fires via the delay.
			name:   "WithoutD",
			mutate: func(m *domain.Metrics) { m.GuaranteeExtension = false },
			want:   domain.TierWarning,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := criticalMetrics()
			tc.mutate(&m)
			result := Classify(m, nil, nil)
			if result.Tier == domain.TierCritical {
				t.Fatal("conjunction violated: got critical with one condition flipped")
			}
			if result.Tier != tc.want {
				t.Errorf("expected %s, got %s", tc.want, result.Tier)
			}
		})
	}
}

func TestClassifyInsufficientHistory(t *testing.T) {
	// Single DDU point and none of b1..b5 met: Normal with needs3Reports.
	result := Classify(domain.Metrics{
		SMRCompletion:      46.69,
		GPRDelayPercent:    13.33,
		DDUPaymentsPercent: []float64{47.07},
	}, nil, nil)

	if result.Tier != domain.TierNormal {
		t.Fatalf("expected normal, got %s", result.Tier)
	}
	if !result.Needs3Reports {
		t.Error("expected needs3Reports to be set")
	}
	if result.Probability != 0.10 {
		t.Errorf("expected probability 0.10, got %.2f", result.Probability)
	}
}

func TestClassifyWarningDespiteInsufficientHistory(t *testing.T) {
	// b1..b5 can still trigger Warning with fewer than 3 DDU points.
	result := Classify(domain.Metrics{
		SMRCompletion:      46.69,
		GPRDelayPercent:    45,
		DDUPaymentsPercent: []float64{47.07},
	}, nil, nil)

	if result.Tier != domain.TierWarning {
		t.Fatalf("expected warning via b1, got %s", result.Tier)
	}
	if result.Probability != 0.6 {
		t.Errorf("expected probability 0.6, got %.2f", result.Probability)
	}
}

func TestClassifyMonetaryPath(t *testing.T) {
	// Raw inflows in minor currency units with a plan value in millions:
	// cumulative shares 30%, 40%, 45% all sit under the 70/60/50 pattern.
	m := domain.Metrics{
		SMRCompletion:    50,
		GPRDelayPercent:  35,
		DDUMonthlyValues: []float64{30_000_000, 10_000_000, 5_000_000},
		GPRValue:         100,
		LenderDelayDays:  10, // d4
	}

	result := Classify(m, nil, nil)
	if result.Tier != domain.TierCritical {
		t.Fatalf("expected critical via monetary path, got %s (reasons: %+v)", result.Tier, result.Reasons)
	}
}

func TestClassifyManualOverride(t *testing.T) {
	m := domain.Metrics{
		SMRCompletion:      50,
		GPRDelayPercent:    35,
		DDUPaymentsPercent: []float64{65, 55, 45},
		// No automatic d sub-condition.
	}

	auto := Classify(m, nil, nil)
	if auto.Tier != domain.TierWarning {
		t.Fatalf("expected warning without manual flags, got %s", auto.Tier)
	}

	manual := Classify(m, nil, &domain.ManualFlags{D2Complaints: true})
	if manual.Tier != domain.TierCritical {
		t.Fatalf("expected critical with manual d2, got %s", manual.Tier)
	}

	var found bool
	for _, r := range manual.Reasons {
		if r.Reason == "Reviewer flagged d2 (buyer complaints)" {
			found = true
		}
	}
	if !found {
		t.Error("expected a distinct manual-flag reason in the trail")
	}
}

func TestClassifyHistoryBackfill(t *testing.T) {
	// One DDU point in the report plus two prior months in history gives
	// the classifier its three-month pattern: 65 (oldest), 55, 45.
	history := []domain.HistoryEntry{
		{Month: "202502", DDUPayment: 55},
		{Month: "202501", DDUPayment: 65},
	}
	m := domain.Metrics{
		SMRCompletion:      50,
		GPRDelayPercent:    35,
		DDUPaymentsPercent: []float64{45},
		GuaranteeExtension: true,
	}

	result := Classify(m, history, nil)
	if result.Tier != domain.TierCritical {
		t.Fatalf("expected critical with history backfill, got %s (reasons: %+v)", result.Tier, result.Reasons)
	}
}

func TestClassifyIdempotent(t *testing.T) {
	m := criticalMetrics()
	first := Classify(m, nil, nil)
	second := Classify(m, nil, nil)

	if !reflect.DeepEqual(first, second) {
		t.Error("identical inputs must yield identical classifications")
	}
}

func TestClassifyCustomPolicy(t *testing.T) {
	policy := DefaultPolicy()
	policy.WarningProbability = 0.75

	c := NewClassifier(policy)
	result := c.Classify(domain.Metrics{
		SMRCompletion:   40,
		GPRDelayPercent: 45,
	}, nil, nil)

	if result.Tier != domain.TierWarning {
		t.Fatalf("expected warning, got %s", result.Tier)
	}
	if result.Probability != 0.75 {
		t.Errorf("expected overridden probability 0.75, got %.2f", result.Probability)
	}
}
