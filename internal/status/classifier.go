package status

import (
	"github.com/gradometer/gradometer/internal/domain"
)

// Policy holds the discrete risk probabilities assigned per tier. These are
// policy constants, not model outputs; they are exposed for calibration.
type Policy struct {
	// CriticalProbability is assigned when all four conditions hold.
	CriticalProbability float64

	// WarningProbability is assigned when A plus any b sub-condition hold.
	WarningProbability float64

	// NormalBaseline is assigned when the baseline gate A does not hold.
	NormalBaseline float64

	// NormalInsufficient is assigned for Normal verdicts reached with A
	// held but the payment pattern unconfirmed.
	NormalInsufficient float64
}

// DefaultPolicy returns the supervisory methodology's standard scores.
func DefaultPolicy() Policy {
	return Policy{
		CriticalProbability: 1.0,
		WarningProbability:  0.6,
		NormalBaseline:      0.05,
		NormalInsufficient:  0.10,
	}
}

// Classifier maps a metrics snapshot onto a risk tier. It is stateless and
// safe for concurrent use.
type Classifier struct {
	policy Policy
}

// NewClassifier creates a classifier with the given policy.
func NewClassifier(p Policy) *Classifier {
	return &Classifier{policy: p}
}

// Classify evaluates one metrics snapshot against the tier rules.
//
// History, when provided, backfills the DDU share sequence so the payment
// pattern can be evaluated across months the incoming report does not
// carry. Manual flags OR into condition D. Pure function: identical inputs
// always yield identical output, and no input can make it fail.
func (c *Classifier) Classify(m domain.Metrics, history []domain.HistoryEntry, manual *domain.ManualFlags) domain.Classification {
	m = Normalize(m)
	if len(history) > 0 && len(m.DDUPaymentsPercent) < 3 {
		m = MergeHistoryPayments(m, history)
	}

	var reasons []domain.StatusReason

	condA := conditionA(&m)
	if !condA.met {
		reasons = append(reasons, domain.StatusReason{
			Reason: "SMR completion at or above 80%: baseline condition A not met",
			Metric: "smrCompletion",
		})
		return domain.Classification{
			Tier:        domain.TierNormal,
			Reasons:     reasons,
			Probability: c.policy.NormalBaseline,
		}
	}

	has3 := hasPaymentTriple(&m)

	// The payment pattern b6 needs three months of data; without them only
	// b1..b5 can put the project into Warning.
	warnB := conditionBWarning(&m)
	if !has3 && !warnB.met {
		reasons = append(reasons, condA.reasons...)
		reasons = append(reasons, domain.StatusReason{
			Reason:    "Not enough data to evaluate condition b6: upload reports for three consecutive months",
			Condition: "needs_3_reports",
		})
		return domain.Classification{
			Tier:          domain.TierNormal,
			Reasons:       reasons,
			Probability:   c.policy.NormalInsufficient,
			Needs3Reports: true,
		}
	}

	critB := conditionBCritical(&m)
	condC := conditionC(&m)
	condD := mergeManualD(conditionD(&m), manual)

	if critB.met && condC.met && condD.met {
		reasons = append(reasons, condA.reasons...)
		reasons = append(reasons, critB.reasons...)
		reasons = append(reasons, condC.reasons...)
		reasons = append(reasons, condD.reasons...)
		reasons = append(reasons,
			domain.StatusReason{Reason: "CRITICAL tier: all four conditions hold", Condition: "critical_explanation"},
			domain.StatusReason{Reason: "Condition A met (SMR completion below 80%)", Condition: "a_met"},
			domain.StatusReason{Reason: "Condition B met (DDU shares below 70%/60%/50% for three months)", Condition: "b_critical_met"},
			domain.StatusReason{Reason: "Condition C met (schedule delay above 30%)", Condition: "c_met"},
			domain.StatusReason{Reason: "Condition D met (one of d1..d4)", Condition: "d_met"},
		)
		return domain.Classification{
			Tier:        domain.TierCritical,
			Reasons:     reasons,
			Probability: c.policy.CriticalProbability,
		}
	}

	if warnB.met {
		reasons = append(reasons, condA.reasons...)
		reasons = append(reasons, warnB.reasons...)
		reasons = append(reasons, domain.StatusReason{
			Reason:    "WARNING tier, not critical, because:",
			Condition: "explanation",
		})
		if !critB.met {
			reasons = append(reasons, domain.StatusReason{
				Reason:    "Condition B (critical) not met: DDU shares do not match the below-70%/60%/50% pattern for three consecutive months",
				Condition: "b_critical_not_met",
			})
		}
		if !condC.met {
			reasons = append(reasons, domain.StatusReason{
				Reason:    "Condition C not met: schedule delay does not exceed 30%",
				Condition: "c_not_met",
			})
		}
		if !condD.met {
			reasons = append(reasons, domain.StatusReason{
				Reason:    "Condition D not met: none of d1..d4 apply",
				Condition: "d_not_met",
			})
		}
		return domain.Classification{
			Tier:        domain.TierWarning,
			Reasons:     reasons,
			Probability: c.policy.WarningProbability,
		}
	}

	reasons = append(reasons, condA.reasons...)
	reasons = append(reasons, domain.StatusReason{
		Reason:    "Condition B unconfirmed: upload reports for the last three months to evaluate the payment pattern",
		Condition: "needs_3_reports",
	})
	return domain.Classification{
		Tier:          domain.TierNormal,
		Reasons:       reasons,
		Probability:   c.policy.NormalInsufficient,
		Needs3Reports: !has3,
	}
}

// Classify runs the classifier with the default policy.
func Classify(m domain.Metrics, history []domain.HistoryEntry, manual *domain.ManualFlags) domain.Classification {
	return NewClassifier(DefaultPolicy()).Classify(m, history, manual)
}
