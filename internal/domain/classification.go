package domain

import "time"

// RiskTier is the classifier verdict for one monthly snapshot.
type RiskTier string

const (
	TierCritical RiskTier = "critical"
	TierWarning  RiskTier = "warning"
	TierNormal   RiskTier = "normal"
)

// StatusReason is one entry of the classifier's ordered audit trail.
// Narrative reasons appear in derivation order, followed by the
// acceptance/rejection summary block.
type StatusReason struct {
	Reason    string  `json:"reason"`
	Metric    string  `json:"metric,omitempty"`
	Value     string  `json:"value,omitempty"`
	Threshold string  `json:"threshold,omitempty"`
	Change    float64 `json:"change,omitempty"`
	Condition string  `json:"condition,omitempty"`
}

// Classification is the result of evaluating one metrics snapshot.
type Classification struct {
	Tier    RiskTier       `json:"tier"`
	Reasons []StatusReason `json:"reasons"`

	// Probability is a discrete policy score per tier, not a model output.
	Probability float64 `json:"probability"`

	// Needs3Reports is set when the payment-pattern condition could not be
	// evaluated for lack of monthly history.
	Needs3Reports bool `json:"needs3Reports,omitempty"`
}

// EvaluationRecord is a persisted classification snapshot kept for audit.
type EvaluationRecord struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenantId"`
	ProjectID   string         `json:"projectId"`
	Month       string         `json:"month"`
	Tier        RiskTier       `json:"tier"`
	Probability float64        `json:"probability"`
	Reasons     []StatusReason `json:"reasons"`
	CreatedAt   time.Time      `json:"createdAt"`
}
