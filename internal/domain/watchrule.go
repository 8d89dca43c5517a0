package domain

import "time"

// WatchRule is an operator-defined alert rule evaluated against every
// classified snapshot, alongside the built-in flag rules. The expression is
// a CEL formula over the canonical metric variables (smr, gpr_delay_percent,
// ddu_payment, complaints_count, ...) returning bool or a numeric score
// where any value > 0 fires the flag.
type WatchRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// Expression is the CEL formula to evaluate.
	Expression string `json:"expression"`

	// Flag shape when the rule fires.
	FlagType FlagType `json:"flagType"`
	Severity int      `json:"severity"` // 1-5
	Title    string   `json:"title"`

	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}
