package domain

import "time"

// FlagType buckets a flag for display.
type FlagType string

const (
	FlagCritical FlagType = "critical"
	FlagWarning  FlagType = "warning"
	FlagInfo     FlagType = "info"
)

// Flag is a discrete alert derived from the current and historical
// snapshots. Flags are ephemeral: recomputed on each view, never persisted
// as a separate ledger.
type Flag struct {
	// ID is a semantic key plus the month, unique per month per rule.
	ID          string   `json:"id"`
	Type        FlagType `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description"`

	// Severity ranks 1 (informational) to 5 (urgent).
	Severity int `json:"severity"`

	CreatedAt time.Time `json:"createdAt"`
	Icon      string    `json:"icon"`
}
