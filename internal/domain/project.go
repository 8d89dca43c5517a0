package domain

import "time"

// HistoryRetention is the number of monthly entries kept per project,
// newest first.
const HistoryRetention = 12

// HistoryEntry is one month of a project's report history, keyed by the
// canonical YYYYMM month key. At most one entry exists per month key; a new
// report for an existing month replaces the old entry.
type HistoryEntry struct {
	Month        string  `json:"month"`
	ReportPeriod string  `json:"reportPeriod"`
	Metrics      Metrics `json:"metrics"`

	// DDUPayment is the month's cumulative payment share, denormalized from
	// Metrics for diffing and flag rules.
	DDUPayment float64 `json:"dduPayment"`

	Tier        RiskTier  `json:"tier"`
	Probability float64   `json:"probability"`
	Timestamp   time.Time `json:"timestamp"`
}

// ReportFile records an uploaded source document for one month. Kept with
// the same replace-by-month and retention discipline as history entries.
type ReportFile struct {
	Month        string `json:"month"`
	ReportPeriod string `json:"reportPeriod"`
	FileName     string `json:"fileName"`
	UploadedAt   string `json:"uploadedAt"`
	URL          string `json:"url,omitempty"`
}

// Project is the monitored aggregate: identity, the latest snapshot
// denormalized for list views, bounded history, and the latest
// classification's audit trail.
type Project struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	Name           string `json:"name"`
	Code           string `json:"code"`
	NormalizedCode string `json:"normalizedCode"`
	Customer       string `json:"customer,omitempty"`
	Location       string `json:"location,omitempty"`
	ReportPeriod   string `json:"reportPeriod"`

	// Latest snapshot, denormalized from the newest history entry.
	SMRCompletion   float64 `json:"smrCompletion"`
	GPRDelayPercent float64 `json:"gprDelayPercent"`
	GPRDelayDays    int     `json:"gprDelayDays"`
	DDUPayment      float64 `json:"dduPayment"`

	Tier          RiskTier       `json:"tier"`
	Probability   float64        `json:"probability"`
	StatusReasons []StatusReason `json:"statusReasons,omitempty"`
	Needs3Reports bool           `json:"needs3Reports"`

	// CurrentStatus is a display label derived from SMR completion.
	CurrentStatus string `json:"currentStatus"`

	// ScheduleAdherence is 100 minus the GPR delay percentage.
	ScheduleAdherence float64 `json:"scheduleAdherence"`

	// History holds up to HistoryRetention monthly entries, newest first.
	History []HistoryEntry `json:"history"`

	// ReportFiles mirrors History for uploaded source documents.
	ReportFiles []ReportFile `json:"reportFiles,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LatestEntry returns the newest history entry, or nil for an empty history.
func (p *Project) LatestEntry() *HistoryEntry {
	if len(p.History) == 0 {
		return nil
	}
	return &p.History[0]
}

// PreviousEntry returns the second-newest history entry, or nil.
func (p *Project) PreviousEntry() *HistoryEntry {
	if len(p.History) < 2 {
		return nil
	}
	return &p.History[1]
}
