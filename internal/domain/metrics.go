package domain

// Metrics holds the numeric signals extracted from one monthly project report.
// All fields are optional on input; the normalizer defaults missing values to
// zero so downstream evaluation never has to nil-check.
type Metrics struct {
	// SMRCompletion is the construction-work completion percentage (0-100).
	SMRCompletion float64 `json:"smrCompletion"`

	// GPRDelayPercent is the schedule slip relative to the master plan.
	GPRDelayPercent float64 `json:"gprDelayPercent"`

	// GPRDelayDays is the schedule slip in days.
	GPRDelayDays int `json:"gprDelayDays"`

	// DDUPaymentsPercent holds cumulative payment-plan fulfillment shares,
	// ordered oldest to newest. This is the canonical ordering; callers that
	// accumulate history newest-first must reverse before building Metrics.
	DDUPaymentsPercent []float64 `json:"dduPaymentsPercent,omitempty"`

	// DDUMonthlyValues holds raw monthly inflows in minor currency units,
	// ordered oldest to newest. Used together with GPRValue to derive
	// cumulative shares when precomputed percentages are absent.
	DDUMonthlyValues []float64 `json:"dduMonthlyValues,omitempty"`

	// GPRValue is the plan value in millions, the baseline for converting
	// raw inflows to shares.
	GPRValue float64 `json:"gprValue,omitempty"`

	// GuaranteeExtension reports whether the project guarantee was extended.
	GuaranteeExtension bool `json:"guaranteeExtension,omitempty"`

	// Secondary risk signals.
	LenderDelayDays int     `json:"lenderDelayDays,omitempty"`
	RatingDrop      float64 `json:"ratingDrop,omitempty"`
	ComplaintsCount int     `json:"complaintsCount,omitempty"`
	DebtToEquity    float64 `json:"debtToEquity,omitempty"`
}

// LatestDDUPayment returns the most recent cumulative payment share, or 0
// when no payment data is present.
func (m *Metrics) LatestDDUPayment() float64 {
	if len(m.DDUPaymentsPercent) == 0 {
		return 0
	}
	return m.DDUPaymentsPercent[len(m.DDUPaymentsPercent)-1]
}

// ManualFlags are the reviewer-supplied overrides for the critical
// sub-conditions d1..d4. Any flag set to true satisfies condition D
// regardless of automatic evaluation.
type ManualFlags struct {
	D1GuaranteeCase  bool `json:"d1GuaranteeCase"`
	D2Complaints     bool `json:"d2Complaints"`
	D3RatingDrop     bool `json:"d3RatingDrop"`
	D4LoanDelinquent bool `json:"d4LoanDelinquent"`
}

// Any reports whether at least one manual flag is set.
func (f *ManualFlags) Any() bool {
	if f == nil {
		return false
	}
	return f.D1GuaranteeCase || f.D2Complaints || f.D3RatingDrop || f.D4LoanDelinquent
}

// ProjectInfo identifies the project a report belongs to.
type ProjectInfo struct {
	FullName     string `json:"fullName"`
	Code         string `json:"code"`
	Customer     string `json:"customer,omitempty"`
	ReportPeriod string `json:"reportPeriod"`
	Location     string `json:"location,omitempty"`
}

// AnalysisResult is the payload produced by the external ingestion
// collaborator for one monthly report. Gradometer treats it as already
// well-formed; malformed numerics degrade to zero values.
type AnalysisResult struct {
	ProjectID   string       `json:"projectId,omitempty"`
	ProjectInfo ProjectInfo  `json:"projectInfo"`
	Metrics     Metrics      `json:"metrics"`
	Manual      *ManualFlags `json:"manualFlags,omitempty"`

	// SourceFiles lists the uploaded documents the result was extracted
	// from, if the caller tracks them.
	SourceFiles []ReportFileInfo `json:"sourceFiles,omitempty"`
}

// ReportFileInfo describes a stored source document for a report.
type ReportFileInfo struct {
	FileName   string `json:"fileName"`
	UploadedAt string `json:"uploadedAt"`
	URL        string `json:"url,omitempty"`
}
