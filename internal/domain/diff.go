package domain

// Trend tags the direction of a single metric between two months.
type Trend string

const (
	TrendImproved Trend = "improved"
	TrendDegraded Trend = "degraded"
	TrendStable   Trend = "stable"
)

// OverallTrend is the majority vote across per-metric trends.
type OverallTrend string

const (
	OverallImproving OverallTrend = "improving"
	OverallDegrading OverallTrend = "degrading"
	OverallStable    OverallTrend = "stable"
)

// MetricChange is the month-over-month delta for one metric.
type MetricChange struct {
	Metric   string   `json:"metric"`
	Previous *float64 `json:"previous"`
	Current  float64  `json:"current"`
	Change   float64  `json:"change"`

	// ChangePercent is relative to the previous value; 0 when the previous
	// value is 0.
	ChangePercent float64 `json:"changePercent"`

	Trend Trend  `json:"trend"`
	Icon  string `json:"icon"`
}

// ReportDiff is the comparison of two chronologically ordered snapshots of
// the same project.
type ReportDiff struct {
	MonthCurrent  string         `json:"monthCurrent"`
	MonthPrevious string         `json:"monthPrevious,omitempty"`
	Changes       []MetricChange `json:"changes"`
	OverallTrend  OverallTrend   `json:"overallTrend"`
	Warnings      []string       `json:"warnings"`
}
