package service

import (
	"context"

	"github.com/montanaflynn/stats"

	"github.com/gradometer/gradometer/internal/domain"
)

// SeriesStats summarizes one metric across a project's monthly history.
type SeriesStats struct {
	Count  int     `json:"count"`
	Latest float64 `json:"latest"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stdDev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// ProjectStats aggregates the metric series for one project.
type ProjectStats struct {
	ProjectID string `json:"projectId"`
	Months    int    `json:"months"`

	SMRCompletion   SeriesStats `json:"smrCompletion"`
	GPRDelayPercent SeriesStats `json:"gprDelayPercent"`
	DDUPayment      SeriesStats `json:"dduPayment"`
}

// TenantStats is the tenant-wide portfolio overview.
type TenantStats struct {
	Projects int `json:"projects"`
	Critical int `json:"critical"`
	Warning  int `json:"warning"`
	Normal   int `json:"normal"`

	// MeanSMR is the average latest completion across the portfolio.
	MeanSMR float64 `json:"meanSmr"`
}

// Stats computes descriptive statistics over a project's history.
func (s *Service) Stats(ctx context.Context, tenantID, projectID string) (*ProjectStats, error) {
	project, err := s.repo.GetProject(ctx, tenantID, projectID)
	if err != nil {
		return nil, err
	}

	var smr, gpr, ddu []float64
	for i := len(project.History) - 1; i >= 0; i-- {
		e := project.History[i]
		smr = append(smr, e.Metrics.SMRCompletion)
		gpr = append(gpr, e.Metrics.GPRDelayPercent)
		ddu = append(ddu, e.DDUPayment)
	}

	return &ProjectStats{
		ProjectID:       project.ID,
		Months:          len(project.History),
		SMRCompletion:   summarize(smr),
		GPRDelayPercent: summarize(gpr),
		DDUPayment:      summarize(ddu),
	}, nil
}

// PortfolioStats counts projects per tier and averages completion across
// the tenant.
func (s *Service) PortfolioStats(ctx context.Context, tenantID string) (*TenantStats, error) {
	projects, err := s.repo.ListProjects(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	out := &TenantStats{Projects: len(projects)}
	var completions []float64
	for _, p := range projects {
		switch p.Tier {
		case domain.TierCritical:
			out.Critical++
		case domain.TierWarning:
			out.Warning++
		default:
			out.Normal++
		}
		completions = append(completions, p.SMRCompletion)
	}

	if len(completions) > 0 {
		if mean, err := stats.Mean(completions); err == nil {
			out.MeanSMR = mean
		}
	}
	return out, nil
}

// summarize reduces one series. Errors from the stats package only occur on
// empty input, which collapses to the zero value.
func summarize(series []float64) SeriesStats {
	out := SeriesStats{Count: len(series)}
	if len(series) == 0 {
		return out
	}

	out.Latest = series[len(series)-1]
	out.Mean, _ = stats.Mean(series)
	out.Median, _ = stats.Median(series)
	out.StdDev, _ = stats.StandardDeviation(series)
	out.Min, _ = stats.Min(series)
	out.Max, _ = stats.Max(series)
	return out
}
