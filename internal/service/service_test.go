package service

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/gradometer/gradometer/internal/bus"
	"github.com/gradometer/gradometer/internal/cache"
	"github.com/gradometer/gradometer/internal/domain"
	"github.com/gradometer/gradometer/internal/repository"
	"github.com/gradometer/gradometer/internal/status"
)

const testTenant = "tenant-001"

func newTestService(t *testing.T) (*Service, domain.EventBus) {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "service_test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	c := cache.NewLRUCache(100)
	b := bus.NewChannelBus(16)
	t.Cleanup(func() { b.Close() })

	svc := New(repo, c, b, status.NewClassifier(status.DefaultPolicy()), nil)
	return svc, b
}

func report(name, code, period string, m domain.Metrics) *domain.AnalysisResult {
	return &domain.AnalysisResult{
		ProjectInfo: domain.ProjectInfo{
			FullName:     name,
			Code:         code,
			ReportPeriod: period,
		},
		Metrics: m,
	}
}

func warningMetrics() domain.Metrics {
	return domain.Metrics{SMRCompletion: 50, GPRDelayPercent: 35}
}

func criticalMetrics() domain.Metrics {
	return domain.Metrics{
		SMRCompletion:      50,
		GPRDelayPercent:    35,
		DDUPaymentsPercent: []float64{65, 55, 45},
		GuaranteeExtension: true,
	}
}

func TestIngestReport(t *testing.T) {
	ctx := context.Background()

	t.Run("CreatesProject", func(t *testing.T) {
		svc, _ := newTestService(t)

		out, err := svc.IngestReport(ctx, testTenant, report(
			"ЖК Ривьера", "ЖК-Ривьера", "отчёт за декабря 2025",
			domain.Metrics{SMRCompletion: 72, GPRDelayPercent: 10},
		))
		if err != nil {
			t.Fatalf("ingest failed: %v", err)
		}
		if !out.Created {
			t.Error("expected a new project")
		}
		if out.Month != "202512" {
			t.Errorf("expected month 202512, got %s", out.Month)
		}
		if out.Project.ID == "" {
			t.Error("expected generated project ID")
		}
		if out.Project.NormalizedCode != "жкривьера" {
			t.Errorf("unexpected normalized code %q", out.Project.NormalizedCode)
		}
		if len(out.Project.History) != 1 {
			t.Fatalf("expected 1 history entry, got %d", len(out.Project.History))
		}

		got, err := svc.GetProject(ctx, testTenant, out.Project.ID)
		if err != nil {
			t.Fatalf("failed to load project: %v", err)
		}
		if got.SMRCompletion != 72 {
			t.Errorf("snapshot not denormalized: smr %.1f", got.SMRCompletion)
		}
		if got.CurrentStatus != "behind schedule" {
			t.Errorf("unexpected status label %q", got.CurrentStatus)
		}
		if got.ScheduleAdherence != 90 {
			t.Errorf("expected adherence 90, got %.1f", got.ScheduleAdherence)
		}
	})

	t.Run("ResolvesByCode", func(t *testing.T) {
		svc, _ := newTestService(t)

		first, err := svc.IngestReport(ctx, testTenant, report(
			"ЖК Ривьера", "RIV-01", "2025 ноября", warningMetrics()))
		if err != nil {
			t.Fatalf("first ingest failed: %v", err)
		}

		second, err := svc.IngestReport(ctx, testTenant, report(
			"ЖК Ривьера (уточнение)", "riv 01", "2025 декабря", warningMetrics()))
		if err != nil {
			t.Fatalf("second ingest failed: %v", err)
		}

		if second.Created {
			t.Error("expected code match, got new project")
		}
		if second.Project.ID != first.Project.ID {
			t.Errorf("resolved to %s, want %s", second.Project.ID, first.Project.ID)
		}
		if len(second.Project.History) != 2 {
			t.Errorf("expected 2 history entries, got %d", len(second.Project.History))
		}
		if second.Project.History[0].Month != "202512" {
			t.Errorf("history not newest first: %s", second.Project.History[0].Month)
		}
	})

	t.Run("ResolvesByName", func(t *testing.T) {
		svc, _ := newTestService(t)

		first, err := svc.IngestReport(ctx, testTenant, report(
			"Северный квартал", "", "2025 октября", warningMetrics()))
		if err != nil {
			t.Fatalf("first ingest failed: %v", err)
		}

		second, err := svc.IngestReport(ctx, testTenant, report(
			"СЕВЕРНЫЙ КВАРТАЛ", "", "2025 ноября", warningMetrics()))
		if err != nil {
			t.Fatalf("second ingest failed: %v", err)
		}
		if second.Created || second.Project.ID != first.Project.ID {
			t.Error("expected case-insensitive name match")
		}
	})

	t.Run("ReplacesSameMonth", func(t *testing.T) {
		svc, _ := newTestService(t)

		first, err := svc.IngestReport(ctx, testTenant, report(
			"ЖК Ривьера", "RIV-01", "2025 декабря",
			domain.Metrics{SMRCompletion: 50, GPRDelayPercent: 35}))
		if err != nil {
			t.Fatalf("first ingest failed: %v", err)
		}

		second, err := svc.IngestReport(ctx, testTenant, report(
			"ЖК Ривьера", "RIV-01", "2025 декабря",
			domain.Metrics{SMRCompletion: 55, GPRDelayPercent: 20}))
		if err != nil {
			t.Fatalf("second ingest failed: %v", err)
		}

		if second.Project.ID != first.Project.ID {
			t.Fatal("re-upload created a new project")
		}
		if len(second.Project.History) != 1 {
			t.Fatalf("expected replaced entry, got %d entries", len(second.Project.History))
		}
		if second.Project.History[0].Metrics.SMRCompletion != 55 {
			t.Errorf("entry not replaced: smr %.1f", second.Project.History[0].Metrics.SMRCompletion)
		}
	})

	t.Run("HistoryRetention", func(t *testing.T) {
		svc, _ := newTestService(t)

		var last *IngestOutcome
		for i := 0; i < domain.HistoryRetention+2; i++ {
			period := fmt.Sprintf("отчёт-2024%02d", i%12+1)
			if i >= 12 {
				period = fmt.Sprintf("отчёт-2025%02d", i-11)
			}
			out, err := svc.IngestReport(ctx, testTenant, report(
				"Долгострой", "DS-1", period, warningMetrics()))
			if err != nil {
				t.Fatalf("ingest %d failed: %v", i, err)
			}
			last = out
		}

		if len(last.Project.History) != domain.HistoryRetention {
			t.Errorf("expected %d entries, got %d", domain.HistoryRetention, len(last.Project.History))
		}
		if last.Project.History[0].Month != "202502" {
			t.Errorf("newest entry is %s", last.Project.History[0].Month)
		}
	})

	t.Run("CachesClassification", func(t *testing.T) {
		svc, _ := newTestService(t)

		out, err := svc.IngestReport(ctx, testTenant, report(
			"ЖК Ривьера", "RIV-01", "2025 декабря", criticalMetrics()))
		if err != nil {
			t.Fatalf("ingest failed: %v", err)
		}

		c, err := svc.Classification(ctx, testTenant, out.Project.ID)
		if err != nil {
			t.Fatalf("classification lookup failed: %v", err)
		}
		if c.Tier != domain.TierCritical {
			t.Errorf("expected critical, got %s", c.Tier)
		}
		if c.Probability != 1.0 {
			t.Errorf("expected probability 1.0, got %.2f", c.Probability)
		}
	})

	t.Run("PublishesAlertOnCritical", func(t *testing.T) {
		svc, eventBus := newTestService(t)

		alerts := make(chan *domain.Message, 1)
		sub, err := eventBus.Subscribe(ctx, testTenant, domain.TopicProjectAlert, func(ctx context.Context, msg *domain.Message) error {
			alerts <- msg
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}
		defer sub.Unsubscribe()

		if _, err := svc.IngestReport(ctx, testTenant, report(
			"Проблемный объект", "PO-9", "2025 декабря", criticalMetrics())); err != nil {
			t.Fatalf("ingest failed: %v", err)
		}

		select {
		case msg := <-alerts:
			if msg.Topic != domain.TopicProjectAlert {
				t.Errorf("unexpected topic %s", msg.Topic)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("no alert published for critical project")
		}
	})

	t.Run("RejectsMissingName", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, err := svc.IngestReport(ctx, testTenant, report("  ", "X", "2025 декабря", warningMetrics()))
		if err != ErrMissingProjectName {
			t.Errorf("expected ErrMissingProjectName, got %v", err)
		}
	})

	t.Run("RejectsMissingTenant", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, err := svc.IngestReport(ctx, "", report("ЖК", "X", "2025 декабря", warningMetrics()))
		if err != ErrMissingTenant {
			t.Errorf("expected ErrMissingTenant, got %v", err)
		}
	})

	t.Run("StoresSourceFiles", func(t *testing.T) {
		svc, _ := newTestService(t)

		r := report("ЖК Ривьера", "RIV-01", "2025 декабря", warningMetrics())
		r.SourceFiles = []domain.ReportFileInfo{
			{FileName: "riviera-dec.pdf", UploadedAt: "2025-12-28"},
		}
		out, err := svc.IngestReport(ctx, testTenant, r)
		if err != nil {
			t.Fatalf("ingest failed: %v", err)
		}
		if len(out.Project.ReportFiles) != 1 {
			t.Fatalf("expected 1 report file, got %d", len(out.Project.ReportFiles))
		}
		if out.Project.ReportFiles[0].Month != "202512" {
			t.Errorf("file keyed to %s", out.Project.ReportFiles[0].Month)
		}
	})
}

func TestProjectDiff(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	first, err := svc.IngestReport(ctx, testTenant, report(
		"ЖК Ривьера", "RIV-01", "2025 ноября",
		domain.Metrics{SMRCompletion: 60, GPRDelayPercent: 10}))
	if err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}

	t.Run("FirstReport", func(t *testing.T) {
		d, err := svc.ProjectDiff(ctx, testTenant, first.Project.ID)
		if err != nil {
			t.Fatalf("diff failed: %v", err)
		}
		if d.MonthPrevious != "" {
			t.Errorf("expected no previous month, got %s", d.MonthPrevious)
		}
	})

	if _, err := svc.IngestReport(ctx, testTenant, report(
		"ЖК Ривьера", "RIV-01", "2025 декабря",
		domain.Metrics{SMRCompletion: 70, GPRDelayPercent: 5})); err != nil {
		t.Fatalf("second ingest failed: %v", err)
	}

	t.Run("TwoMonths", func(t *testing.T) {
		d, err := svc.ProjectDiff(ctx, testTenant, first.Project.ID)
		if err != nil {
			t.Fatalf("diff failed: %v", err)
		}
		if d.MonthCurrent != "202512" || d.MonthPrevious != "202511" {
			t.Errorf("unexpected months %s/%s", d.MonthCurrent, d.MonthPrevious)
		}
		if d.OverallTrend != domain.OverallImproving {
			t.Errorf("expected improving, got %s", d.OverallTrend)
		}
	})
}

func TestProjectFlags(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	out, err := svc.IngestReport(ctx, testTenant, report(
		"Проблемный объект", "PO-9", "2025 декабря", criticalMetrics()))
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	list, err := svc.ProjectFlags(ctx, testTenant, out.Project.ID)
	if err != nil {
		t.Fatalf("flags failed: %v", err)
	}
	if len(list) == 0 {
		t.Fatal("expected flags for a fresh critical project")
	}

	found := false
	for _, f := range list {
		if f.ID == "first-critical-202512" {
			found = true
		}
	}
	if !found {
		t.Error("expected first-critical flag")
	}

	// Prioritize puts the most severe first.
	for i := 1; i < len(list); i++ {
		if list[i].Severity > list[i-1].Severity {
			t.Fatal("flags not ordered by severity")
		}
	}
}

func TestDeleteProject(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	out, err := svc.IngestReport(ctx, testTenant, report(
		"ЖК Ривьера", "RIV-01", "2025 декабря", warningMetrics()))
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	if err := svc.DeleteProject(ctx, testTenant, out.Project.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := svc.GetProject(ctx, testTenant, out.Project.ID); err != repository.ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	months := []struct {
		period string
		smr    float64
	}{
		{"2025 октября", 40},
		{"2025 ноября", 50},
		{"2025 декабря", 60},
	}
	var projectID string
	for _, m := range months {
		out, err := svc.IngestReport(ctx, testTenant, report(
			"ЖК Ривьера", "RIV-01", m.period,
			domain.Metrics{SMRCompletion: m.smr, GPRDelayPercent: 10}))
		if err != nil {
			t.Fatalf("ingest failed: %v", err)
		}
		projectID = out.Project.ID
	}

	st, err := svc.Stats(ctx, testTenant, projectID)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if st.Months != 3 {
		t.Errorf("expected 3 months, got %d", st.Months)
	}
	if st.SMRCompletion.Mean != 50 {
		t.Errorf("expected mean 50, got %.1f", st.SMRCompletion.Mean)
	}
	if st.SMRCompletion.Median != 50 {
		t.Errorf("expected median 50, got %.1f", st.SMRCompletion.Median)
	}
	if st.SMRCompletion.Latest != 60 {
		t.Errorf("expected latest 60, got %.1f", st.SMRCompletion.Latest)
	}
	if st.SMRCompletion.Min != 40 || st.SMRCompletion.Max != 60 {
		t.Errorf("unexpected min/max %.1f/%.1f", st.SMRCompletion.Min, st.SMRCompletion.Max)
	}
}

func TestPortfolioStats(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	if _, err := svc.IngestReport(ctx, testTenant, report(
		"Хороший объект", "OK-1", "2025 декабря",
		domain.Metrics{SMRCompletion: 90})); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if _, err := svc.IngestReport(ctx, testTenant, report(
		"Проблемный объект", "PO-9", "2025 декабря", criticalMetrics())); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	st, err := svc.PortfolioStats(ctx, testTenant)
	if err != nil {
		t.Fatalf("portfolio stats failed: %v", err)
	}
	if st.Projects != 2 {
		t.Errorf("expected 2 projects, got %d", st.Projects)
	}
	if st.Critical != 1 || st.Normal != 1 {
		t.Errorf("unexpected tier counts critical=%d normal=%d", st.Critical, st.Normal)
	}
	if st.MeanSMR != 70 {
		t.Errorf("expected mean smr 70, got %.1f", st.MeanSMR)
	}
}

func TestNormalizeCode(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"RIV-01", "riv01"},
		{"riv 01", "riv01"},
		{"ЖК-Ривьера 2", "жкривьера2"},
		{"жкривьера2", "жкривьера2"},
		{"  ", ""},
	}
	for _, tc := range cases {
		if got := NormalizeCode(tc.in); got != tc.want {
			t.Errorf("NormalizeCode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
