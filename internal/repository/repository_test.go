package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/gradometer/gradometer/internal/domain"
)

func TestSQLiteRepository(t *testing.T) {
	// Create temp database file
	tmpFile, err := os.CreateTemp("", "gradometer-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetProject", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Second)
		p := &domain.Project{
			ID:             "proj-001",
			Name:           "ЖК Ривьера",
			Code:           "RIV-1",
			NormalizedCode: "riv1",
			ReportPeriod:   "2025 марта",
			SMRCompletion:  46.69,
			DDUPayment:     47.07,
			Tier:           domain.TierNormal,
			Probability:    0.10,
			Needs3Reports:  true,
			StatusReasons: []domain.StatusReason{
				{Reason: "baseline", Condition: "A"},
			},
			History: []domain.HistoryEntry{
				{Month: "202503", Tier: domain.TierNormal, DDUPayment: 47.07, Timestamp: now},
			},
			CreatedAt: now,
			UpdatedAt: now,
		}

		if err := repo.SaveProject(ctx, tenantID, p); err != nil {
			t.Fatalf("SaveProject failed: %v", err)
		}

		retrieved, err := repo.GetProject(ctx, tenantID, p.ID)
		if err != nil {
			t.Fatalf("GetProject failed: %v", err)
		}

		if retrieved.Name != p.Name {
			t.Errorf("expected Name %s, got %s", p.Name, retrieved.Name)
		}
		if retrieved.Tier != domain.TierNormal {
			t.Errorf("expected tier normal, got %s", retrieved.Tier)
		}
		if !retrieved.Needs3Reports {
			t.Error("Needs3Reports flag lost in round trip")
		}
		if len(retrieved.History) != 1 || retrieved.History[0].Month != "202503" {
			t.Errorf("history lost in round trip: %+v", retrieved.History)
		}
		if len(retrieved.StatusReasons) != 1 || retrieved.StatusReasons[0].Condition != "A" {
			t.Errorf("status reasons lost in round trip: %+v", retrieved.StatusReasons)
		}
	})

	t.Run("UpsertReplacesSnapshot", func(t *testing.T) {
		p, err := repo.GetProject(ctx, tenantID, "proj-001")
		if err != nil {
			t.Fatalf("GetProject failed: %v", err)
		}

		p.Tier = domain.TierCritical
		p.Probability = 1.0
		p.History = append([]domain.HistoryEntry{{Month: "202504", Tier: domain.TierCritical}}, p.History...)

		if err := repo.SaveProject(ctx, tenantID, p); err != nil {
			t.Fatalf("SaveProject upsert failed: %v", err)
		}

		retrieved, err := repo.GetProject(ctx, tenantID, "proj-001")
		if err != nil {
			t.Fatalf("GetProject failed: %v", err)
		}
		if retrieved.Tier != domain.TierCritical || len(retrieved.History) != 2 {
			t.Errorf("upsert did not replace the snapshot: tier=%s history=%d", retrieved.Tier, len(retrieved.History))
		}
	})

	t.Run("FindProjectByCode", func(t *testing.T) {
		p, err := repo.FindProjectByCode(ctx, tenantID, "riv1")
		if err != nil {
			t.Fatalf("FindProjectByCode failed: %v", err)
		}
		if p.ID != "proj-001" {
			t.Errorf("expected proj-001, got %s", p.ID)
		}

		if _, err := repo.FindProjectByCode(ctx, tenantID, "unknown"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("ListProjects", func(t *testing.T) {
		p2 := &domain.Project{
			ID:             "proj-002",
			Name:           "ЖК Заря",
			NormalizedCode: "zarya",
			Tier:           domain.TierWarning,
			History:        []domain.HistoryEntry{},
			CreatedAt:      time.Now().UTC(),
			UpdatedAt:      time.Now().UTC(),
		}
		if err := repo.SaveProject(ctx, tenantID, p2); err != nil {
			t.Fatalf("SaveProject failed: %v", err)
		}

		projects, err := repo.ListProjects(ctx, tenantID)
		if err != nil {
			t.Fatalf("ListProjects failed: %v", err)
		}
		if len(projects) != 2 {
			t.Errorf("expected 2 projects, got %d", len(projects))
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_, err := repo.GetProject(ctx, "tenant-002", "proj-001")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound for different tenant, got: %v", err)
		}

		projects, err := repo.ListProjects(ctx, "tenant-002")
		if err != nil {
			t.Fatalf("ListProjects failed: %v", err)
		}
		if len(projects) != 0 {
			t.Errorf("expected empty list for different tenant, got %d", len(projects))
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := repo.SaveProject(ctx, "", &domain.Project{ID: "proj-x"}); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := repo.GetProject(ctx, "", "proj-001"); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("SaveAndGetEvaluation", func(t *testing.T) {
		rec := &domain.EvaluationRecord{
			ID:          "eval-001",
			ProjectID:   "proj-001",
			Month:       "202504",
			Tier:        domain.TierCritical,
			Probability: 1.0,
			Reasons: []domain.StatusReason{
				{Reason: "conjunction held", Condition: "critical"},
			},
			CreatedAt: time.Now().UTC(),
		}

		if err := repo.SaveEvaluation(ctx, tenantID, rec); err != nil {
			t.Fatalf("SaveEvaluation failed: %v", err)
		}

		retrieved, err := repo.GetEvaluation(ctx, tenantID, rec.ID)
		if err != nil {
			t.Fatalf("GetEvaluation failed: %v", err)
		}

		if retrieved.Tier != rec.Tier {
			t.Errorf("expected Tier %s, got %s", rec.Tier, retrieved.Tier)
		}
		if retrieved.Probability != rec.Probability {
			t.Errorf("expected Probability %.2f, got %.2f", rec.Probability, retrieved.Probability)
		}
		if len(retrieved.Reasons) != 1 {
			t.Errorf("reasons lost in round trip: %+v", retrieved.Reasons)
		}
	})

	t.Run("WatchRules", func(t *testing.T) {
		rule := &domain.WatchRule{
			ID:         "watch-001",
			Name:       "Low SMR",
			Version:    "1",
			Expression: "smr < 50.0",
			FlagType:   domain.FlagWarning,
			Severity:   3,
			Title:      "SMR below half",
			Enabled:    true,
		}

		if err := repo.SaveWatchRule(ctx, tenantID, rule); err != nil {
			t.Fatalf("SaveWatchRule failed: %v", err)
		}

		retrieved, err := repo.GetWatchRule(ctx, tenantID, rule.ID)
		if err != nil {
			t.Fatalf("GetWatchRule failed: %v", err)
		}
		if retrieved.Expression != rule.Expression || retrieved.Severity != 3 {
			t.Errorf("watch rule lost in round trip: %+v", retrieved)
		}

		rules, err := repo.ListWatchRules(ctx, tenantID)
		if err != nil {
			t.Fatalf("ListWatchRules failed: %v", err)
		}
		if len(rules) != 1 {
			t.Errorf("expected 1 rule, got %d", len(rules))
		}

		if err := repo.DeleteWatchRule(ctx, tenantID, rule.ID); err != nil {
			t.Fatalf("DeleteWatchRule failed: %v", err)
		}
		if _, err := repo.GetWatchRule(ctx, tenantID, rule.ID); err != ErrNotFound {
			t.Errorf("expected ErrNotFound after soft delete, got: %v", err)
		}
	})

	t.Run("DeleteProject", func(t *testing.T) {
		if err := repo.DeleteProject(ctx, tenantID, "proj-002"); err != nil {
			t.Fatalf("DeleteProject failed: %v", err)
		}
		if _, err := repo.GetProject(ctx, tenantID, "proj-002"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound after delete, got: %v", err)
		}
		if err := repo.DeleteProject(ctx, tenantID, "proj-002"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound on double delete, got: %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.GetProject(ctx, tenantID, "nonexistent")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}

		_, err = repo.GetEvaluation(ctx, tenantID, "nonexistent")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
