package worker

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gradometer/gradometer/internal/bus"
	"github.com/gradometer/gradometer/internal/cache"
	"github.com/gradometer/gradometer/internal/domain"
	"github.com/gradometer/gradometer/internal/repository"
	"github.com/gradometer/gradometer/internal/service"
	"github.com/gradometer/gradometer/internal/status"
)

func newTestPipeline(t *testing.T, eventBus domain.EventBus) *service.Service {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "worker_test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return service.New(repo, cache.NewLRUCache(100), eventBus, status.NewClassifier(status.DefaultPolicy()), nil)
}

func intakePayload(tenantID, name, code, period string, m domain.Metrics) []byte {
	payload, _ := json.Marshal(IntakeMessage{
		TenantID: tenantID,
		Result: &domain.AnalysisResult{
			ProjectInfo: domain.ProjectInfo{
				FullName:     name,
				Code:         code,
				ReportPeriod: period,
			},
			Metrics: m,
		},
	})
	return payload
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	svc := newTestPipeline(t, eventBus)

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, svc)

		if err := w.Start(Config{TenantIDs: []string{"tenant-001"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = w.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessReport", func(t *testing.T) {
		w := NewWorker(eventBus, svc)

		w.Start(Config{TenantIDs: []string{"tenant-test"}})
		defer w.Stop()

		// Track status results
		var statusReceived atomic.Bool
		var statusPayload []byte

		eventBus.Subscribe(context.Background(), "tenant-test", domain.TopicProjectStatus, func(ctx context.Context, msg *domain.Message) error {
			statusPayload = msg.Payload
			statusReceived.Store(true)
			return nil
		})

		// Allow subscriptions to be active
		time.Sleep(50 * time.Millisecond)

		payload := intakePayload("tenant-test", "ЖК Ривьера", "RIV-01", "2025 декабря",
			domain.Metrics{SMRCompletion: 72, GPRDelayPercent: 10})

		if err := eventBus.Publish(context.Background(), "tenant-test", domain.TopicReportIntake, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		// Wait for processing
		time.Sleep(200 * time.Millisecond)

		if !statusReceived.Load() {
			t.Fatal("expected status event to be published")
		}

		var event struct {
			TenantID string `json:"tenantId"`
			Month    string `json:"month"`
			Tier     string `json:"tier"`
		}
		if err := json.Unmarshal(statusPayload, &event); err != nil {
			t.Fatalf("failed to parse status event: %v", err)
		}
		if event.TenantID != "tenant-test" {
			t.Errorf("expected tenantID 'tenant-test', got '%s'", event.TenantID)
		}
		if event.Month != "202512" {
			t.Errorf("expected month 202512, got '%s'", event.Month)
		}
	})

	t.Run("AlertPublished", func(t *testing.T) {
		w := NewWorker(eventBus, svc)

		w.Start(Config{TenantIDs: []string{"tenant-alert"}})
		defer w.Stop()

		var alertReceived atomic.Bool

		eventBus.Subscribe(context.Background(), "tenant-alert", domain.TopicProjectAlert, func(ctx context.Context, msg *domain.Message) error {
			alertReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		// Delay above 30, failed payment pattern and a guarantee case put
		// the project into the critical tier.
		payload := intakePayload("tenant-alert", "Проблемный объект", "PO-9", "2025 декабря",
			domain.Metrics{
				SMRCompletion:      50,
				GPRDelayPercent:    35,
				DDUPaymentsPercent: []float64{65, 55, 45},
				GuaranteeExtension: true,
			})

		eventBus.Publish(context.Background(), "tenant-alert", domain.TopicReportIntake, payload)

		time.Sleep(200 * time.Millisecond)

		if !alertReceived.Load() {
			t.Error("expected alert to be published for critical project")
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := NewWorker(eventBus, svc)

		w.Start(Config{TenantIDs: []string{"tenant-a", "tenant-b"}})
		defer w.Stop()

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions for 2 tenants, got %d", stats.SubscriptionCount)
		}
	})
}

func TestIntakeMessageParsing(t *testing.T) {
	msg := IntakeMessage{
		TenantID: "tenant-001",
		TraceID:  "trace-456",
		Result: &domain.AnalysisResult{
			ProjectInfo: domain.ProjectInfo{
				FullName:     "ЖК Ривьера",
				Code:         "RIV-01",
				ReportPeriod: "2025 декабря",
			},
			Metrics: domain.Metrics{SMRCompletion: 72.5, GPRDelayPercent: 10},
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var parsed IntakeMessage
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if parsed.TenantID != msg.TenantID {
		t.Errorf("expected tenantID '%s', got '%s'", msg.TenantID, parsed.TenantID)
	}
	if parsed.Result.ProjectInfo.FullName != "ЖК Ривьера" {
		t.Errorf("unexpected project name '%s'", parsed.Result.ProjectInfo.FullName)
	}
	if parsed.Result.Metrics.SMRCompletion != 72.5 {
		t.Errorf("expected smr 72.5, got %.1f", parsed.Result.Metrics.SMRCompletion)
	}
}
