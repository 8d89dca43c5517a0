// Package worker provides async report processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gradometer/gradometer/internal/domain"
	"github.com/gradometer/gradometer/internal/service"
)

// Worker consumes analysis results from the EventBus and runs them through
// the ingestion pipeline.
type Worker struct {
	bus domain.EventBus
	svc *service.Service

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, svc *service.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		svc:    svc,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing reports for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" tenant ID
	// In production, you'd want to subscribe with wildcards or JetStream
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicReportIntake, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicReportIntake, func(ctx context.Context, msg *domain.Message) error {
		return w.processReport(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicReportIntake,
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processReport(ctx, msg.TenantID, msg)
}

// IntakeMessage is the message payload for async report ingestion.
type IntakeMessage struct {
	TenantID string                 `json:"tenantId"`
	TraceID  string                 `json:"traceId,omitempty"`
	Result   *domain.AnalysisResult `json:"result"`
}

// processReport runs one analysis result through the pipeline.
func (w *Worker) processReport(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var intake IntakeMessage
	if err := json.Unmarshal(msg.Payload, &intake); err != nil {
		slog.Error("failed to parse intake message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if intake.TenantID != "" {
		tenantID = intake.TenantID
	}

	traceID := intake.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing report",
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	outcome, err := w.svc.IngestReport(ctx, tenantID, intake.Result)
	if err != nil {
		slog.Error("report ingestion failed",
			"tenant_id", tenantID,
			"trace_id", traceID,
			"error", err,
		)
		return err
	}

	slog.Info("report processed",
		"project_id", outcome.Project.ID,
		"tenant_id", tenantID,
		"month", outcome.Month,
		"tier", outcome.Classification.Tier,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
