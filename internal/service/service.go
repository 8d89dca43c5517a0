// Package service implements the report ingestion pipeline: it resolves
// report analysis results to projects, classifies the snapshot, maintains
// bounded monthly history and publishes the outcome.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gradometer/gradometer/internal/diff"
	"github.com/gradometer/gradometer/internal/domain"
	"github.com/gradometer/gradometer/internal/flags"
	"github.com/gradometer/gradometer/internal/repository"
	"github.com/gradometer/gradometer/internal/status"
	"github.com/gradometer/gradometer/internal/watch"
)

var (
	// ErrMissingProjectName is returned when a result carries no project name.
	ErrMissingProjectName = errors.New("analysis result has no project name")

	// ErrMissingTenant is returned when tenantID is empty.
	ErrMissingTenant = errors.New("tenantID is required")
)

// classificationTTL bounds how long a cached classification is served.
const classificationTTL = 10 * time.Minute

// Service wires the classifier, differ, flag rules and watch engine to the
// persistence and messaging layers.
type Service struct {
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	classifier *status.Classifier
	watch      *watch.Engine
}

// New creates a Service. cache, bus and watchEngine may be nil; the
// pipeline degrades to classify-and-persist only.
func New(repo domain.Repository, cache domain.Cache, bus domain.EventBus, classifier *status.Classifier, watchEngine *watch.Engine) *Service {
	if classifier == nil {
		classifier = status.NewClassifier(status.DefaultPolicy())
	}
	return &Service{
		repo:       repo,
		cache:      cache,
		bus:        bus,
		classifier: classifier,
		watch:      watchEngine,
	}
}

// IngestOutcome is the result of processing one analysis result.
type IngestOutcome struct {
	Project        *domain.Project       `json:"project"`
	Classification domain.Classification `json:"classification"`
	Month          string                `json:"month"`
	Created        bool                  `json:"created"`
	Flags          []domain.Flag         `json:"flags,omitempty"`
	Diff           domain.ReportDiff     `json:"diff"`
}

// statusEvent is the payload published on every classification.
type statusEvent struct {
	ProjectID   string          `json:"projectId"`
	TenantID    string          `json:"tenantId"`
	Name        string          `json:"name"`
	Month       string          `json:"month"`
	Tier        domain.RiskTier `json:"tier"`
	Probability float64         `json:"probability"`
	FlagCount   int             `json:"flagCount"`
}

// IngestReport runs the full pipeline for one monthly analysis result:
// resolve the project, classify the snapshot against merged history, update
// history with replace-by-month semantics, persist, cache and publish.
func (s *Service) IngestReport(ctx context.Context, tenantID string, result *domain.AnalysisResult) (*IngestOutcome, error) {
	start := time.Now()

	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	if result == nil || strings.TrimSpace(result.ProjectInfo.FullName) == "" {
		return nil, ErrMissingProjectName
	}

	month := status.ExtractMonthKey(result.ProjectInfo.ReportPeriod)

	// 1. Resolve the project: by ID, then by normalized code, then by name.
	project, created, err := s.resolveProject(ctx, tenantID, result)
	if err != nil {
		return nil, err
	}

	// 2. Classify against prior history. The entry being replaced for the
	// same month is excluded so a re-upload does not feed itself.
	prior := withoutMonth(project.History, month)
	classification := s.classifier.Classify(result.Metrics, prior, result.Manual)

	// 3. Build the month entry and apply replace-by-month retention.
	metrics := status.Normalize(result.Metrics)
	entry := domain.HistoryEntry{
		Month:        month,
		ReportPeriod: result.ProjectInfo.ReportPeriod,
		Metrics:      metrics,
		DDUPayment:   metrics.LatestDDUPayment(),
		Tier:         classification.Tier,
		Probability:  classification.Probability,
		Timestamp:    time.Now().UTC(),
	}
	project.History = prependEntry(prior, entry)
	project.ReportFiles = mergeReportFiles(project.ReportFiles, month, result)

	// Previous entry for diffing and flag rules, after the update.
	var previous *domain.HistoryEntry
	if len(project.History) > 1 {
		previous = &project.History[1]
	}

	// 4. Denormalize the latest snapshot onto the project.
	s.applySnapshot(project, result, entry, classification)

	if err := s.repo.SaveProject(ctx, tenantID, project); err != nil {
		return nil, fmt.Errorf("save project: %w", err)
	}

	// 5. Audit trail. A failed audit write does not fail the ingest.
	rec := &domain.EvaluationRecord{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		ProjectID:   project.ID,
		Month:       month,
		Tier:        classification.Tier,
		Probability: classification.Probability,
		Reasons:     classification.Reasons,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.SaveEvaluation(ctx, tenantID, rec); err != nil {
		slog.Error("failed to save evaluation record",
			"project_id", project.ID,
			"month", month,
			"error", err,
		)
	}

	if s.cache != nil {
		if err := s.cache.SetClassification(ctx, tenantID, project.ID, &classification, classificationTTL); err != nil {
			slog.Warn("failed to cache classification",
				"project_id", project.ID,
				"error", err,
			)
		}
	}

	// 6. Flags: built-in rules plus operator watch rules, ranked.
	flagList := s.evaluateFlags(ctx, tenantID, project, entry, previous, classification)

	reportDiff := diff.Compare(entry, previous)

	// 7. Publish the outcome; critical tiers also go to the alert topic.
	s.publish(ctx, tenantID, project, month, classification, len(flagList))

	slog.Info("report ingested",
		"project_id", project.ID,
		"tenant_id", tenantID,
		"month", month,
		"tier", classification.Tier,
		"flags", len(flagList),
		"created", created,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &IngestOutcome{
		Project:        project,
		Classification: classification,
		Month:          month,
		Created:        created,
		Flags:          flagList,
		Diff:           reportDiff,
	}, nil
}

// resolveProject finds the project a result belongs to, or creates a new
// one. Lookup order: explicit ID, normalized code, case-insensitive name.
func (s *Service) resolveProject(ctx context.Context, tenantID string, result *domain.AnalysisResult) (*domain.Project, bool, error) {
	if result.ProjectID != "" {
		p, err := s.repo.GetProject(ctx, tenantID, result.ProjectID)
		if err == nil {
			return p, false, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, false, fmt.Errorf("get project: %w", err)
		}
	}

	code := NormalizeCode(result.ProjectInfo.Code)
	if code != "" {
		p, err := s.repo.FindProjectByCode(ctx, tenantID, code)
		if err == nil {
			return p, false, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, false, fmt.Errorf("find project by code: %w", err)
		}
	}

	name := strings.ToLower(strings.TrimSpace(result.ProjectInfo.FullName))
	projects, err := s.repo.ListProjects(ctx, tenantID)
	if err != nil {
		return nil, false, fmt.Errorf("list projects: %w", err)
	}
	for _, p := range projects {
		if strings.ToLower(strings.TrimSpace(p.Name)) == name {
			return p, false, nil
		}
	}

	now := time.Now().UTC()
	return &domain.Project{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		CreatedAt: now,
	}, true, nil
}

// applySnapshot copies identity fields from the result and denormalizes the
// newest history entry onto the project for list views.
func (s *Service) applySnapshot(project *domain.Project, result *domain.AnalysisResult, entry domain.HistoryEntry, c domain.Classification) {
	info := result.ProjectInfo

	project.Name = strings.TrimSpace(info.FullName)
	if info.Code != "" {
		project.Code = info.Code
		project.NormalizedCode = NormalizeCode(info.Code)
	}
	if project.NormalizedCode == "" {
		project.NormalizedCode = NormalizeCode(project.Name)
	}
	if info.Customer != "" {
		project.Customer = info.Customer
	}
	if info.Location != "" {
		project.Location = info.Location
	}
	project.ReportPeriod = info.ReportPeriod

	m := entry.Metrics
	project.SMRCompletion = m.SMRCompletion
	project.GPRDelayPercent = m.GPRDelayPercent
	project.GPRDelayDays = m.GPRDelayDays
	project.DDUPayment = entry.DDUPayment

	project.Tier = c.Tier
	project.Probability = c.Probability
	project.StatusReasons = c.Reasons
	project.Needs3Reports = c.Needs3Reports

	if m.SMRCompletion >= 80 {
		project.CurrentStatus = "on schedule"
	} else {
		project.CurrentStatus = "behind schedule"
	}
	project.ScheduleAdherence = 100 - m.GPRDelayPercent

	project.UpdatedAt = time.Now().UTC()
}

// evaluateFlags runs the built-in flag rules and any loaded watch rules
// and returns the combined list ranked by severity.
func (s *Service) evaluateFlags(ctx context.Context, tenantID string, project *domain.Project, current domain.HistoryEntry, previous *domain.HistoryEntry, c domain.Classification) []domain.Flag {
	list := flags.Generate(project, current, previous)

	if s.watch != nil && s.watch.RulesCount() > 0 {
		watched, err := s.watch.EvaluateAll(ctx, &watch.EvaluateInput{
			TenantID:    tenantID,
			Month:       current.Month,
			Metrics:     current.Metrics,
			Tier:        c.Tier,
			Probability: c.Probability,
		})
		if err != nil {
			slog.Error("watch rule evaluation failed",
				"project_id", project.ID,
				"error", err,
			)
		} else {
			list = append(list, watched...)
		}
	}

	return flags.Prioritize(list)
}

func (s *Service) publish(ctx context.Context, tenantID string, project *domain.Project, month string, c domain.Classification, flagCount int) {
	if s.bus == nil {
		return
	}

	payload, _ := json.Marshal(statusEvent{
		ProjectID:   project.ID,
		TenantID:    tenantID,
		Name:        project.Name,
		Month:       month,
		Tier:        c.Tier,
		Probability: c.Probability,
		FlagCount:   flagCount,
	})

	if err := s.bus.Publish(ctx, tenantID, domain.TopicProjectStatus, payload); err != nil {
		slog.Error("failed to publish status event",
			"project_id", project.ID,
			"error", err,
		)
	}

	if c.Tier == domain.TierCritical {
		if err := s.bus.Publish(ctx, tenantID, domain.TopicProjectAlert, payload); err != nil {
			slog.Error("failed to publish alert event",
				"project_id", project.ID,
				"error", err,
			)
		}
	}
}

// GetProject returns one project.
func (s *Service) GetProject(ctx context.Context, tenantID, projectID string) (*domain.Project, error) {
	return s.repo.GetProject(ctx, tenantID, projectID)
}

// ListProjects returns all projects for the tenant, most recently updated
// first.
func (s *Service) ListProjects(ctx context.Context, tenantID string) ([]*domain.Project, error) {
	return s.repo.ListProjects(ctx, tenantID)
}

// DeleteProject removes a project and drops its cached classification.
func (s *Service) DeleteProject(ctx context.Context, tenantID, projectID string) error {
	if err := s.repo.DeleteProject(ctx, tenantID, projectID); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, tenantID, "status:"+projectID); err != nil {
			slog.Warn("failed to drop cached classification",
				"project_id", projectID,
				"error", err,
			)
		}
	}
	return nil
}

// ProjectDiff compares the project's two newest monthly snapshots.
func (s *Service) ProjectDiff(ctx context.Context, tenantID, projectID string) (*domain.ReportDiff, error) {
	project, err := s.repo.GetProject(ctx, tenantID, projectID)
	if err != nil {
		return nil, err
	}
	latest := project.LatestEntry()
	if latest == nil {
		return nil, fmt.Errorf("project %s has no report history", projectID)
	}
	d := diff.Compare(*latest, project.PreviousEntry())
	return &d, nil
}

// ProjectFlags recomputes the flag list for the project's latest snapshot.
// Flags are ephemeral; nothing is persisted.
func (s *Service) ProjectFlags(ctx context.Context, tenantID, projectID string) ([]domain.Flag, error) {
	project, err := s.repo.GetProject(ctx, tenantID, projectID)
	if err != nil {
		return nil, err
	}
	latest := project.LatestEntry()
	if latest == nil {
		return nil, nil
	}
	c := domain.Classification{
		Tier:        project.Tier,
		Probability: project.Probability,
		Reasons:     project.StatusReasons,
	}
	return s.evaluateFlags(ctx, tenantID, project, *latest, project.PreviousEntry(), c), nil
}

// Classification returns the latest classification for a project, serving
// from cache when possible.
func (s *Service) Classification(ctx context.Context, tenantID, projectID string) (*domain.Classification, error) {
	if s.cache != nil {
		if c, err := s.cache.GetClassification(ctx, tenantID, projectID); err == nil && c != nil {
			return c, nil
		}
	}

	project, err := s.repo.GetProject(ctx, tenantID, projectID)
	if err != nil {
		return nil, err
	}
	c := &domain.Classification{
		Tier:          project.Tier,
		Probability:   project.Probability,
		Reasons:       project.StatusReasons,
		Needs3Reports: project.Needs3Reports,
	}
	if s.cache != nil {
		_ = s.cache.SetClassification(ctx, tenantID, projectID, c, classificationTTL)
	}
	return c, nil
}

// NormalizeCode strips everything but letters and digits and lowercases the
// rest, so "ЖК-Ривьера 2" and "жкривьера2" resolve to the same project.
func NormalizeCode(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		if ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') || isCyrillic(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isCyrillic(r rune) bool {
	return (r >= 'а' && r <= 'я') || r == 'ё'
}

// withoutMonth returns history with any entry for the given month removed.
func withoutMonth(history []domain.HistoryEntry, month string) []domain.HistoryEntry {
	out := make([]domain.HistoryEntry, 0, len(history))
	for _, e := range history {
		if e.Month != month {
			out = append(out, e)
		}
	}
	return out
}

// prependEntry puts the new entry at the head and enforces retention.
func prependEntry(history []domain.HistoryEntry, entry domain.HistoryEntry) []domain.HistoryEntry {
	out := append([]domain.HistoryEntry{entry}, history...)
	if len(out) > domain.HistoryRetention {
		out = out[:domain.HistoryRetention]
	}
	return out
}

// mergeReportFiles applies the same replace-by-month retention to uploaded
// source documents.
func mergeReportFiles(files []domain.ReportFile, month string, result *domain.AnalysisResult) []domain.ReportFile {
	if len(result.SourceFiles) == 0 {
		return files
	}

	kept := make([]domain.ReportFile, 0, len(files))
	for _, f := range files {
		if f.Month != month {
			kept = append(kept, f)
		}
	}

	fresh := make([]domain.ReportFile, 0, len(result.SourceFiles))
	for _, f := range result.SourceFiles {
		fresh = append(fresh, domain.ReportFile{
			Month:        month,
			ReportPeriod: result.ProjectInfo.ReportPeriod,
			FileName:     f.FileName,
			UploadedAt:   f.UploadedAt,
			URL:          f.URL,
		})
	}

	out := append(fresh, kept...)
	if len(out) > domain.HistoryRetention {
		out = out[:domain.HistoryRetention]
	}
	return out
}
