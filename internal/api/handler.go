package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gradometer/gradometer/internal/domain"
	"github.com/gradometer/gradometer/internal/repository"
	"github.com/gradometer/gradometer/internal/service"
	"github.com/gradometer/gradometer/internal/watch"
	"github.com/gradometer/gradometer/internal/worker"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	svc     *service.Service
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	engine  *watch.Engine
	version string
}

// NewHandler creates a new API handler.
func NewHandler(svc *service.Service, repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *watch.Engine, version string) *Handler {
	return &Handler{
		svc:     svc,
		repo:    repo,
		cache:   cache,
		bus:     bus,
		engine:  engine,
		version: version,
	}
}

// ReportRequest is the request body for POST /reports.
type ReportRequest struct {
	ProjectID   string                  `json:"projectId,omitempty"`
	ProjectInfo domain.ProjectInfo      `json:"projectInfo"`
	Metrics     domain.Metrics          `json:"metrics"`
	Manual      *domain.ManualFlags     `json:"manualFlags,omitempty"`
	SourceFiles []domain.ReportFileInfo `json:"sourceFiles,omitempty"`

	// Async queues the report on the event bus instead of processing
	// inline. Requires a running worker.
	Async bool `json:"async,omitempty"`
}

// IngestReport handles POST /reports requests.
func (h *Handler) IngestReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	result := &domain.AnalysisResult{
		ProjectID:   req.ProjectID,
		ProjectInfo: req.ProjectInfo,
		Metrics:     req.Metrics,
		Manual:      req.Manual,
		SourceFiles: req.SourceFiles,
	}

	if req.Async {
		if h.bus == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "event bus not available for async ingestion",
			})
			return
		}
		payload, _ := json.Marshal(worker.IntakeMessage{
			TenantID: tenantID,
			TraceID:  traceID,
			Result:   result,
		})
		if err := h.bus.Publish(ctx, tenantID, domain.TopicReportIntake, payload); err != nil {
			slog.Error("failed to queue report", "tenant_id", tenantID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to queue report",
			})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":  "queued",
			"traceId": traceID,
		})
		return
	}

	outcome, err := h.svc.IngestReport(ctx, tenantID, result)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingProjectName):
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "projectInfo.fullName is required",
			})
		default:
			slog.Error("report ingestion failed",
				"tenant_id", tenantID,
				"trace_id", traceID,
				"error", err,
			)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to process report",
			})
		}
		return
	}

	status := http.StatusOK
	if outcome.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, outcome)
}

// ListProjects returns all projects for the tenant.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	projects, err := h.svc.ListProjects(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list projects", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list projects",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"projects": projects,
		"count":    len(projects),
	})
}

// GetProject retrieves a project by ID.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	projectID := chi.URLParam(r, "id")

	project, err := h.svc.GetProject(ctx, tenantID, projectID)
	if err != nil {
		writeRepoError(w, err, "project")
		return
	}

	writeJSON(w, http.StatusOK, project)
}

// DeleteProject removes a project.
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	projectID := chi.URLParam(r, "id")

	if err := h.svc.DeleteProject(ctx, tenantID, projectID); err != nil {
		writeRepoError(w, err, "project")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "deleted",
		"id":     projectID,
	})
}

// GetProjectDiff compares the project's two newest monthly snapshots.
func (h *Handler) GetProjectDiff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	projectID := chi.URLParam(r, "id")

	d, err := h.svc.ProjectDiff(ctx, tenantID, projectID)
	if err != nil {
		writeRepoError(w, err, "project")
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// GetProjectFlags recomputes the flag list for the latest snapshot.
func (h *Handler) GetProjectFlags(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	projectID := chi.URLParam(r, "id")

	list, err := h.svc.ProjectFlags(ctx, tenantID, projectID)
	if err != nil {
		writeRepoError(w, err, "project")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"flags": list,
		"count": len(list),
	})
}

// GetProjectStats returns descriptive statistics over the project history.
func (h *Handler) GetProjectStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	projectID := chi.URLParam(r, "id")

	st, err := h.svc.Stats(ctx, tenantID, projectID)
	if err != nil {
		writeRepoError(w, err, "project")
		return
	}

	writeJSON(w, http.StatusOK, st)
}

// GetPortfolioStats returns the tenant-wide overview.
func (h *Handler) GetPortfolioStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	st, err := h.svc.PortfolioStats(ctx, tenantID)
	if err != nil {
		slog.Error("failed to compute portfolio stats", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute portfolio stats",
		})
		return
	}

	writeJSON(w, http.StatusOK, st)
}

// GetEvaluation retrieves a classification audit record by ID.
func (h *Handler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	evalID := chi.URLParam(r, "id")

	rec, err := h.repo.GetEvaluation(ctx, tenantID, evalID)
	if err != nil {
		writeRepoError(w, err, "evaluation")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListWatchRules returns all rules loaded in the engine.
// Rules are loaded from the database at startup and can be reloaded via
// POST /watchrules/reload.
func (h *Handler) ListWatchRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loaded,
		"count":  len(loaded),
		"source": "database",
	})
}

// GetWatchRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetWatchRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "watch rule not found",
	})
}

// CreateWatchRuleRequest is the request body for creating a watch rule.
type CreateWatchRuleRequest struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Expression  string          `json:"expression"`
	FlagType    domain.FlagType `json:"flagType"`
	Severity    int             `json:"severity"`
	Title       string          `json:"title"`
	Enabled     bool            `json:"enabled"`
}

// GlobalTenantID is used for watch rules that apply to all tenants.
const GlobalTenantID = "*"

// CreateWatchRule validates a rule against the CEL environment, persists it
// and loads it into the engine. Rules are saved globally (tenant_id = "*")
// so they apply to all tenants.
func (h *Handler) CreateWatchRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateWatchRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	rule := &domain.WatchRule{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		FlagType:    req.FlagType,
		Severity:    req.Severity,
		Title:       req.Title,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression by attempting to load
	if err := h.engine.LoadRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveWatchRule(ctx, GlobalTenantID, rule); err != nil {
			slog.Error("failed to save watch rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save watch rule",
			})
			return
		}
	}

	slog.Info("watch rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    rule,
		"message": "Watch rule created. Call POST /watchrules/reload to apply changes.",
	})
}

// DeleteWatchRule soft-deletes a rule and evicts it from the engine.
func (h *Handler) DeleteWatchRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if err := h.repo.DeleteWatchRule(ctx, GlobalTenantID, ruleID); err != nil {
		writeRepoError(w, err, "watch rule")
		return
	}

	// Drop from the running engine as well
	remaining, err := h.repo.ListWatchRules(ctx, GlobalTenantID)
	if err == nil {
		if err := h.engine.ReloadRules(remaining); err != nil {
			slog.Error("failed to reload rules after delete", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "deleted",
		"id":     ruleID,
	})
}

// ReloadWatchRules reloads all rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadWatchRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListWatchRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list watch rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load watch rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload watch rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload watch rules: " + err.Error(),
		})
		return
	}

	slog.Info("watch rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "watch rules reloaded successfully",
		"count":   len(dbRules),
	})
}

func writeRepoError(w http.ResponseWriter, err error, noun string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": noun + " not found",
		})
	case errors.Is(err, repository.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	default:
		slog.Error("repository error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal error",
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
