// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gradometer/gradometer/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveProject upserts a project aggregate with tenant isolation. History,
// report files and status reasons are stored as JSON documents.
func (r *SQLRepository) SaveProject(ctx context.Context, tenantID string, p *domain.Project) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	reasons, _ := json.Marshal(p.StatusReasons)
	history, _ := json.Marshal(p.History)
	files, _ := json.Marshal(p.ReportFiles)

	needs3 := 0
	if p.Needs3Reports {
		needs3 = 1
	}

	query := `
		INSERT INTO projects (
			id, tenant_id, name, code, normalized_code, customer, location,
			report_period, smr_completion, gpr_delay_percent, gpr_delay_days,
			ddu_payment, tier, probability, status_reasons, needs3_reports,
			current_status, schedule_adherence, history, report_files,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			code = excluded.code,
			normalized_code = excluded.normalized_code,
			customer = excluded.customer,
			location = excluded.location,
			report_period = excluded.report_period,
			smr_completion = excluded.smr_completion,
			gpr_delay_percent = excluded.gpr_delay_percent,
			gpr_delay_days = excluded.gpr_delay_days,
			ddu_payment = excluded.ddu_payment,
			tier = excluded.tier,
			probability = excluded.probability,
			status_reasons = excluded.status_reasons,
			needs3_reports = excluded.needs3_reports,
			current_status = excluded.current_status,
			schedule_adherence = excluded.schedule_adherence,
			history = excluded.history,
			report_files = excluded.report_files,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		p.ID, tenantID, p.Name, p.Code, p.NormalizedCode, p.Customer, p.Location,
		p.ReportPeriod, p.SMRCompletion, p.GPRDelayPercent, p.GPRDelayDays,
		p.DDUPayment, string(p.Tier), p.Probability, string(reasons), needs3,
		p.CurrentStatus, p.ScheduleAdherence, string(history), string(files),
		p.CreatedAt, p.UpdatedAt,
	)
	return err
}

const projectColumns = `id, tenant_id, name, code, normalized_code, customer, location,
	   report_period, smr_completion, gpr_delay_percent, gpr_delay_days,
	   ddu_payment, tier, probability, status_reasons, needs3_reports,
	   current_status, schedule_adherence, history, report_files,
	   created_at, updated_at`

func (r *SQLRepository) scanProject(row interface{ Scan(...any) error }) (*domain.Project, error) {
	var p domain.Project
	var customer, location sql.NullString
	var reasons, history, files sql.NullString
	var needs3 int

	err := row.Scan(
		&p.ID, &p.TenantID, &p.Name, &p.Code, &p.NormalizedCode, &customer, &location,
		&p.ReportPeriod, &p.SMRCompletion, &p.GPRDelayPercent, &p.GPRDelayDays,
		&p.DDUPayment, &p.Tier, &p.Probability, &reasons, &needs3,
		&p.CurrentStatus, &p.ScheduleAdherence, &history, &files,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Customer = customer.String
	p.Location = location.String
	p.Needs3Reports = needs3 == 1

	if reasons.String != "" {
		json.Unmarshal([]byte(reasons.String), &p.StatusReasons)
	}
	if history.String != "" {
		if err := json.Unmarshal([]byte(history.String), &p.History); err != nil {
			return nil, fmt.Errorf("failed to parse project history: %w", err)
		}
	}
	if files.String != "" {
		json.Unmarshal([]byte(files.String), &p.ReportFiles)
	}

	return &p, nil
}

// GetProject retrieves a project by ID with tenant isolation.
func (r *SQLRepository) GetProject(ctx context.Context, tenantID string, projectID string) (*domain.Project, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + projectColumns + ` FROM projects WHERE tenant_id = ? AND id = ?`

	p, err := r.scanProject(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, projectID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// FindProjectByCode retrieves a project by its normalized code, used to
// route an incoming report to an existing aggregate.
func (r *SQLRepository) FindProjectByCode(ctx context.Context, tenantID string, normalizedCode string) (*domain.Project, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + projectColumns + ` FROM projects WHERE tenant_id = ? AND normalized_code = ? LIMIT 1`

	p, err := r.scanProject(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, normalizedCode))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// ListProjects retrieves all projects for a tenant, most recently updated
// first.
func (r *SQLRepository) ListProjects(ctx context.Context, tenantID string) ([]*domain.Project, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + projectColumns + ` FROM projects WHERE tenant_id = ? ORDER BY updated_at DESC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*domain.Project
	for rows.Next() {
		p, err := r.scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}

	return projects, rows.Err()
}

// DeleteProject removes a project and its evaluations.
func (r *SQLRepository) DeleteProject(ctx context.Context, tenantID string, projectID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	result, err := r.db.ExecContext(ctx,
		r.rebind(`DELETE FROM projects WHERE tenant_id = ? AND id = ?`),
		tenantID, projectID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	_, err = r.db.ExecContext(ctx,
		r.rebind(`DELETE FROM evaluations WHERE tenant_id = ? AND project_id = ?`),
		tenantID, projectID,
	)
	return err
}

// SaveEvaluation stores a classification audit record with tenant isolation.
func (r *SQLRepository) SaveEvaluation(ctx context.Context, tenantID string, rec *domain.EvaluationRecord) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	reasons, _ := json.Marshal(rec.Reasons)

	query := `
		INSERT INTO evaluations (
			id, tenant_id, project_id, month, tier, probability, reasons, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, tenantID, rec.ProjectID, rec.Month,
		string(rec.Tier), rec.Probability, string(reasons), rec.CreatedAt,
	)
	return err
}

// GetEvaluation retrieves an evaluation record by ID with tenant isolation.
func (r *SQLRepository) GetEvaluation(ctx context.Context, tenantID string, evalID string) (*domain.EvaluationRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, project_id, month, tier, probability, reasons, created_at
		FROM evaluations
		WHERE tenant_id = ? AND id = ?
	`

	var rec domain.EvaluationRecord
	var reasons string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, evalID).Scan(
		&rec.ID, &rec.TenantID, &rec.ProjectID, &rec.Month,
		&rec.Tier, &rec.Probability, &reasons, &rec.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(reasons), &rec.Reasons)

	return &rec, nil
}

// SaveWatchRule stores a watch rule with tenant isolation. Versions are
// immutable: saving the same (id, version) again updates it, a new version
// inserts alongside the old one.
func (r *SQLRepository) SaveWatchRule(ctx context.Context, tenantID string, rule *domain.WatchRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO watch_rules (
			id, tenant_id, name, description, version, expression, flag_type, severity, title, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			flag_type = excluded.flag_type,
			severity = excluded.severity,
			title = excluded.title,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression, string(rule.FlagType), rule.Severity, rule.Title, enabled,
		now, now,
	)
	return err
}

// GetWatchRule retrieves the newest enabled version of a watch rule.
func (r *SQLRepository) GetWatchRule(ctx context.Context, tenantID string, ruleID string) (*domain.WatchRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, flag_type, severity, title, enabled
		FROM watch_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var rule domain.WatchRule
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID).Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
		&rule.Version, &rule.Expression, &rule.FlagType, &rule.Severity, &rule.Title, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled == 1

	return &rule, nil
}

// ListWatchRules retrieves all enabled watch rules for a tenant.
func (r *SQLRepository) ListWatchRules(ctx context.Context, tenantID string) ([]*domain.WatchRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, flag_type, severity, title, enabled
		FROM watch_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.WatchRule
	for rows.Next() {
		var rule domain.WatchRule
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
			&rule.Version, &rule.Expression, &rule.FlagType, &rule.Severity, &rule.Title, &enabled,
		); err != nil {
			return nil, err
		}

		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// DeleteWatchRule soft-deletes a watch rule by setting enabled = 0.
func (r *SQLRepository) DeleteWatchRule(ctx context.Context, tenantID string, ruleID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE watch_rules
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
