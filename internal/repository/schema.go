package repository

// Schema definitions for the Gradometer database.
// Compatible with both SQLite and PostgreSQL.

const schemaProjects = `
CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    code TEXT NOT NULL,
    normalized_code TEXT NOT NULL,
    customer TEXT,
    location TEXT,
    report_period TEXT,
    smr_completion REAL NOT NULL DEFAULT 0,
    gpr_delay_percent REAL NOT NULL DEFAULT 0,
    gpr_delay_days INTEGER NOT NULL DEFAULT 0,
    ddu_payment REAL NOT NULL DEFAULT 0,
    tier TEXT NOT NULL,
    probability REAL NOT NULL DEFAULT 0,
    status_reasons TEXT,
    needs3_reports INTEGER NOT NULL DEFAULT 0,
    current_status TEXT,
    schedule_adherence REAL NOT NULL DEFAULT 0,
    history TEXT NOT NULL,
    report_files TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_projects_tenant ON projects(tenant_id);
CREATE INDEX IF NOT EXISTS idx_projects_code ON projects(tenant_id, normalized_code);
CREATE INDEX IF NOT EXISTS idx_projects_tier ON projects(tenant_id, tier);
`

const schemaEvaluations = `
CREATE TABLE IF NOT EXISTS evaluations (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    project_id TEXT NOT NULL,
    month TEXT NOT NULL,
    tier TEXT NOT NULL,
    probability REAL NOT NULL,
    reasons TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluations_tenant ON evaluations(tenant_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_project ON evaluations(tenant_id, project_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_month ON evaluations(tenant_id, project_id, month);
`

const schemaWatchRules = `
CREATE TABLE IF NOT EXISTS watch_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    flag_type TEXT NOT NULL,
    severity INTEGER NOT NULL DEFAULT 3,
    title TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_watch_rules_tenant ON watch_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_watch_rules_enabled ON watch_rules(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaProjects,
		schemaEvaluations,
		schemaWatchRules,
	}
}
