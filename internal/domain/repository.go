// Package domain defines the core interfaces and types for Gradometer.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Project operations
	SaveProject(ctx context.Context, tenantID string, p *Project) error
	GetProject(ctx context.Context, tenantID string, projectID string) (*Project, error)
	FindProjectByCode(ctx context.Context, tenantID string, normalizedCode string) (*Project, error)
	ListProjects(ctx context.Context, tenantID string) ([]*Project, error)
	DeleteProject(ctx context.Context, tenantID string, projectID string) error

	// Classification audit trail
	SaveEvaluation(ctx context.Context, tenantID string, rec *EvaluationRecord) error
	GetEvaluation(ctx context.Context, tenantID string, evalID string) (*EvaluationRecord, error)

	// Watch rule operations
	SaveWatchRule(ctx context.Context, tenantID string, rule *WatchRule) error
	GetWatchRule(ctx context.Context, tenantID string, ruleID string) (*WatchRule, error)
	ListWatchRules(ctx context.Context, tenantID string) ([]*WatchRule, error)
	DeleteWatchRule(ctx context.Context, tenantID string, ruleID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
