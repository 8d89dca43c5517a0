// Gradometer - construction project risk monitoring.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gradometer/gradometer/internal/api"
	"github.com/gradometer/gradometer/internal/bus"
	"github.com/gradometer/gradometer/internal/cache"
	"github.com/gradometer/gradometer/internal/domain"
	"github.com/gradometer/gradometer/internal/repository"
	"github.com/gradometer/gradometer/internal/service"
	"github.com/gradometer/gradometer/internal/status"
	"github.com/gradometer/gradometer/internal/watch"
	"github.com/gradometer/gradometer/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Optional .env file for local development
	_ = godotenv.Load()

	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("GRADOMETER_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting gradometer",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	cfg := loadConfig()

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Watch Engine
	engine, err := watch.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize watch engine", "error", err)
		os.Exit(1)
	}

	// Load watch rules from database (no hardcoded defaults - configure via API)
	if err := loadWatchRulesFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load watch rules", "error", err)
		os.Exit(1)
	}
	slog.Info("watch engine initialized", "rules_count", engine.RulesCount())

	// Initialize the ingestion pipeline
	classifier := status.NewClassifier(status.DefaultPolicy())
	svc := service.New(repo, cacheImpl, busImpl, classifier, engine)
	slog.Info("ingestion pipeline initialized")

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("GRADOMETER_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, svc)

		tenantIDs := []string{}
		if envTenants := os.Getenv("GRADOMETER_TENANTS"); envTenants != "" {
			for _, id := range strings.Split(envTenants, ",") {
				if id = strings.TrimSpace(id); id != "" {
					tenantIDs = append(tenantIDs, id)
				}
			}
		}

		if err := asyncWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, svc, repo, cacheImpl, busImpl, engine, cfg.RateLimit, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("gradometer is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("gradometer shutdown complete")
}

// loadConfig builds the configuration from the tier default plus
// GRADOMETER_* environment overrides.
func loadConfig() *domain.Config {
	cfg := domain.DefaultConfig()
	if os.Getenv("GRADOMETER_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	if v := os.Getenv("GRADOMETER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("GRADOMETER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("GRADOMETER_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("GRADOMETER_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("GRADOMETER_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("GRADOMETER_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("GRADOMETER_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("GRADOMETER_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("GRADOMETER_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("GRADOMETER_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.MaxPerMin = n
			cfg.RateLimit.Enabled = n > 0
		}
	}

	return cfg
}

// GlobalTenantID is used for watch rules that apply to all tenants.
const GlobalTenantID = "*"

// loadWatchRulesFromDatabase loads watch rules into the engine.
// All rules are configured via POST /watchrules - no hardcoded defaults.
func loadWatchRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *watch.Engine) error {
	dbRules, err := repo.ListWatchRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list watch rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading watch rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no watch rules in database - configure via POST /watchrules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║             📐 GRADOMETER                 ║")
	fmt.Println("  ║   Construction Project Risk Monitoring    ║")
	fmt.Println("  ║     Every site, every month, graded.      ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /reports               - Ingest a monthly report")
	fmt.Println("    GET  /projects              - List projects")
	fmt.Println("    GET  /projects/{id}         - Get project by ID")
	fmt.Println("    DELETE /projects/{id}       - Delete a project")
	fmt.Println("    GET  /projects/{id}/diff    - Month-over-month comparison")
	fmt.Println("    GET  /projects/{id}/flags   - Current alert flags")
	fmt.Println("    GET  /projects/{id}/stats   - History statistics")
	fmt.Println("    GET  /stats                 - Portfolio overview")
	fmt.Println("    GET  /evaluations/{id}      - Get classification record")
	fmt.Println("    GET  /watchrules            - List watch rules")
	fmt.Println("    POST /watchrules            - Create a watch rule")
	fmt.Println("    POST /watchrules/reload     - Hot-reload watch rules")
	fmt.Println("    GET  /health                - Health check")
	fmt.Println()
}
