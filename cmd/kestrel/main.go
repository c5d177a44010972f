// Kestrel - Trust scoring and fraud-ring detection engine.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/trustlab/kestrel/internal/api"
	"github.com/trustlab/kestrel/internal/assessment"
	"github.com/trustlab/kestrel/internal/bus"
	"github.com/trustlab/kestrel/internal/cache"
	"github.com/trustlab/kestrel/internal/domain"
	"github.com/trustlab/kestrel/internal/graph"
	"github.com/trustlab/kestrel/internal/pipeline"
	"github.com/trustlab/kestrel/internal/repository"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"schedule_hours", cfg.Pipeline.ScheduleHours,
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

	// Initialize graph builder
	builder := graph.NewBuilder(repo)

	// Initialize epoch runner (validates fusion weights and risk policy)
	runner, err := pipeline.NewRunner(repo, cacheImpl, busImpl, cfg.Pipeline)
	if err != nil {
		slog.Error("failed to initialize pipeline", "error", err)
		os.Exit(1)
	}

	// Initialize scheduler
	interval := time.Duration(cfg.Pipeline.ScheduleHours) * time.Hour
	scheduler := pipeline.NewScheduler(runner, busImpl, interval)
	if err := scheduler.Start(ctx); err != nil {
		slog.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer scheduler.Stop()
	slog.Info("scheduler started", "interval", interval)

	// Initialize assessment orchestrator
	orchestrator := assessment.NewOrchestrator(repo, cacheImpl)

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, builder, scheduler, orchestrator, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// applyEnvOverrides lets individual settings be tuned without a Pro/Community
// switch. Only settings operators commonly change are exposed.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("KESTREL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("KESTREL_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("KESTREL_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("KESTREL_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("KESTREL_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Pipeline.Seed = seed
		}
	}
	if v := os.Getenv("KESTREL_WORKERS"); v != "" {
		if workers, err := strconv.Atoi(v); err == nil && workers > 0 {
			cfg.Pipeline.Workers = workers
		}
	}
	if v := os.Getenv("KESTREL_SCHEDULE_HOURS"); v != "" {
		if hours, err := strconv.Atoi(v); err == nil && hours >= 0 {
			cfg.Pipeline.ScheduleHours = hours
		}
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               KESTREL                     ║")
	fmt.Println("  ║   Trust Scoring & Fraud Ring Detection    ║")
	fmt.Println("  ║      Sharp eyes on every account.         ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /events                    - Ingest behavior events")
	fmt.Println("    POST /profiles                  - Upsert behavior profiles")
	fmt.Println("    POST /epochs                    - Trigger a scoring epoch")
	fmt.Println("    GET  /epochs/current            - Current epoch status")
	fmt.Println("    GET  /users/{id}/trust          - Current trust record")
	fmt.Println("    GET  /users/{id}/trust/history  - Trust score history")
	fmt.Println("    GET  /users/{id}/assessment     - Assessment handoff payload")
	fmt.Println("    GET  /rings                     - Detected fraud rings")
	fmt.Println("    GET  /trust/summary             - Tier distribution")
	fmt.Println("    PUT  /models/classifier         - Upload classifier artifact")
	fmt.Println("    GET  /health                    - Health check")
	fmt.Println()
}
