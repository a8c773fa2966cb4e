// squorcore orchestrates the grocery-label scoring pipeline: it claims
// queued WorkflowItems, drives them through discovery, enrichment, AI
// analysis, fact mapping, scoring, indexing, and notification, and serves
// a small HTTP API for health checks and manual workflow administration.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/labelsquor/squorcore/pkg/aiadapter"
	"github.com/labelsquor/squorcore/pkg/cleanup"
	"github.com/labelsquor/squorcore/pkg/config"
	"github.com/labelsquor/squorcore/pkg/database"
	"github.com/labelsquor/squorcore/pkg/events"
	"github.com/labelsquor/squorcore/pkg/factmapper"
	"github.com/labelsquor/squorcore/pkg/notify"
	"github.com/labelsquor/squorcore/pkg/quota"
	"github.com/labelsquor/squorcore/pkg/queue"
	"github.com/labelsquor/squorcore/pkg/repository"
	"github.com/labelsquor/squorcore/pkg/searchindex"
	"github.com/labelsquor/squorcore/pkg/version"
	"github.com/labelsquor/squorcore/pkg/workflow"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: could not load %s: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	ginMode := getEnv("GIN_MODE", "release")
	gin.SetMode(ginMode)

	log.Printf("Starting %s", version.Full())
	log.Printf("HTTP port: %s", httpPort)
	log.Printf("Config directory: %s", *configDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("failed to initialize configuration: %v", err)
	}
	stats := cfg.Stats()

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("failed to load database config: %v", err)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer dbClient.Close()
	log.Println("connected to PostgreSQL, migrations applied")

	repo := repository.New(dbClient)
	lock := repository.NewAdvisoryLock(dbClient)

	quotaRegistry := buildQuotaRegistry(cfg.Quota)
	aiClient := aiadapter.NewClient(cfg.AI, quotaRegistry.Get("ai-adapter"))
	mapper := factmapper.NewMapper(repo)
	searchIndex := searchindex.New(cfg.SearchIndex)
	notifier := notify.New(cfg.Notify)

	// imagehost.New(cfg.ImageHost) re-hosts listing images at ingestion
	// time, ahead of this module's discovery stage (which loads an
	// already-created SourcePage); it belongs to the ingestion entrypoint
	// that creates SourcePage/WorkflowItem rows, not the processing engine
	// wired here.

	eventPublisher := events.NewEventPublisher(dbClient.DB())

	engineCfg := workflow.Config{
		MaxRetries:     cfg.Workflow.MaxRetries,
		RetryBaseDelay: cfg.Workflow.RetryBaseDelay,
		RetryMaxDelay:  cfg.Workflow.RetryMaxDelay,
	}
	engine := workflow.NewEngine(repo, lock, quotaRegistry.Get("ai-adapter"), aiClient, mapper,
		searchIndex, notifier, eventPublisher, engineCfg)
	executor := workflow.NewEngineExecutor(engine)

	workerPool := queue.NewWorkerPool("squorcore", repo, cfg.Workflow, executor)
	if err := workerPool.Start(ctx); err != nil {
		log.Fatalf("failed to start worker pool: %v", err)
	}
	defer workerPool.Stop()
	log.Println("worker pool started")

	cleanupService := cleanup.NewService(cfg.Retention, repo)
	cleanupService.Start(ctx)
	defer cleanupService.Stop()
	log.Println("cleanup service started")

	connManager := events.NewConnectionManager(events.NewEventServiceAdapter(repo), 5*time.Second)
	listener := events.NewNotifyListener(database.DSN(dbConfig), connManager)
	if err := listener.Start(ctx); err != nil {
		log.Fatalf("failed to start NOTIFY listener: %v", err)
	}
	connManager.SetListener(listener)
	defer listener.Stop(context.Background())
	log.Println("event listener started")

	router := newRouter(dbClient, engine, workerPool, stats)

	srv := &http.Server{Addr: ":" + httpPort, Handler: router}
	go func() {
		log.Printf("HTTP server listening on :%s", httpPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received, stopping gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Workflow.GracefulShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
}

// buildQuotaRegistry seeds a Registry from the "ai-adapter" service override
// in cfg.Services if present, falling back to the package's built-in
// free-tier defaults otherwise. squorcore currently calls exactly one
// external AI service, so a single default limit/pricing set is sufficient;
// a deployment with more than one externally-quota'd service would need
// Registry to carry per-service overrides, which it does not do today.
func buildQuotaRegistry(cfg *config.QuotaConfig) *quota.Registry {
	limits := quota.DefaultLimits()
	pricing := quota.DefaultPricing()

	if svc, ok := cfg.Services["ai-adapter"]; ok {
		for _, l := range svc.Limits {
			override := quota.Limit{Kind: quota.LimitKind(l.Kind), Max: l.Max, Window: l.Window}
			replaced := false
			for i := range limits {
				if limits[i].Kind == override.Kind {
					limits[i] = override
					replaced = true
					break
				}
			}
			if !replaced {
				limits = append(limits, override)
			}
		}
		if svc.Pricing != nil {
			pricing = quota.Pricing{
				Model:           svc.Pricing.Model,
				InputPerKToken:  svc.Pricing.InputPerKToken,
				OutputPerKToken: svc.Pricing.OutputPerKToken,
				ImagePerImage:   svc.Pricing.ImagePerImage,
			}
		}
	}

	return quota.NewRegistry(limits, pricing)
}

func newRouter(dbClient *database.Client, engine *workflow.Engine, pool *queue.WorkerPool, stats config.Stats) *gin.Engine {
	router := gin.Default()

	router.GET("/health", func(c *gin.Context) {
		reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		dbHealth, err := database.Health(reqCtx, dbClient.Pool)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": dbHealth,
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"version":  version.Full(),
			"database": dbHealth,
			"queue":    pool.Health(reqCtx),
			"configuration": gin.H{
				"worker_count":         stats.WorkerCount,
				"quota_overrides":      stats.QuotaOverrides,
				"image_host_enabled":   stats.ImageHostEnabled,
				"search_index_enabled": stats.SearchIndexEnabled,
				"notify_enabled":       stats.NotifyEnabled,
			},
		})
	})

	admin := router.Group("/admin/workflows/:id")
	admin.POST("/retry", func(c *gin.Context) {
		if err := engine.Retry(c.Request.Context(), c.Param("id")); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})
	admin.POST("/cancel", func(c *gin.Context) {
		if err := engine.Cancel(c.Request.Context(), c.Param("id")); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})
	admin.POST("/suspend", func(c *gin.Context) {
		var body struct {
			Reason string `json:"reason" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := engine.Suspend(c.Request.Context(), c.Param("id"), body.Reason); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})
	admin.POST("/resume-quota", func(c *gin.Context) {
		if err := engine.ResumeQuotaExceeded(c.Request.Context(), c.Param("id")); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	router.POST("/admin/resume-quota-batch", func(c *gin.Context) {
		limit := 50
		resumed, err := engine.ResumeQuotaExceededBatch(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"resumed": resumed})
	})

	return router
}
