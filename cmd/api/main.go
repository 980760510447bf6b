package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/auth"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/config"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/gateway"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/generation"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/llm"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/logging"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/metrics"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/orchestration"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/storage"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/surgical"

	_ "github.com/bizmatters/prototype-builder/orchestrator/docs" // swagger docs
)

// @title Prototype Builder API
// @version 1.0
// @description AI prototype builder API.
// @description
// @description Generates HTML, CSS and JavaScript prototypes from natural language with retries,
// @description streams progress as lifecycle events, and keeps an undoable history of every change.

// @contact.name API Support
// @contact.email support@bizmatters.dev

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the JWT token.

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	tp, err := initTracer()
	if err != nil {
		logger.Fatal("failed to initialize tracer", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("connecting to PostgreSQL database")
	pool, err := storage.Connect(ctx, cfg.Database.URL, cfg.Database.ConnectTries, cfg.Database.ConnectDelay, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()
	if err := storage.Migrate(ctx, pool); err != nil {
		logger.Fatal("failed to apply schema", zap.Error(err))
	}
	logger.Info("connected to PostgreSQL database")

	capability, err := llm.NewCapability(ctx, cfg.ProviderConfig())
	if err != nil {
		logger.Fatal("failed to initialize LLM provider", zap.Error(err))
	}
	guarded := llm.NewBreakerCapability(capability, logger)

	generationMetrics, err := metrics.NewGenerationMetrics()
	if err != nil {
		logger.Fatal("failed to initialize metrics", zap.Error(err))
	}

	orchestrator := generation.NewOrchestrator(guarded, cfg.OrchestratorConfig(), logger,
		generation.WithMetrics(generationMetrics),
		generation.WithTokenCounter(llm.NewTokenCounter(cfg.ModelName())),
	)
	editor := surgical.NewService(guarded, logger)

	service := orchestration.NewService(
		storage.NewProjectStore(pool, logger),
		orchestrator,
		editor,
		cfg.Generation.HistoryDepth,
		logger,
		orchestration.WithCache(storage.NewResponseCache(pool, logger)),
		orchestration.WithRunStore(storage.NewRunStore(pool)),
	)

	jwtManager, err := auth.NewJWTManager(cfg.Auth.JWTSecret)
	if err != nil {
		logger.Fatal("failed to initialize JWT manager", zap.Error(err))
	}

	handler := gateway.NewHandler(service, storage.NewUserStore(pool), jwtManager, cfg.Auth.TokenTTL, cfg.Server.CORSOrigin, logger)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), logging.GinMiddleware(logger), corsMiddleware(cfg.Server.CORSOrigin))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "provider": guarded.Name()})
	})
	router.GET("/ready", readinessHandler(pool))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := router.Group("/api")
	protected := api.Group("")
	protected.Use(auth.RequireAuth(jwtManager, logger))
	handler.RegisterRoutes(api, protected)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// streams outlive any fixed write timeout
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting prototype builder API server",
			zap.String("port", cfg.Server.Port),
			zap.String("llm_provider", guarded.Name()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to flush traces", zap.Error(err))
	}
	logger.Info("server exited")
}

func readinessHandler(pool *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"error":  "database connection failed",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

func corsMiddleware(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// initTracer initializes OpenTelemetry tracing
func initTracer() (*trace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}
