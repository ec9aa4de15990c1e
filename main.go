package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/ideaforge-ai/ideaforge-engine/pkg/agent"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/auth"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/config"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/crypto"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/database"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/handlers"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/learning"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/llm"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/logging"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/middleware"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/progress"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/repositories"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/services"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/services/workqueue"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	// Log startup configuration
	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("redis_host", cfg.Redis.Host),
		zap.String("agent_base_url", cfg.Agent.BaseURL),
		zap.String("learning_base_url", cfg.Learning.BaseURL))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Migrations run over database/sql (required by golang-migrate)
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger); err != nil {
		sqlDB.Close()
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	sqlDB.Close()

	// Progress store: Redis when configured, in-process otherwise
	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	var progressStore progress.Store
	if redisClient != nil {
		defer redisClient.Close()
		progressStore = progress.NewRedisStore(redisClient, logger)
		logger.Info("Using Redis progress store")
	} else {
		progressStore = progress.NewMemoryStore()
		logger.Warn("Redis not configured, using in-process progress store")
	}

	// Credential encryption for stored AI API keys
	encryptor, err := crypto.NewCredentialEncryptor(cfg.CredentialsKey)
	if err != nil {
		logger.Fatal("Failed to initialize credential encryptor", zap.Error(err))
	}

	// Repositories
	solutionRepo := repositories.NewSolutionRepository(db)
	aiConfigRepo := repositories.NewAIConfigRepository(db, encryptor)

	// External collaborators
	agentClient := agent.NewClient(cfg.Agent.BaseURL, cfg.Agent.Timeout(), logger)
	learningClient := learning.NewClient(cfg.Learning.BaseURL, logger)
	credentialTester := llm.NewCredentialTester()

	// Background work queue
	queueCfg := workqueue.DefaultConfig()
	queueCfg.Workers = cfg.Generation.Workers
	queueCfg.TaskTimeout = cfg.Generation.JobTimeout()
	queue := workqueue.New(logger, queueCfg)

	// Services
	aiConfigService := services.NewAIConfigService(aiConfigRepo, credentialTester, logger)
	solutionService := services.NewSolutionService(
		solutionRepo, aiConfigService, agentClient, learningClient,
		progressStore, queue, logger)

	// Authentication
	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		logger.Fatal("Failed to initialize JWKS client", zap.Error(err))
	}
	defer jwksClient.Close()
	authService := auth.NewAuthService(jwksClient, logger)
	authMiddleware := auth.NewMiddleware(authService, logger)

	// Routes
	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewSolutionsHandler(solutionService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewAIConfigHandler(aiConfigService, logger).RegisterRoutes(mux, authMiddleware)

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting ideaforge-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		logger.Fatal("Server failed", zap.Error(err))
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
	if err := queue.Shutdown(shutdownCtx); err != nil {
		logger.Error("Work queue shutdown failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
