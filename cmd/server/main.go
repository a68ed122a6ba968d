// Package main is the REST server entry point.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maternal-guard-server/internal/api"
	"github.com/maternal-guard-server/internal/cache"
	"github.com/maternal-guard-server/internal/config"
	"github.com/maternal-guard-server/internal/database"
	"github.com/maternal-guard-server/internal/domain"
	"github.com/maternal-guard-server/internal/donor"
	"github.com/maternal-guard-server/internal/feedback"
	"github.com/maternal-guard-server/internal/logging"
	"github.com/maternal-guard-server/internal/model"
	"github.com/maternal-guard-server/internal/service"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}

	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	riskModel, err := model.LoadFile(cfg.Model.Path)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load risk model")
	}
	info := riskModel.Info()

	donors, err := donor.LoadDatasetOrSample(cfg.Donors.File)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load donor dataset")
	}

	assessments, cacheCheck, closeCache := newAssessmentCache(cfg.Cache, logger)
	defer closeCache()

	store, checks, closeStore := newFeedbackStore(ctx, configManager, logger)
	defer closeStore()
	if cacheCheck != nil {
		checks["cache"] = cacheCheck
	}

	classifier := service.NewRiskClassifier(logger, riskModel,
		service.WithHighRiskThreshold(cfg.Risk.HighRiskThreshold),
		service.WithModelVersion(info.Version),
	)
	svc := service.NewMaternalGuardService(logger,
		donor.NewFilter(donors, donor.StandardCompatibility(), logger),
		classifier,
		service.WithAssessmentCache(assessments),
		service.WithFeedbackStore(store),
	)

	opts := []api.ServerOption{api.WithModelInfo(info)}
	for name, check := range checks {
		opts = append(opts, api.WithHealthCheck(name, check))
	}
	server := api.NewServer(configManager, svc, logger, opts...)

	logger.WithFields(logrus.Fields{
		"host":          cfg.Server.Host,
		"port":          cfg.Server.Port,
		"model_version": info.Version,
		"donors":        len(donors),
		"feedback":      cfg.Feedback.Driver,
	}).Info("Starting Maternal Guard server")

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Start server
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}

// newAssessmentCache builds the memory tier, adding Redis when a URL is
// configured. An unreachable Redis leaves the server on memory only. The
// health check is nil unless Redis is in use.
func newAssessmentCache(cfg domain.CacheConfig, logger *logrus.Logger) (domain.AssessmentCache, api.HealthCheck, func()) {
	memory, err := cache.NewMemoryCache(cfg.MaxItems, cfg.TTL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create assessment cache")
	}
	if cfg.RedisURL == "" {
		return memory, nil, func() {}
	}

	redisCache, err := cache.NewRedisCache(cfg, logger)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, using memory cache only")
		return memory, nil, func() {}
	}

	tiered := cache.NewTieredCache(memory, redisCache, logger)
	return tiered, tiered.Health, func() {
		if err := tiered.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close cache")
		}
	}
}

// newFeedbackStore opens the configured store. For postgres it connects a
// pgx pool and applies migrations first.
func newFeedbackStore(ctx context.Context, configManager *config.Manager, logger *logrus.Logger) (feedback.Store, map[string]api.HealthCheck, func()) {
	cfg := configManager.GetConfig()
	checks := make(map[string]api.HealthCheck)

	if cfg.Feedback.Driver != "postgres" {
		store, err := feedback.Open(feedback.Config{Driver: "sqlite", SQLitePath: cfg.Feedback.SQLitePath})
		if err != nil {
			logger.WithError(err).Fatal("Failed to open feedback store")
		}
		return store, checks, func() { store.Close() }
	}

	dbConfig := database.ConfigFromDomain(cfg.Database)

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	db, err := database.NewConnection(connectCtx, dbConfig, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	if err := database.MigrateFeedbackSchema(connectCtx, dbConfig.URL(), cfg.Database.MigrationsPath, logger); err != nil {
		logger.WithError(err).Fatal("Failed to apply migrations")
	}

	store, err := feedback.Open(feedback.Config{Driver: "postgres", PostgresDB: db.SQLDB()})
	if err != nil {
		logger.WithError(err).Fatal("Failed to open feedback store")
	}
	checks["database"] = db.Health

	return store, checks, func() {
		store.Close()
		db.Close()
	}
}
