// Package mcp provides the MCP tool server.
// The lite server requires no external databases: it keeps recent
// assessments in memory and clinician feedback in SQLite, or in Postgres
// when MATERNAL_GUARD_FEEDBACK_DRIVER=postgres.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/maternal-guard-server/internal/cache"
	litecfg "github.com/maternal-guard-server/internal/config"
	"github.com/maternal-guard-server/internal/database"
	"github.com/maternal-guard-server/internal/donor"
	"github.com/maternal-guard-server/internal/feedback"
	"github.com/maternal-guard-server/internal/logging"
	"github.com/maternal-guard-server/internal/model"
	"github.com/maternal-guard-server/internal/service"
)

const (
	serverName    = "maternal-guard-mcp-lite"
	serverVersion = "v0.1.0"
)

// LiteServer is a lightweight MCP server that requires no external databases.
type LiteServer struct {
	config        *litecfg.LiteConfig
	mcpServer     *mcp.Server
	service       *service.MaternalGuardService
	feedbackStore feedback.Store
	cache         *cache.MemoryCache
	audit         *AuditLog
	modelInfo     model.Info
	logger        *logrus.Logger
}

// LiteServerOption is a functional option for LiteServer.
type LiteServerOption func(*LiteServer) error

// WithFeedbackStore sets a custom feedback store.
func WithFeedbackStore(store feedback.Store) LiteServerOption {
	return func(s *LiteServer) error {
		s.feedbackStore = store
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(s *LiteServer) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		s.logger = logger
		return nil
	}
}

// NewLiteServer loads the model and donor dataset, opens the feedback store
// and registers every tool.
func NewLiteServer(cfg *litecfg.LiteConfig, opts ...LiteServerOption) (*LiteServer, error) {
	// Logs go to stderr so they never interleave with the stdio protocol.
	server := &LiteServer{
		config: cfg,
		logger: logging.NewStderrLogger(cfg.LogLevel, cfg.LogFormat),
	}

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	riskModel, err := model.LoadFile(cfg.ModelPath)
	if err != nil {
		return nil, err
	}
	server.modelInfo = riskModel.Info()

	donors, err := donor.LoadDatasetOrSample(cfg.DonorsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load donor dataset: %w", err)
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	memCache, err := cache.NewMemoryCache(cfg.CacheMaxItems, cfg.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	server.cache = memCache

	if server.feedbackStore == nil {
		store, err := openFeedbackStore(cfg, server.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create feedback store: %w", err)
		}
		server.feedbackStore = store
	}

	classifier := service.NewRiskClassifier(server.logger, riskModel,
		service.WithHighRiskThreshold(cfg.Threshold),
		service.WithModelVersion(server.modelInfo.Version),
	)
	server.service = service.NewMaternalGuardService(server.logger,
		donor.NewFilter(donors, donor.StandardCompatibility(), server.logger),
		classifier,
		service.WithAssessmentCache(memCache),
		service.WithFeedbackStore(server.feedbackStore),
	)

	server.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)

	server.audit = NewAuditLog(server.logger)
	server.mcpServer.AddReceivingMiddleware(server.audit.Middleware())

	handlers := &toolHandlers{
		service:   server.service,
		exportDir: cfg.ExportDir(),
		logger:    server.logger,
	}
	registerTools(server.mcpServer, handlers)
	registerResources(server.mcpServer, &resourceHandlers{toolHandlers: handlers, modelInfo: server.modelInfo})
	registerPrompts(server.mcpServer, handlers)

	server.logger.WithFields(logrus.Fields{
		"model":         server.modelInfo.Name,
		"model_version": server.modelInfo.Version,
		"donors":        len(donors),
		"threshold":     classifier.Threshold(),
	}).Info("Lite server initialized successfully")
	return server, nil
}

// openFeedbackStore opens SQLite under the data directory by default. The
// postgres driver migrates the schema at DatabaseURL first and connects
// through lib/pq.
func openFeedbackStore(cfg *litecfg.LiteConfig, logger *logrus.Logger) (feedback.Store, error) {
	if cfg.FeedbackDriver == "postgres" {
		if err := database.MigrateFeedbackSchema(context.Background(), cfg.DatabaseURL, cfg.MigrationsPath, logger); err != nil {
			return nil, err
		}
	}

	return feedback.Open(feedback.Config{
		Driver:      cfg.FeedbackDriver,
		SQLitePath:  cfg.FeedbackDBPath(),
		PostgresURL: cfg.DatabaseURL,
	})
}

// Start serves MCP over the configured transport until ctx is cancelled.
func (s *LiteServer) Start(ctx context.Context) error {
	s.logger.WithField("transport_type", s.config.Transport).Info("Starting Maternal Guard MCP Server (Lite)...")

	switch s.config.Transport {
	case "", "stdio":
		if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP server failed: %w", err)
		}
		return nil
	case "http":
		return s.serveHTTP(ctx)
	default:
		return fmt.Errorf("unsupported transport: %s", s.config.Transport)
	}
}

func (s *LiteServer) serveHTTP(ctx context.Context) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", httpServer.Addr).Info("MCP streamable HTTP transport listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("MCP HTTP transport failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// Close cleans up server resources.
func (s *LiteServer) Close() error {
	if s.feedbackStore != nil {
		if err := s.feedbackStore.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close feedback store")
			return err
		}
	}
	return nil
}

// MCPServer returns the underlying SDK server, for in-process transports.
func (s *LiteServer) MCPServer() *mcp.Server {
	return s.mcpServer
}

// GetFeedbackStore returns the feedback store for external access.
func (s *LiteServer) GetFeedbackStore() feedback.Store {
	return s.feedbackStore
}

// GetCache returns the memory cache for external access.
func (s *LiteServer) GetCache() *cache.MemoryCache {
	return s.cache
}

// ToolUsage returns per-tool call counters.
func (s *LiteServer) ToolUsage() []ToolUsage {
	return s.audit.Usage()
}

// ModelInfo returns the loaded model identity.
func (s *LiteServer) ModelInfo() model.Info {
	return s.modelInfo
}
