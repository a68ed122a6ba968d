// Package config provides configuration management for the servers.
// This file contains the lightweight configuration for the standalone MCP
// server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/maternal-guard-server/internal/domain"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for the feedback database and exports

	// Model and donors
	ModelPath  string // Risk model artifact
	DonorsFile string // Optional JSON donor dataset; empty uses the sample
	Threshold  float64

	// Feedback storage
	FeedbackDriver string // sqlite (default) or postgres
	DatabaseURL    string // postgres:// URL, required for the postgres driver
	MigrationsPath string // Schema migrations applied before opening postgres

	// Cache settings
	CacheMaxItems int           // Maximum assessments kept for feedback
	CacheTTL      time.Duration // How long an assessment can receive feedback

	// Transport settings
	Transport string // Transport type: stdio, http
	HTTPPort  int    // HTTP port (if transport is http)

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text

	// thresholdErr records an unparseable MATERNAL_GUARD_HIGH_RISK_THRESHOLD.
	thresholdErr error
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".maternal-guard")

	return &LiteConfig{
		DataDir:       dataDir,
		ModelPath:     filepath.Join("models", "maternal_risk_model.json"),
		Threshold:      0.85,
		FeedbackDriver: "sqlite",
		MigrationsPath: "migrations",
		CacheMaxItems:  1000,
		CacheTTL:      24 * time.Hour,
		Transport:     "stdio",
		HTTPPort:      8080,
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("MATERNAL_GUARD_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv("MATERNAL_GUARD_MODEL_PATH"); v != "" {
		cfg.ModelPath = v
	}
	cfg.DonorsFile = os.Getenv("MATERNAL_GUARD_DONORS_FILE")
	if v := os.Getenv("MATERNAL_GUARD_HIGH_RISK_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			cfg.thresholdErr = fmt.Errorf("MATERNAL_GUARD_HIGH_RISK_THRESHOLD: %w",
				domain.NewValidationError("high_risk_threshold", "must be a number", v))
		} else {
			cfg.Threshold = f
		}
	}

	// Feedback storage
	if v := os.Getenv("MATERNAL_GUARD_FEEDBACK_DRIVER"); v != "" {
		cfg.FeedbackDriver = v
	}
	cfg.DatabaseURL = os.Getenv("MATERNAL_GUARD_DATABASE_URL")
	if v := os.Getenv("MATERNAL_GUARD_MIGRATIONS_PATH"); v != "" {
		cfg.MigrationsPath = v
	}

	// Cache settings
	if v := os.Getenv("MATERNAL_GUARD_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("MATERNAL_GUARD_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.CacheTTL = d
		}
	}

	// Transport
	if v := os.Getenv("MATERNAL_GUARD_TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("MATERNAL_GUARD_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}

	// Logging
	if v := os.Getenv("MATERNAL_GUARD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MATERNAL_GUARD_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// ValidateThreshold rejects an unparseable or out-of-range threshold.
func (c *LiteConfig) ValidateThreshold() error {
	if c.thresholdErr != nil {
		return c.thresholdErr
	}
	return domain.ValidateHighRiskThreshold(c.Threshold)
}

// Validate reports settings the lite server cannot run with.
func (c *LiteConfig) Validate() error {
	var errs []error
	if err := c.ValidateThreshold(); err != nil {
		errs = append(errs, err)
	}
	switch c.FeedbackDriver {
	case "", "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("MATERNAL_GUARD_DATABASE_URL is required for the postgres feedback driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid feedback driver: %s", c.FeedbackDriver))
	}
	if c.Transport != "" && c.Transport != "stdio" && c.Transport != "http" {
		errs = append(errs, fmt.Errorf("invalid transport: %s", c.Transport))
	}

	return errors.Join(errs...)
}

// FeedbackDBPath returns the path to the feedback SQLite database.
func (c *LiteConfig) FeedbackDBPath() string {
	return filepath.Join(c.DataDir, "feedback.db")
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}
