package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
)

// FeedbackSchemaVersion is the migration version the feedback store queries
// are written against.
const FeedbackSchemaVersion uint = 1

// MigrationRunner applies the risk_feedback schema from a directory of
// golang-migrate files.
type MigrationRunner struct {
	migrate *migrate.Migrate
	log     *logrus.Logger
}

// NewMigrationRunner opens the migration source and the target database.
func NewMigrationRunner(databaseURL, migrationsPath string, logger *logrus.Logger) (*MigrationRunner, error) {
	m, err := migrate.New("file://"+migrationsPath, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening feedback migrations at %s: %w", migrationsPath, err)
	}
	return &MigrationRunner{migrate: m, log: logger}, nil
}

// MigrateFeedbackSchema brings the database at databaseURL up to
// FeedbackSchemaVersion and closes the runner.
func MigrateFeedbackSchema(ctx context.Context, databaseURL, migrationsPath string, logger *logrus.Logger) error {
	runner, err := NewMigrationRunner(databaseURL, migrationsPath, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := runner.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close migration runner")
		}
	}()

	if err := runner.Up(ctx); err != nil {
		return err
	}
	return runner.CheckFeedbackSchema()
}

// Up applies pending migrations. Cancelling ctx stops after the migration
// in progress.
func (mr *MigrationRunner) Up(ctx context.Context) error {
	stop := mr.stopOnCancel(ctx)
	defer stop()

	err := mr.migrate.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		mr.log.Info("Feedback schema is up to date")
		return nil
	case err != nil:
		return fmt.Errorf("migrating feedback schema: %w", err)
	}

	mr.logVersion("Feedback schema migrated")
	return nil
}

// Down reverts the most recent migration.
func (mr *MigrationRunner) Down(ctx context.Context) error {
	stop := mr.stopOnCancel(ctx)
	defer stop()

	err := mr.migrate.Steps(-1)
	switch {
	case errors.Is(err, migrate.ErrNoChange), errors.Is(err, migrate.ErrNilVersion):
		mr.log.Info("No feedback migrations to revert")
		return nil
	case err != nil:
		return fmt.Errorf("reverting feedback migration: %w", err)
	}

	mr.logVersion("Feedback migration reverted")
	return nil
}

// CheckFeedbackSchema fails when the schema is dirty or behind
// FeedbackSchemaVersion.
func (mr *MigrationRunner) CheckFeedbackSchema() error {
	version, dirty, err := mr.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("feedback schema is not installed, expected version %d", FeedbackSchemaVersion)
	}
	if err != nil {
		return fmt.Errorf("reading feedback schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("feedback schema version %d is dirty, fix it by hand before starting", version)
	}
	if version < FeedbackSchemaVersion {
		return fmt.Errorf("feedback schema version %d is older than %d", version, FeedbackSchemaVersion)
	}
	return nil
}

// Version returns the applied migration version.
func (mr *MigrationRunner) Version() (uint, bool, error) {
	return mr.migrate.Version()
}

// Close releases the source and database handles.
func (mr *MigrationRunner) Close() error {
	srcErr, dbErr := mr.migrate.Close()
	return errors.Join(srcErr, dbErr)
}

// stopOnCancel asks migrate to stop when ctx ends. The returned func must be
// called once the migration returns.
func (mr *MigrationRunner) stopOnCancel(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			select {
			case mr.migrate.GracefulStop <- true:
			default:
			}
		case <-done:
		}
	}()
	return func() { close(done) }
}

func (mr *MigrationRunner) logVersion(msg string) {
	version, dirty, err := mr.migrate.Version()
	if err != nil {
		mr.log.WithError(err).Warn("Could not read feedback schema version")
		return
	}
	mr.log.WithFields(logrus.Fields{
		"version":  version,
		"dirty":    dirty,
		"expected": FeedbackSchemaVersion,
	}).Info(msg)
}
