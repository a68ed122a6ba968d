package feedback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL feedback store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL feedback store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

const pgSelectColumns = `
	SELECT id, assessment_id, suggested_level, clinician_level,
		agreed, downgraded, confidence, model_version,
		notes, created_at, updated_at
	FROM risk_feedback
`

// Save stores or updates clinician feedback for an assessment.
func (s *PostgresStore) Save(ctx context.Context, feedback *Feedback) error {
	if err := feedback.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO risk_feedback (
			assessment_id, suggested_level, clinician_level,
			agreed, downgraded, confidence, model_version,
			notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (assessment_id) DO UPDATE SET
			suggested_level = EXCLUDED.suggested_level,
			clinician_level = EXCLUDED.clinician_level,
			agreed = EXCLUDED.agreed,
			downgraded = EXCLUDED.downgraded,
			confidence = EXCLUDED.confidence,
			model_version = EXCLUDED.model_version,
			notes = EXCLUDED.notes,
			updated_at = $11
		RETURNING id, created_at, updated_at
	`

	// Imported entries keep their original timestamps on insert.
	createdAt := timestampOr(feedback.CreatedAt, now)
	updatedAt := timestampOr(feedback.UpdatedAt, createdAt)

	err := s.db.QueryRowContext(ctx, query,
		feedback.AssessmentID,
		string(feedback.SuggestedLevel),
		string(feedback.ClinicianLevel),
		feedback.Agreed,
		feedback.Downgraded,
		feedback.Confidence,
		feedback.ModelVersion,
		feedback.Notes,
		createdAt,
		updatedAt,
		now,
	).Scan(&feedback.ID, &feedback.CreatedAt, &feedback.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	return nil
}

// Get retrieves the feedback recorded for an assessment.
func (s *PostgresStore) Get(ctx context.Context, assessmentID string) (*Feedback, error) {
	row := s.db.QueryRowContext(ctx, pgSelectColumns+" WHERE assessment_id = $1 LIMIT 1", assessmentID)

	fb, err := scanFeedback(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(assessmentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}
	return fb, nil
}

// List returns feedback entries with pagination, newest first.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*Feedback, error) {
	rows, err := s.db.QueryContext(ctx, pgSelectColumns+" ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	return scanFeedbackRows(rows)
}

// Count returns the total number of feedback entries.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM risk_feedback").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count feedback: %w", err)
	}
	return count, nil
}

// Delete removes a feedback entry by ID.
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM risk_feedback WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete feedback: %w", err)
	}
	return nil
}

// Summary aggregates agreement between suggested and clinician labels.
func (s *PostgresStore) Summary(ctx context.Context) (*Summary, error) {
	return summarize(ctx, s.db)
}

// ExportJSON exports all feedback to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list feedback: %w", err)
	}
	return writeExport(writer, all)
}

// ImportJSON imports feedback from a JSON reader.
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	return importInto(ctx, s, reader)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
