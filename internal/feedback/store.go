package feedback

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/maternal-guard-server/internal/domain"
)

// Config selects and configures a Store.
type Config struct {
	Driver      string // "sqlite" or "postgres"
	SQLitePath  string
	PostgresURL string
	PostgresDB  *sql.DB // used instead of PostgresURL when set
}

// Open creates the Store named by cfg.Driver.
func Open(cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLiteStore(cfg.SQLitePath)
	case "postgres":
		if cfg.PostgresDB != nil {
			return NewPostgresStore(cfg.PostgresDB)
		}
		return NewPostgresStoreFromURL(cfg.PostgresURL)
	default:
		return nil, fmt.Errorf("unsupported feedback driver: %s", cfg.Driver)
	}
}

// scanFeedback scans a row into a Feedback struct.
func scanFeedback(s scanner) (*Feedback, error) {
	fb := &Feedback{}
	var suggested, clinician string

	err := s.Scan(
		&fb.ID, &fb.AssessmentID, &suggested, &clinician,
		&fb.Agreed, &fb.Downgraded, &fb.Confidence, &fb.ModelVersion,
		&fb.Notes, &fb.CreatedAt, &fb.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	fb.SuggestedLevel = domain.RiskLevel(suggested)
	fb.ClinicianLevel = domain.RiskLevel(clinician)
	return fb, nil
}

func scanFeedbackRows(rows *sql.Rows) ([]*Feedback, error) {
	defer rows.Close()

	result := make([]*Feedback, 0)
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, fb)
	}
	return result, rows.Err()
}

// summarize runs the aggregate queries shared by both drivers.
func summarize(ctx context.Context, db *sql.DB) (*Summary, error) {
	s := &Summary{ByClinicianLevel: make(map[domain.RiskLevel]int64)}

	err := db.QueryRowContext(ctx, summaryQuery).Scan(&s.Total, &s.Agreed, &s.Downgraded, &s.DowngradedOverruled)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize feedback: %w", err)
	}

	rows, err := db.QueryContext(ctx, levelCountQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to count feedback by level: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var level string
		var n int64
		if err := rows.Scan(&level, &n); err != nil {
			return nil, fmt.Errorf("failed to scan level count: %w", err)
		}
		s.ByClinicianLevel[domain.RiskLevel(level)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return finishSummary(s), nil
}

func writeExport(writer io.Writer, all []*Feedback) error {
	export := &FeedbackExport{
		Version:    exportVersion,
		ExportedAt: time.Now(),
		Count:      len(all),
		Feedback:   all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// importInto saves every exported entry whose assessment ID is not yet in
// store.
func importInto(ctx context.Context, store Store, reader io.Reader) (imported int, skipped int, err error) {
	var export FeedbackExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w: %v", domain.ErrInvalidArgument, err)
	}

	for _, fb := range export.Feedback {
		if fb == nil {
			skipped++
			continue
		}

		_, err := store.Get(ctx, fb.AssessmentID)
		if err == nil {
			skipped++
			continue
		}
		if !isNotFound(err) {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}

		fb.ID = 0
		if err := store.Save(ctx, fb); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}

func timestampOr(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	return t.UTC()
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

func notFound(assessmentID string) error {
	return fmt.Errorf("feedback for assessment %s: %w", assessmentID, domain.ErrNotFound)
}
