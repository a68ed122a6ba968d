// Package feedback stores clinician feedback on risk assessments.
//
// Feedback is keyed by assessment ID and records what the service suggested
// against what the clinician decided. It never carries patient identifiers
// or vitals.
package feedback

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/maternal-guard-server/internal/domain"
)

// Feedback represents a clinician's review of one risk assessment.
type Feedback struct {
	ID             int64            `json:"id,omitempty"`
	AssessmentID   string           `json:"assessment_id"`
	SuggestedLevel domain.RiskLevel `json:"suggested_level"` // Service's final label
	ClinicianLevel domain.RiskLevel `json:"clinician_level"` // Clinician's decision
	Agreed         bool             `json:"agreed"`
	Downgraded     bool             `json:"downgraded"` // Suggested label came from the High-risk threshold override
	Confidence     float64          `json:"confidence"`
	ModelVersion   string           `json:"model_version,omitempty"`
	Notes          string           `json:"notes,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Validate checks required fields and derives Agreed.
func (f *Feedback) Validate() error {
	if f.AssessmentID == "" {
		return domain.NewValidationError("assessment_id", "assessment id is required", f.AssessmentID)
	}
	if !f.SuggestedLevel.IsValid() {
		return domain.NewValidationError("suggested_level", "must be Low, Mid or High", f.SuggestedLevel)
	}
	if !f.ClinicianLevel.IsValid() {
		return domain.NewValidationError("clinician_level", "must be Low, Mid or High", f.ClinicianLevel)
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return domain.NewValidationError("confidence", "must be between 0 and 1", f.Confidence)
	}
	if len(f.Notes) > MaxNotesLength {
		return domain.NewValidationError("notes", fmt.Sprintf("must be at most %d characters", MaxNotesLength), len(f.Notes))
	}
	f.Agreed = f.SuggestedLevel == f.ClinicianLevel
	return nil
}

// MaxNotesLength bounds free-text notes.
const MaxNotesLength = 2000

// Summary aggregates feedback for review of the decision rule.
// DowngradedOverruled counts downgraded assessments where the clinician
// chose High.
type Summary struct {
	Total               int64                      `json:"total"`
	Agreed              int64                      `json:"agreed"`
	Disagreed           int64                      `json:"disagreed"`
	Agreement           float64                    `json:"agreement_rate"`
	Downgraded          int64                      `json:"downgraded"`
	DowngradedOverruled int64                      `json:"downgraded_overruled"`
	ByClinicianLevel    map[domain.RiskLevel]int64 `json:"by_clinician_level"`
}

// Store defines the interface for feedback storage operations.
type Store interface {
	// Save stores or updates feedback. Feedback for an assessment ID that
	// already exists is updated in place.
	Save(ctx context.Context, feedback *Feedback) error

	// Get retrieves the feedback for an assessment. A missing entry wraps
	// domain.ErrNotFound.
	Get(ctx context.Context, assessmentID string) (*Feedback, error)

	// List returns feedback entries, newest first.
	List(ctx context.Context, limit, offset int) ([]*Feedback, error)

	Count(ctx context.Context) (int64, error)

	// Delete removes a feedback entry by ID.
	Delete(ctx context.Context, id int64) error

	Summary(ctx context.Context) (*Summary, error)

	// ExportJSON exports all feedback to a JSON writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON imports feedback from a JSON reader. Entries whose
	// assessment ID already exists are skipped.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close closes the store and releases resources.
	Close() error
}

// FeedbackExport represents the JSON export format.
type FeedbackExport struct {
	Version    string      `json:"version"`
	ExportedAt time.Time   `json:"exported_at"`
	Count      int         `json:"count"`
	Feedback   []*Feedback `json:"feedback"`
}

const exportVersion = "1.0"

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

// Both drivers accept this query unchanged.
const summaryQuery = `
	SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN agreed THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN downgraded THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN downgraded AND clinician_level = 'High' THEN 1 ELSE 0 END), 0)
	FROM risk_feedback
`

const levelCountQuery = `
	SELECT clinician_level, COUNT(*)
	FROM risk_feedback
	GROUP BY clinician_level
`

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func finishSummary(s *Summary) *Summary {
	s.Disagreed = s.Total - s.Agreed
	if s.Total > 0 {
		s.Agreement = float64(s.Agreed) / float64(s.Total)
	}
	if s.ByClinicianLevel == nil {
		s.ByClinicianLevel = make(map[domain.RiskLevel]int64)
	}
	return s
}
