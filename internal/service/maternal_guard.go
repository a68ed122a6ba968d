package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/maternal-guard-server/internal/domain"
	"github.com/maternal-guard-server/internal/feedback"
	"github.com/maternal-guard-server/internal/logging"
)

// MaternalGuardService is the entry point used by every surface (REST, MCP,
// CLI). It ties donor matching, risk assessment, the recent-assessment cache
// and clinician feedback together.
type MaternalGuardService struct {
	finder   domain.DonorFinder
	assessor domain.RiskAssessor
	cache    domain.AssessmentCache
	feedback feedback.Store
	logger   *logrus.Logger
}

// ServiceOption configures a MaternalGuardService.
type ServiceOption func(*MaternalGuardService)

// WithAssessmentCache keeps assessments so feedback can refer to them.
func WithAssessmentCache(cache domain.AssessmentCache) ServiceOption {
	return func(s *MaternalGuardService) { s.cache = cache }
}

// WithFeedbackStore enables clinician feedback.
func WithFeedbackStore(store feedback.Store) ServiceOption {
	return func(s *MaternalGuardService) { s.feedback = store }
}

// NewMaternalGuardService creates the service.
func NewMaternalGuardService(logger *logrus.Logger, finder domain.DonorFinder, assessor domain.RiskAssessor, opts ...ServiceOption) *MaternalGuardService {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &MaternalGuardService{
		finder:   finder,
		assessor: assessor,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckDonors lists the eligible donors whose blood is compatible with
// recipient.
func (s *MaternalGuardService) CheckDonors(ctx context.Context, recipient domain.BloodGroup) (*domain.DonorMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	groups, err := s.finder.CompatibleGroups(recipient)
	if err != nil {
		return nil, err
	}
	donors, err := s.finder.FindCompatibleDonors(recipient)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"blood_group": recipient.String(),
		"donor_count": len(donors),
	}).Info("Compatible donors checked")

	return &domain.DonorMatch{
		RecipientGroup:   recipient,
		CompatibleGroups: groups,
		Donors:           donors,
		Count:            len(donors),
	}, nil
}

// AnalyzeRisk assesses vitals and, for a High result, looks up compatible
// donors for the patient's blood group. The assessment gets a fresh ID and
// is cached when a cache is configured.
func (s *MaternalGuardService) AnalyzeRisk(ctx context.Context, vitals *domain.PatientVitals) (*domain.RiskAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	assessment, err := s.assessor.AssessRisk(vitals)
	if err != nil {
		return nil, err
	}
	assessment.ID = uuid.New().String()
	s.logger.WithFields(assessment.LogFields()).Info("Maternal risk assessed")

	if s.cache != nil {
		if err := s.cache.Set(ctx, assessment); err != nil {
			s.logger.WithError(err).WithField("assessment_id", assessment.ID).Warn("Failed to cache assessment")
		}
	}

	analysis := &domain.RiskAnalysis{Assessment: assessment}
	if assessment.Level.RequiresEmergencyDispatch() {
		match, err := s.CheckDonors(ctx, vitals.BloodGroup)
		if err != nil {
			return nil, fmt.Errorf("emergency donor dispatch: %w", err)
		}
		analysis.Dispatch = match

		s.logger.WithFields(logrus.Fields{
			"assessment_id": assessment.ID,
			"donor_count":   match.Count,
		}).Warn("Emergency protocol activated")
	}

	return analysis, nil
}

// GetAssessment returns a recently produced assessment.
func (s *MaternalGuardService) GetAssessment(ctx context.Context, id string) (*domain.RiskAssessment, error) {
	if s.cache == nil {
		return nil, fmt.Errorf("assessment cache is not configured: %w", domain.ErrNotFound)
	}
	a, ok := s.cache.Get(ctx, id)
	if !ok {
		return nil, fmt.Errorf("assessment %s: %w", id, domain.ErrNotFound)
	}
	return a, nil
}

// FeedbackRequest is a clinician's decision on one assessment.
type FeedbackRequest struct {
	AssessmentID   string           `json:"assessment_id"`
	ClinicianLevel domain.RiskLevel `json:"clinician_level"`
	Notes          string           `json:"notes,omitempty"`
}

// ErrFeedbackDisabled is returned when no feedback store is configured.
var ErrFeedbackDisabled = errors.New("feedback store is not configured")

// SubmitFeedback records a clinician's decision. The suggested label,
// confidence and downgrade flag come from the cached assessment, or from
// earlier feedback on the same assessment once the cache entry has expired.
func (s *MaternalGuardService) SubmitFeedback(ctx context.Context, req *FeedbackRequest) (*feedback.Feedback, error) {
	if s.feedback == nil {
		return nil, ErrFeedbackDisabled
	}
	if req == nil || req.AssessmentID == "" {
		return nil, domain.NewValidationError("assessment_id", "assessment id is required", "")
	}
	if !req.ClinicianLevel.IsValid() {
		return nil, domain.NewValidationError("clinician_level", "must be Low, Mid or High", req.ClinicianLevel)
	}

	fb := &feedback.Feedback{
		AssessmentID:   req.AssessmentID,
		ClinicianLevel: req.ClinicianLevel,
		Notes:          req.Notes,
	}

	if a, err := s.GetAssessment(ctx, req.AssessmentID); err == nil {
		fb.SuggestedLevel = a.Level
		fb.Downgraded = a.Downgraded
		fb.Confidence = a.Confidence
		fb.ModelVersion = a.ModelVersion
	} else {
		prev, err := s.feedback.Get(ctx, req.AssessmentID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("assessment %s is unknown or expired: %w", req.AssessmentID, domain.ErrNotFound)
			}
			return nil, err
		}
		fb.SuggestedLevel = prev.SuggestedLevel
		fb.Downgraded = prev.Downgraded
		fb.Confidence = prev.Confidence
		fb.ModelVersion = prev.ModelVersion
	}

	if err := s.feedback.Save(ctx, fb); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"assessment_id":   fb.AssessmentID,
		"suggested_level": fb.SuggestedLevel.String(),
		"clinician_level": fb.ClinicianLevel.String(),
		"agreed":          fb.Agreed,
		"downgraded":      fb.Downgraded,
	}).Info("Clinician feedback recorded")

	return fb, nil
}

// ListFeedback returns stored feedback, newest first.
func (s *MaternalGuardService) ListFeedback(ctx context.Context, limit, offset int) ([]*feedback.Feedback, int64, error) {
	if s.feedback == nil {
		return nil, 0, ErrFeedbackDisabled
	}
	list, err := s.feedback.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.feedback.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// FeedbackSummary aggregates stored feedback.
func (s *MaternalGuardService) FeedbackSummary(ctx context.Context) (*feedback.Summary, error) {
	if s.feedback == nil {
		return nil, ErrFeedbackDisabled
	}
	return s.feedback.Summary(ctx)
}

// ImportFeedback loads a feedback export. Entries for assessments that
// already have feedback are skipped.
func (s *MaternalGuardService) ImportFeedback(ctx context.Context, r io.Reader) (imported, skipped int, err error) {
	if s.feedback == nil {
		return 0, 0, ErrFeedbackDisabled
	}
	imported, skipped, err = s.feedback.ImportJSON(ctx, r)
	if err != nil {
		return imported, skipped, fmt.Errorf("import feedback: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"imported": imported,
		"skipped":  skipped,
	}).Info("Feedback imported")
	return imported, skipped, nil
}

// FeedbackStore exposes the configured store, or nil.
func (s *MaternalGuardService) FeedbackStore() feedback.Store {
	return s.feedback
}

// CompatibilityTable returns the allowed donor groups for every recipient
// group in selection order.
func (s *MaternalGuardService) CompatibilityTable() (map[domain.BloodGroup][]domain.BloodGroup, error) {
	table := make(map[domain.BloodGroup][]domain.BloodGroup, len(domain.AllBloodGroups()))
	for _, g := range domain.AllBloodGroups() {
		allowed, err := s.finder.CompatibleGroups(g)
		if err != nil {
			return nil, err
		}
		table[g] = allowed
	}
	return table, nil
}

// CacheStats reports the assessment cache, if any.
func (s *MaternalGuardService) CacheStats() (domain.CacheStats, bool) {
	if s.cache == nil {
		return domain.CacheStats{}, false
	}
	return s.cache.Stats(), true
}
