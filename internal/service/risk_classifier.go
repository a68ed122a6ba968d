package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maternal-guard-server/internal/domain"
	"github.com/maternal-guard-server/internal/logging"
)

// DefaultHighRiskThreshold is the minimum p(High) for a High prediction to
// stand. Below it the label becomes Mid.
const DefaultHighRiskThreshold = 0.85

// RiskClassifier adapts the opaque risk model into a RiskAssessment: it
// validates vitals, applies the High-risk threshold and ranks the model's
// feature importances.
type RiskClassifier struct {
	logger       *logrus.Logger
	model        domain.RiskModel
	threshold    float64
	modelVersion string
	now          func() time.Time
}

// RiskClassifierOption configures a RiskClassifier.
type RiskClassifierOption func(*RiskClassifier)

// WithHighRiskThreshold overrides DefaultHighRiskThreshold. Values outside
// (0, 1] are ignored; config and flag parsing reject them before this point.
func WithHighRiskThreshold(threshold float64) RiskClassifierOption {
	return func(c *RiskClassifier) {
		if domain.ValidateHighRiskThreshold(threshold) == nil {
			c.threshold = threshold
		}
	}
}

// WithModelVersion stamps assessments with the model version.
func WithModelVersion(version string) RiskClassifierOption {
	return func(c *RiskClassifier) { c.modelVersion = version }
}

// WithClock replaces time.Now for AssessedAt.
func WithClock(now func() time.Time) RiskClassifierOption {
	return func(c *RiskClassifier) { c.now = now }
}

// NewRiskClassifier creates a new risk classifier over model
func NewRiskClassifier(logger *logrus.Logger, model domain.RiskModel, opts ...RiskClassifierOption) *RiskClassifier {
	if logger == nil {
		logger = logging.Discard()
	}
	c := &RiskClassifier{
		logger:    logger,
		model:     model,
		threshold: DefaultHighRiskThreshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Threshold returns the High-risk threshold in effect.
func (c *RiskClassifier) Threshold() float64 {
	return c.threshold
}

// AssessRisk classifies one set of vitals.
//
// Invalid vitals fail with an error wrapping domain.ErrInvalidArgument and
// the model is never invoked. Ties in the model output resolve to the lower
// risk class. A High prediction whose probability is below the threshold is
// reported as Mid with Downgraded set; Confidence keeps the model's maximum
// probability either way.
func (c *RiskClassifier) AssessRisk(vitals *domain.PatientVitals) (*domain.RiskAssessment, error) {
	if vitals == nil {
		return nil, domain.NewValidationError("vitals", "vitals are required", nil)
	}
	if err := vitals.Validate(); err != nil {
		return nil, fmt.Errorf("invalid patient vitals: %w", err)
	}

	c.logger.WithFields(logging.VitalsFields(vitals)).Debug("Assessing maternal risk")

	probs := c.model.PredictProba(vitals.FeatureVector())
	if !probs.IsWellFormed() {
		return nil, fmt.Errorf("%w: model returned probabilities outside [0, 1]: %v", domain.ErrModelUnavailable, [domain.NumRiskClasses]float64(probs))
	}

	predicted, err := domain.RiskLevelFromIndex(probs.ArgMax())
	if err != nil {
		return nil, fmt.Errorf("model output: %w", err)
	}

	level := predicted
	downgraded := false
	if predicted == domain.RiskHigh && probs.Of(domain.RiskHigh) < c.threshold {
		level = domain.RiskMid
		downgraded = true
	}

	assessment := &domain.RiskAssessment{
		Level:             level,
		ModelLevel:        predicted,
		Confidence:        probs.Max(),
		Probabilities:     probs,
		Downgraded:        downgraded,
		FeatureImportance: RankFeatureImportance(c.model.FeatureImportances()),
		ModelVersion:      c.modelVersion,
		AssessedAt:        c.now().UTC(),
	}

	c.logger.WithFields(assessment.LogFields()).
		WithField("p_high", probs.Of(domain.RiskHigh)).
		Debug("Model output classified")

	return assessment, nil
}

// RankFeatureImportance pairs weights with feature names and sorts them by
// descending weight. Equal weights keep their declared feature order.
func RankFeatureImportance(weights domain.FeatureVector) []domain.FeatureWeight {
	features := domain.Features()
	ranked := make([]domain.FeatureWeight, domain.NumFeatures)
	for i, f := range features {
		ranked[i] = domain.FeatureWeight{Feature: f, Weight: weights[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Weight > ranked[j].Weight
	})
	return ranked
}
