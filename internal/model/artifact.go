// Package model loads the pretrained maternal risk classifier from its
// exported JSON artifact and serves predictions through domain.RiskModel.
//
// The artifact is a standardized multinomial logistic model: each input is
// centered and scaled, multiplied by a per-class coefficient row, and the
// resulting logits pass through softmax. Feature importances are exported
// alongside and returned verbatim.
package model

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/maternal-guard-server/internal/domain"
)

// Artifact is the on-disk model format.
type Artifact struct {
	Name               string                                             `json:"name"`
	Version            string                                             `json:"version"`
	Features           []string                                           `json:"features"`
	Classes            []string                                           `json:"classes"`
	Means              [domain.NumFeatures]float64                        `json:"means"`
	Scales             [domain.NumFeatures]float64                        `json:"scales"`
	Coefficients       [domain.NumRiskClasses][domain.NumFeatures]float64 `json:"coefficients"`
	Intercepts         [domain.NumRiskClasses]float64                     `json:"intercepts"`
	FeatureImportances [domain.NumFeatures]float64                        `json:"feature_importances"`
}

// Info identifies a loaded model.
type Info struct {
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Features []string `json:"features"`
	Classes  []string `json:"classes"`
}

// Validate checks the artifact against the expected feature order, class
// labels and numeric sanity. Every failure wraps domain.ErrModelUnavailable.
func (a *Artifact) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("%w: artifact has no name", domain.ErrModelUnavailable)
	}

	expected := domain.Features()
	if len(a.Features) != len(expected) {
		return fmt.Errorf("%w: expected %d features, got %d", domain.ErrModelUnavailable, len(expected), len(a.Features))
	}
	for i, f := range expected {
		if a.Features[i] != string(f) {
			return fmt.Errorf("%w: feature %d is %q, want %q", domain.ErrModelUnavailable, i, a.Features[i], f)
		}
	}

	if len(a.Classes) != domain.NumRiskClasses {
		return fmt.Errorf("%w: expected %d classes, got %d", domain.ErrModelUnavailable, domain.NumRiskClasses, len(a.Classes))
	}
	for i, c := range a.Classes {
		level, _ := domain.RiskLevelFromIndex(i)
		if c != string(level) {
			return fmt.Errorf("%w: class %d is %q, want %q", domain.ErrModelUnavailable, i, c, level)
		}
	}

	for i, s := range a.Scales {
		if !(s > 0) || math.IsInf(s, 0) {
			return fmt.Errorf("%w: scale for %s must be positive", domain.ErrModelUnavailable, expected[i])
		}
		if !finite(a.Means[i]) {
			return fmt.Errorf("%w: mean for %s is not finite", domain.ErrModelUnavailable, expected[i])
		}
	}

	for k := 0; k < domain.NumRiskClasses; k++ {
		if !finite(a.Intercepts[k]) {
			return fmt.Errorf("%w: intercept %d is not finite", domain.ErrModelUnavailable, k)
		}
		for j := 0; j < domain.NumFeatures; j++ {
			if !finite(a.Coefficients[k][j]) {
				return fmt.Errorf("%w: coefficient [%d][%d] is not finite", domain.ErrModelUnavailable, k, j)
			}
		}
	}

	for i, w := range a.FeatureImportances {
		if !finite(w) || w < 0 {
			return fmt.Errorf("%w: importance for %s must be a finite non-negative number", domain.ErrModelUnavailable, expected[i])
		}
	}

	return nil
}

// Parse decodes and validates an artifact.
func Parse(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: malformed artifact: %v", domain.ErrModelUnavailable, err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
