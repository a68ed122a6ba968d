package model

import (
	"fmt"
	"math"
	"os"

	"github.com/maternal-guard-server/internal/domain"
)

// SoftmaxModel is an immutable loaded classifier. It is safe for concurrent
// use.
type SoftmaxModel struct {
	artifact Artifact
}

var _ domain.RiskModel = (*SoftmaxModel)(nil)

// LoadFile reads and validates the artifact at path. Every failure wraps
// domain.ErrModelUnavailable; callers treat it as fatal at startup.
func LoadFile(path string) (*SoftmaxModel, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: model path is empty", domain.ErrModelUnavailable)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}
	return Load(data)
}

// Load builds a model from raw artifact bytes.
func Load(data []byte) (*SoftmaxModel, error) {
	a, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return New(*a)
}

// New builds a model from an in-memory artifact.
func New(a Artifact) (*SoftmaxModel, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	a.Features = append([]string(nil), a.Features...)
	a.Classes = append([]string(nil), a.Classes...)
	return &SoftmaxModel{artifact: a}, nil
}

// PredictProba returns the class probabilities for one feature vector. The
// result always sums to 1.
func (m *SoftmaxModel) PredictProba(features domain.FeatureVector) domain.ClassProbabilities {
	a := &m.artifact

	var logits [domain.NumRiskClasses]float64
	for k := 0; k < domain.NumRiskClasses; k++ {
		z := a.Intercepts[k]
		for j := 0; j < domain.NumFeatures; j++ {
			z += a.Coefficients[k][j] * (features[j] - a.Means[j]) / a.Scales[j]
		}
		logits[k] = z
	}

	return softmax(logits)
}

// FeatureImportances returns a copy of the exported importances.
func (m *SoftmaxModel) FeatureImportances() domain.FeatureVector {
	return domain.FeatureVector(m.artifact.FeatureImportances)
}

// Info returns the model identity.
func (m *SoftmaxModel) Info() Info {
	return Info{
		Name:     m.artifact.Name,
		Version:  m.artifact.Version,
		Features: append([]string(nil), m.artifact.Features...),
		Classes:  append([]string(nil), m.artifact.Classes...),
	}
}

// softmax subtracts the max logit first so large inputs cannot overflow.
func softmax(logits [domain.NumRiskClasses]float64) domain.ClassProbabilities {
	maxLogit := logits[0]
	for _, z := range logits[1:] {
		if z > maxLogit {
			maxLogit = z
		}
	}

	var p domain.ClassProbabilities
	var sum float64
	for k, z := range logits {
		p[k] = math.Exp(z - maxLogit)
		sum += p[k]
	}
	for k := range p {
		p[k] /= sum
	}
	return p
}
