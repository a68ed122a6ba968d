// Package domain contains the core entities for maternal risk assessment and
// emergency blood donor matching.
//
// The risk model is an opaque three-class probability classifier over six
// maternal vitals. Donor matching follows standard ABO/Rh transfusion
// compatibility (AB+ is the universal recipient, O- the universal donor).
package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// BloodGroup is one of the eight ABO/Rh blood groups.
type BloodGroup string

const (
	BloodGroupONeg  BloodGroup = "O-"
	BloodGroupOPos  BloodGroup = "O+"
	BloodGroupANeg  BloodGroup = "A-"
	BloodGroupAPos  BloodGroup = "A+"
	BloodGroupBNeg  BloodGroup = "B-"
	BloodGroupBPos  BloodGroup = "B+"
	BloodGroupABNeg BloodGroup = "AB-"
	BloodGroupABPos BloodGroup = "AB+"
)

// AllBloodGroups returns every blood group in selection order.
func AllBloodGroups() []BloodGroup {
	return []BloodGroup{
		BloodGroupONeg, BloodGroupOPos,
		BloodGroupANeg, BloodGroupAPos,
		BloodGroupBNeg, BloodGroupBPos,
		BloodGroupABNeg, BloodGroupABPos,
	}
}

// IsValid reports whether g is one of the eight closed enum values.
func (g BloodGroup) IsValid() bool {
	switch g {
	case BloodGroupONeg, BloodGroupOPos, BloodGroupANeg, BloodGroupAPos,
		BloodGroupBNeg, BloodGroupBPos, BloodGroupABNeg, BloodGroupABPos:
		return true
	default:
		return false
	}
}

func (g BloodGroup) String() string {
	return string(g)
}

// ParseBloodGroup parses user input such as "ab+" or " O- " into a BloodGroup.
// Unknown values fail with a ValidationError wrapping ErrInvalidArgument.
func ParseBloodGroup(s string) (BloodGroup, error) {
	g := BloodGroup(strings.ToUpper(strings.TrimSpace(s)))
	if !g.IsValid() {
		return "", NewValidationError("blood_group", "must be one of O-, O+, A-, A+, B-, B+, AB-, AB+", s)
	}
	return g, nil
}

// DonorStatus is a donor's current availability.
type DonorStatus string

const (
	DonorAvailable   DonorStatus = "Available"
	DonorUnavailable DonorStatus = "Unavailable"
)

// IsValid validates the donor status.
func (s DonorStatus) IsValid() bool {
	return s == DonorAvailable || s == DonorUnavailable
}

// RiskLevel is the human-facing maternal risk label.
type RiskLevel string

const (
	RiskLow  RiskLevel = "Low"
	RiskMid  RiskLevel = "Mid"
	RiskHigh RiskLevel = "High"
)

// NumRiskClasses is the number of classes the risk model predicts.
const NumRiskClasses = 3

var riskLevelsByIndex = [NumRiskClasses]RiskLevel{RiskLow, RiskMid, RiskHigh}

// AllRiskLevels returns the labels in model class order.
func AllRiskLevels() []RiskLevel {
	levels := riskLevelsByIndex
	return levels[:]
}

// ValidateHighRiskThreshold checks that t is a probability in (0, 1].
func ValidateHighRiskThreshold(t float64) error {
	if !(t > 0 && t <= 1) {
		return NewValidationError("high_risk_threshold", "must be in (0, 1]", t)
	}
	return nil
}

// RiskLevelFromIndex maps a model class index (0, 1, 2) to its label.
func RiskLevelFromIndex(i int) (RiskLevel, error) {
	if i < 0 || i >= NumRiskClasses {
		return "", fmt.Errorf("risk class index %d out of range", i)
	}
	return riskLevelsByIndex[i], nil
}

// Index returns the model class index of the level, or -1 if unknown.
func (l RiskLevel) Index() int {
	for i, lvl := range riskLevelsByIndex {
		if lvl == l {
			return i
		}
	}
	return -1
}

// IsValid validates the risk level.
func (l RiskLevel) IsValid() bool {
	return l.Index() >= 0
}

func (l RiskLevel) String() string {
	return string(l)
}

// Severity returns the presentation severity used by every surface.
func (l RiskLevel) Severity() Severity {
	switch l {
	case RiskLow:
		return SeveritySuccess
	case RiskMid:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// Message returns the headline shown for the level.
func (l RiskLevel) Message() string {
	switch l {
	case RiskLow:
		return "Low Risk Detected"
	case RiskMid:
		return "Moderate Risk - Close Monitoring Recommended"
	case RiskHigh:
		return "HIGH RISK DETECTED - Emergency Protocol Activated"
	default:
		return "Unknown risk level"
	}
}

// RequiresEmergencyDispatch reports whether the emergency donor path runs.
// Only High does; Low and Mid never trigger a dispatch.
func (l RiskLevel) RequiresEmergencyDispatch() bool {
	return l == RiskHigh
}

// Severity is a presentation state. Risk levels map onto success, warning
// and error; info marks a donor check that found donors.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
)

// Feature names one model input. The names match the columns the model
// was trained on.
type Feature string

const (
	FeatureAge         Feature = "Age"
	FeatureSystolicBP  Feature = "SystolicBP"
	FeatureDiastolicBP Feature = "DiastolicBP"
	FeatureBloodSugar  Feature = "BS"
	FeatureBodyTemp    Feature = "BodyTemp"
	FeatureHeartRate   Feature = "HeartRate"
)

// NumFeatures is the length of the model input vector.
const NumFeatures = 6

// Features returns the model input features in their fixed order.
func Features() [NumFeatures]Feature {
	return [NumFeatures]Feature{
		FeatureAge, FeatureSystolicBP, FeatureDiastolicBP,
		FeatureBloodSugar, FeatureBodyTemp, FeatureHeartRate,
	}
}

// FeatureVector is a model input or a per-feature weight vector, in
// Features() order.
type FeatureVector [NumFeatures]float64

// ClassProbabilities holds p(Low), p(Mid), p(High).
type ClassProbabilities [NumRiskClasses]float64

// ArgMax returns the index of the largest probability. Ties resolve to the
// lowest index, so Low beats Mid beats High.
func (p ClassProbabilities) ArgMax() int {
	best := 0
	for i := 1; i < NumRiskClasses; i++ {
		if p[i] > p[best] {
			best = i
		}
	}
	return best
}

// Max returns the largest probability.
func (p ClassProbabilities) Max() float64 {
	return p[p.ArgMax()]
}

// Of returns the probability assigned to level.
func (p ClassProbabilities) Of(level RiskLevel) float64 {
	i := level.Index()
	if i < 0 {
		return 0
	}
	return p[i]
}

// IsWellFormed reports whether every entry is a finite value in [0, 1].
func (p ClassProbabilities) IsWellFormed() bool {
	for _, v := range p {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the probabilities keyed by risk level.
func (p ClassProbabilities) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[RiskLevel]float64{
		RiskLow:  p[0],
		RiskMid:  p[1],
		RiskHigh: p[2],
	})
}

// UnmarshalJSON decodes probabilities keyed by risk level.
func (p *ClassProbabilities) UnmarshalJSON(data []byte) error {
	var m map[RiskLevel]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	for level, v := range m {
		i := level.Index()
		if i < 0 {
			return fmt.Errorf("unknown risk level %q", level)
		}
		p[i] = v
	}
	return nil
}
