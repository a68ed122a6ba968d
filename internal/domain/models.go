package domain

import (
	"errors"
	"fmt"
	"time"
)

// DonorRecord is one entry of the read-only donor dataset.
type DonorRecord struct {
	Name       string      `json:"name"`
	BloodGroup BloodGroup  `json:"blood_group"`
	Age        int         `json:"age"`
	Hemoglobin float64     `json:"hemoglobin"` // g/dL
	Status     DonorStatus `json:"status"`
}

// Validate ensures the record carries exactly one group from the closed enum
// and a known status.
func (d *DonorRecord) Validate() error {
	if d.Name == "" {
		return NewValidationError("name", "donor name is required", d.Name)
	}
	if !d.BloodGroup.IsValid() {
		return NewValidationError("blood_group", "unknown blood group", d.BloodGroup)
	}
	if !d.Status.IsValid() {
		return NewValidationError("status", "must be Available or Unavailable", d.Status)
	}
	return nil
}

// VitalRange is the inclusive range accepted for one vital sign.
type VitalRange struct {
	Field string
	Min   float64
	Max   float64
	Unit  string
}

// Contains reports whether v lies in [Min, Max]. NaN is never contained.
func (r VitalRange) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

func (r VitalRange) describe() string {
	return fmt.Sprintf("must be between %g and %g %s", r.Min, r.Max, r.Unit)
}

// Accepted vital ranges.
var (
	AgeRange         = VitalRange{Field: "age", Min: 15, Max: 50, Unit: "years"}
	SystolicBPRange  = VitalRange{Field: "systolic_bp", Min: 80, Max: 200, Unit: "mmHg"}
	DiastolicBPRange = VitalRange{Field: "diastolic_bp", Min: 50, Max: 130, Unit: "mmHg"}
	BloodSugarRange  = VitalRange{Field: "blood_sugar", Min: 6.0, Max: 20.0, Unit: "mmol/L"}
	BodyTempRange    = VitalRange{Field: "body_temp", Min: 95.0, Max: 105.0, Unit: "F"}
	HeartRateRange   = VitalRange{Field: "heart_rate", Min: 40, Max: 200, Unit: "bpm"}
)

// PatientVitals is a transient evaluation request. It is never persisted.
type PatientVitals struct {
	Age         int        `json:"age"`
	SystolicBP  int        `json:"systolic_bp"`
	DiastolicBP int        `json:"diastolic_bp"`
	BloodSugar  float64    `json:"blood_sugar"` // mmol/L
	BodyTemp    float64    `json:"body_temp"`   // Fahrenheit
	HeartRate   int        `json:"heart_rate"`
	BloodGroup  BloodGroup `json:"blood_group"`
}

// Validate checks every vital against its range and the blood group against
// the enum. All failures are reported, joined; each one unwraps to
// ErrInvalidArgument. Values are rejected, never clamped.
func (v *PatientVitals) Validate() error {
	checks := []struct {
		r     VitalRange
		value float64
		raw   interface{}
	}{
		{AgeRange, float64(v.Age), v.Age},
		{SystolicBPRange, float64(v.SystolicBP), v.SystolicBP},
		{DiastolicBPRange, float64(v.DiastolicBP), v.DiastolicBP},
		{BloodSugarRange, v.BloodSugar, v.BloodSugar},
		{BodyTempRange, v.BodyTemp, v.BodyTemp},
		{HeartRateRange, float64(v.HeartRate), v.HeartRate},
	}

	var errs []error
	for _, c := range checks {
		if !c.r.Contains(c.value) {
			errs = append(errs, NewValidationError(c.r.Field, c.r.describe(), c.raw))
		}
	}
	if !v.BloodGroup.IsValid() {
		errs = append(errs, NewValidationError("blood_group", "unknown blood group", v.BloodGroup))
	}
	return errors.Join(errs...)
}

// FeatureVector returns the model input in Features() order.
func (v *PatientVitals) FeatureVector() FeatureVector {
	return FeatureVector{
		float64(v.Age),
		float64(v.SystolicBP),
		float64(v.DiastolicBP),
		v.BloodSugar,
		v.BodyTemp,
		float64(v.HeartRate),
	}
}

// FeatureWeight pairs a feature with its model importance.
type FeatureWeight struct {
	Feature Feature `json:"feature"`
	Weight  float64 `json:"weight"`
}

// RiskAssessment is the derived, create-use-discard result of one evaluation.
//
// Confidence is the maximum class probability as returned by the model. When
// the High-risk threshold downgrades the label to Mid, Confidence still
// carries the High probability and Downgraded is set.
type RiskAssessment struct {
	ID                string             `json:"id,omitempty"`
	Level             RiskLevel          `json:"risk_level"`
	ModelLevel        RiskLevel          `json:"model_level"`
	Confidence        float64            `json:"confidence"`
	Probabilities     ClassProbabilities `json:"probabilities"`
	Downgraded        bool               `json:"downgraded"`
	FeatureImportance []FeatureWeight    `json:"feature_importance"`
	ModelVersion      string             `json:"model_version,omitempty"`
	AssessedAt        time.Time          `json:"assessed_at"`
}

// Severity returns the presentation severity for the final label.
func (a *RiskAssessment) Severity() Severity {
	return a.Level.Severity()
}

// LogFields returns structured logging fields for the assessment. Vitals
// are never included.
func (a *RiskAssessment) LogFields() map[string]any {
	return map[string]any{
		"assessment_id": a.ID,
		"risk_level":    a.Level.String(),
		"model_level":   a.ModelLevel.String(),
		"confidence":    a.Confidence,
		"downgraded":    a.Downgraded,
		"model_version": a.ModelVersion,
	}
}

// Donor-check presentation messages.
const (
	DonorCheckNotice      = "Only medically eligible and blood-compatible donors are shown."
	NoEligibleDonorsMsg   = "No compatible eligible donors available."
	EmergencyDispatchHead = "Emergency Donor Dispatch"
)

// DonorMatch is the result of one donor eligibility lookup.
type DonorMatch struct {
	RecipientGroup   BloodGroup    `json:"recipient_group"`
	CompatibleGroups []BloodGroup  `json:"compatible_groups"`
	Donors           []DonorRecord `json:"donors"`
	Count            int           `json:"count"`
}

// Empty reports whether no donor qualified. An empty match is a valid
// outcome, not a failure.
func (m *DonorMatch) Empty() bool {
	return m.Count == 0
}

// Message is the user-facing summary of a donor check.
func (m *DonorMatch) Message() string {
	if m.Empty() {
		return NoEligibleDonorsMsg
	}
	return fmt.Sprintf("%d Compatible Donor(s) Found", m.Count)
}

// CheckSeverity is the severity of a plain donor check: an empty result is
// a warning, not an error.
func (m *DonorMatch) CheckSeverity() Severity {
	if m.Empty() {
		return SeverityWarning
	}
	return SeverityInfo
}

// DispatchSeverity is the severity of an emergency dispatch. With a High
// risk patient, an empty match is an error state.
func (m *DonorMatch) DispatchSeverity() Severity {
	if m.Empty() {
		return SeverityError
	}
	return SeveritySuccess
}

// RiskAnalysis combines an assessment with the emergency dispatch, which is
// present only when the assessment is High.
type RiskAnalysis struct {
	Assessment *RiskAssessment `json:"assessment"`
	Dispatch   *DonorMatch     `json:"emergency_dispatch,omitempty"`
}
