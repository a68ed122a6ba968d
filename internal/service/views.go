package service

import (
	"fmt"

	"github.com/maternal-guard-server/internal/domain"
)

// DonorCheckView is the presentation form of a donor check shared by the
// REST, MCP and CLI surfaces.
type DonorCheckView struct {
	*domain.DonorMatch
	Notice   string          `json:"notice"`
	Message  string          `json:"message"`
	Severity domain.Severity `json:"severity"`
}

// NewDonorCheckView renders a plain donor check. An empty match is a
// warning.
func NewDonorCheckView(m *domain.DonorMatch) *DonorCheckView {
	return &DonorCheckView{
		DonorMatch: m,
		Notice:     domain.DonorCheckNotice,
		Message:    m.Message(),
		Severity:   m.CheckSeverity(),
	}
}

// DispatchView is the emergency donor dispatch attached to a High result.
// An empty dispatch is an error state.
type DispatchView struct {
	*domain.DonorMatch
	Title    string          `json:"title"`
	Message  string          `json:"message"`
	Severity domain.Severity `json:"severity"`
}

// RiskAnalysisView is the presentation form of a risk analysis.
type RiskAnalysisView struct {
	Assessment        *domain.RiskAssessment `json:"assessment"`
	Message           string                 `json:"message"`
	Severity          domain.Severity        `json:"severity"`
	ConfidenceDisplay string                 `json:"confidence_display"`
	Dispatch          *DispatchView          `json:"emergency_dispatch,omitempty"`
}

// NewRiskAnalysisView renders an analysis.
func NewRiskAnalysisView(a *domain.RiskAnalysis) *RiskAnalysisView {
	view := &RiskAnalysisView{
		Assessment:        a.Assessment,
		Message:           a.Assessment.Level.Message(),
		Severity:          a.Assessment.Severity(),
		ConfidenceDisplay: FormatConfidence(a.Assessment.Confidence),
	}
	if a.Dispatch != nil {
		view.Dispatch = &DispatchView{
			DonorMatch: a.Dispatch,
			Title:      domain.EmergencyDispatchHead,
			Message:    a.Dispatch.Message(),
			Severity:   a.Dispatch.DispatchSeverity(),
		}
	}
	return view
}

// FormatConfidence renders a probability with two decimals.
func FormatConfidence(c float64) string {
	return fmt.Sprintf("%.2f", c)
}
