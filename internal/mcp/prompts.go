package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/maternal-guard-server/internal/domain"
	"github.com/maternal-guard-server/internal/service"
)

// Prompt names.
const (
	PromptRiskReview    = "risk_review"
	PromptDonorDispatch = "donor_dispatch"
)

func registerPrompts(s *mcp.Server, h *toolHandlers) {
	s.AddPrompt(&mcp.Prompt{
		Name:        PromptRiskReview,
		Title:       "Review a risk assessment",
		Description: "Guide a clinician through reviewing a recent assessment before submitting feedback",
		Arguments: []*mcp.PromptArgument{
			{Name: "assessment_id", Description: "id returned by analyze_maternal_risk", Required: true},
		},
	}, h.riskReviewPrompt)

	s.AddPrompt(&mcp.Prompt{
		Name:        PromptDonorDispatch,
		Title:       "Plan an emergency donor dispatch",
		Description: "Summarize eligible compatible donors for a recipient blood group",
		Arguments: []*mcp.PromptArgument{
			{Name: "blood_group", Description: "recipient blood group", Required: true},
		},
	}, h.donorDispatchPrompt)
}

func userPrompt(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []*mcp.PromptMessage{
			{Role: "user", Content: &mcp.TextContent{Text: text}},
		},
	}
}

func (h *toolHandlers) riskReviewPrompt(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	id := req.Params.Arguments["assessment_id"]
	if id == "" {
		return nil, errors.New("assessment_id is required")
	}

	a, err := h.service.GetAssessment(ctx, id)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Review maternal risk assessment %s.\n\n", a.ID)
	fmt.Fprintf(&b, "Reported level: %s (confidence %s)\n", a.Level, service.FormatConfidence(a.Confidence))
	if a.Downgraded {
		fmt.Fprintf(&b, "The model predicted %s with p(High) = %s, below the High-risk threshold, so the result was reported as %s.\n",
			a.ModelLevel, service.FormatConfidence(a.Probabilities.Of(domain.RiskHigh)), a.Level)
	}
	b.WriteString("\nClass probabilities:\n")
	for _, level := range domain.AllRiskLevels() {
		fmt.Fprintf(&b, "- %s: %s\n", level, service.FormatConfidence(a.Probabilities.Of(level)))
	}
	b.WriteString("\nMost influential features:\n")
	for i, fw := range a.FeatureImportance {
		if i == 3 {
			break
		}
		fmt.Fprintf(&b, "%d. %s (%.2f)\n", i+1, fw.Feature, fw.Weight)
	}
	b.WriteString("\nCompare this with the clinical picture. Decide whether the patient is Low, Mid or High risk, ")
	fmt.Fprintf(&b, "then record the decision with %s. Do not include patient identifiers in notes.\n", ToolSubmitRiskFeedback)

	return userPrompt("Clinician review of a risk assessment", b.String()), nil
}

func (h *toolHandlers) donorDispatchPrompt(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	group, err := domain.ParseBloodGroup(req.Params.Arguments["blood_group"])
	if err != nil {
		return nil, err
	}

	match, err := h.service.CheckDonors(ctx, group)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "A %s patient needs an emergency blood donor.\n", group)
	fmt.Fprintf(&b, "Compatible donor groups: %s\n\n", joinBloodGroups(match.CompatibleGroups))
	if match.Count == 0 {
		b.WriteString("No compatible eligible donors are available. Draft an escalation to the regional blood bank.\n")
		return userPrompt("Emergency donor dispatch", b.String()), nil
	}

	fmt.Fprintf(&b, "%d eligible donor(s), in registry order:\n", match.Count)
	for _, d := range match.Donors {
		fmt.Fprintf(&b, "- %s (%s), age %d, Hb %.1f g/dL\n", d.Name, d.BloodGroup, d.Age, d.Hemoglobin)
	}
	b.WriteString("\nDraft a short contact plan, starting with exact group matches and keeping O- donors in reserve.\n")
	return userPrompt("Emergency donor dispatch", b.String()), nil
}

func joinBloodGroups(groups []domain.BloodGroup) string {
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.String()
	}
	return strings.Join(names, ", ")
}
