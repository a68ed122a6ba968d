package mcp

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/maternal-guard-server/internal/domain"
	"github.com/maternal-guard-server/internal/service"
)

// Tool names.
const (
	ToolCheckCompatibleDonors = "check_compatible_donors"
	ToolAnalyzeMaternalRisk   = "analyze_maternal_risk"
	ToolListBloodGroups       = "list_blood_groups"
	ToolSubmitRiskFeedback    = "submit_risk_feedback"
	ToolFeedbackSummary       = "feedback_summary"
	ToolExportFeedback        = "export_feedback"
	ToolImportFeedback        = "import_feedback"
)

// CheckDonorsParams defines parameters for check_compatible_donors.
type CheckDonorsParams struct {
	BloodGroup string `json:"blood_group" jsonschema:"recipient blood group: O-, O+, A-, A+, B-, B+, AB- or AB+"`
}

// AnalyzeRiskParams defines parameters for analyze_maternal_risk.
type AnalyzeRiskParams struct {
	Age         int     `json:"age" jsonschema:"age in years, 15 to 50"`
	SystolicBP  int     `json:"systolic_bp" jsonschema:"systolic blood pressure in mmHg, 80 to 200"`
	DiastolicBP int     `json:"diastolic_bp" jsonschema:"diastolic blood pressure in mmHg, 50 to 130"`
	BloodSugar  float64 `json:"blood_sugar" jsonschema:"blood sugar in mmol/L, 6 to 20"`
	BodyTemp    float64 `json:"body_temp" jsonschema:"body temperature in Fahrenheit, 95 to 105"`
	HeartRate   int     `json:"heart_rate" jsonschema:"heart rate in bpm, 40 to 200"`
	BloodGroup  string  `json:"blood_group" jsonschema:"patient blood group, used for emergency donor dispatch"`
}

// SubmitFeedbackParams defines parameters for submit_risk_feedback.
type SubmitFeedbackParams struct {
	AssessmentID   string `json:"assessment_id" jsonschema:"id returned by analyze_maternal_risk"`
	ClinicianLevel string `json:"clinician_level" jsonschema:"the clinician's risk level: Low, Mid or High"`
	Notes          string `json:"notes,omitempty" jsonschema:"optional reasoning, no patient identifiers"`
}

// ExportFeedbackResult is returned by export_feedback.
type ExportFeedbackResult struct {
	Path  string `json:"path"`
	Count int64  `json:"count"`
}

// ImportFeedbackParams defines parameters for import_feedback.
type ImportFeedbackParams struct {
	FileName string `json:"file_name" jsonschema:"name of a file in the server's export directory, as returned by export_feedback"`
}

// ImportFeedbackResult is returned by import_feedback.
type ImportFeedbackResult struct {
	Path     string `json:"path"`
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
}

type toolHandlers struct {
	service   *service.MaternalGuardService
	exportDir string
	logger    *logrus.Logger
}

func registerTools(s *mcp.Server, h *toolHandlers) {
	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolCheckCompatibleDonors,
		Description: "List medically eligible donors whose blood is compatible with a recipient blood group.",
	}, h.checkDonors)

	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolAnalyzeMaternalRisk,
		Description: "Assess maternal health risk (Low, Mid or High) from six vitals. A High result also dispatches compatible donors.",
	}, h.analyzeRisk)

	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolListBloodGroups,
		Description: "List the blood groups and, for each recipient group, the donor groups it can receive.",
	}, h.listBloodGroups)

	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolSubmitRiskFeedback,
		Description: "Record a clinician's risk level for a recent assessment.",
	}, h.submitFeedback)

	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolFeedbackSummary,
		Description: "Summarize clinician agreement with the risk assessments, including downgraded High predictions.",
	}, h.feedbackSummary)

	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolExportFeedback,
		Description: "Export all clinician feedback to a JSON file in the server's export directory.",
	}, h.exportFeedback)

	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolImportFeedback,
		Description: "Import clinician feedback from a JSON export in the server's export directory. Assessments that already have feedback are skipped.",
	}, h.importFeedback)

	h.logger.WithField("tool_count", 7).Info("Successfully registered all tools")
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func (h *toolHandlers) checkDonors(ctx context.Context, _ *mcp.CallToolRequest, in CheckDonorsParams) (*mcp.CallToolResult, any, error) {
	h.logger.WithField("tool", ToolCheckCompatibleDonors).Info("Tool invoked")

	group, err := domain.ParseBloodGroup(in.BloodGroup)
	if err != nil {
		return nil, nil, err
	}
	match, err := h.service.CheckDonors(ctx, group)
	if err != nil {
		return nil, nil, err
	}

	view := service.NewDonorCheckView(match)
	return textResult(renderDonorCheck(view)), view, nil
}

func (h *toolHandlers) analyzeRisk(ctx context.Context, _ *mcp.CallToolRequest, in AnalyzeRiskParams) (*mcp.CallToolResult, any, error) {
	h.logger.WithField("tool", ToolAnalyzeMaternalRisk).Info("Tool invoked")

	vitals := &domain.PatientVitals{
		Age:         in.Age,
		SystolicBP:  in.SystolicBP,
		DiastolicBP: in.DiastolicBP,
		BloodSugar:  in.BloodSugar,
		BodyTemp:    in.BodyTemp,
		HeartRate:   in.HeartRate,
		BloodGroup:  domain.BloodGroup(in.BloodGroup),
	}
	if g, err := domain.ParseBloodGroup(in.BloodGroup); err == nil {
		vitals.BloodGroup = g
	}

	analysis, err := h.service.AnalyzeRisk(ctx, vitals)
	if err != nil {
		return nil, nil, err
	}

	view := service.NewRiskAnalysisView(analysis)
	return textResult(renderRiskAnalysis(view)), view, nil
}

func (h *toolHandlers) listBloodGroups(_ context.Context, _ *mcp.CallToolRequest, _ any) (*mcp.CallToolResult, any, error) {
	table, err := h.service.CompatibilityTable()
	if err != nil {
		return nil, nil, err
	}

	var b strings.Builder
	for _, g := range domain.AllBloodGroups() {
		names := make([]string, 0, len(table[g]))
		for _, d := range table[g] {
			names = append(names, d.String())
		}
		fmt.Fprintf(&b, "%s receives from %s\n", g, strings.Join(names, ", "))
	}

	return textResult(b.String()), map[string]any{
		"blood_groups":  domain.AllBloodGroups(),
		"compatibility": table,
	}, nil
}

func (h *toolHandlers) submitFeedback(ctx context.Context, _ *mcp.CallToolRequest, in SubmitFeedbackParams) (*mcp.CallToolResult, any, error) {
	h.logger.WithField("tool", ToolSubmitRiskFeedback).Info("Tool invoked")

	fb, err := h.service.SubmitFeedback(ctx, &service.FeedbackRequest{
		AssessmentID:   in.AssessmentID,
		ClinicianLevel: domain.RiskLevel(in.ClinicianLevel),
		Notes:          in.Notes,
	})
	if err != nil {
		return nil, nil, err
	}

	verdict := "disagrees with"
	if fb.Agreed {
		verdict = "agrees with"
	}
	return textResult(fmt.Sprintf("Feedback recorded: clinician (%s) %s suggested %s.",
		fb.ClinicianLevel, verdict, fb.SuggestedLevel)), fb, nil
}

func (h *toolHandlers) feedbackSummary(ctx context.Context, _ *mcp.CallToolRequest, _ any) (*mcp.CallToolResult, any, error) {
	summary, err := h.service.FeedbackSummary(ctx)
	if err != nil {
		return nil, nil, err
	}
	return textResult(fmt.Sprintf(
		"%d feedback entries, agreement %.0f%%. %d downgraded assessments, %d overruled to High.",
		summary.Total, summary.Agreement*100, summary.Downgraded, summary.DowngradedOverruled,
	)), summary, nil
}

func (h *toolHandlers) exportFeedback(ctx context.Context, _ *mcp.CallToolRequest, _ any) (*mcp.CallToolResult, any, error) {
	store := h.service.FeedbackStore()
	if store == nil {
		return nil, nil, service.ErrFeedbackDisabled
	}

	if err := os.MkdirAll(h.exportDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	path := filepath.Join(h.exportDir, fmt.Sprintf("risk-feedback-%s.json", time.Now().UTC().Format("20060102-150405")))

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	if err := store.ExportJSON(ctx, f); err != nil {
		return nil, nil, err
	}
	count, err := store.Count(ctx)
	if err != nil {
		return nil, nil, err
	}

	result := ExportFeedbackResult{Path: path, Count: count}
	return textResult(fmt.Sprintf("Exported %d feedback entries to %s", count, path)), result, nil
}

func (h *toolHandlers) importFeedback(ctx context.Context, _ *mcp.CallToolRequest, in ImportFeedbackParams) (*mcp.CallToolResult, any, error) {
	h.logger.WithField("tool", ToolImportFeedback).Info("Tool invoked")

	// Only plain file names: imports never read outside the export directory.
	name := filepath.Base(in.FileName)
	if in.FileName == "" || name != in.FileName || name == "." || name == ".." {
		return nil, nil, domain.NewValidationError("file_name", "must be a file name inside the export directory", in.FileName)
	}
	path := filepath.Join(h.exportDir, name)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("export file %s: %w", name, domain.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("failed to open export file: %w", err)
	}
	defer f.Close()

	imported, skipped, err := h.service.ImportFeedback(ctx, f)
	if err != nil {
		return nil, nil, err
	}

	result := ImportFeedbackResult{Path: path, Imported: imported, Skipped: skipped}
	return textResult(fmt.Sprintf("Imported %d feedback entries from %s (%d skipped)", imported, path, skipped)), result, nil
}

func renderDonorCheck(v *service.DonorCheckView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n", v.Notice, v.Message)
	for _, d := range v.Donors {
		fmt.Fprintf(&b, "- %s (%s), age %d, Hb %.1f g/dL\n", d.Name, d.BloodGroup, d.Age, d.Hemoglobin)
	}
	return b.String()
}

func renderRiskAnalysis(v *service.RiskAnalysisView) string {
	var b strings.Builder
	a := v.Assessment
	fmt.Fprintf(&b, "%s\nRisk level: %s (confidence %s)\n", v.Message, a.Level, v.ConfidenceDisplay)
	if a.Downgraded {
		fmt.Fprintf(&b, "Model predicted %s below the High-risk threshold; reported as %s.\n", a.ModelLevel, a.Level)
	}
	fmt.Fprintf(&b, "Assessment ID: %s\n", a.ID)
	b.WriteString("Feature importance:\n")
	for _, fw := range a.FeatureImportance {
		fmt.Fprintf(&b, "- %s: %.2f\n", fw.Feature, fw.Weight)
	}
	if v.Dispatch != nil {
		fmt.Fprintf(&b, "%s: %s\n", v.Dispatch.Title, v.Dispatch.Message)
		for _, d := range v.Dispatch.Donors {
			fmt.Fprintf(&b, "- %s (%s)\n", d.Name, d.BloodGroup)
		}
	}
	return b.String()
}
