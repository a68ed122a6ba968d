package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/maternal-guard-server/internal/domain"
	"github.com/maternal-guard-server/internal/service"
	"github.com/maternal-guard-server/internal/setup"
)

func joinGroups(groups []domain.BloodGroup) string {
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.String()
	}
	return strings.Join(names, ", ")
}

func writeDonorTable(w io.Writer, donors []domain.DonorRecord) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tBLOOD GROUP\tAGE\tHEMOGLOBIN (g/dL)")
	for _, d := range donors {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.1f\n", d.Name, d.BloodGroup, d.Age, d.Hemoglobin)
	}
	tw.Flush()
}

func writeRiskAnalysis(w io.Writer, v *service.RiskAnalysisView) {
	a := v.Assessment
	fmt.Fprintln(w, v.Message)
	fmt.Fprintf(w, "Risk level:  %s\n", a.Level)
	fmt.Fprintf(w, "Confidence:  %s\n", v.ConfidenceDisplay)
	if a.Downgraded {
		fmt.Fprintf(w, "Model level: %s (below the High-risk threshold)\n", a.ModelLevel)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FEATURE\tIMPORTANCE")
	for _, fw := range a.FeatureImportance {
		fmt.Fprintf(tw, "%s\t%.2f\n", fw.Feature, fw.Weight)
	}
	tw.Flush()

	if v.Dispatch == nil {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s: %s\n", v.Dispatch.Title, v.Dispatch.Message)
	if v.Dispatch.Count > 0 {
		writeDonorTable(w, v.Dispatch.Donors)
	}
}

func writeStatus(w io.Writer, r *statusReport) {
	fmt.Fprintln(w, "Model:")
	if r.Model != nil {
		fmt.Fprintf(w, "  ✓ %s %s\n", r.Model.Name, r.Model.Version)
	} else {
		fmt.Fprintf(w, "  ✗ %s\n", r.ModelErr)
	}

	fmt.Fprintf(w, "Donors: %d\n", r.Donors)
	fmt.Fprintf(w, "Data directory: %s\n", r.DataDir)

	fmt.Fprintln(w, "Feedback:")
	if r.Feedback == nil {
		fmt.Fprintln(w, "  - Not created yet")
	} else {
		fmt.Fprintf(w, "  Entries: %d (agreement %.0f%%)\n", r.Feedback.Total, r.Feedback.Agreement*100)
		fmt.Fprintf(w, "  Downgraded: %d, overruled to High: %d\n", r.Feedback.Downgraded, r.Feedback.DowngradedOverruled)
	}

	if r.Client != nil {
		writeClientStatus(w, r.Client)
	}
}

func writeClientStatus(w io.Writer, s *setup.Status) {
	fmt.Fprintln(w, "MCP client:")
	fmt.Fprintf(w, "  Config: %s\n", s.ConfigPath)
	if s.Registered {
		fmt.Fprintf(w, "  ✓ Registered (%s)\n", s.BinaryPath)
	} else {
		fmt.Fprintln(w, "  ✗ Not registered")
	}
	for _, issue := range s.Issues {
		fmt.Fprintf(w, "  ⚠ %s\n", issue)
	}
}
