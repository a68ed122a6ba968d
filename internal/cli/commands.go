package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/maternal-guard-server/internal/domain"
	"github.com/maternal-guard-server/internal/feedback"
	"github.com/maternal-guard-server/internal/model"
	"github.com/maternal-guard-server/internal/service"
	"github.com/maternal-guard-server/internal/setup"
)

func donorsCmd(a *app) *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:   "donors",
		Short: "List eligible donors compatible with a recipient blood group",
		RunE: func(cmd *cobra.Command, args []string) error {
			bg, err := domain.ParseBloodGroup(group)
			if err != nil {
				return err
			}
			svc, err := a.newService()
			if err != nil {
				return err
			}
			match, err := svc.CheckDonors(cmd.Context(), bg)
			if err != nil {
				return err
			}

			view := service.NewDonorCheckView(match)
			if a.output == OutputJSON {
				return writeJSON(cmd.OutOrStdout(), view)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, view.Notice)
			fmt.Fprintln(out, view.Message)
			if view.Count > 0 {
				fmt.Fprintln(out)
				writeDonorTable(out, view.Donors)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&group, "blood-group", "b", "", "recipient blood group, e.g. O-")
	_ = cmd.MarkFlagRequired("blood-group")
	return cmd
}

func assessCmd(a *app) *cobra.Command {
	var (
		vitals domain.PatientVitals
		group  string
	)

	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Assess maternal health risk from vitals",
		Long: `Assess maternal health risk from six vitals. A High result also lists
compatible donors for the patient's blood group.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			vitals.BloodGroup = domain.BloodGroup(group)
			if bg, err := domain.ParseBloodGroup(group); err == nil {
				vitals.BloodGroup = bg
			}

			svc, err := a.newService()
			if err != nil {
				return err
			}
			analysis, err := svc.AnalyzeRisk(cmd.Context(), &vitals)
			if err != nil {
				return err
			}

			view := service.NewRiskAnalysisView(analysis)
			if a.output == OutputJSON {
				return writeJSON(cmd.OutOrStdout(), view)
			}
			writeRiskAnalysis(cmd.OutOrStdout(), view)
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&vitals.Age, "age", 0, "age in years")
	f.IntVar(&vitals.SystolicBP, "systolic-bp", 0, "systolic blood pressure (mmHg)")
	f.IntVar(&vitals.DiastolicBP, "diastolic-bp", 0, "diastolic blood pressure (mmHg)")
	f.Float64Var(&vitals.BloodSugar, "blood-sugar", 0, "blood sugar (mmol/L)")
	f.Float64Var(&vitals.BodyTemp, "body-temp", 0, "body temperature (F)")
	f.IntVar(&vitals.HeartRate, "heart-rate", 0, "heart rate (bpm)")
	f.StringVarP(&group, "blood-group", "b", "", "patient blood group")
	for _, name := range []string{"age", "systolic-bp", "diastolic-bp", "blood-sugar", "body-temp", "heart-rate", "blood-group"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func bloodGroupsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "blood-groups",
		Short: "Show which donor groups each recipient group can receive",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := a.filter(a.logger())
			if err != nil {
				return err
			}
			table := make(map[domain.BloodGroup][]domain.BloodGroup)
			for _, g := range domain.AllBloodGroups() {
				allowed, err := filter.CompatibleGroups(g)
				if err != nil {
					return err
				}
				table[g] = allowed
			}

			if a.output == OutputJSON {
				return writeJSON(cmd.OutOrStdout(), table)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RECIPIENT\tRECEIVES FROM")
			for _, g := range domain.AllBloodGroups() {
				fmt.Fprintf(tw, "%s\t%s\n", g, joinGroups(table[g]))
			}
			return tw.Flush()
		},
	}
}

func modelCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect the risk model artifact",
	}

	var path string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a model artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = a.modelPath
			}
			m, err := model.LoadFile(path)
			if err != nil {
				return err
			}

			info := m.Info()
			if a.output == OutputJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"path":  path,
					"valid": true,
					"model": info,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ %s is valid\n", path)
			fmt.Fprintf(out, "  Name:     %s\n", info.Name)
			fmt.Fprintf(out, "  Version:  %s\n", info.Version)
			fmt.Fprintf(out, "  Features: %s\n", strings.Join(info.Features, ", "))
			fmt.Fprintf(out, "  Classes:  %s\n", strings.Join(info.Classes, ", "))
			return nil
		},
	}
	validate.Flags().StringVar(&path, "path", "", "artifact to validate (defaults to --model)")

	cmd.AddCommand(validate)
	return cmd
}

// statusReport summarizes the local installation.
type statusReport struct {
	Model    *model.Info       `json:"model,omitempty"`
	ModelErr string            `json:"model_error,omitempty"`
	Donors   int               `json:"donors"`
	DataDir  string            `json:"data_dir"`
	Feedback *feedback.Summary `json:"feedback,omitempty"`
	Client   *setup.Status     `json:"mcp_client,omitempty"`
}

func statusCmd(a *app) *cobra.Command {
	var clientConfig string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show model, dataset, feedback and MCP client status",
		RunE: func(cmd *cobra.Command, args []string) error {
			report := statusReport{DataDir: a.dataDir}

			if m, err := model.LoadFile(a.modelPath); err != nil {
				report.ModelErr = err.Error()
			} else {
				info := m.Info()
				report.Model = &info
			}

			filter, err := a.filter(a.logger())
			if err != nil {
				return err
			}
			report.Donors = len(filter.Donors())

			summary, err := feedbackSummary(cmd, filepath.Join(a.dataDir, "feedback.db"))
			if err != nil {
				return err
			}
			report.Feedback = summary

			if status, err := setup.GetStatus(clientConfig); err == nil {
				report.Client = status
			}

			if a.output == OutputJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			writeStatus(cmd.OutOrStdout(), &report)
			return nil
		},
	}

	cmd.Flags().StringVar(&clientConfig, "client-config", "", "MCP client config file (defaults to the desktop client's)")
	return cmd
}

// feedbackSummary reads the lite server's feedback database without
// creating it.
func feedbackSummary(cmd *cobra.Command, path string) (*feedback.Summary, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	store, err := feedback.NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Summary(cmd.Context())
}

// NewSetupCommand builds the setup commands. mcp-server-lite mounts the
// same tree under its own "setup" argument.
func NewSetupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register the lite MCP server with a desktop MCP client",
	}

	var opts setup.Options
	register := &cobra.Command{
		Use:   "register",
		Short: "Add or update the maternal-guard entry in the client config",
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := setup.Register(opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Registered %s -> %s\n", setup.ServerKey, entry.Command)
			fmt.Fprintln(out, "Restart the MCP client to load the new configuration.")
			return nil
		},
	}
	register.Flags().StringVar(&opts.ConfigPath, "client-config", "", "client config file (defaults to the desktop client's)")
	register.Flags().StringVar(&opts.BinaryPath, "binary", "", "path to "+setup.BinaryName)
	register.Flags().StringVar(&opts.DataDir, "data-dir", "", "data directory passed to the server")
	register.Flags().StringVar(&opts.ModelPath, "model", "", "model artifact passed to the server")
	register.Flags().StringVar(&opts.DonorsFile, "donors", "", "donor dataset passed to the server")

	var unregisterPath string
	unregister := &cobra.Command{
		Use:   "unregister",
		Short: "Remove the maternal-guard entry from the client config",
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := setup.Unregister(unregisterPath)
			if err != nil {
				return err
			}
			if removed {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %s\n", setup.ServerKey)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s was not registered\n", setup.ServerKey)
			}
			return nil
		},
	}
	unregister.Flags().StringVar(&unregisterPath, "client-config", "", "client config file")

	var statusPath string
	status := &cobra.Command{
		Use:   "status",
		Short: "Show whether the lite server is registered",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := setup.GetStatus(statusPath)
			if err != nil {
				return err
			}
			writeClientStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
	status.Flags().StringVar(&statusPath, "client-config", "", "client config file")

	cmd.AddCommand(register, unregister, status)
	return cmd
}
