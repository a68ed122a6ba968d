// Package cli implements mgctl, the offline command-line client. It runs the
// same service as the servers against a local model artifact and donor
// dataset.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/maternal-guard-server/internal/config"
	"github.com/maternal-guard-server/internal/domain"
	"github.com/maternal-guard-server/internal/donor"
	"github.com/maternal-guard-server/internal/logging"
	"github.com/maternal-guard-server/internal/model"
	"github.com/maternal-guard-server/internal/service"
)

// Output formats.
const (
	OutputTable = "table"
	OutputJSON  = "json"
)

type app struct {
	output     string
	modelPath  string
	donorsFile string
	threshold  float64
	dataDir    string
	logLevel   string
}

// NewRootCommand builds the mgctl command tree. Defaults come from the
// MATERNAL_GUARD_* environment, the same as the lite server.
func NewRootCommand() *cobra.Command {
	lite := config.LoadLiteConfig()
	a := &app{}

	root := &cobra.Command{
		Use:           "mgctl",
		Short:         "Maternal risk assessment and donor matching from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.output != OutputTable && a.output != OutputJSON {
				return fmt.Errorf("unsupported output format %q (use table or json)", a.output)
			}
			if !cmd.Flags().Changed("threshold") {
				return lite.ValidateThreshold()
			}
			if err := domain.ValidateHighRiskThreshold(a.threshold); err != nil {
				return fmt.Errorf("--threshold: %w", err)
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.output, "output", "o", OutputTable, "output format: table or json")
	flags.StringVar(&a.modelPath, "model", lite.ModelPath, "risk model artifact")
	flags.StringVar(&a.donorsFile, "donors", lite.DonorsFile, "donor dataset JSON (empty uses the sample dataset)")
	flags.Float64Var(&a.threshold, "threshold", lite.Threshold, "minimum High-class probability to report High")
	flags.StringVar(&a.dataDir, "data-dir", lite.DataDir, "lite server data directory")
	flags.StringVar(&a.logLevel, "log-level", "warn", "log level for diagnostics on stderr")

	root.AddCommand(
		donorsCmd(a),
		assessCmd(a),
		bloodGroupsCmd(a),
		modelCmd(a),
		statusCmd(a),
		NewSetupCommand(),
	)
	return root
}

func (a *app) logger() *logrus.Logger {
	return logging.NewStderrLogger(a.logLevel, "text")
}

func (a *app) filter(logger *logrus.Logger) (*donor.Filter, error) {
	donors, err := donor.LoadDatasetOrSample(a.donorsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load donor dataset: %w", err)
	}
	return donor.NewFilter(donors, donor.StandardCompatibility(), logger), nil
}

// newService wires the service without cache or feedback: the CLI keeps no
// state between invocations.
func (a *app) newService() (*service.MaternalGuardService, error) {
	logger := a.logger()

	riskModel, err := model.LoadFile(a.modelPath)
	if err != nil {
		return nil, err
	}
	filter, err := a.filter(logger)
	if err != nil {
		return nil, err
	}

	classifier := service.NewRiskClassifier(logger, riskModel,
		service.WithHighRiskThreshold(a.threshold),
		service.WithModelVersion(riskModel.Info().Version),
	)
	return service.NewMaternalGuardService(logger, filter, classifier), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
