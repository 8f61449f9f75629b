package cli

import (
	"github.com/spf13/cobra"

	"github.com/petal-labs/toolforge/consolidate"
	"github.com/petal-labs/toolforge/report"
)

// NewCoverageCmd creates the "coverage" subcommand.
func NewCoverageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coverage",
		Short: "Report methods that no enabled tool exposes",
		Args:  cobra.NoArgs,
		RunE:  runCoverage,
	}

	cmd.Flags().String("format", "text", "Output format: text | json")
	cmd.Flags().Bool("fail-uncovered", false, "Exit 1 when any method has zero tool coverage")

	return cmd
}

func runCoverage(cmd *cobra.Command, _ []string) error {
	format, err := formatFlag(cmd)
	if err != nil {
		return err
	}
	failUncovered, _ := cmd.Flags().GetBool("fail-uncovered")

	cat, s, err := loadCatalog(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	cov := consolidate.ComputeCoverage(cat)
	if format == report.FormatJSON {
		if err := encodeJSON(cmd, cov); err != nil {
			return err
		}
	} else if err := report.WriteCoverageText(cmd.OutOrStdout(), cov); err != nil {
		return err
	}

	if failUncovered && len(cov.Uncovered) > 0 {
		return exitError(exitValidation, "%s", cov)
	}
	return nil
}
