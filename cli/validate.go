package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolforge/consolidate"
	"github.com/petal-labs/toolforge/report"
)

// NewValidateCmd creates the "validate" subcommand.
func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check every tool against the method it invokes",
		Long: "Load the method and tool inventories, compare each tool's parameters with its method's\n" +
			"signature and print a grouped report. Exits 1 on errors in strict mode.",
		Args: cobra.NoArgs,
		RunE: runValidate,
	}

	cmd.Flags().String("format", "text", "Output format: text | json")
	cmd.Flags().Bool("include-unchecked", false, "Report tools that have no comparable method")
	cmd.Flags().Bool("errors-only", false, "Print errors only (the summary still counts warnings)")

	return cmd
}

func runValidate(cmd *cobra.Command, _ []string) error {
	format, err := formatFlag(cmd)
	if err != nil {
		return err
	}
	errorsOnly, _ := cmd.Flags().GetBool("errors-only")

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	orch, err := s.orchestrator(false)
	if err != nil {
		return err
	}
	out, runErr := orch.Run(cmd.Context(), consolidate.Request{
		Command: "validate",
		Sources: s.cfg.Sources,
	})
	if runErr == nil {
		if out.Report != nil {
			filtered := out.Report.Filter(errorsOnly)
			out.Report = &filtered
		}
		if err := printValidateOutcome(cmd, out, format); err != nil {
			return err
		}
	}
	return s.finish(out, runErr)
}

func printValidateOutcome(cmd *cobra.Command, out consolidate.Outcome, format report.Format) error {
	w := cmd.OutOrStdout()
	if format == report.FormatJSON {
		return report.WriteOutcomeJSON(w, out)
	}
	if out.Report == nil {
		// Disabled mode only loads.
		_, err := fmt.Fprintf(w, "Validation disabled; loaded %d methods and %d tools\n", out.Catalog.Methods.Len(), out.Catalog.Tools.Len())
		return err
	}
	if err := report.WriteValidationText(w, *out.Report); err != nil {
		return err
	}
	if len(out.Coverage.Uncovered) > 0 {
		if _, err := fmt.Fprintln(w, out.Coverage.String()); err != nil {
			return err
		}
	}
	return nil
}
