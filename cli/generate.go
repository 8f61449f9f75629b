package cli

import (
	"github.com/spf13/cobra"

	"github.com/petal-labs/toolforge/consolidate"
	"github.com/petal-labs/toolforge/report"
)

// NewGenerateCmd creates the "generate" subcommand.
func NewGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate [tool...]",
		Short: "Validate, then write wrapper and test files for each tool",
		Long: "Validate the inventories and generate Go source for every enabled tool (or only the named\n" +
			"tools). In strict mode, validation errors block generation. Each tool is generated\n" +
			"independently; one failure does not stop the rest.",
		RunE: runGenerate,
	}

	addGenerationFlags(cmd)
	cmd.Flags().Bool("dry-run", false, "Render and check everything without writing files")
	cmd.Flags().Bool("check-drift", false, "Also compare generated output with files on disk")

	return cmd
}

// NewDriftCmd creates the "drift" subcommand.
func NewDriftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drift [tool...]",
		Short: "Report generated files that differ from the current definitions",
		Long: "Render every enabled tool in memory and compare the output with the checked-in files.\n" +
			"Nothing is written. Exits 1 on drift in strict mode.",
		RunE: runDrift,
	}

	addGenerationFlags(cmd)

	return cmd
}

func addGenerationFlags(cmd *cobra.Command) {
	cmd.Flags().String("format", "text", "Output format: text | json")
	cmd.Flags().StringP("output-dir", "o", "", "Directory for generated files")
	cmd.Flags().String("package", "", "Go package name of generated files")
	cmd.Flags().StringSlice("artifact", nil, "Artifacts to generate: tool, unit_test, integration_test, interface_test")
	cmd.Flags().Bool("include-unchecked", false, "Report tools that have no comparable method")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	checkDrift, _ := cmd.Flags().GetBool("check-drift")
	return runPipeline(cmd, consolidate.Request{
		Command:  "generate",
		Generate: true,
		DryRun:   dryRun,
		Drift:    checkDrift,
		Tools:    args,
	})
}

func runDrift(cmd *cobra.Command, args []string) error {
	return runPipeline(cmd, consolidate.Request{
		Command: "drift",
		Drift:   true,
		Tools:   args,
	})
}

func runPipeline(cmd *cobra.Command, req consolidate.Request) error {
	format, err := formatFlag(cmd)
	if err != nil {
		return err
	}

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	orch, err := s.orchestrator(true)
	if err != nil {
		return err
	}
	req.Sources = s.cfg.Sources
	out, runErr := orch.Run(cmd.Context(), req)
	if runErr == nil {
		if err := report.WriteOutcome(cmd.OutOrStdout(), out, format); err != nil {
			return err
		}
	}
	return s.finish(out, runErr)
}
