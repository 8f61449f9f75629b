package cli

import (
	"github.com/spf13/cobra"

	"github.com/petal-labs/toolforge/ledger"
	"github.com/petal-labs/toolforge/report"
)

// NewHistoryCmd creates the "history" subcommand.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded runs from the run ledger",
		Long: "List recent validate, generate and drift runs recorded with --ledger, or show one run\n" +
			"with the artifacts it wrote or checked.",
		Args: cobra.MaximumNArgs(1),
		RunE: runHistory,
	}

	cmd.Flags().IntP("limit", "n", 20, "Number of runs to list")
	cmd.Flags().String("format", "text", "Output format: text | json")

	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	format, err := formatFlag(cmd)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	store := s.store
	if store == nil {
		// Reading history does not need --ledger.
		if store, err = openLedger(s.cfg); err != nil {
			return err
		}
		defer func() {
			_ = store.Close()
		}()
	}

	if len(args) == 1 {
		run, found, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return exitError(exitRuntime, "reading run: %v", err)
		}
		if !found {
			return exitError(exitValidation, "run %q not found", args[0])
		}
		if format == report.FormatJSON {
			return encodeJSON(cmd, run)
		}
		return report.WriteRunText(cmd.OutOrStdout(), run)
	}

	runs, err := store.Runs(cmd.Context(), limit)
	if err != nil {
		return exitError(exitRuntime, "listing runs: %v", err)
	}
	if format == report.FormatJSON {
		// Output an empty array rather than null when nothing was recorded.
		if runs == nil {
			runs = []ledger.Run{}
		}
		return encodeJSON(cmd, runs)
	}
	return report.WriteRunsText(cmd.OutOrStdout(), runs)
}
