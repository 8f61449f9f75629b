package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolforge/consolidate"
	"github.com/petal-labs/toolforge/inventory"
)

// NewWatchCmd creates the "watch" subcommand.
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-validate the inventories on a cron schedule",
		Long: "Reload and validate the inventories immediately and then on every tick of a five-field\n" +
			"UTC cron schedule until interrupted. A reload that fails keeps the last good catalog.",
		Args: cobra.NoArgs,
		RunE: runWatch,
	}

	cmd.Flags().String("schedule", "", "Cron schedule (default from config, \"*/5 * * * *\")")
	cmd.Flags().Bool("once", false, "Run a single pass and exit with its status")

	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	once, _ := cmd.Flags().GetBool("once")

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	schedule := s.cfg.Watch.Schedule
	if v, _ := cmd.Flags().GetString("schedule"); v != "" {
		schedule = v
	}

	orch, err := s.orchestrator(false)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	watcher, err := consolidate.NewWatcher(consolidate.WatcherConfig{
		Orchestrator: orch,
		Holder:       inventory.NewHolder(nil),
		Sources:      s.cfg.Sources,
		Schedule:     schedule,
		Logger:       s.logger,
		OnCheck:      func(c consolidate.Check) { printCheck(out, c) },
	})
	if err != nil {
		return exitError(exitInputParse, "%v", err)
	}

	if once {
		c := watcher.RunOnce(cmd.Context())
		if c.Err != nil {
			return exitError(consolidate.ExitCodeFor(c.Err), "check failed: %v", c.Err)
		}
		if c.Report != nil && c.Report.HasErrors() && orch.Mode() == consolidate.ModeStrict {
			return exitError(exitValidation, "validation failed")
		}
		return nil
	}

	// Signal handling
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := watcher.Start(ctx); err != nil {
		return exitError(exitRuntime, "starting watcher: %v", err)
	}
	fmt.Fprintf(out, "Watching %d %s on %q (next check %s)\n",
		len(s.cfg.Sources), pluralize("source", len(s.cfg.Sources)), schedule,
		watcher.Next(time.Now()).Format(time.RFC3339))

	<-ctx.Done()
	fmt.Fprintln(out, "Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := watcher.Stop(shutdownCtx); err != nil {
		return exitError(exitRuntime, "shutdown error: %v", err)
	}
	return nil
}

func printCheck(w io.Writer, c consolidate.Check) {
	at := c.At.Format(time.RFC3339)
	switch {
	case c.Err != nil:
		fmt.Fprintf(w, "%s  reload failed, keeping previous catalog: %v\n", at, c.Err)
	case c.Report == nil:
		fmt.Fprintf(w, "%s  reloaded (validation disabled)\n", at)
	default:
		sum := c.Report.Summary
		fmt.Fprintf(w, "%s  %d %s checked: %d %s, %d %s\n", at,
			sum.ToolsChecked, pluralize("tool", sum.ToolsChecked),
			sum.Errors, pluralize("error", sum.Errors),
			sum.Warnings, pluralize("warning", sum.Warnings))
	}
}
