package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/petal-labs/toolforge/codegen"
	"github.com/petal-labs/toolforge/consolidate"
	"github.com/petal-labs/toolforge/ledger"
)

// WriteGenerationText lists each generated tool with its warnings, then the
// failures and a summary.
func WriteGenerationText(w io.Writer, b codegen.BatchResult) error {
	ew := &errWriter{w: w}
	for _, r := range b.Results {
		if !r.Success {
			continue
		}
		verb := "wrote"
		if r.DryRun {
			verb = "would write"
		}
		ew.printf("%s %s (%d %s)\n", verb, r.OutputPath, len(r.Artifacts), pluralize("file", len(r.Artifacts)))
		if r.BackupPath != "" {
			ew.printf("  backup: %s\n", r.BackupPath)
		}
		for _, warn := range r.Warnings {
			ew.printf("  WARNING: %s\n", warn)
		}
	}
	for _, f := range b.Failures {
		ew.printf("FAILED %s: %v\n", f.Tool, f.Err)
	}
	for _, name := range b.Skipped {
		ew.printf("skipped %s (disabled)\n", name)
	}

	ok := b.Succeeded()
	ew.printf("\nGenerated %d %s, %d failed, %d skipped\n", ok, pluralize("tool", ok), len(b.Failures), len(b.Skipped))
	return ew.err
}

// WriteDriftText lists artifacts that differ from what would be generated.
func WriteDriftText(w io.Writer, entries []codegen.DriftEntry) error {
	ew := &errWriter{w: w}
	drifted := 0
	for _, e := range entries {
		if !e.Drifted() {
			continue
		}
		drifted++
		switch {
		case e.Error != "":
			ew.printf("%s %s: %s\n", strings.ToUpper(string(e.Status)), e.Tool, e.Error)
		default:
			ew.printf("%s %s (%s %s)\n", strings.ToUpper(string(e.Status)), e.Path, e.Tool, e.Artifact)
		}
	}
	if drifted == 0 {
		ew.printf("All %d generated %s in sync.\n", len(entries), pluralize("file", len(entries)))
		return ew.err
	}
	ew.printf("\n%d of %d generated %s drifted; run generate to update\n", drifted, len(entries), pluralize("file", len(entries)))
	return ew.err
}

// WriteCoverageText writes the coverage summary and the lists behind it.
func WriteCoverageText(w io.Writer, c consolidate.Coverage) error {
	ew := &errWriter{w: w}
	ew.printf("%s\n", c)
	section := func(title string, names []string) {
		if len(names) == 0 {
			return
		}
		ew.printf("\n%s:\n", title)
		for _, n := range names {
			ew.printf("  %s\n", n)
		}
	}
	section("Methods without tools", c.Uncovered)
	section("Tools bound to unknown methods", c.Dangling)
	section("Inline tools", c.Unbound)
	section("Disabled tools", c.Disabled)
	return ew.err
}

// WriteOutcome writes every section a run produced.
func WriteOutcome(w io.Writer, out consolidate.Outcome, format Format) error {
	if format == FormatJSON {
		return WriteOutcomeJSON(w, out)
	}
	if out.Report != nil {
		if err := WriteValidationText(w, *out.Report); err != nil {
			return err
		}
	}
	if out.Blocked {
		if _, err := fmt.Fprintln(w, "\nGeneration blocked by validation errors (strict mode)"); err != nil {
			return err
		}
	}
	if out.Generation != nil {
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
		if err := WriteGenerationText(w, *out.Generation); err != nil {
			return err
		}
	}
	if out.Drift != nil {
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
		if err := WriteDriftText(w, out.Drift); err != nil {
			return err
		}
	}
	return nil
}

type failureJSON struct {
	Tool  string `json:"tool"`
	Error string `json:"error"`
}

type outcomeJSON struct {
	RunID      string               `json:"run_id"`
	Command    string               `json:"command"`
	Mode       consolidate.Mode     `json:"mode"`
	ExitCode   int                  `json:"exit_code"`
	Blocked    bool                 `json:"blocked"`
	Validation *validationJSON      `json:"validation,omitempty"`
	Coverage   consolidate.Coverage `json:"coverage"`
	Generation *codegen.BatchResult `json:"generation,omitempty"`
	Failures   []failureJSON        `json:"failures,omitempty"`
	Drift      []codegen.DriftEntry `json:"drift,omitempty"`
	DurationMS int64                `json:"duration_ms"`
}

// WriteOutcomeJSON writes a run as one JSON document.
func WriteOutcomeJSON(w io.Writer, out consolidate.Outcome) error {
	view := outcomeJSON{
		RunID:      out.RunID,
		Command:    out.Command,
		Mode:       out.Mode,
		ExitCode:   out.ExitCode,
		Blocked:    out.Blocked,
		Coverage:   out.Coverage,
		Generation: out.Generation,
		Drift:      out.Drift,
		DurationMS: out.FinishedAt.Sub(out.StartedAt).Milliseconds(),
	}
	if out.Report != nil {
		v := validationView(*out.Report)
		view.Validation = &v
	}
	if out.Generation != nil {
		for _, f := range out.Generation.Failures {
			view.Failures = append(view.Failures, failureJSON{Tool: f.Tool, Error: f.Err.Error()})
		}
	}
	return encodeJSON(w, view)
}

// WriteRunsText writes ledger runs as a table, newest first.
func WriteRunsText(w io.Writer, runs []ledger.Run) error {
	writer := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tSTARTED\tCOMMAND\tMODE\tEXIT\tERRORS\tWARNINGS\tGENERATED\tFAILED\tDURATION")
	for _, r := range runs {
		command := r.Command
		if r.DryRun {
			command += " (dry-run)"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			shortID(r.ID),
			r.StartedAt.Local().Format(time.DateTime),
			command,
			r.Mode,
			r.ExitCode,
			r.Errors,
			r.Warnings,
			r.Generated,
			r.Failed,
			r.Duration().Round(time.Millisecond),
		)
	}
	return writer.Flush()
}

// WriteRunText writes one ledger run with its artifacts.
func WriteRunText(w io.Writer, r ledger.Run) error {
	ew := &errWriter{w: w}
	ew.printf("Run %s\n", r.ID)
	ew.printf("  command:  %s\n", r.Command)
	ew.printf("  mode:     %s\n", r.Mode)
	ew.printf("  started:  %s\n", r.StartedAt.Format(time.RFC3339))
	ew.printf("  duration: %s\n", r.Duration().Round(time.Millisecond))
	ew.printf("  exit:     %d\n", r.ExitCode)
	ew.printf("  findings: %d %s, %d %s\n", r.Errors, pluralize("error", r.Errors), r.Warnings, pluralize("warning", r.Warnings))
	if len(r.Sources) > 0 {
		ew.printf("  sources:  %s\n", strings.Join(r.Sources, ", "))
	}
	if ew.err != nil || len(r.Artifacts) == 0 {
		return ew.err
	}
	ew.printf("\n")
	writer := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "TOOL\tKIND\tSTATUS\tPATH\tSHA256")
	for _, a := range r.Artifacts {
		sum := a.SHA256
		if len(sum) > 12 {
			sum = sum[:12]
		}
		if sum == "" {
			sum = "-"
		}
		path := a.Path
		if a.Error != "" {
			path = a.Error
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n", a.Tool, a.Kind, a.Status, path, sum)
	}
	return writer.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
