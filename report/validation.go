// Package report renders validation, generation, drift and coverage results
// for people and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/petal-labs/toolforge/mapping"
)

// Format selects an output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates an output format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown format %q (want text or json)", s)
	}
}

// WriteValidation writes r in the requested format.
func WriteValidation(w io.Writer, r mapping.Report, format Format) error {
	if format == FormatJSON {
		return WriteValidationJSON(w, r)
	}
	return WriteValidationText(w, r)
}

// WriteValidationText writes findings grouped by tool, errors first,
// followed by a summary line.
func WriteValidationText(w io.Writer, r mapping.Report) error {
	ew := &errWriter{w: w}
	current := ""
	for _, f := range r.Findings {
		group := string(f.Severity) + "\x00" + f.Tool
		if group != current {
			current = group
			if f.Method != "" {
				ew.printf("%s -> %s\n", f.Tool, f.Method)
			} else {
				ew.printf("%s\n", f.Tool)
			}
		}
		sev := strings.ToUpper(string(f.Severity))
		if f.Parameter != "" {
			ew.printf("  %s [%s]: %s (at %s)\n", sev, f.Kind, f.Message, f.Parameter)
		} else {
			ew.printf("  %s [%s]: %s\n", sev, f.Kind, f.Message)
		}
	}
	if len(r.Unchecked) > 0 {
		ew.printf("Unchecked: %s\n", strings.Join(r.Unchecked, ", "))
	}

	s := r.Summary
	ew.printf("Checked %d %s, %d with issues\n", s.ToolsChecked, pluralize("tool", s.ToolsChecked), s.ToolsWithIssues)
	switch {
	case s.Errors == 0 && s.Warnings == 0:
		ew.printf("Valid!\n")
	case s.Errors == 0:
		ew.printf("\nValid! (%d %s)\n", s.Warnings, pluralize("warning", s.Warnings))
	default:
		ew.printf("\n%d %s, %d %s\n",
			s.Errors, pluralize("error", s.Errors),
			s.Warnings, pluralize("warning", s.Warnings))
	}
	return ew.err
}

// validationJSON is the machine-readable report: findings as
// (severity, tool, method, parameter, kind, message) tuples.
type validationJSON struct {
	Findings  [][6]string     `json:"findings"`
	Unchecked []string        `json:"unchecked"`
	Summary   mapping.Summary `json:"summary"`
}

func validationView(r mapping.Report) validationJSON {
	view := validationJSON{
		Findings:  make([][6]string, 0, len(r.Findings)),
		Unchecked: r.Unchecked,
		Summary:   r.Summary,
	}
	if view.Unchecked == nil {
		view.Unchecked = []string{}
	}
	for _, f := range r.Findings {
		view.Findings = append(view.Findings, f.Tuple())
	}
	return view
}

// WriteValidationJSON writes the tuple form of r.
func WriteValidationJSON(w io.Writer, r mapping.Report) error {
	return encodeJSON(w, validationView(r))
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// pluralize returns the singular or plural form of a word based on count.
func pluralize(word string, count int) string {
	if count == 1 {
		return word
	}
	return word + "s"
}

// errWriter keeps the first write error so callers can check once.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
