package mapping

import (
	"cmp"
	"slices"
)

// Summary holds the report counters.
type Summary struct {
	ToolsChecked    int `json:"tools_checked"`
	ToolsWithIssues int `json:"tools_with_issues"`
	Errors          int `json:"errors"`
	Warnings        int `json:"warnings"`
	Unchecked       int `json:"unchecked"`
}

// Report is the ordered result of one validation pass: errors first grouped
// by tool, then warnings grouped by tool.
type Report struct {
	Findings  []Finding `json:"findings"`
	Unchecked []string  `json:"unchecked,omitempty"`
	Summary   Summary   `json:"summary"`
}

// HasErrors returns true when at least one error-severity finding exists.
func (r Report) HasErrors() bool {
	return r.Summary.Errors > 0
}

// Errors returns the error findings.
func (r Report) Errors() []Finding { return r.bySeverity(SeverityError) }

// Warnings returns the warning findings.
func (r Report) Warnings() []Finding { return r.bySeverity(SeverityWarning) }

func (r Report) bySeverity(sev Severity) []Finding {
	out := make([]Finding, 0)
	for _, f := range r.Findings {
		if f.Severity == sev {
			out = append(out, f)
		}
	}
	return out
}

// Filter returns a copy holding only errors when errorsOnly is set. The
// summary is left untouched so totals still describe the full pass.
func (r Report) Filter(errorsOnly bool) Report {
	out := Report{
		Findings:  slices.Clone(r.Findings),
		Unchecked: slices.Clone(r.Unchecked),
		Summary:   r.Summary,
	}
	if errorsOnly {
		out.Findings = r.Errors()
	}
	return out
}

// ForTool returns the findings about one tool in report order.
func (r Report) ForTool(name string) []Finding {
	out := make([]Finding, 0)
	for _, f := range r.Findings {
		if f.Tool == name {
			out = append(out, f)
		}
	}
	return out
}

// Count returns the number of findings of the given kind.
func (r Report) Count(kind FindingKind) int {
	n := 0
	for _, f := range r.Findings {
		if f.Kind == kind {
			n++
		}
	}
	return n
}

func severityRank(s Severity) int {
	if s == SeverityError {
		return 0
	}
	return 1
}

// order sorts findings in place and fills the summary counts. Findings of
// one tool and severity keep the order they were produced in.
func (r *Report) order() {
	slices.SortStableFunc(r.Findings, func(a, b Finding) int {
		return cmp.Or(
			cmp.Compare(severityRank(a.Severity), severityRank(b.Severity)),
			cmp.Compare(a.Tool, b.Tool),
		)
	})

	tools := make(map[string]struct{})
	r.Summary.Errors, r.Summary.Warnings = 0, 0
	for _, f := range r.Findings {
		tools[f.Tool] = struct{}{}
		if f.Severity == SeverityError {
			r.Summary.Errors++
		} else {
			r.Summary.Warnings++
		}
	}
	r.Summary.ToolsWithIssues = len(tools)
	slices.Sort(r.Unchecked)
	r.Summary.Unchecked = len(r.Unchecked)
}
