package mapping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/petal-labs/toolforge/constraint"
	"github.com/petal-labs/toolforge/inventory"
)

// DefaultReserved are the tool-execution control parameters that never
// reach the underlying method.
var DefaultReserved = []string{"dry_run", "timeout", "execution_mode"}

// Options configure a Validator.
type Options struct {
	// Reserved parameter names excluded from comparison. Nil selects
	// DefaultReserved; an empty non-nil slice reserves nothing.
	Reserved []string
	// IncludeUnchecked reports tools without a comparable method binding.
	IncludeUnchecked bool
	// Severity overrides DefaultPolicy.
	Severity Policy
	Logger   *slog.Logger
}

// Validator reconciles tool parameters against the methods they invoke.
type Validator struct {
	reserved         map[string]struct{}
	includeUnchecked bool
	policy           Policy
	logger           *slog.Logger
}

// NewValidator returns a validator for opts.
func NewValidator(opts Options) *Validator {
	names := opts.Reserved
	if names == nil {
		names = DefaultReserved
	}
	reserved := make(map[string]struct{}, len(names))
	for _, n := range names {
		reserved[n] = struct{}{}
	}
	policy := opts.Severity
	if policy == nil {
		policy = DefaultPolicy()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		reserved:         reserved,
		includeUnchecked: opts.IncludeUnchecked,
		policy:           policy,
		logger:           logger,
	}
}

// IsReserved reports whether name is a control parameter.
func (v *Validator) IsReserved(name string) bool {
	_, ok := v.reserved[name]
	return ok
}

// Validate checks every tool in the catalog. It returns an error only for
// structural problems; incompatibilities are findings in the report.
func (v *Validator) Validate(ctx context.Context, cat *inventory.Catalog) (Report, error) {
	if cat == nil || cat.Methods == nil || cat.Tools == nil {
		return Report{}, fmt.Errorf("mapping: catalog is not loaded")
	}

	report := Report{Findings: make([]Finding, 0)}
	for _, tool := range cat.Tools.All() {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		findings, checked, err := v.validateTool(tool, cat.Methods)
		if err != nil {
			return Report{}, err
		}
		if checked {
			report.Summary.ToolsChecked++
		} else if v.includeUnchecked {
			report.Unchecked = append(report.Unchecked, tool.Name)
		}
		report.Findings = append(report.Findings, findings...)
	}
	report.order()

	v.logger.Debug("validation complete",
		"tools_checked", report.Summary.ToolsChecked,
		"errors", report.Summary.Errors,
		"warnings", report.Summary.Warnings,
	)
	return report, nil
}

// ValidateTool checks a single tool against the methods registry.
func (v *Validator) ValidateTool(tool inventory.ToolDefinition, methods *inventory.MethodRegistry) ([]Finding, error) {
	findings, _, err := v.validateTool(tool, methods)
	return findings, err
}

func (v *Validator) validateTool(tool inventory.ToolDefinition, methods *inventory.MethodRegistry) ([]Finding, bool, error) {
	if !tool.Bound() {
		return v.unchecked(tool, "", "tool has no method binding"), false, nil
	}

	method, err := methods.Get(tool.Method)
	if err != nil {
		var nf *inventory.NotFoundError
		if !errors.As(err, &nf) {
			return nil, false, fmt.Errorf("mapping: tool %q: %w", tool.Name, err)
		}
		return []Finding{v.finding(tool, "", KindUnresolvedMethod,
			fmt.Sprintf("method %q is not registered", tool.Method))}, true, nil
	}
	if method.Opaque {
		return v.unchecked(tool, method.Name, "bound method signature is opaque"), false, nil
	}

	methodParams, err := constraint.ExtractMethod(method)
	if err != nil {
		return nil, false, fmt.Errorf("mapping: %w", err)
	}
	toolParams, err := constraint.ExtractTool(tool)
	if err != nil {
		return nil, false, fmt.Errorf("mapping: %w", err)
	}

	declared := make(map[string]constraint.Param, len(toolParams))
	for _, p := range toolParams {
		if v.IsReserved(p.Name) {
			continue
		}
		declared[p.Name] = p
	}

	findings := make([]Finding, 0)
	for _, mp := range methodParams {
		if !mp.Required {
			continue
		}
		if _, ok := declared[mp.Name]; !ok {
			f := v.finding(tool, method.Name, KindMissingRequired,
				fmt.Sprintf("parameter %q is required by method %q but not declared by the tool", mp.Name, method.Name))
			f.Parameter = mp.Name
			findings = append(findings, f)
		}
	}

	byName := make(map[string]constraint.Param, len(methodParams))
	for _, mp := range methodParams {
		byName[mp.Name] = mp
	}
	for _, tp := range toolParams {
		if v.IsReserved(tp.Name) {
			continue
		}
		mp, ok := byName[tp.Name]
		if !ok {
			f := v.finding(tool, method.Name, KindOrphanParameter,
				fmt.Sprintf("parameter %q has no counterpart on method %q", tp.Name, method.Name))
			f.Parameter = tp.Name
			findings = append(findings, f)
			continue
		}
		for _, is := range compare(tp.Name, tp.Descriptor, mp.Descriptor) {
			f := v.finding(tool, method.Name, is.kind, is.message)
			f.Parameter = is.path
			findings = append(findings, f)
		}
	}
	return findings, true, nil
}

func (v *Validator) unchecked(tool inventory.ToolDefinition, method, reason string) []Finding {
	if !v.includeUnchecked {
		return nil
	}
	return []Finding{v.finding(tool, method, KindUnchecked, reason)}
}

func (v *Validator) finding(tool inventory.ToolDefinition, method string, kind FindingKind, msg string) Finding {
	return Finding{
		Severity: v.policy.Severity(kind),
		Tool:     tool.Name,
		Method:   method,
		Kind:     kind,
		Message:  msg,
	}
}
