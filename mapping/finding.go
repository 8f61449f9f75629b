// Package mapping checks that each tool can legally invoke the method it is
// bound to, producing findings rather than errors.
package mapping

import (
	"fmt"
	"slices"
)

// Severity of a finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// FindingKind classifies a finding.
type FindingKind string

const (
	KindMissingRequired    FindingKind = "missing-required"
	KindTypeMismatch       FindingKind = "type-mismatch"
	KindConstraintMismatch FindingKind = "constraint-mismatch"
	KindUnresolvedMethod   FindingKind = "unresolved-method"
	KindOrphanParameter    FindingKind = "orphan-parameter"
	// KindUnchecked marks a tool that could not be compared against a
	// method signature. It is only reported on request.
	KindUnchecked FindingKind = "unchecked"
)

// Kinds lists every finding kind in report order.
var Kinds = []FindingKind{
	KindUnresolvedMethod,
	KindMissingRequired,
	KindTypeMismatch,
	KindConstraintMismatch,
	KindOrphanParameter,
	KindUnchecked,
}

// Finding is one reported incompatibility.
type Finding struct {
	Severity  Severity    `json:"severity"`
	Tool      string      `json:"tool"`
	Method    string      `json:"method,omitempty"`
	Parameter string      `json:"parameter,omitempty"`
	Kind      FindingKind `json:"kind"`
	Message   string      `json:"message"`
}

// Tuple returns the finding as (severity, tool, method, parameter, kind, message).
func (f Finding) Tuple() [6]string {
	return [6]string{string(f.Severity), f.Tool, f.Method, f.Parameter, string(f.Kind), f.Message}
}

// Policy maps each finding kind to the severity the project assigns it.
type Policy map[FindingKind]Severity

// DefaultPolicy returns the stock severities.
func DefaultPolicy() Policy {
	return Policy{
		KindMissingRequired:    SeverityError,
		KindTypeMismatch:       SeverityError,
		KindUnresolvedMethod:   SeverityError,
		KindConstraintMismatch: SeverityWarning,
		KindOrphanParameter:    SeverityWarning,
		KindUnchecked:          SeverityWarning,
	}
}

// ParsePolicy overlays the named severities on DefaultPolicy.
func ParsePolicy(overrides map[string]string) (Policy, error) {
	p := DefaultPolicy()
	for kind, sev := range overrides {
		k := FindingKind(kind)
		if !slices.Contains(Kinds, k) {
			return nil, fmt.Errorf("mapping: unknown finding kind %q", kind)
		}
		switch s := Severity(sev); s {
		case SeverityError, SeverityWarning:
			p[k] = s
		default:
			return nil, fmt.Errorf("mapping: finding kind %q: unknown severity %q", kind, sev)
		}
	}
	return p, nil
}

// Severity returns the severity for kind, falling back to the default.
func (p Policy) Severity(kind FindingKind) Severity {
	if s, ok := p[kind]; ok {
		return s
	}
	return DefaultPolicy()[kind]
}
