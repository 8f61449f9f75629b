package codegen

import (
	"fmt"
	"strings"
)

// FieldIssue names one offending configuration field.
type FieldIssue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ConfigValidationError is returned when a tool definition cannot be turned
// into valid source: identifier collisions or dangling audit-event names.
type ConfigValidationError struct {
	Tool   string
	Fields []FieldIssue
}

func (e *ConfigValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	return fmt.Sprintf("codegen: tool %q: invalid configuration: %s", e.Tool, strings.Join(parts, "; "))
}

// FieldNames returns the offending field paths.
func (e *ConfigValidationError) FieldNames() []string {
	out := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		out = append(out, f.Field)
	}
	return out
}

// RenderError wraps a template execution failure.
type RenderError struct {
	Tool     string
	Artifact Artifact
	Err      error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("codegen: tool %q: rendering %s: %v", e.Tool, e.Artifact, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// GeneratedSyntaxError means a template produced source the Go parser
// rejects. It is a generator defect; Source holds the rendered text.
type GeneratedSyntaxError struct {
	Tool     string
	Artifact Artifact
	Source   string
	Err      error
}

func (e *GeneratedSyntaxError) Error() string {
	return fmt.Sprintf("codegen: tool %q: generated %s does not parse: %v", e.Tool, e.Artifact, e.Err)
}

func (e *GeneratedSyntaxError) Unwrap() error { return e.Err }

// WriteError reports a failed write. The target files were restored to
// their state before the call.
type WriteError struct {
	Tool string
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("codegen: tool %q: writing %s: %v", e.Tool, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
