package cli

import (
	"fmt"

	"github.com/petal-labs/toolforge/consolidate"
)

// Exit codes shared with the orchestrator.
const (
	exitSuccess      = consolidate.ExitOK
	exitValidation   = consolidate.ExitValidation
	exitRuntime      = consolidate.ExitRuntime
	exitFileNotFound = consolidate.ExitFileNotFound
	exitInputParse   = consolidate.ExitStructuralLoad
)

// ExitError is an error that carries a specific process exit code.
// Cobra's RunE returns this to signal the desired exit code to main.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// exitError creates a new ExitError with the given code and formatted message.
func exitError(code int, format string, args ...any) *ExitError {
	return &ExitError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// outcomeError maps a run outcome onto the command result.
func outcomeError(out consolidate.Outcome, runErr error) error {
	if runErr != nil {
		return exitError(out.ExitCode, "%s failed: %v", out.Command, runErr)
	}
	switch {
	case out.ExitCode == exitSuccess:
		return nil
	case out.Blocked:
		return exitError(out.ExitCode, "generation blocked: %d validation %s", out.Report.Summary.Errors, pluralize("error", out.Report.Summary.Errors))
	case out.Generation != nil && len(out.Generation.Failures) > 0:
		return exitError(out.ExitCode, "generation failed for %d %s", len(out.Generation.Failures), pluralize("tool", len(out.Generation.Failures)))
	case len(out.Drifted()) > 0 && (out.Report == nil || !out.Report.HasErrors()):
		return exitError(out.ExitCode, "%d generated %s drifted", len(out.Drifted()), pluralize("file", len(out.Drifted())))
	default:
		return exitError(out.ExitCode, "validation failed")
	}
}

// pluralize returns the singular or plural form of a word based on count.
func pluralize(word string, count int) string {
	if count == 1 {
		return word
	}
	return word + "s"
}
