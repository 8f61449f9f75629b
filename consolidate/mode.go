package consolidate

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/petal-labs/toolforge/loader"
)

// Mode is the strictness of a consolidation run.
type Mode string

const (
	// ModeStrict fails the run on validation errors and blocks generation.
	ModeStrict Mode = "strict"
	// ModeWarn reports findings but never fails because of them.
	ModeWarn Mode = "warn"
	// ModeDisabled skips validation.
	ModeDisabled Mode = "disabled"
)

// ParseMode accepts strict, warn and disabled, plus the aliases
// fail-build, warn-only and off.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict", "fail-build":
		return ModeStrict, nil
	case "warn", "warn-only", "warning":
		return ModeWarn, nil
	case "disabled", "off", "none":
		return ModeDisabled, nil
	}
	return "", fmt.Errorf("consolidate: unknown mode %q (want strict, warn or disabled)", s)
}

// Process exit codes.
const (
	ExitOK             = 0
	ExitValidation     = 1
	ExitRuntime        = 2
	ExitFileNotFound   = 3
	ExitStructuralLoad = 4
)

// ExitCodeFor maps an error returned by Run to a process exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, fs.ErrNotExist) {
		return ExitFileNotFound
	}
	var le *loader.LoadError
	if errors.As(err, &le) {
		return ExitStructuralLoad
	}
	return ExitRuntime
}
