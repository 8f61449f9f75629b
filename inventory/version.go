package inventory

import (
	"fmt"
	"regexp"
	"strings"
)

var semverPattern = regexp.MustCompile(
	`^(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)` +
		`(?:-((?:0|[1-9][0-9]*|[0-9A-Za-z-]*[A-Za-z-][0-9A-Za-z-]*)` +
		`(?:\.(?:0|[1-9][0-9]*|[0-9A-Za-z-]*[A-Za-z-][0-9A-Za-z-]*))*))?` +
		`(?:\+([0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?$`,
)

// ValidateVersion ensures a method version is a SemVer 2.0.0 string.
func ValidateVersion(version string) error {
	v := strings.TrimSpace(version)
	if v == "" {
		return fmt.Errorf("version is required")
	}
	if !semverPattern.MatchString(v) {
		return fmt.Errorf("version %q must be a valid semantic version (MAJOR.MINOR.PATCH)", version)
	}
	return nil
}
