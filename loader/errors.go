package loader

import (
	"fmt"
	"strings"

	"github.com/petal-labs/toolforge/inventory"
)

// ErrorKind classifies a LoadError.
type ErrorKind string

const (
	// ErrUnreadable: the source could not be read.
	ErrUnreadable ErrorKind = "unreadable"
	// ErrMalformed: the source does not parse or has an unexpected shape.
	ErrMalformed ErrorKind = "malformed"
	// ErrDuplicate: two definitions of one kind share a name in one source.
	ErrDuplicate ErrorKind = "duplicate"
	// ErrInvalid: a definition breaks a load-time invariant.
	ErrInvalid ErrorKind = "invalid"
)

// LoadError is a structural configuration error. It aborts the load.
type LoadError struct {
	Source         string
	Kind           ErrorKind
	DefinitionKind inventory.Kind
	Name           string
	Err            error
}

func (e *LoadError) Error() string {
	var b strings.Builder
	b.WriteString("loader: ")
	if e.Source != "" {
		b.WriteString(e.Source)
		b.WriteString(": ")
	}
	if e.Name != "" {
		fmt.Fprintf(&b, "%s %q: ", e.DefinitionKind, e.Name)
	}
	b.WriteString(string(e.Kind))
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *LoadError) Unwrap() error { return e.Err }
