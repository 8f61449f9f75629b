package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/petal-labs/toolforge/inventory"
)

// MethodSection is the methods section of an inventory. It is written as a
// mapping from method name to record, or as a list of records that carry
// their own name.
type MethodSection []inventory.MethodDefinition

// UnmarshalJSON implements json.Unmarshaler.
func (s *MethodSection) UnmarshalJSON(data []byte) error {
	defs, err := decodeSection(data, "method",
		func(m *inventory.MethodDefinition) *string { return &m.Name })
	if err != nil {
		return err
	}
	*s = defs
	return nil
}

// ToolSection is the tools section of an inventory, in the same two shapes
// as MethodSection.
type ToolSection []inventory.ToolDefinition

// UnmarshalJSON implements json.Unmarshaler.
func (s *ToolSection) UnmarshalJSON(data []byte) error {
	defs, err := decodeSection(data, "tool",
		func(t *inventory.ToolDefinition) *string { return &t.Name })
	if err != nil {
		return err
	}
	*s = defs
	return nil
}

// decodeSection decodes either shape. Mapping entries come back sorted by
// name; a record inside a mapping may repeat its key as name but not
// contradict it.
func decodeSection[T any](data []byte, kind string, name func(*T) *string) ([]T, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, err
		}
		out := make([]T, 0, len(raws))
		for i, raw := range raws {
			var def T
			if err := strictDecode(raw, &def); err != nil {
				return nil, fmt.Errorf("%s #%d: %w", kind, i+1, err)
			}
			out = append(out, def)
		}
		return out, nil
	}

	var byName map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &byName); err != nil {
		return nil, fmt.Errorf("%ss must be a mapping from name to definition or a list: %w", kind, err)
	}
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	slices.Sort(names)

	out := make([]T, 0, len(names))
	for _, n := range names {
		var def T
		if raw := bytes.TrimSpace(byName[n]); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
			if err := strictDecode(raw, &def); err != nil {
				return nil, fmt.Errorf("%s %q: %w", kind, n, err)
			}
		}
		p := name(&def)
		if *p != "" && *p != n {
			return nil, fmt.Errorf("%s %q: name %q does not match its key", kind, n, *p)
		}
		*p = n
		out = append(out, def)
	}
	return out, nil
}

func strictDecode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// duplicateKeyError marks a parse failure caused by a repeated mapping key,
// which in the mapping shape is a definition declared twice.
type duplicateKeyError struct {
	err error
}

func (e *duplicateKeyError) Error() string { return e.err.Error() }
func (e *duplicateKeyError) Unwrap() error { return e.err }

// classifyParseError wraps repeated-key failures from yaml.v3 and go-toml
// in duplicateKeyError.
func classifyParseError(err error) error {
	var te *yaml.TypeError
	if errors.As(err, &te) {
		for _, msg := range te.Errors {
			if strings.Contains(msg, "already defined") {
				return &duplicateKeyError{err: err}
			}
		}
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "is already defined"),
		strings.Contains(msg, "cannot redefine table"),
		strings.HasPrefix(msg, "toml: table ") && strings.HasSuffix(msg, "already exists"):
		return &duplicateKeyError{err: err}
	}
	return err
}
