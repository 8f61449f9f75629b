package mapping

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/petal-labs/toolforge/constraint"
)

// issue is a finding before tool, method and severity are attached.
type issue struct {
	kind    FindingKind
	path    string
	message string
}

func mismatch(path, format string, args ...any) issue {
	return issue{kind: KindConstraintMismatch, path: path, message: fmt.Sprintf(format, args...)}
}

// joined folds every problem found in one bound category into a single
// constraint mismatch.
func joined(path string, problems []string) []issue {
	if len(problems) == 0 {
		return nil
	}
	return []issue{mismatch(path, "%s", strings.Join(problems, "; "))}
}

func typeMismatch(path string, tool, method constraint.Descriptor) issue {
	return issue{
		kind:    KindTypeMismatch,
		path:    path,
		message: fmt.Sprintf("tool declares %s, method expects %s", tool.TypeLabel(), method.TypeLabel()),
	}
}

func hasTypeMismatch(issues []issue) bool {
	return slices.ContainsFunc(issues, func(i issue) bool { return i.kind == KindTypeMismatch })
}

// Compatible reports whether a tool descriptor may feed a method descriptor
// without any finding.
func Compatible(tool, method constraint.Descriptor) bool {
	return len(compare("", tool, method)) == 0
}

// compare checks that every value the tool accepts is acceptable to the
// method. Tool bounds may be narrower; wider or absent bounds are
// constraint mismatches.
func compare(path string, t, m constraint.Descriptor) []issue {
	if m.Kind == constraint.KindAny {
		return nil
	}
	if t.Kind == constraint.KindUnion {
		return compareToolUnion(path, t, m)
	}
	if m.Kind == constraint.KindUnion {
		return compareMethodUnion(path, t, m)
	}
	if t.Kind == constraint.KindAny {
		return []issue{mismatch(path, "tool accepts any value, method expects %s", m.TypeLabel())}
	}

	var out []issue
	switch {
	case t.Kind == constraint.KindEnum && m.Kind == constraint.KindEnum:
		out = compareEnums(path, t, m)
	case t.Kind == constraint.KindEnum:
		if !kindsCompatible(t.EnumKind(), m.Kind) {
			return []issue{typeMismatch(path, t, m)}
		}
		out = compareLiterals(path, t.Enum, m)
	case m.Kind == constraint.KindEnum:
		if !kindsCompatible(t.Kind, m.EnumKind()) {
			return []issue{typeMismatch(path, t, m)}
		}
		out = []issue{mismatch(path, "method restricts values to %v, tool does not", m.Enum)}
	default:
		if !kindsCompatible(t.Kind, m.Kind) {
			return []issue{typeMismatch(path, t, m)}
		}
		out = compareBounds(path, t, m)
	}

	if t.Nullable && !m.Nullable {
		out = append([]issue{mismatch(path, "tool accepts null, method does not")}, out...)
	}
	return out
}

// kindsCompatible applies the alias table: integer and number are
// interchangeable; every other kind matches only itself.
func kindsCompatible(tool, method constraint.Kind) bool {
	if tool == method {
		return true
	}
	numeric := func(k constraint.Kind) bool { return k == constraint.KindInteger || k == constraint.KindNumber }
	return numeric(tool) && numeric(method)
}

// compareMethodUnion accepts the tool if it matches any alternative. When
// none match cleanly, the closest alternative's constraint issues are
// reported; a type mismatch against every alternative is a type mismatch.
func compareMethodUnion(path string, t, m constraint.Descriptor) []issue {
	var best []issue
	for _, alt := range m.Alternatives {
		alt.Nullable = alt.Nullable || m.Nullable
		issues := compare(path, t, alt)
		if len(issues) == 0 {
			return nil
		}
		if !hasTypeMismatch(issues) && best == nil {
			best = issues
		}
	}
	if best != nil {
		return best
	}
	return []issue{typeMismatch(path, t, m)}
}

func compareToolUnion(path string, t, m constraint.Descriptor) []issue {
	var (
		out        []issue
		rejected   []string
		compatible int
	)
	for _, alt := range t.Alternatives {
		alt.Nullable = alt.Nullable || t.Nullable
		issues := compare(path, alt, m)
		if hasTypeMismatch(issues) {
			rejected = append(rejected, alt.TypeLabel())
			continue
		}
		compatible++
		out = append(out, issues...)
	}
	if compatible == 0 {
		return []issue{typeMismatch(path, t, m)}
	}
	if len(rejected) > 0 {
		out = append(out, mismatch(path, "tool alternatives %s are not accepted by method type %s",
			strings.Join(rejected, ", "), m.TypeLabel()))
	}
	return dedupe(out)
}

func dedupe(in []issue) []issue {
	out := make([]issue, 0, len(in))
	for _, i := range in {
		if !slices.Contains(out, i) {
			out = append(out, i)
		}
	}
	return out
}

func compareEnums(path string, t, m constraint.Descriptor) []issue {
	var extra []any
	for _, v := range t.Enum {
		if !containsLiteral(m.Enum, v) {
			extra = append(extra, v)
		}
	}
	if len(extra) == 0 {
		return nil
	}
	return []issue{mismatch(path, "tool allows %v outside method values %v", extra, m.Enum)}
}

func containsLiteral(set []any, v any) bool {
	for _, s := range set {
		if literalEqual(s, v) {
			return true
		}
	}
	return false
}

func literalEqual(a, b any) bool {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		return af == bf
	}
	return a == b
}

// compareLiterals checks each tool enum value against the method bounds.
func compareLiterals(path string, values []any, m constraint.Descriptor) []issue {
	var bad []any
	for _, v := range values {
		if !literalSatisfies(v, m) {
			bad = append(bad, v)
		}
	}
	if len(bad) == 0 {
		return nil
	}
	return []issue{mismatch(path, "tool allows %v, rejected by method bounds", bad)}
}

func literalSatisfies(v any, m constraint.Descriptor) bool {
	switch val := v.(type) {
	case float64:
		if m.Kind == constraint.KindInteger && val != math.Trunc(val) {
			return false
		}
		n := m.Numeric
		if n == nil {
			return true
		}
		if n.Min != nil && (val < n.Min.Value || (n.Min.Exclusive && val == n.Min.Value)) {
			return false
		}
		if n.Max != nil && (val > n.Max.Value || (n.Max.Exclusive && val == n.Max.Value)) {
			return false
		}
		if n.MultipleOf != nil && !isMultiple(val, *n.MultipleOf) {
			return false
		}
		return true
	case string:
		s := m.String
		if s == nil {
			return true
		}
		length := utf8.RuneCountInString(val)
		if s.MinLength != nil && length < *s.MinLength {
			return false
		}
		if s.MaxLength != nil && length > *s.MaxLength {
			return false
		}
		if s.Pattern != "" {
			re, err := regexp.Compile(s.Pattern)
			if err != nil || !re.MatchString(val) {
				return false
			}
		}
		return true
	}
	return true
}

func isMultiple(v, of float64) bool {
	q := v / of
	return math.Abs(q-math.Round(q)) < 1e-9
}

func compareBounds(path string, t, m constraint.Descriptor) []issue {
	switch m.Kind {
	case constraint.KindInteger, constraint.KindNumber:
		integral := m.Kind == constraint.KindInteger && t.Kind == constraint.KindInteger
		return compareNumeric(path, t.Numeric, m.Numeric, integral)
	case constraint.KindString:
		return compareString(path, t.String, m.String)
	case constraint.KindArray:
		return compareArray(path, t.Array, m.Array)
	case constraint.KindObject:
		return compareShape(path, t.Shape, m.Shape)
	}
	return nil
}

func compareNumeric(path string, t, m *constraint.NumericBounds, integral bool) []issue {
	if m == nil {
		return nil
	}
	if t == nil {
		t = &constraint.NumericBounds{}
	}
	var problems []string
	if m.Min != nil {
		switch {
		case t.Min == nil:
			problems = append(problems, fmt.Sprintf("tool has no lower bound, method requires %s", lowerLabel(*m.Min)))
		case !lowerWithin(*t.Min, *m.Min, integral):
			problems = append(problems, fmt.Sprintf("tool lower bound %s is wider than method %s", lowerLabel(*t.Min), lowerLabel(*m.Min)))
		}
	}
	if m.Max != nil {
		switch {
		case t.Max == nil:
			problems = append(problems, fmt.Sprintf("tool has no upper bound, method requires %s", upperLabel(*m.Max)))
		case !upperWithin(*t.Max, *m.Max, integral):
			problems = append(problems, fmt.Sprintf("tool upper bound %s is wider than method %s", upperLabel(*t.Max), upperLabel(*m.Max)))
		}
	}
	if m.MultipleOf != nil {
		switch {
		case t.MultipleOf == nil:
			problems = append(problems, fmt.Sprintf("tool has no multiple_of, method requires multiples of %g", *m.MultipleOf))
		case !isMultiple(*t.MultipleOf, *m.MultipleOf):
			problems = append(problems, fmt.Sprintf("tool multiple_of %g is not a multiple of method %g", *t.MultipleOf, *m.MultipleOf))
		}
	}
	return joined(path, problems)
}

func lowerLabel(b constraint.Bound) string {
	if b.Exclusive {
		return "> " + b.String()
	}
	return ">= " + b.String()
}

func upperLabel(b constraint.Bound) string {
	if b.Exclusive {
		return "< " + b.String()
	}
	return "<= " + b.String()
}

// inclusiveInt rewrites an exclusive bound over the integers as the
// equivalent inclusive one, so that > 0 and >= 1 compare equal.
func inclusiveInt(b constraint.Bound, lower bool) constraint.Bound {
	if !b.Exclusive {
		if lower {
			return constraint.Bound{Value: math.Ceil(b.Value)}
		}
		return constraint.Bound{Value: math.Floor(b.Value)}
	}
	if lower {
		return constraint.Bound{Value: math.Floor(b.Value) + 1}
	}
	return constraint.Bound{Value: math.Ceil(b.Value) - 1}
}

// lowerWithin reports whether tool lower bound t is at least as strict as m.
func lowerWithin(t, m constraint.Bound, integral bool) bool {
	if integral {
		t, m = inclusiveInt(t, true), inclusiveInt(m, true)
	}
	if t.Value != m.Value {
		return t.Value > m.Value
	}
	return t.Exclusive || !m.Exclusive
}

func upperWithin(t, m constraint.Bound, integral bool) bool {
	if integral {
		t, m = inclusiveInt(t, false), inclusiveInt(m, false)
	}
	if t.Value != m.Value {
		return t.Value < m.Value
	}
	return t.Exclusive || !m.Exclusive
}

func compareString(path string, t, m *constraint.StringBounds) []issue {
	if m == nil {
		return nil
	}
	if t == nil {
		t = &constraint.StringBounds{}
	}
	var problems []string
	if m.MinLength != nil && (t.MinLength == nil || *t.MinLength < *m.MinLength) {
		problems = append(problems, fmt.Sprintf("tool min length %s is below method min length %d", intLabel(t.MinLength), *m.MinLength))
	}
	if m.MaxLength != nil && (t.MaxLength == nil || *t.MaxLength > *m.MaxLength) {
		problems = append(problems, fmt.Sprintf("tool max length %s exceeds method max length %d", intLabel(t.MaxLength), *m.MaxLength))
	}
	if m.Pattern != "" && t.Pattern != m.Pattern {
		if t.Pattern == "" {
			problems = append(problems, fmt.Sprintf("tool has no pattern, method requires %q", m.Pattern))
		} else {
			problems = append(problems, fmt.Sprintf("tool pattern %q cannot be shown to be stricter than method pattern %q", t.Pattern, m.Pattern))
		}
	}
	if m.Format != "" && t.Format != m.Format {
		problems = append(problems, fmt.Sprintf("tool format %q differs from method format %q", t.Format, m.Format))
	}
	return joined(path, problems)
}

func intLabel(v *int) string {
	if v == nil {
		return "(none)"
	}
	return fmt.Sprint(*v)
}

func compareArray(path string, t, m *constraint.ArrayBounds) []issue {
	if m == nil {
		return nil
	}
	if t == nil {
		t = &constraint.ArrayBounds{}
	}
	var problems []string
	if m.MinItems != nil && (t.MinItems == nil || *t.MinItems < *m.MinItems) {
		problems = append(problems, fmt.Sprintf("tool min items %s is below method min items %d", intLabel(t.MinItems), *m.MinItems))
	}
	if m.MaxItems != nil && (t.MaxItems == nil || *t.MaxItems > *m.MaxItems) {
		problems = append(problems, fmt.Sprintf("tool max items %s exceeds method max items %d", intLabel(t.MaxItems), *m.MaxItems))
	}
	if m.Unique && !t.Unique {
		problems = append(problems, "method requires unique items, tool does not")
	}
	if m.Items != nil && t.Items == nil {
		problems = append(problems, fmt.Sprintf("tool items are untyped, method expects %s", m.Items.TypeLabel()))
	}
	out := joined(path, problems)
	if m.Items != nil && t.Items != nil {
		out = append(out, compare(path+"[]", *t.Items, *m.Items)...)
	}
	return out
}

// compareShape recurses field by field. A method-required field missing
// from a declared tool shape is reported as missing-required on its dotted
// path; extra tool fields are orphans.
func compareShape(path string, t, m *constraint.Shape) []issue {
	if m == nil {
		return nil
	}
	if t == nil {
		return []issue{mismatch(path, "tool declares no object shape, method declares %d fields", len(m.Fields))}
	}
	var out []issue
	for _, mf := range m.Fields {
		fieldPath := joinPath(path, mf.Name)
		tf, ok := t.Field(mf.Name)
		if !ok {
			if mf.Required {
				out = append(out, issue{
					kind:    KindMissingRequired,
					path:    fieldPath,
					message: fmt.Sprintf("field %q is required by the method but missing from the tool shape", fieldPath),
				})
			}
			continue
		}
		if mf.Required && !tf.Required {
			out = append(out, mismatch(fieldPath, "method requires field %q, tool marks it optional", fieldPath))
		}
		out = append(out, compare(fieldPath, tf.Descriptor, mf.Descriptor)...)
	}
	for _, tf := range t.Fields {
		if _, ok := m.Field(tf.Name); !ok {
			fieldPath := joinPath(path, tf.Name)
			out = append(out, issue{
				kind:    KindOrphanParameter,
				path:    fieldPath,
				message: fmt.Sprintf("field %q has no counterpart in the method shape", fieldPath),
			})
		}
	}
	return out
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
