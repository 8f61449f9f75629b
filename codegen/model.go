package codegen

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/petal-labs/toolforge/constraint"
	"github.com/petal-labs/toolforge/inventory"
)

// ToolModel is the template data for one tool.
type ToolModel struct {
	Package     string
	Name        string
	GoName      string
	Description string
	Method      string
	Inline      bool
	Params      []ParamModel
	Patterns    []PatternModel
	Imports     []string
	Policy      PolicyModel
	Reserved    []string
	// SampleOK is false when no valid sample could be derived for a
	// required parameter; generated tests then skip.
	SampleOK     bool
	SampleReason string
}

// ParamModel describes one generated struct field.
type ParamModel struct {
	Name     string
	GoName   string
	GoType   string
	Pointer  bool
	Required bool
	Reserved bool
	Type     string
	// NilCheck is set for required reference-typed params.
	NilCheck bool
	Checks   []CheckModel
	Sample   string
}

// CheckModel is one generated validation: when Cond holds, Validate
// returns Message.
type CheckModel struct {
	Cond    string
	Message string
}

// PatternModel is a package-level compiled regular expression.
type PatternModel struct {
	Var     string
	Pattern string
}

// PolicyModel exposes the tool policy as constants.
type PolicyModel struct {
	RequiresSession bool
	SessionScopes   []string
	AuditEvents     []string
	BusinessRules   []string
}

// generatedMembers are the methods generated on every params struct; no
// parameter field may share their names.
var generatedMembers = []string{"Validate", "Args"}

// buildModel derives template data from a tool definition.
func buildModel(tool inventory.ToolDefinition, pkg string, reserved []string) (ToolModel, error) {
	params, err := constraint.ExtractTool(tool)
	if err != nil {
		return ToolModel{}, err
	}

	m := ToolModel{
		Package:     pkg,
		Name:        tool.Name,
		GoName:      GoName(tool.Name),
		Description: firstLine(tool.Description),
		Method:      tool.Method,
		Inline:      !tool.Bound(),
		Reserved:    slices.Clone(reserved),
		Policy: PolicyModel{
			RequiresSession: tool.Policy.RequiresSession,
			SessionScopes:   slices.Clone(tool.Policy.SessionScopes),
			AuditEvents:     slices.Clone(tool.Policy.AuditEvents),
			BusinessRules:   slices.Clone(tool.Policy.BusinessRules),
		},
		SampleOK: true,
	}
	slices.Sort(m.Reserved)

	imports := map[string]struct{}{"context": {}, "fmt": {}}
	for _, p := range params {
		pm := ParamModel{
			Name:     p.Name,
			GoName:   GoName(p.Name),
			Required: p.Required,
			Reserved: slices.Contains(reserved, p.Name),
			Type:     p.Descriptor.TypeLabel(),
		}
		base := goType(p.Descriptor)
		pm.GoType = base
		if isScalarType(base) && (!p.Required || p.Descriptor.Nullable) {
			pm.Pointer = true
			pm.GoType = "*" + base
		}
		pm.NilCheck = p.Required && !p.Descriptor.Nullable && !isScalarType(base)

		value := "p." + pm.GoName
		if pm.Pointer {
			value = "*p." + pm.GoName
		}
		checks, patterns := buildChecks(m.GoName, pm, p.Descriptor, value, imports)
		pm.Checks = checks
		m.Patterns = append(m.Patterns, patterns...)

		if p.Required && !pm.Reserved {
			sample, ok := sampleFor(p.Descriptor)
			if !ok && m.SampleOK {
				m.SampleOK = false
				m.SampleReason = fmt.Sprintf("no sample value satisfies the constraints of %q", p.Name)
			}
			if ok && pm.Pointer {
				sample = fmt.Sprintf("func() %s { v := %s(%s); return &v }()", pm.GoType, base, sample)
			}
			pm.Sample = sample
		}
		m.Params = append(m.Params, pm)
	}
	if len(m.Patterns) > 0 {
		imports["regexp"] = struct{}{}
	}
	for imp := range imports {
		m.Imports = append(m.Imports, imp)
	}
	slices.Sort(m.Imports)
	return m, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}

func isOrderedType(goType string) bool {
	return goType == "string" || goType == "int64" || goType == "float64"
}

func isScalarType(goType string) bool {
	switch goType {
	case "string", "int64", "float64", "bool":
		return true
	}
	return false
}

func goType(d constraint.Descriptor) string {
	switch d.Kind {
	case constraint.KindInteger:
		return "int64"
	case constraint.KindNumber:
		return "float64"
	case constraint.KindString:
		return "string"
	case constraint.KindBoolean:
		return "bool"
	case constraint.KindObject:
		return "map[string]any"
	case constraint.KindArray:
		if d.Array != nil && d.Array.Items != nil {
			return "[]" + goType(*d.Array.Items)
		}
		return "[]any"
	case constraint.KindEnum:
		switch d.EnumKind() {
		case constraint.KindString:
			return "string"
		case constraint.KindInteger:
			return "int64"
		case constraint.KindNumber:
			return "float64"
		case constraint.KindBoolean:
			return "bool"
		}
	}
	return "any"
}

func buildChecks(tool string, pm ParamModel, d constraint.Descriptor, value string, imports map[string]struct{}) ([]CheckModel, []PatternModel) {
	var (
		checks   []CheckModel
		patterns []PatternModel
	)
	add := func(cond, format string, args ...any) {
		// Messages become fmt.Errorf format strings in the generated code.
		msg := strings.ReplaceAll(pm.Name+": "+fmt.Sprintf(format, args...), "%", "%%")
		checks = append(checks, CheckModel{Cond: cond, Message: msg})
	}

	switch {
	case d.Kind == constraint.KindEnum && goType(d) != "any":
		base := goType(d)
		literals := make([]string, 0, len(d.Enum))
		for _, v := range d.Enum {
			literals = append(literals, goLiteral(v))
		}
		imports["slices"] = struct{}{}
		add(fmt.Sprintf("!slices.Contains([]%s{%s}, %s)", base, strings.Join(literals, ", "), value),
			"must be one of %s", strings.Join(literals, ", "))

	case d.Numeric != nil:
		n := d.Numeric
		if n.Min != nil {
			op := "<"
			if n.Min.Exclusive {
				op = "<="
			}
			add(numericCond(value, op, n.Min.Value, d.Kind), "must be %s", lowerText(*n.Min))
		}
		if n.Max != nil {
			op := ">"
			if n.Max.Exclusive {
				op = ">="
			}
			add(numericCond(value, op, n.Max.Value, d.Kind), "must be %s", upperText(*n.Max))
		}
		if n.MultipleOf != nil {
			m := *n.MultipleOf
			if d.Kind == constraint.KindInteger && m == math.Trunc(m) {
				add(fmt.Sprintf("%s%%%d != 0", value, int64(m)), "must be a multiple of %g", m)
			} else {
				imports["math"] = struct{}{}
				add(fmt.Sprintf("math.Abs(math.Remainder(float64(%s), %s)) > 1e-9", value, strconv.FormatFloat(m, 'g', -1, 64)),
					"must be a multiple of %g", m)
			}
		}

	case d.String != nil:
		s := d.String
		if s.MinLength != nil && *s.MinLength > 0 {
			imports["unicode/utf8"] = struct{}{}
			add(fmt.Sprintf("utf8.RuneCountInString(%s) < %d", value, *s.MinLength), "length must be at least %d", *s.MinLength)
		}
		if s.MaxLength != nil {
			imports["unicode/utf8"] = struct{}{}
			add(fmt.Sprintf("utf8.RuneCountInString(%s) > %d", value, *s.MaxLength), "length must be at most %d", *s.MaxLength)
		}
		if s.Pattern != "" {
			v := unexported(tool) + pm.GoName + "Pattern"
			patterns = append(patterns, PatternModel{Var: v, Pattern: s.Pattern})
			add(fmt.Sprintf("!%s.MatchString(%s)", v, value), "must match %s", s.Pattern)
		}
		if s.Format != "" {
			if f, ok := formatChecks[s.Format]; ok {
				imports[f.importPath] = struct{}{}
				add(fmt.Sprintf(f.cond, value), "must be a valid %s", s.Format)
			}
		}

	case d.Array != nil:
		a := d.Array
		if a.MinItems != nil && *a.MinItems > 0 {
			add(fmt.Sprintf("len(%s) < %d", value, *a.MinItems), "must have at least %d items", *a.MinItems)
		}
		if a.MaxItems != nil {
			add(fmt.Sprintf("len(%s) > %d", value, *a.MaxItems), "must have at most %d items", *a.MaxItems)
		}
		if elem := strings.TrimPrefix(pm.GoType, "[]"); a.Unique && isOrderedType(elem) {
			imports["slices"] = struct{}{}
			add(fmt.Sprintf("len(slices.Compact(slices.Sorted(slices.Values(%s)))) != len(%s)", value, value), "items must be unique")
		}
	}
	return checks, patterns
}

type formatCheck struct {
	importPath string
	cond       string
}

// formatChecks render a failing condition for each string format; %s is
// the value expression.
var formatChecks = map[string]formatCheck{
	"email":     {importPath: "net/mail", cond: "func() bool { _, err := mail.ParseAddress(%s); return err != nil }()"},
	"uri":       {importPath: "net/url", cond: "func() bool { _, err := url.ParseRequestURI(%s); return err != nil }()"},
	"uuid":      {importPath: "regexp", cond: "!regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`).MatchString(%s)"},
	"date":      {importPath: "time", cond: "func() bool { _, err := time.Parse(time.DateOnly, %s); return err != nil }()"},
	"date-time": {importPath: "time", cond: "func() bool { _, err := time.Parse(time.RFC3339, %s); return err != nil }()"},
	"hostname":  {importPath: "regexp", cond: "!regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?(\\.[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?)*$`).MatchString(%s)"},
	"ipv4":      {importPath: "net/netip", cond: "func() bool { a, err := netip.ParseAddr(%s); return err != nil || !a.Is4() }()"},
	"ipv6":      {importPath: "net/netip", cond: "func() bool { a, err := netip.ParseAddr(%s); return err != nil || !a.Is6() }()"},
}

var formatSamples = map[string]string{
	"email":     "user@example.com",
	"uri":       "https://example.com/items",
	"uuid":      "123e4567-e89b-42d3-a456-426614174000",
	"date":      "2024-01-31",
	"date-time": "2024-01-31T12:00:00Z",
	"hostname":  "example.com",
	"ipv4":      "192.0.2.1",
	"ipv6":      "2001:db8::1",
}

func lowerText(b constraint.Bound) string {
	if b.Exclusive {
		return "greater than " + b.String()
	}
	return "at least " + b.String()
}

func upperText(b constraint.Bound) string {
	if b.Exclusive {
		return "less than " + b.String()
	}
	return "at most " + b.String()
}

// numericCond renders "value op bound". A fractional bound on an integer
// parameter compares in float64.
func numericCond(value, op string, bound float64, kind constraint.Kind) string {
	if kind == constraint.KindInteger {
		if bound == math.Trunc(bound) {
			return fmt.Sprintf("%s %s %d", value, op, int64(bound))
		}
		value = "float64(" + value + ")"
	}
	return fmt.Sprintf("%s %s %s", value, op, strconv.FormatFloat(bound, 'g', -1, 64))
}

func goLiteral(v any) string {
	switch val := v.(type) {
	case string:
		return strconv.Quote(val)
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	}
	return fmt.Sprintf("%#v", v)
}

// sampleFor derives a Go expression for a value satisfying d.
func sampleFor(d constraint.Descriptor) (string, bool) {
	switch d.Kind {
	case constraint.KindEnum:
		return goLiteral(d.Enum[0]), true
	case constraint.KindBoolean:
		return "true", true
	case constraint.KindInteger:
		return sampleNumber(d.Numeric, true)
	case constraint.KindNumber:
		return sampleNumber(d.Numeric, false)
	case constraint.KindString:
		return sampleString(d.String)
	case constraint.KindObject:
		return "map[string]any{}", true
	case constraint.KindArray:
		return sampleArray(d)
	case constraint.KindUnion:
		for _, alt := range d.Alternatives {
			if s, ok := sampleFor(alt); ok && isScalarType(goType(alt)) {
				return goType(alt) + "(" + s + ")", true
			}
		}
		return "", false
	}
	return strconv.Quote("sample"), true
}

func sampleNumber(n *constraint.NumericBounds, integral bool) (string, bool) {
	if n == nil {
		return "1", true
	}
	lo, hi := math.Inf(-1), math.Inf(1)
	if n.Min != nil {
		lo = n.Min.Value
		if integral {
			lo = math.Ceil(lo)
			if n.Min.Exclusive && lo == n.Min.Value {
				lo++
			}
		}
	}
	if n.Max != nil {
		hi = n.Max.Value
		if integral {
			hi = math.Floor(hi)
			if n.Max.Exclusive && hi == n.Max.Value {
				hi--
			}
		}
	}

	var v float64
	switch {
	case !math.IsInf(lo, 0) && !math.IsInf(hi, 0):
		v = lo
		if !integral {
			v = lo + (hi-lo)/2
		}
	case !math.IsInf(lo, 0):
		v = lo
		if !integral && n.Min.Exclusive {
			v = lo + 1
		}
	case !math.IsInf(hi, 0):
		v = hi
		if !integral && n.Max.Exclusive {
			v = hi - 1
		}
	default:
		v = 1
	}
	if n.MultipleOf != nil {
		m := *n.MultipleOf
		v = math.Ceil(v/m) * m
		if n.Min != nil && n.Min.Exclusive && v == n.Min.Value {
			v += m
		}
	}
	if v < lo || v > hi || (n.Min != nil && n.Min.Exclusive && v <= n.Min.Value) || (n.Max != nil && n.Max.Exclusive && v >= n.Max.Value) {
		return "", false
	}
	if integral {
		return strconv.FormatInt(int64(v), 10), true
	}
	return strconv.FormatFloat(v, 'g', -1, 64), true
}

func sampleString(s *constraint.StringBounds) (string, bool) {
	if s == nil {
		return strconv.Quote("sample"), true
	}
	var v string
	if f, ok := formatSamples[s.Format]; ok {
		v = f
	} else {
		n := 1
		if s.MinLength != nil && *s.MinLength > n {
			n = *s.MinLength
		}
		if s.MaxLength != nil && *s.MaxLength < n {
			n = *s.MaxLength
		}
		v = strings.Repeat("a", n)
	}
	length := len([]rune(v))
	if s.MinLength != nil && length < *s.MinLength {
		return "", false
	}
	if s.MaxLength != nil && length > *s.MaxLength {
		return "", false
	}
	if s.Pattern != "" {
		re, err := regexp.Compile(s.Pattern)
		if err != nil || !re.MatchString(v) {
			return "", false
		}
	}
	return strconv.Quote(v), true
}

func sampleArray(d constraint.Descriptor) (string, bool) {
	typ := goType(d)
	count := 0
	if d.Array != nil && d.Array.MinItems != nil {
		count = *d.Array.MinItems
	}
	if count == 0 {
		return typ + "{}", true
	}
	if d.Array.Unique && count > 1 {
		return "", false
	}
	elem := strconv.Quote("sample")
	if d.Array.Items != nil {
		s, ok := sampleFor(*d.Array.Items)
		if !ok {
			return "", false
		}
		elem = s
	}
	items := make([]string, count)
	for i := range items {
		items[i] = elem
	}
	return typ + "{" + strings.Join(items, ", ") + "}", true
}
