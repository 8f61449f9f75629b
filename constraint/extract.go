package constraint

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/petal-labs/toolforge/inventory"
)

// Extract converts raw type metadata into a Descriptor. It is a pure
// function: the same input always yields an identical descriptor.
//
// A parameter declaring only its primitive type yields a descriptor with no
// bounds, meaning any value of that type is accepted.
func Extract(spec inventory.TypeSpec) (Descriptor, error) {
	d, err := extract(spec)
	if err != nil {
		return Descriptor{}, err
	}
	if err := d.Check(); err != nil {
		return Descriptor{}, fmt.Errorf("constraint: %w", err)
	}
	return d, nil
}

func extract(spec inventory.TypeSpec) (Descriptor, error) {
	switch {
	case len(spec.AnyOf) > 0:
		return extractAnyOf(spec)
	case len(spec.Enum) > 0:
		return extractEnum(spec)
	}

	typeExpr := strings.TrimSpace(spec.Type)
	if typeExpr == "" {
		switch {
		case spec.Properties != nil:
			typeExpr = "object"
		case spec.Items != nil:
			typeExpr = "array"
		default:
			typeExpr = "any"
		}
	}
	node, err := parseTypeExpr(typeExpr)
	if err != nil {
		return Descriptor{}, err
	}
	return fromNode(node, spec)
}

// ExtractParams extracts every parameter in declaration order.
func ExtractParams(params []inventory.ParamSpec) ([]Param, error) {
	out := make([]Param, 0, len(params))
	for _, p := range params {
		d, err := Extract(p.TypeSpec)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", p.Name, err)
		}
		out = append(out, Param{Name: p.Name, Required: p.Required, Descriptor: d})
	}
	return out, nil
}

// ExtractMethod extracts the descriptors of a method's parameters.
func ExtractMethod(m inventory.MethodDefinition) ([]Param, error) {
	params, err := ExtractParams(m.Params)
	if err != nil {
		return nil, fmt.Errorf("constraint: method %q: %w", m.Name, err)
	}
	return params, nil
}

// ExtractTool extracts the descriptors of a tool's declared parameters.
func ExtractTool(t inventory.ToolDefinition) ([]Param, error) {
	params, err := ExtractParams(t.Params)
	if err != nil {
		return nil, fmt.Errorf("constraint: tool %q: %w", t.Name, err)
	}
	return params, nil
}

func extractAnyOf(spec inventory.TypeSpec) (Descriptor, error) {
	if strings.TrimSpace(spec.Type) != "" {
		return Descriptor{}, fmt.Errorf("type and any_of are mutually exclusive")
	}
	if err := rejectBounds(spec, "union"); err != nil {
		return Descriptor{}, err
	}
	alts := make([]Descriptor, 0, len(spec.AnyOf))
	for i, altSpec := range spec.AnyOf {
		if strings.TrimSpace(altSpec.Type) == "null" {
			spec.Nullable = true
			continue
		}
		alt, err := Extract(altSpec)
		if err != nil {
			return Descriptor{}, fmt.Errorf("any_of[%d]: %w", i, err)
		}
		alts = append(alts, alt)
	}
	return normalizeUnion(alts, spec.Nullable)
}

func extractEnum(spec inventory.TypeSpec) (Descriptor, error) {
	if err := rejectBounds(spec, "enum"); err != nil {
		return Descriptor{}, err
	}
	var want Kind
	if t := strings.TrimSpace(spec.Type); t != "" {
		name := strings.ToLower(t)
		if alias, ok := typeAliases[name]; ok {
			name = alias
		}
		kind, ok := primitiveNames[name]
		if !ok {
			return Descriptor{}, fmt.Errorf("enum type must be a primitive, got %q", t)
		}
		want = kind
	}
	d := Descriptor{Kind: KindEnum, Nullable: spec.Nullable}
	values, nullable, err := normalizeLiterals(spec.Enum, want)
	if err != nil {
		return Descriptor{}, err
	}
	d.Nullable = d.Nullable || nullable
	d.Enum = values
	return d, nil
}

func normalizeLiterals(in []any, want Kind) ([]any, bool, error) {
	out := make([]any, 0, len(in))
	nullable := false
	for _, v := range in {
		if v == nil {
			nullable = true
			continue
		}
		kind := literalKind(v)
		if kind == KindAny {
			return nil, false, fmt.Errorf("enum value %v is not a scalar", v)
		}
		switch want {
		case "", KindAny:
		case KindNumber:
			if !isNumericKind(kind) {
				return nil, false, fmt.Errorf("enum value %v is not a number", v)
			}
		default:
			if kind != want {
				return nil, false, fmt.Errorf("enum value %v is not %s", v, want)
			}
		}
		v = normalizeNumber(v)
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil, false, fmt.Errorf("enum needs at least one non-null value")
	}
	return out, nullable, nil
}

// normalizeNumber widens every numeric literal to float64, the type numbers
// decode to from configuration.
func normalizeNumber(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case float32:
		return float64(n)
	}
	return v
}

func fromNode(node exprNode, spec inventory.TypeSpec) (Descriptor, error) {
	switch {
	case len(node.alts) > 0:
		if err := rejectBounds(spec, "union"); err != nil {
			return Descriptor{}, err
		}
		nullable := spec.Nullable
		alts := make([]Descriptor, 0, len(node.alts))
		for _, altNode := range node.alts {
			if altNode.name == "null" {
				nullable = true
				continue
			}
			alt, err := fromNode(altNode, inventory.TypeSpec{})
			if err != nil {
				return Descriptor{}, err
			}
			alts = append(alts, alt)
		}
		return normalizeUnion(alts, nullable)

	case node.literals != nil:
		if err := rejectBounds(spec, "enum"); err != nil {
			return Descriptor{}, err
		}
		values, nullable, err := normalizeLiterals(node.literals, "")
		if err != nil {
			return Descriptor{}, err
		}
		return Descriptor{Kind: KindEnum, Nullable: spec.Nullable || nullable, Enum: values}, nil

	case node.elem != nil:
		if spec.Items != nil {
			return Descriptor{}, fmt.Errorf("array<...> and items are mutually exclusive")
		}
		items, err := fromNode(*node.elem, inventory.TypeSpec{})
		if err != nil {
			return Descriptor{}, fmt.Errorf("items: %w", err)
		}
		return arrayDescriptor(spec, &items)

	case node.name == "null":
		return Descriptor{}, fmt.Errorf("null is only valid as a union alternative")
	}

	if _, isFormat := formatNames[node.name]; isFormat {
		if spec.Format != "" && spec.Format != node.name {
			return Descriptor{}, fmt.Errorf("type %q conflicts with format %q", node.name, spec.Format)
		}
		spec.Format = node.name
		return stringDescriptor(spec)
	}

	switch primitiveNames[node.name] {
	case KindInteger:
		return numericDescriptor(KindInteger, spec)
	case KindNumber:
		return numericDescriptor(KindNumber, spec)
	case KindString:
		return stringDescriptor(spec)
	case KindBoolean:
		if err := rejectBounds(spec, "boolean"); err != nil {
			return Descriptor{}, err
		}
		return Descriptor{Kind: KindBoolean, Nullable: spec.Nullable}, nil
	case KindArray:
		var items *Descriptor
		if spec.Items != nil {
			d, err := Extract(*spec.Items)
			if err != nil {
				return Descriptor{}, fmt.Errorf("items: %w", err)
			}
			items = &d
		}
		return arrayDescriptor(spec, items)
	case KindObject:
		return objectDescriptor(spec)
	default:
		if err := rejectBounds(spec, "any"); err != nil {
			return Descriptor{}, err
		}
		return Descriptor{Kind: KindAny, Nullable: spec.Nullable}, nil
	}
}

func numericDescriptor(kind Kind, spec inventory.TypeSpec) (Descriptor, error) {
	if err := rejectCategories(spec, string(kind), stringFields, arrayFields, objectFields); err != nil {
		return Descriptor{}, err
	}
	d := Descriptor{Kind: kind, Nullable: spec.Nullable}

	var lower, upper *Bound
	lower = tighterMin(lower, inclusive(spec.Minimum))
	lower = tighterMin(lower, inclusive(spec.GE))
	lower = tighterMin(lower, exclusive(spec.ExclusiveMinimum))
	lower = tighterMin(lower, exclusive(spec.GT))
	upper = tighterMax(upper, inclusive(spec.Maximum))
	upper = tighterMax(upper, inclusive(spec.LE))
	upper = tighterMax(upper, exclusive(spec.ExclusiveMaximum))
	upper = tighterMax(upper, exclusive(spec.LT))

	if lower != nil && upper != nil {
		if lower.Value > upper.Value {
			return Descriptor{}, fmt.Errorf("lower bound %s exceeds upper bound %s", lower, upper)
		}
		if lower.Value == upper.Value && (lower.Exclusive || upper.Exclusive) {
			return Descriptor{}, fmt.Errorf("bounds around %s admit no value", lower)
		}
	}
	if spec.MultipleOf != nil && *spec.MultipleOf <= 0 {
		return Descriptor{}, fmt.Errorf("multiple_of must be positive, got %v", *spec.MultipleOf)
	}

	if lower != nil || upper != nil || spec.MultipleOf != nil {
		d.Numeric = &NumericBounds{Min: lower, Max: upper}
		if spec.MultipleOf != nil {
			m := *spec.MultipleOf
			d.Numeric.MultipleOf = &m
		}
	}
	return d, nil
}

func stringDescriptor(spec inventory.TypeSpec) (Descriptor, error) {
	if err := rejectCategories(spec, "string", numericFields, arrayFields, objectFields); err != nil {
		return Descriptor{}, err
	}
	d := Descriptor{Kind: KindString, Nullable: spec.Nullable}

	if err := checkLengths(spec.MinLength, spec.MaxLength, "length"); err != nil {
		return Descriptor{}, err
	}
	if spec.Pattern != "" {
		if _, err := regexp.Compile(spec.Pattern); err != nil {
			return Descriptor{}, fmt.Errorf("pattern %q: %w", spec.Pattern, err)
		}
	}
	if spec.Format != "" {
		if _, ok := formatNames[spec.Format]; !ok {
			return Descriptor{}, fmt.Errorf("unknown string format %q", spec.Format)
		}
	}

	if spec.MinLength != nil || spec.MaxLength != nil || spec.Pattern != "" || spec.Format != "" {
		d.String = &StringBounds{
			MinLength: copyInt(spec.MinLength),
			MaxLength: copyInt(spec.MaxLength),
			Pattern:   spec.Pattern,
			Format:    spec.Format,
		}
	}
	return d, nil
}

func arrayDescriptor(spec inventory.TypeSpec, items *Descriptor) (Descriptor, error) {
	if err := rejectCategories(spec, "array", numericFields, stringFields, objectFields); err != nil {
		return Descriptor{}, err
	}
	if err := checkLengths(spec.MinItems, spec.MaxItems, "items"); err != nil {
		return Descriptor{}, err
	}
	d := Descriptor{Kind: KindArray, Nullable: spec.Nullable}
	if items != nil || spec.MinItems != nil || spec.MaxItems != nil || spec.UniqueItems {
		d.Array = &ArrayBounds{
			MinItems: copyInt(spec.MinItems),
			MaxItems: copyInt(spec.MaxItems),
			Unique:   spec.UniqueItems,
			Items:    items,
		}
	}
	return d, nil
}

func objectDescriptor(spec inventory.TypeSpec) (Descriptor, error) {
	if err := rejectCategories(spec, "object", numericFields, stringFields, arrayFields); err != nil {
		return Descriptor{}, err
	}
	d := Descriptor{Kind: KindObject, Nullable: spec.Nullable}
	if len(spec.Properties) == 0 {
		return d, nil
	}

	names := make([]string, 0, len(spec.Properties))
	for name := range spec.Properties {
		names = append(names, name)
	}
	slices.Sort(names)

	shape := &Shape{Fields: make([]Field, 0, len(names))}
	for _, name := range names {
		prop := spec.Properties[name]
		fd, err := Extract(prop.TypeSpec)
		if err != nil {
			return Descriptor{}, fmt.Errorf("properties.%s: %w", name, err)
		}
		shape.Fields = append(shape.Fields, Field{Name: name, Required: prop.Required, Descriptor: fd})
	}
	d.Shape = shape
	return d, nil
}

func normalizeUnion(alts []Descriptor, nullable bool) (Descriptor, error) {
	flat := make([]Descriptor, 0, len(alts))
	seen := make(map[string]struct{}, len(alts))
	var add func(Descriptor)
	add = func(alt Descriptor) {
		if alt.Kind == KindUnion {
			nullable = nullable || alt.Nullable
			for _, inner := range alt.Alternatives {
				add(inner)
			}
			return
		}
		if alt.Nullable {
			nullable = true
			alt.Nullable = false
		}
		key, _ := json.Marshal(alt)
		if _, dup := seen[string(key)]; dup {
			return
		}
		seen[string(key)] = struct{}{}
		flat = append(flat, alt)
	}
	for _, alt := range alts {
		add(alt)
	}

	switch len(flat) {
	case 0:
		return Descriptor{}, fmt.Errorf("union has no non-null alternative")
	case 1:
		only := flat[0]
		only.Nullable = nullable
		return only, nil
	}
	return Descriptor{Kind: KindUnion, Nullable: nullable, Alternatives: flat}, nil
}

func tighterMin(current, candidate *Bound) *Bound {
	switch {
	case candidate == nil:
		return current
	case current == nil:
		return candidate
	case candidate.Value > current.Value:
		return candidate
	case candidate.Value == current.Value && candidate.Exclusive:
		return candidate
	}
	return current
}

func tighterMax(current, candidate *Bound) *Bound {
	switch {
	case candidate == nil:
		return current
	case current == nil:
		return candidate
	case candidate.Value < current.Value:
		return candidate
	case candidate.Value == current.Value && candidate.Exclusive:
		return candidate
	}
	return current
}

func inclusive(v *float64) *Bound {
	if v == nil {
		return nil
	}
	return &Bound{Value: *v}
}

func exclusive(v *float64) *Bound {
	if v == nil {
		return nil
	}
	return &Bound{Value: *v, Exclusive: true}
}

func checkLengths(minV, maxV *int, what string) error {
	if minV != nil && *minV < 0 {
		return fmt.Errorf("min %s must not be negative", what)
	}
	if maxV != nil && *maxV < 0 {
		return fmt.Errorf("max %s must not be negative", what)
	}
	if minV != nil && maxV != nil && *minV > *maxV {
		return fmt.Errorf("min %s %d exceeds max %s %d", what, *minV, what, *maxV)
	}
	return nil
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

type fieldCategory struct {
	name string
	set  func(inventory.TypeSpec) []string
}

var numericFields = fieldCategory{name: "numeric", set: func(s inventory.TypeSpec) []string {
	var out []string
	for key, v := range map[string]*float64{
		"minimum": s.Minimum, "maximum": s.Maximum,
		"exclusive_minimum": s.ExclusiveMinimum, "exclusive_maximum": s.ExclusiveMaximum,
		"ge": s.GE, "le": s.LE, "gt": s.GT, "lt": s.LT, "multiple_of": s.MultipleOf,
	} {
		if v != nil {
			out = append(out, key)
		}
	}
	return out
}}

var stringFields = fieldCategory{name: "string", set: func(s inventory.TypeSpec) []string {
	var out []string
	if s.MinLength != nil {
		out = append(out, "min_length")
	}
	if s.MaxLength != nil {
		out = append(out, "max_length")
	}
	if s.Pattern != "" {
		out = append(out, "pattern")
	}
	if s.Format != "" {
		out = append(out, "format")
	}
	return out
}}

var arrayFields = fieldCategory{name: "array", set: func(s inventory.TypeSpec) []string {
	var out []string
	if s.Items != nil {
		out = append(out, "items")
	}
	if s.MinItems != nil {
		out = append(out, "min_items")
	}
	if s.MaxItems != nil {
		out = append(out, "max_items")
	}
	if s.UniqueItems {
		out = append(out, "unique_items")
	}
	return out
}}

var objectFields = fieldCategory{name: "object", set: func(s inventory.TypeSpec) []string {
	if s.Properties != nil {
		return []string{"properties"}
	}
	return nil
}}

func rejectCategories(spec inventory.TypeSpec, kind string, categories ...fieldCategory) error {
	var bad []string
	for _, c := range categories {
		bad = append(bad, c.set(spec)...)
	}
	if len(bad) == 0 {
		return nil
	}
	slices.Sort(bad)
	return fmt.Errorf("%s not applicable to %s", strings.Join(bad, ", "), kind)
}

func rejectBounds(spec inventory.TypeSpec, kind string) error {
	return rejectCategories(spec, kind, numericFields, stringFields, arrayFields, objectFields)
}
