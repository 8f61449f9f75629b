// Package constraint derives normalized per-parameter validation rules from
// the raw type metadata declared on methods and tools.
package constraint

import (
	"fmt"
	"strconv"
)

// Kind is the primitive-type tag of a descriptor.
type Kind string

const (
	KindInteger Kind = "integer"
	KindNumber  Kind = "number"
	KindString  Kind = "string"
	KindBoolean Kind = "boolean"
	KindObject  Kind = "object"
	KindArray   Kind = "array"
	KindUnion   Kind = "union"
	KindEnum    Kind = "enum"
	// KindAny is an untyped parameter; it accepts every value.
	KindAny Kind = "any"
)

// Bound is one side of a numeric range. Exclusive distinguishes x > v from
// x >= v; the two are never collapsed.
type Bound struct {
	Value     float64 `json:"value"`
	Exclusive bool    `json:"exclusive,omitempty"`
}

func (b Bound) String() string {
	return strconv.FormatFloat(b.Value, 'g', -1, 64)
}

// NumericBounds constrains integer and number parameters.
type NumericBounds struct {
	Min        *Bound   `json:"min,omitempty"`
	Max        *Bound   `json:"max,omitempty"`
	MultipleOf *float64 `json:"multiple_of,omitempty"`
}

// StringBounds constrains string parameters.
type StringBounds struct {
	MinLength *int   `json:"min_length,omitempty"`
	MaxLength *int   `json:"max_length,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
	Format    string `json:"format,omitempty"`
}

// ArrayBounds constrains array parameters.
type ArrayBounds struct {
	MinItems *int        `json:"min_items,omitempty"`
	MaxItems *int        `json:"max_items,omitempty"`
	Unique   bool        `json:"unique,omitempty"`
	Items    *Descriptor `json:"items,omitempty"`
}

// Field is one member of a nested object shape.
type Field struct {
	Name       string     `json:"name"`
	Required   bool       `json:"required,omitempty"`
	Descriptor Descriptor `json:"descriptor"`
}

// Shape is the recursive field map of an object parameter, sorted by name.
type Shape struct {
	Fields []Field `json:"fields"`
}

// Field returns the named field.
func (s *Shape) Field(name string) (Field, bool) {
	if s == nil {
		return Field{}, false
	}
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Descriptor is the normalized rule set for one parameter. At most one of
// Numeric, String, Array, Shape and Enum is populated, matching Kind; a
// descriptor with none of them accepts any value of its type.
type Descriptor struct {
	Kind         Kind           `json:"kind"`
	Nullable     bool           `json:"nullable,omitempty"`
	Numeric      *NumericBounds `json:"numeric,omitempty"`
	String       *StringBounds  `json:"string,omitempty"`
	Array        *ArrayBounds   `json:"array,omitempty"`
	Shape        *Shape         `json:"shape,omitempty"`
	Enum         []any          `json:"enum,omitempty"`
	Alternatives []Descriptor   `json:"alternatives,omitempty"`
}

// Param is the descriptor of a named parameter.
type Param struct {
	Name       string     `json:"name"`
	Required   bool       `json:"required,omitempty"`
	Descriptor Descriptor `json:"descriptor"`
}

// Unconstrained reports whether no bound is populated.
func (d Descriptor) Unconstrained() bool {
	return d.Numeric == nil && d.String == nil && d.Array == nil && d.Shape == nil && len(d.Enum) == 0 && len(d.Alternatives) == 0
}

// EnumKind returns the primitive kind shared by every enum member, or
// KindAny when the members are mixed.
func (d Descriptor) EnumKind() Kind {
	if d.Kind != KindEnum || len(d.Enum) == 0 {
		return KindAny
	}
	kind := literalKind(d.Enum[0])
	for _, v := range d.Enum[1:] {
		k := literalKind(v)
		switch {
		case k == kind:
		case isNumericKind(k) && isNumericKind(kind):
			kind = KindNumber
		default:
			return KindAny
		}
	}
	return kind
}

// BaseKind is Kind with enums reduced to the kind of their members.
func (d Descriptor) BaseKind() Kind {
	if d.Kind == KindEnum {
		return d.EnumKind()
	}
	return d.Kind
}

// TypeLabel renders the descriptor type for messages.
func (d Descriptor) TypeLabel() string {
	label := string(d.Kind)
	switch d.Kind {
	case KindUnion:
		label = ""
		for i, alt := range d.Alternatives {
			if i > 0 {
				label += "|"
			}
			label += alt.TypeLabel()
		}
	case KindArray:
		if d.Array != nil && d.Array.Items != nil {
			label = "array<" + d.Array.Items.TypeLabel() + ">"
		}
	case KindString:
		if d.String != nil && d.String.Format != "" {
			label = "string(" + d.String.Format + ")"
		}
	case KindEnum:
		label = fmt.Sprintf("enum%v", d.Enum)
	}
	if d.Nullable {
		label += "|null"
	}
	return label
}

// Check enforces the one-bounds-kind invariant.
func (d Descriptor) Check() error {
	populated := 0
	if d.Numeric != nil {
		populated++
		if !isNumericKind(d.Kind) {
			return fmt.Errorf("numeric bounds on %s", d.Kind)
		}
	}
	if d.String != nil {
		populated++
		if d.Kind != KindString {
			return fmt.Errorf("string bounds on %s", d.Kind)
		}
	}
	if d.Array != nil {
		populated++
		if d.Kind != KindArray {
			return fmt.Errorf("array bounds on %s", d.Kind)
		}
		if d.Array.Items != nil {
			if err := d.Array.Items.Check(); err != nil {
				return fmt.Errorf("items: %w", err)
			}
		}
	}
	if d.Shape != nil {
		populated++
		if d.Kind != KindObject {
			return fmt.Errorf("object shape on %s", d.Kind)
		}
		for _, f := range d.Shape.Fields {
			if err := f.Descriptor.Check(); err != nil {
				return fmt.Errorf("%s: %w", f.Name, err)
			}
		}
	}
	if len(d.Enum) > 0 {
		populated++
		if d.Kind != KindEnum {
			return fmt.Errorf("enum values on %s", d.Kind)
		}
	}
	if populated > 1 {
		return fmt.Errorf("%s descriptor populates %d bound kinds", d.Kind, populated)
	}
	if d.Kind == KindEnum && len(d.Enum) == 0 {
		return fmt.Errorf("enum descriptor without values")
	}
	if d.Kind == KindUnion {
		if len(d.Alternatives) < 2 {
			return fmt.Errorf("union descriptor with %d alternatives", len(d.Alternatives))
		}
		for i, alt := range d.Alternatives {
			if err := alt.Check(); err != nil {
				return fmt.Errorf("alternative %d: %w", i, err)
			}
		}
	} else if len(d.Alternatives) > 0 {
		return fmt.Errorf("alternatives on %s", d.Kind)
	}
	return nil
}

func isNumericKind(k Kind) bool {
	return k == KindInteger || k == KindNumber
}

func literalKind(v any) Kind {
	switch n := v.(type) {
	case string:
		return KindString
	case bool:
		return KindBoolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return KindInteger
	case float32:
		if float32(int64(n)) == n {
			return KindInteger
		}
		return KindNumber
	case float64:
		if float64(int64(n)) == n {
			return KindInteger
		}
		return KindNumber
	default:
		return KindAny
	}
}
