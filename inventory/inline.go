package inventory

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// TagName is the struct tag read by MethodFromStruct.
const TagName = "toolforge"

// MethodOption configures a method built by MethodFromStruct.
type MethodOption func(*MethodDefinition)

// WithDescription sets the method description.
func WithDescription(desc string) MethodOption {
	return func(m *MethodDefinition) { m.Description = desc }
}

// WithDomain sets the method's domain classification.
func WithDomain(domain string) MethodOption {
	return func(m *MethodDefinition) { m.Domain = domain }
}

// WithCapability sets the method's capability classification.
func WithCapability(capability string) MethodOption {
	return func(m *MethodDefinition) { m.Capability = capability }
}

// WithTags appends classification tags.
func WithTags(tags ...string) MethodOption {
	return func(m *MethodDefinition) { m.Tags = append(m.Tags, tags...) }
}

// WithVersion sets the method version.
func WithVersion(version string) MethodOption {
	return func(m *MethodDefinition) { m.Version = version }
}

// WithReturns sets the return-type expression.
func WithReturns(returns string) MethodOption {
	return func(m *MethodDefinition) { m.Returns = returns }
}

// MethodFromStruct builds a method definition from the exported fields of a
// parameter struct, the way a decorator would attach metadata at definition
// time. Parameter names come from the json tag; constraints come from the
// toolforge tag, a comma-separated list such as
//
//	Title string `json:"title" toolforge:"required,min_length=1,max_length=255"`
//	Sort  string `json:"sort" toolforge:"enum=asc|desc"`
//
// Recognised keys: required, nullable, unique, minimum, maximum, gt, ge, lt,
// le, multiple_of, min_length, max_length, pattern, format, enum, min_items,
// max_items, description. Patterns containing commas must be declared in
// configuration instead.
func MethodFromStruct(name string, params any, opts ...MethodOption) (MethodDefinition, error) {
	m := MethodDefinition{Name: name, Source: "inline"}
	for _, opt := range opts {
		opt(&m)
	}
	if params != nil {
		t := reflect.TypeOf(params)
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if t.Kind() != reflect.Struct {
			return MethodDefinition{}, fmt.Errorf("inventory: method %q params must be a struct, got %s", name, t.Kind())
		}
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			param, skip, err := paramFromField(field)
			if err != nil {
				return MethodDefinition{}, fmt.Errorf("inventory: method %q field %s: %w", name, field.Name, err)
			}
			if skip {
				continue
			}
			m.Params = append(m.Params, param)
		}
	}
	if err := CheckMethod(m); err != nil {
		return MethodDefinition{}, fmt.Errorf("inventory: method %q: %w", name, err)
	}
	return m, nil
}

func paramFromField(field reflect.StructField) (ParamSpec, bool, error) {
	jsonName := field.Name
	if tag := field.Tag.Get("json"); tag != "" {
		head, _, _ := strings.Cut(tag, ",")
		if head == "-" {
			return ParamSpec{}, true, nil
		}
		if head != "" {
			jsonName = head
		}
	}

	spec := ParamSpec{Name: jsonName}
	spec.TypeSpec = typeSpecFromReflect(field.Type)
	if err := applyTag(&spec.FieldSpec, field.Tag.Get(TagName)); err != nil {
		return ParamSpec{}, false, err
	}
	return spec, false, nil
}

func typeSpecFromReflect(t reflect.Type) TypeSpec {
	if t.Kind() == reflect.Pointer {
		inner := typeSpecFromReflect(t.Elem())
		inner.Nullable = true
		return inner
	}
	if t == reflect.TypeOf(time.Time{}) {
		return TypeSpec{Type: "string", Format: "date-time"}
	}

	switch t.Kind() {
	case reflect.String:
		return TypeSpec{Type: "string"}
	case reflect.Bool:
		return TypeSpec{Type: "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return TypeSpec{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return TypeSpec{Type: "number"}
	case reflect.Slice, reflect.Array:
		items := typeSpecFromReflect(t.Elem())
		return TypeSpec{Type: "array", Items: &items}
	case reflect.Map:
		return TypeSpec{Type: "object"}
	case reflect.Struct:
		props := make(map[string]FieldSpec)
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			param, skip, err := paramFromField(field)
			if err != nil || skip {
				continue
			}
			props[param.Name] = param.FieldSpec
		}
		return TypeSpec{Type: "object", Properties: props}
	default:
		return TypeSpec{}
	}
}

func applyTag(spec *FieldSpec, tag string) error {
	if strings.TrimSpace(tag) == "" {
		return nil
	}
	for _, part := range strings.Split(tag, ",") {
		key, value, hasValue := strings.Cut(strings.TrimSpace(part), "=")
		switch key {
		case "":
			continue
		case "required":
			spec.Required = true
		case "nullable":
			spec.Nullable = true
		case "unique":
			spec.UniqueItems = true
		case "pattern":
			spec.Pattern = value
		case "format":
			spec.Format = value
		case "description":
			spec.Description = value
		case "enum":
			for _, v := range strings.Split(value, "|") {
				spec.Enum = append(spec.Enum, enumLiteral(spec.Type, v))
			}
		case "minimum", "maximum", "gt", "ge", "lt", "le", "multiple_of":
			if !hasValue {
				return fmt.Errorf("tag key %q needs a value", key)
			}
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return fmt.Errorf("tag key %q: %w", key, err)
			}
			setFloat(&spec.TypeSpec, key, f)
		case "min_length", "max_length", "min_items", "max_items":
			if !hasValue {
				return fmt.Errorf("tag key %q needs a value", key)
			}
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("tag key %q: %w", key, err)
			}
			setInt(&spec.TypeSpec, key, n)
		default:
			return fmt.Errorf("unknown tag key %q", key)
		}
	}
	return nil
}

func setFloat(spec *TypeSpec, key string, f float64) {
	switch key {
	case "minimum":
		spec.Minimum = &f
	case "maximum":
		spec.Maximum = &f
	case "gt":
		spec.GT = &f
	case "ge":
		spec.GE = &f
	case "lt":
		spec.LT = &f
	case "le":
		spec.LE = &f
	case "multiple_of":
		spec.MultipleOf = &f
	}
}

func setInt(spec *TypeSpec, key string, n int) {
	switch key {
	case "min_length":
		spec.MinLength = &n
	case "max_length":
		spec.MaxLength = &n
	case "min_items":
		spec.MinItems = &n
	case "max_items":
		spec.MaxItems = &n
	}
}

// enumLiteral keeps numeric enum members numeric so they compare equal to
// values decoded from configuration.
func enumLiteral(typeName, raw string) any {
	switch typeName {
	case "integer", "number":
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	case "boolean":
		if b, err := strconv.ParseBool(raw); err == nil {
			return b
		}
	}
	return raw
}
