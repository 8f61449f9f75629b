package constraint

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/petal-labs/toolforge/inventory"
)

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

func TestExtractPrimitiveOnlyIsUnconstrained(t *testing.T) {
	for _, typ := range []string{"integer", "number", "string", "boolean", "object", "array", "int", "str"} {
		d, err := Extract(inventory.TypeSpec{Type: typ})
		if err != nil {
			t.Fatalf("Extract(%q) error = %v", typ, err)
		}
		if !d.Unconstrained() {
			t.Fatalf("Extract(%q) = %+v, want unconstrained", typ, d)
		}
	}
}

func TestExtractEmptyTypeIsAny(t *testing.T) {
	d, err := Extract(inventory.TypeSpec{})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if d.Kind != KindAny {
		t.Fatalf("Kind = %q, want any", d.Kind)
	}
}

func TestExtractKeepsExclusiveDistinct(t *testing.T) {
	incl, err := Extract(inventory.TypeSpec{Type: "integer", GE: fptr(1)})
	if err != nil {
		t.Fatal(err)
	}
	excl, err := Extract(inventory.TypeSpec{Type: "integer", GT: fptr(1)})
	if err != nil {
		t.Fatal(err)
	}
	if incl.Numeric.Min.Exclusive {
		t.Fatal("ge=1 produced an exclusive bound")
	}
	if !excl.Numeric.Min.Exclusive {
		t.Fatal("gt=1 produced an inclusive bound")
	}
}

func TestExtractSelectsTighterBound(t *testing.T) {
	d, err := Extract(inventory.TypeSpec{
		Type:    "number",
		Minimum: fptr(0),
		GT:      fptr(0),
		LE:      fptr(100),
		Maximum: fptr(50),
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got := *d.Numeric.Min; got.Value != 0 || !got.Exclusive {
		t.Fatalf("Min = %+v, want exclusive 0", got)
	}
	if got := *d.Numeric.Max; got.Value != 50 || got.Exclusive {
		t.Fatalf("Max = %+v, want inclusive 50", got)
	}
}

func TestExtractIsIdempotent(t *testing.T) {
	spec := inventory.TypeSpec{
		Type: "object",
		Properties: map[string]inventory.FieldSpec{
			"zeta":  {TypeSpec: inventory.TypeSpec{Type: "string", MaxLength: iptr(10)}, Required: true},
			"alpha": {TypeSpec: inventory.TypeSpec{Type: "array<integer>", MaxItems: iptr(3)}},
			"mid":   {TypeSpec: inventory.TypeSpec{Type: "string|integer|null"}},
		},
	}
	first, err := Extract(spec)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	a, _ := json.Marshal(first)
	for i := 0; i < 5; i++ {
		again, err := Extract(spec)
		if err != nil {
			t.Fatal(err)
		}
		b, _ := json.Marshal(again)
		if string(a) != string(b) {
			t.Fatalf("Extract() run %d = %s, want %s", i, b, a)
		}
	}
	if first.Shape.Fields[0].Name != "alpha" || first.Shape.Fields[2].Name != "zeta" {
		t.Fatalf("fields not sorted: %+v", first.Shape.Fields)
	}
}

func TestExtractUnionNormalization(t *testing.T) {
	tests := []struct {
		name      string
		spec      inventory.TypeSpec
		wantKind  Kind
		wantAlts  int
		wantNull  bool
		wantLabel string
	}{
		{name: "nullable collapse", spec: inventory.TypeSpec{Type: "string|null"}, wantKind: KindString, wantNull: true, wantLabel: "string|null"},
		{name: "two alternatives", spec: inventory.TypeSpec{Type: "string | integer"}, wantKind: KindUnion, wantAlts: 2, wantLabel: "string|integer"},
		{name: "duplicates removed", spec: inventory.TypeSpec{Type: "string|str|integer"}, wantKind: KindUnion, wantAlts: 2},
		{name: "any_of", spec: inventory.TypeSpec{AnyOf: []inventory.TypeSpec{{Type: "integer", GE: fptr(1)}, {Type: "null"}}}, wantKind: KindInteger, wantNull: true},
		{name: "nested any_of flattened", spec: inventory.TypeSpec{AnyOf: []inventory.TypeSpec{{Type: "integer"}, {Type: "string|boolean"}}}, wantKind: KindUnion, wantAlts: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Extract(tt.spec)
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if d.Kind != tt.wantKind || len(d.Alternatives) != tt.wantAlts || d.Nullable != tt.wantNull {
				t.Fatalf("Extract() = %+v", d)
			}
			if tt.wantLabel != "" && d.TypeLabel() != tt.wantLabel {
				t.Fatalf("TypeLabel() = %q, want %q", d.TypeLabel(), tt.wantLabel)
			}
		})
	}
}

func TestExtractEnum(t *testing.T) {
	d, err := Extract(inventory.TypeSpec{Type: "string", Enum: []any{"asc", "desc", "asc", nil}})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if d.Kind != KindEnum || len(d.Enum) != 2 || !d.Nullable {
		t.Fatalf("Extract() = %+v", d)
	}
	if d.EnumKind() != KindString {
		t.Fatalf("EnumKind() = %q", d.EnumKind())
	}

	expr, err := Extract(inventory.TypeSpec{Type: "enum(1, 2, 3)"})
	if err != nil {
		t.Fatalf("Extract(enum expr) error = %v", err)
	}
	if expr.EnumKind() != KindInteger {
		t.Fatalf("EnumKind() = %q, want integer", expr.EnumKind())
	}

	if _, err := Extract(inventory.TypeSpec{Type: "integer", Enum: []any{1.0, "two"}}); err == nil {
		t.Fatal("Extract() accepted enum values of the wrong type")
	}
}

func TestExtractArrays(t *testing.T) {
	d, err := Extract(inventory.TypeSpec{Type: "array<string>", MinItems: iptr(1), UniqueItems: true})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if d.Array == nil || d.Array.Items == nil || d.Array.Items.Kind != KindString || !d.Array.Unique {
		t.Fatalf("Extract() = %+v", d)
	}
	if d.TypeLabel() != "array<string>" {
		t.Fatalf("TypeLabel() = %q", d.TypeLabel())
	}

	items, err := Extract(inventory.TypeSpec{Type: "array", Items: &inventory.TypeSpec{Type: "integer", LE: fptr(9)}})
	if err != nil {
		t.Fatalf("Extract(items) error = %v", err)
	}
	if items.Array.Items.Numeric.Max.Value != 9 {
		t.Fatalf("items bound = %+v", items.Array.Items.Numeric)
	}
}

func TestExtractFormatTypeNames(t *testing.T) {
	d, err := Extract(inventory.TypeSpec{Type: "email"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if d.Kind != KindString || d.String == nil || d.String.Format != "email" {
		t.Fatalf("Extract() = %+v", d)
	}
}

func TestExtractErrors(t *testing.T) {
	tests := []struct {
		name string
		spec inventory.TypeSpec
		want string
	}{
		{name: "min above max", spec: inventory.TypeSpec{Type: "integer", Minimum: fptr(10), Maximum: fptr(1)}, want: "exceeds"},
		{name: "empty exclusive range", spec: inventory.TypeSpec{Type: "integer", GT: fptr(5), LE: fptr(5)}, want: "admit no value"},
		{name: "length on integer", spec: inventory.TypeSpec{Type: "integer", MinLength: iptr(1)}, want: "not applicable"},
		{name: "bounds on boolean", spec: inventory.TypeSpec{Type: "boolean", Maximum: fptr(1)}, want: "not applicable"},
		{name: "negative length", spec: inventory.TypeSpec{Type: "string", MinLength: iptr(-1)}, want: "negative"},
		{name: "bad pattern", spec: inventory.TypeSpec{Type: "string", Pattern: "("}, want: "pattern"},
		{name: "unknown format", spec: inventory.TypeSpec{Type: "string", Format: "color"}, want: "unknown string format"},
		{name: "multiple_of zero", spec: inventory.TypeSpec{Type: "number", MultipleOf: fptr(0)}, want: "positive"},
		{name: "type and any_of", spec: inventory.TypeSpec{Type: "string", AnyOf: []inventory.TypeSpec{{Type: "integer"}}}, want: "mutually exclusive"},
		{name: "array expr and items", spec: inventory.TypeSpec{Type: "array<string>", Items: &inventory.TypeSpec{Type: "string"}}, want: "mutually exclusive"},
		{name: "unknown type", spec: inventory.TypeSpec{Type: "money"}, want: "unknown type name"},
		{name: "bare null", spec: inventory.TypeSpec{Type: "null"}, want: "union alternative"},
		{name: "nested property", spec: inventory.TypeSpec{Type: "object", Properties: map[string]inventory.FieldSpec{
			"n": {TypeSpec: inventory.TypeSpec{Type: "integer", Pattern: "x"}},
		}}, want: "properties.n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(tt.spec)
			if err == nil {
				t.Fatal("Extract() error = nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Extract() error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestExtractParamsKeepsOrderAndNames(t *testing.T) {
	params := []inventory.ParamSpec{
		{Name: "title", FieldSpec: inventory.FieldSpec{TypeSpec: inventory.TypeSpec{Type: "string"}, Required: true}},
		{Name: "limit", FieldSpec: inventory.FieldSpec{TypeSpec: inventory.TypeSpec{Type: "integer", GE: fptr(1)}}},
	}
	got, err := ExtractParams(params)
	if err != nil {
		t.Fatalf("ExtractParams() error = %v", err)
	}
	if len(got) != 2 || got[0].Name != "title" || !got[0].Required || got[1].Descriptor.Numeric == nil {
		t.Fatalf("ExtractParams() = %+v", got)
	}

	_, err = ExtractParams([]inventory.ParamSpec{{Name: "bad", FieldSpec: inventory.FieldSpec{TypeSpec: inventory.TypeSpec{Type: "nope"}}}})
	if err == nil || !strings.Contains(err.Error(), `param "bad"`) {
		t.Fatalf("ExtractParams() error = %v, want param-prefixed error", err)
	}
}
