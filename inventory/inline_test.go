package inventory

import (
	"encoding/json"
	"testing"
)

type createItemParams struct {
	Title    string   `json:"title" toolforge:"required,min_length=1,max_length=255"`
	Owner    string   `json:"owner" toolforge:"required"`
	Priority *int     `json:"priority,omitempty" toolforge:"ge=1,le=5"`
	Sort     string   `json:"sort,omitempty" toolforge:"enum=asc|desc"`
	Labels   []string `json:"labels,omitempty" toolforge:"max_items=10,unique"`
	internal string
	Skipped  string `json:"-"`
}

func TestMethodFromStruct(t *testing.T) {
	m, err := MethodFromStruct("createItem", createItemParams{},
		WithDomain("items"),
		WithCapability("write"),
		WithVersion("1.0.0"),
	)
	if err != nil {
		t.Fatalf("MethodFromStruct() error = %v", err)
	}

	if len(m.Params) != 5 {
		t.Fatalf("len(Params) = %d, want 5", len(m.Params))
	}

	title, ok := m.Param("title")
	if !ok {
		t.Fatal("title param missing")
	}
	if !title.Required || title.Type != "string" {
		t.Fatalf("title = %+v", title)
	}
	if title.MinLength == nil || *title.MinLength != 1 || title.MaxLength == nil || *title.MaxLength != 255 {
		t.Fatalf("title lengths = %v/%v", title.MinLength, title.MaxLength)
	}

	priority, _ := m.Param("priority")
	if !priority.Nullable || priority.Type != "integer" || priority.GE == nil || *priority.GE != 1 {
		t.Fatalf("priority = %+v", priority)
	}

	sort, _ := m.Param("sort")
	if len(sort.Enum) != 2 || sort.Enum[0] != "asc" {
		t.Fatalf("sort enum = %v", sort.Enum)
	}

	labels, _ := m.Param("labels")
	if labels.Type != "array" || labels.Items == nil || labels.Items.Type != "string" || !labels.UniqueItems {
		t.Fatalf("labels = %+v", labels)
	}

	if _, ok := m.Param("Skipped"); ok {
		t.Fatal("json:\"-\" field should be skipped")
	}

	if got := len(m.RequiredParams()); got != 2 {
		t.Fatalf("len(RequiredParams()) = %d, want 2", got)
	}
}

func TestMethodFromStructRejectsUnknownTagKey(t *testing.T) {
	type params struct {
		A string `json:"a" toolforge:"minlen=3"`
	}
	if _, err := MethodFromStruct("m", params{}); err == nil {
		t.Fatal("MethodFromStruct() error = nil, want unknown key error")
	}
}

func TestMethodFromStructRequiresStruct(t *testing.T) {
	if _, err := MethodFromStruct("m", 42); err == nil {
		t.Fatal("MethodFromStruct() error = nil, want error for non-struct")
	}
}

func TestPolicyKeepsUnknownKeys(t *testing.T) {
	raw := `{"requires_session":true,"audit_events":["item.created"],"rate_tier":"gold"}`
	var p Policy
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !p.RequiresSession || len(p.AuditEvents) != 1 {
		t.Fatalf("Policy = %+v", p)
	}
	if p.Extra["rate_tier"] != "gold" {
		t.Fatalf("Extra = %v, want rate_tier passthrough", p.Extra)
	}

	out, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var back map[string]any
	_ = json.Unmarshal(out, &back)
	if back["rate_tier"] != "gold" || back["requires_session"] != true {
		t.Fatalf("Marshal() = %s", out)
	}
}
