package inventory

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ImplementationInline marks a tool that carries its own implementation
// instead of binding to a method.
const ImplementationInline = "inline"

// TypeSpec is the raw declared-type metadata for a parameter, as authored in
// configuration. The constraint package turns it into a normalized descriptor.
type TypeSpec struct {
	// Type is a primitive name or a type expression such as "string|null",
	// "array<integer>" or "enum(asc, desc)".
	Type     string `json:"type,omitempty"`
	Nullable bool   `json:"nullable,omitempty"`

	Minimum          *float64 `json:"minimum,omitempty"`
	Maximum          *float64 `json:"maximum,omitempty"`
	ExclusiveMinimum *float64 `json:"exclusive_minimum,omitempty"`
	ExclusiveMaximum *float64 `json:"exclusive_maximum,omitempty"`
	GE               *float64 `json:"ge,omitempty"`
	LE               *float64 `json:"le,omitempty"`
	GT               *float64 `json:"gt,omitempty"`
	LT               *float64 `json:"lt,omitempty"`
	MultipleOf       *float64 `json:"multiple_of,omitempty"`

	MinLength *int   `json:"min_length,omitempty"`
	MaxLength *int   `json:"max_length,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
	Format    string `json:"format,omitempty"`

	Items       *TypeSpec `json:"items,omitempty"`
	MinItems    *int      `json:"min_items,omitempty"`
	MaxItems    *int      `json:"max_items,omitempty"`
	UniqueItems bool      `json:"unique_items,omitempty"`

	Properties map[string]FieldSpec `json:"properties,omitempty"`
	AnyOf      []TypeSpec           `json:"any_of,omitempty"`
	Enum       []any                `json:"enum,omitempty"`
}

// FieldSpec is a TypeSpec with presence metadata. It describes both nested
// object properties and (through ParamSpec) top-level parameters.
type FieldSpec struct {
	TypeSpec
	Required    bool   `json:"required,omitempty"`
	Default     any    `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

// ParamSpec is one declared parameter of a method or tool.
type ParamSpec struct {
	Name string `json:"name"`
	FieldSpec
}

// MethodDefinition is the canonical description of an invokable operation.
type MethodDefinition struct {
	Name        string      `json:"name,omitempty"`
	Description string      `json:"description,omitempty"`
	Params      []ParamSpec `json:"params,omitempty"`
	Returns     string      `json:"returns,omitempty"`
	Domain      string      `json:"domain,omitempty"`
	Capability  string      `json:"capability,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	Version     string      `json:"version,omitempty"`
	// Opaque marks a method whose signature cannot be introspected, such as
	// a thin wrapper over an external client. Tools bound to it are unchecked.
	Opaque bool `json:"opaque,omitempty"`

	Source string `json:"-"`
}

// DefinitionName implements Definition.
func (m MethodDefinition) DefinitionName() string { return m.Name }

// DefinitionTags returns the classification tags: explicit tags plus the
// domain and capability when set.
func (m MethodDefinition) DefinitionTags() []string {
	tags := slices.Clone(m.Tags)
	if m.Domain != "" {
		tags = append(tags, m.Domain)
	}
	if m.Capability != "" {
		tags = append(tags, m.Capability)
	}
	return tags
}

// Param returns the parameter with the given name.
func (m MethodDefinition) Param(name string) (ParamSpec, bool) {
	return findParam(m.Params, name)
}

// RequiredParams returns the required parameters in declaration order.
func (m MethodDefinition) RequiredParams() []ParamSpec {
	out := make([]ParamSpec, 0, len(m.Params))
	for _, p := range m.Params {
		if p.Required {
			out = append(out, p)
		}
	}
	return out
}

// Clone returns a deep copy.
func (m MethodDefinition) Clone() MethodDefinition {
	out := m
	out.Params = cloneParams(m.Params)
	out.Tags = slices.Clone(m.Tags)
	return out
}

// Policy is the business-policy block of a tool. toolforge surfaces these
// fields to generated code but never enforces them.
type Policy struct {
	BusinessRules   []string `json:"business_rules,omitempty"`
	RequiresSession bool     `json:"requires_session,omitempty"`
	SessionScopes   []string `json:"session_scopes,omitempty"`
	AuditEvents     []string `json:"audit_events,omitempty"`
	// Extra holds keys the core does not know about, passed through untouched.
	Extra map[string]any `json:"-"`
}

var policyKeys = []string{"business_rules", "requires_session", "session_scopes", "audit_events"}

// UnmarshalJSON decodes known policy keys and keeps the rest in Extra.
func (p *Policy) UnmarshalJSON(data []byte) error {
	type known Policy
	var k known
	if err := json.Unmarshal(data, &k); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, key := range policyKeys {
		delete(raw, key)
	}
	*p = Policy(k)
	if len(raw) > 0 {
		p.Extra = raw
	}
	return nil
}

// MarshalJSON encodes known keys and Extra side by side.
func (p Policy) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+len(policyKeys))
	maps.Copy(out, p.Extra)
	if len(p.BusinessRules) > 0 {
		out["business_rules"] = p.BusinessRules
	}
	if p.RequiresSession {
		out["requires_session"] = true
	}
	if len(p.SessionScopes) > 0 {
		out["session_scopes"] = p.SessionScopes
	}
	if len(p.AuditEvents) > 0 {
		out["audit_events"] = p.AuditEvents
	}
	return json.Marshal(out)
}

func (p Policy) clone() Policy {
	out := p
	out.BusinessRules = slices.Clone(p.BusinessRules)
	out.SessionScopes = slices.Clone(p.SessionScopes)
	out.AuditEvents = slices.Clone(p.AuditEvents)
	if p.Extra != nil {
		out.Extra = maps.Clone(p.Extra)
	}
	return out
}

// ToolDefinition is a named, invokable unit exposed to callers.
type ToolDefinition struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	// Method is the weak, by-name binding to a MethodDefinition.
	Method string `json:"method,omitempty"`
	// Implementation is ImplementationInline for tools without a method.
	Implementation string      `json:"implementation,omitempty"`
	Params         []ParamSpec `json:"params,omitempty"`
	Policy         Policy      `json:"policy,omitempty"`
	Enabled        *bool       `json:"enabled,omitempty"`
	Tags           []string    `json:"tags,omitempty"`

	Source string `json:"-"`
}

// DefinitionName implements Definition.
func (t ToolDefinition) DefinitionName() string { return t.Name }

// DefinitionTags implements Definition.
func (t ToolDefinition) DefinitionTags() []string { return slices.Clone(t.Tags) }

// Bound reports whether the tool references a method.
func (t ToolDefinition) Bound() bool { return strings.TrimSpace(t.Method) != "" }

// Inline reports whether the tool is an inline implementation.
func (t ToolDefinition) Inline() bool { return t.Implementation == ImplementationInline }

// IsEnabled defaults to true when the flag is absent.
func (t ToolDefinition) IsEnabled() bool { return t.Enabled == nil || *t.Enabled }

// Param returns the declared parameter with the given name.
func (t ToolDefinition) Param(name string) (ParamSpec, bool) {
	return findParam(t.Params, name)
}

// Clone returns a deep copy.
func (t ToolDefinition) Clone() ToolDefinition {
	out := t
	out.Params = cloneParams(t.Params)
	out.Policy = t.Policy.clone()
	out.Tags = slices.Clone(t.Tags)
	if t.Enabled != nil {
		enabled := *t.Enabled
		out.Enabled = &enabled
	}
	return out
}

// CheckMethod enforces the load-time invariants of a method definition.
func CheckMethod(m MethodDefinition) error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("method name is required")
	}
	if m.Version != "" {
		if err := ValidateVersion(m.Version); err != nil {
			return err
		}
	}
	return checkParams(m.Params)
}

// CheckTool enforces the load-time invariants of a tool definition.
func CheckTool(t ToolDefinition) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("tool name is required")
	}
	switch t.Implementation {
	case "", ImplementationInline:
	default:
		return fmt.Errorf("unknown implementation %q (want %q)", t.Implementation, ImplementationInline)
	}
	if t.Bound() && t.Inline() {
		return fmt.Errorf("tool binds method %q and declares an inline implementation", t.Method)
	}
	return checkParams(t.Params)
}

func checkParams(params []ParamSpec) error {
	seen := make(map[string]struct{}, len(params))
	for i, p := range params {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return fmt.Errorf("params[%d]: name is required", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("params[%d]: duplicate parameter %q", i, name)
		}
		seen[name] = struct{}{}
		if p.Required && p.Default != nil {
			return fmt.Errorf("parameter %q is required and declares a default", name)
		}
	}
	return nil
}

func findParam(params []ParamSpec, name string) (ParamSpec, bool) {
	for _, p := range params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

func cloneParams(in []ParamSpec) []ParamSpec {
	if in == nil {
		return nil
	}
	out := make([]ParamSpec, len(in))
	for i, p := range in {
		out[i] = ParamSpec{Name: p.Name, FieldSpec: cloneField(p.FieldSpec)}
	}
	return out
}

func cloneField(in FieldSpec) FieldSpec {
	out := in
	out.TypeSpec = in.TypeSpec.Clone()
	return out
}

// Clone returns a deep copy of the type metadata.
func (s TypeSpec) Clone() TypeSpec {
	out := s
	if s.Items != nil {
		items := s.Items.Clone()
		out.Items = &items
	}
	if s.Properties != nil {
		out.Properties = make(map[string]FieldSpec, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = cloneField(prop)
		}
	}
	if s.AnyOf != nil {
		out.AnyOf = make([]TypeSpec, len(s.AnyOf))
		for i, alt := range s.AnyOf {
			out.AnyOf[i] = alt.Clone()
		}
	}
	out.Enum = slices.Clone(s.Enum)
	return out
}
