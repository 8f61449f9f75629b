package mapping

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/petal-labs/toolforge/inventory"
)

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

func param(name string, required bool, spec inventory.TypeSpec) inventory.ParamSpec {
	return inventory.ParamSpec{Name: name, FieldSpec: inventory.FieldSpec{TypeSpec: spec, Required: required}}
}

func newCatalog(t *testing.T, methods []inventory.MethodDefinition, tools []inventory.ToolDefinition) *inventory.Catalog {
	t.Helper()
	cat := inventory.NewCatalog()
	for _, m := range methods {
		if err := cat.Methods.Register(m); err != nil {
			t.Fatal(err)
		}
	}
	for _, tool := range tools {
		if err := cat.Tools.Register(tool); err != nil {
			t.Fatal(err)
		}
	}
	cat.Seal(nil, time.Now())
	return cat
}

func validate(t *testing.T, opts Options, methods []inventory.MethodDefinition, tools []inventory.ToolDefinition) Report {
	t.Helper()
	report, err := NewValidator(opts).Validate(context.Background(), newCatalog(t, methods, tools))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	return report
}

var createItem = inventory.MethodDefinition{
	Name: "createItem",
	Params: []inventory.ParamSpec{
		param("title", true, inventory.TypeSpec{Type: "string", MinLength: iptr(1), MaxLength: iptr(255)}),
		param("owner", true, inventory.TypeSpec{Type: "string"}),
	},
}

var listItems = inventory.MethodDefinition{
	Name: "listItems",
	Params: []inventory.ParamSpec{
		param("limit", false, inventory.TypeSpec{Type: "integer", GE: fptr(1), LE: fptr(100)}),
	},
}

func TestCreateItemMissingOwner(t *testing.T) {
	tool := inventory.ToolDefinition{
		Name:   "createItemTool",
		Method: "createItem",
		Params: []inventory.ParamSpec{
			param("title", true, inventory.TypeSpec{Type: "string", MinLength: iptr(1), MaxLength: iptr(255)}),
		},
	}
	report := validate(t, Options{}, []inventory.MethodDefinition{createItem}, []inventory.ToolDefinition{tool})

	if report.Summary.Errors != 1 || report.Summary.Warnings != 0 {
		t.Fatalf("Summary = %+v, findings = %+v", report.Summary, report.Findings)
	}
	f := report.Findings[0]
	if f.Kind != KindMissingRequired || f.Parameter != "owner" || f.Tool != "createItemTool" || f.Method != "createItem" {
		t.Fatalf("finding = %+v", f)
	}
	if !report.HasErrors() {
		t.Fatal("HasErrors() = false")
	}
}

func TestListItemsNarrowerLimitIsClean(t *testing.T) {
	tool := inventory.ToolDefinition{
		Name:   "listItemsTool",
		Method: "listItems",
		Params: []inventory.ParamSpec{param("limit", false, inventory.TypeSpec{Type: "integer", GE: fptr(1), LE: fptr(10)})},
	}
	report := validate(t, Options{}, []inventory.MethodDefinition{listItems}, []inventory.ToolDefinition{tool})
	if len(report.Findings) != 0 {
		t.Fatalf("Findings = %+v, want none", report.Findings)
	}
	if report.Summary.ToolsChecked != 1 || report.Summary.ToolsWithIssues != 0 {
		t.Fatalf("Summary = %+v", report.Summary)
	}
}

func TestListItemsUnboundedLimitWarns(t *testing.T) {
	tool := inventory.ToolDefinition{
		Name:   "listItemsTool",
		Method: "listItems",
		Params: []inventory.ParamSpec{param("limit", false, inventory.TypeSpec{Type: "integer"})},
	}
	report := validate(t, Options{}, []inventory.MethodDefinition{listItems}, []inventory.ToolDefinition{tool})
	if report.Summary.Errors != 0 || report.Summary.Warnings != 1 {
		t.Fatalf("Summary = %+v, findings = %+v", report.Summary, report.Findings)
	}
	f := report.Findings[0]
	if f.Kind != KindConstraintMismatch || f.Parameter != "limit" {
		t.Fatalf("finding = %+v", f)
	}
	for _, want := range []string{">= 1", "<= 100"} {
		if !strings.Contains(f.Message, want) {
			t.Errorf("Message = %q, want it to mention %q", f.Message, want)
		}
	}
}

func TestNumericStrictnessBothDirections(t *testing.T) {
	tests := []struct {
		name         string
		spec         inventory.TypeSpec
		wantWarnings int
	}{
		{name: "narrower both sides", spec: inventory.TypeSpec{Type: "integer", GE: fptr(5), LE: fptr(50)}},
		{name: "identical", spec: inventory.TypeSpec{Type: "integer", GE: fptr(1), LE: fptr(100)}},
		{name: "exclusive equivalent over integers", spec: inventory.TypeSpec{Type: "integer", GT: fptr(0), LT: fptr(101)}},
		{name: "wider upper", spec: inventory.TypeSpec{Type: "integer", GE: fptr(1), LE: fptr(500)}, wantWarnings: 1},
		{name: "wider lower", spec: inventory.TypeSpec{Type: "integer", GE: fptr(0), LE: fptr(100)}, wantWarnings: 1},
		{name: "wider both", spec: inventory.TypeSpec{Type: "integer", GE: fptr(-5), LE: fptr(1000)}, wantWarnings: 1},
		{name: "number alias", spec: inventory.TypeSpec{Type: "number", GE: fptr(1), LE: fptr(100)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := inventory.ToolDefinition{Name: "tool", Method: "listItems", Params: []inventory.ParamSpec{param("limit", false, tt.spec)}}
			report := validate(t, Options{}, []inventory.MethodDefinition{listItems}, []inventory.ToolDefinition{tool})
			if report.Summary.Errors != 0 {
				t.Fatalf("Errors = %d, want 0 (%+v)", report.Summary.Errors, report.Findings)
			}
			if report.Summary.Warnings != tt.wantWarnings {
				t.Fatalf("Warnings = %d, want %d (%+v)", report.Summary.Warnings, tt.wantWarnings, report.Findings)
			}
		})
	}
}

func TestRequiredCoverageCompleteness(t *testing.T) {
	const k = 5
	method := inventory.MethodDefinition{Name: "bulk"}
	for i := 0; i < k; i++ {
		method.Params = append(method.Params, param(fmt.Sprintf("p%d", i), true, inventory.TypeSpec{Type: "string"}))
	}
	for m := 0; m <= k; m++ {
		tool := inventory.ToolDefinition{Name: "bulkTool", Method: "bulk"}
		for i := m; i < k; i++ {
			tool.Params = append(tool.Params, param(fmt.Sprintf("p%d", i), true, inventory.TypeSpec{Type: "string"}))
		}
		report := validate(t, Options{}, []inventory.MethodDefinition{method}, []inventory.ToolDefinition{tool})
		if got := report.Count(KindMissingRequired); got != m {
			t.Fatalf("omitting %d params: missing-required = %d", m, got)
		}
		if len(report.Findings) != m {
			t.Fatalf("omitting %d params: %d findings", m, len(report.Findings))
		}
	}
}

func TestReservedOnlyToolHasNoErrors(t *testing.T) {
	method := inventory.MethodDefinition{Name: "ping", Params: []inventory.ParamSpec{param("verbose", false, inventory.TypeSpec{Type: "boolean"})}}
	tool := inventory.ToolDefinition{
		Name:   "pingTool",
		Method: "ping",
		Params: []inventory.ParamSpec{
			param("dry_run", false, inventory.TypeSpec{Type: "boolean"}),
			param("timeout", false, inventory.TypeSpec{Type: "number"}),
			param("execution_mode", false, inventory.TypeSpec{Type: "enum(sync, async)"}),
		},
	}
	report := validate(t, Options{}, []inventory.MethodDefinition{method}, []inventory.ToolDefinition{tool})
	if len(report.Findings) != 0 {
		t.Fatalf("Findings = %+v, want none", report.Findings)
	}

	withoutReserved := validate(t, Options{Reserved: []string{}}, []inventory.MethodDefinition{method}, []inventory.ToolDefinition{tool})
	if got := withoutReserved.Count(KindOrphanParameter); got != 3 {
		t.Fatalf("orphans without reserved list = %d, want 3", got)
	}
}

func TestUnresolvedMethodSkipsFurtherChecks(t *testing.T) {
	tool := inventory.ToolDefinition{
		Name:   "ghostTool",
		Method: "ghost",
		Params: []inventory.ParamSpec{param("anything", false, inventory.TypeSpec{Type: "string"})},
	}
	report := validate(t, Options{}, nil, []inventory.ToolDefinition{tool})
	if len(report.Findings) != 1 || report.Findings[0].Kind != KindUnresolvedMethod || report.Findings[0].Severity != SeverityError {
		t.Fatalf("Findings = %+v", report.Findings)
	}
}

func TestOrphanAndTypeMismatch(t *testing.T) {
	tool := inventory.ToolDefinition{
		Name:   "createItemTool",
		Method: "createItem",
		Params: []inventory.ParamSpec{
			param("title", true, inventory.TypeSpec{Type: "integer"}),
			param("owner", true, inventory.TypeSpec{Type: "string"}),
			param("colour", false, inventory.TypeSpec{Type: "string"}),
		},
	}
	report := validate(t, Options{}, []inventory.MethodDefinition{createItem}, []inventory.ToolDefinition{tool})
	if report.Count(KindTypeMismatch) != 1 || report.Count(KindOrphanParameter) != 1 {
		t.Fatalf("Findings = %+v", report.Findings)
	}
	if report.Findings[0].Kind != KindTypeMismatch {
		t.Fatalf("errors are not first: %+v", report.Findings)
	}
}

func TestUncheckedTools(t *testing.T) {
	opaque := inventory.MethodDefinition{Name: "external", Opaque: true}
	tools := []inventory.ToolDefinition{
		{Name: "inlineTool", Implementation: inventory.ImplementationInline},
		{Name: "externalTool", Method: "external", Params: []inventory.ParamSpec{param("q", false, inventory.TypeSpec{Type: "string"})}},
	}

	skipped := validate(t, Options{}, []inventory.MethodDefinition{opaque}, tools)
	if len(skipped.Findings) != 0 || skipped.Summary.Unchecked != 0 || skipped.Summary.ToolsChecked != 0 {
		t.Fatalf("default report = %+v", skipped)
	}

	included := validate(t, Options{IncludeUnchecked: true}, []inventory.MethodDefinition{opaque}, tools)
	if included.Count(KindUnchecked) != 2 || included.Summary.Unchecked != 2 {
		t.Fatalf("included report = %+v", included)
	}
	if included.Unchecked[0] != "externalTool" || included.HasErrors() {
		t.Fatalf("Unchecked = %v", included.Unchecked)
	}
}

func TestReportOrderingErrorsFirstGroupedByTool(t *testing.T) {
	tools := []inventory.ToolDefinition{
		{Name: "b", Method: "createItem", Params: []inventory.ParamSpec{param("extra", false, inventory.TypeSpec{})}},
		{Name: "a", Method: "createItem", Params: []inventory.ParamSpec{param("extra", false, inventory.TypeSpec{})}},
		{Name: "c", Method: "missing"},
	}
	report := validate(t, Options{}, []inventory.MethodDefinition{createItem}, tools)

	var got []string
	for _, f := range report.Findings {
		got = append(got, fmt.Sprintf("%s:%s:%s", f.Severity, f.Tool, f.Parameter))
	}
	want := []string{
		"error:a:title", "error:a:owner",
		"error:b:title", "error:b:owner",
		"error:c:",
		"warning:a:extra", "warning:b:extra",
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("order = %v\nwant    %v", got, want)
	}
	if report.Summary.ToolsWithIssues != 3 || report.Summary.ToolsChecked != 3 {
		t.Fatalf("Summary = %+v", report.Summary)
	}

	errorsOnly := report.Filter(true)
	if len(errorsOnly.Findings) != 5 || errorsOnly.Summary.Warnings != 2 {
		t.Fatalf("Filter(true) = %+v", errorsOnly)
	}
}

func TestSeverityPolicyOverride(t *testing.T) {
	policy, err := ParsePolicy(map[string]string{"orphan-parameter": "error"})
	if err != nil {
		t.Fatal(err)
	}
	tool := inventory.ToolDefinition{Name: "t", Method: "listItems", Params: []inventory.ParamSpec{param("extra", false, inventory.TypeSpec{Type: "string"})}}
	report := validate(t, Options{Severity: policy}, []inventory.MethodDefinition{listItems}, []inventory.ToolDefinition{tool})
	if !report.HasErrors() || report.Findings[0].Kind != KindOrphanParameter {
		t.Fatalf("Findings = %+v", report.Findings)
	}

	if _, err := ParsePolicy(map[string]string{"orphan-parameter": "fatal"}); err == nil {
		t.Fatal("ParsePolicy() accepted unknown severity")
	}
	if _, err := ParsePolicy(map[string]string{"typo": "error"}); err == nil {
		t.Fatal("ParsePolicy() accepted unknown kind")
	}
}

func TestNestedRequiredFieldMissing(t *testing.T) {
	method := inventory.MethodDefinition{Name: "ship", Params: []inventory.ParamSpec{
		param("address", true, inventory.TypeSpec{Type: "object", Properties: map[string]inventory.FieldSpec{
			"street": {TypeSpec: inventory.TypeSpec{Type: "string"}, Required: true},
			"zip":    {TypeSpec: inventory.TypeSpec{Type: "string"}, Required: true},
			"note":   {TypeSpec: inventory.TypeSpec{Type: "string"}},
		}}),
	}}
	tool := inventory.ToolDefinition{Name: "shipTool", Method: "ship", Params: []inventory.ParamSpec{
		param("address", true, inventory.TypeSpec{Type: "object", Properties: map[string]inventory.FieldSpec{
			"street": {TypeSpec: inventory.TypeSpec{Type: "string"}, Required: true},
			"floor":  {TypeSpec: inventory.TypeSpec{Type: "integer"}},
		}}),
	}}
	report := validate(t, Options{}, []inventory.MethodDefinition{method}, []inventory.ToolDefinition{tool})

	errs := report.Errors()
	if len(errs) != 1 || errs[0].Kind != KindMissingRequired || errs[0].Parameter != "address.zip" {
		t.Fatalf("Errors() = %+v", errs)
	}
	warns := report.Warnings()
	if len(warns) != 1 || warns[0].Kind != KindOrphanParameter || warns[0].Parameter != "address.floor" {
		t.Fatalf("Warnings() = %+v", warns)
	}
}

func TestValidateRejectsNilCatalog(t *testing.T) {
	if _, err := NewValidator(Options{}).Validate(context.Background(), nil); err == nil {
		t.Fatal("Validate(nil) error = nil")
	}
}

func TestFindingTuple(t *testing.T) {
	f := Finding{Severity: SeverityError, Tool: "t", Method: "m", Parameter: "p", Kind: KindMissingRequired, Message: "msg"}
	if got := f.Tuple(); got != [6]string{"error", "t", "m", "p", "missing-required", "msg"} {
		t.Fatalf("Tuple() = %v", got)
	}
}
