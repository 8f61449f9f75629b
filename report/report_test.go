package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/petal-labs/toolforge/codegen"
	"github.com/petal-labs/toolforge/consolidate"
	"github.com/petal-labs/toolforge/ledger"
	"github.com/petal-labs/toolforge/mapping"
)

func sampleReport() mapping.Report {
	return mapping.Report{
		Findings: []mapping.Finding{
			{Severity: mapping.SeverityError, Tool: "createItemTool", Method: "createItem", Parameter: "owner", Kind: mapping.KindMissingRequired, Message: `required parameter "owner" is not declared by the tool`},
			{Severity: mapping.SeverityError, Tool: "createItemTool", Method: "createItem", Parameter: "title", Kind: mapping.KindTypeMismatch, Message: "tool declares integer, method expects string"},
			{Severity: mapping.SeverityWarning, Tool: "listItemsTool", Method: "listItems", Parameter: "cursor", Kind: mapping.KindOrphanParameter, Message: `parameter "cursor" is not accepted by the method`},
		},
		Unchecked: []string{"echoTool"},
		Summary:   mapping.Summary{ToolsChecked: 3, ToolsWithIssues: 2, Errors: 2, Warnings: 1, Unchecked: 1},
	}
}

func TestWriteValidationText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteValidationText(&buf, sampleReport()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	header := strings.Index(out, "createItemTool -> createItem\n")
	missing := strings.Index(out, "  ERROR [missing-required]")
	warning := strings.Index(out, "  WARNING [orphan-parameter]")
	if header < 0 || missing < header || warning < missing {
		t.Fatalf("findings not grouped errors first:\n%s", out)
	}
	if strings.Count(out, "createItemTool -> createItem") != 1 {
		t.Errorf("tool header repeated within one group:\n%s", out)
	}
	for _, want := range []string{"(at owner)", "Unchecked: echoTool", "Checked 3 tools, 2 with issues", "\n2 errors, 1 warning\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteValidationTextSummaryLines(t *testing.T) {
	tests := []struct {
		name    string
		summary mapping.Summary
		want    string
	}{
		{"clean", mapping.Summary{ToolsChecked: 1}, "Valid!\n"},
		{"warnings only", mapping.Summary{ToolsChecked: 2, Warnings: 2}, "\nValid! (2 warnings)\n"},
		{"single error", mapping.Summary{ToolsChecked: 1, Errors: 1}, "\n1 error, 0 warnings\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteValidationText(&buf, mapping.Report{Summary: tt.summary}); err != nil {
				t.Fatal(err)
			}
			if !strings.HasSuffix(buf.String(), tt.want) {
				t.Errorf("output = %q, want suffix %q", buf.String(), tt.want)
			}
		})
	}
}

func TestWriteValidationJSONTuples(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteValidation(&buf, sampleReport(), FormatJSON); err != nil {
		t.Fatal(err)
	}
	var got struct {
		Findings  [][]string      `json:"findings"`
		Unchecked []string        `json:"unchecked"`
		Summary   mapping.Summary `json:"summary"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if len(got.Findings) != 3 {
		t.Fatalf("findings = %d, want 3", len(got.Findings))
	}
	want := []string{"error", "createItemTool", "createItem", "owner", "missing-required"}
	for i, w := range want {
		if got.Findings[0][i] != w {
			t.Errorf("tuple[%d] = %q, want %q", i, got.Findings[0][i], w)
		}
	}
	if got.Summary.Errors != 2 || got.Summary.Warnings != 1 {
		t.Errorf("summary = %+v", got.Summary)
	}
}

func TestWriteValidationJSONEmptyArrays(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteValidationJSON(&buf, mapping.Report{}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"findings": []`) || !strings.Contains(buf.String(), `"unchecked": []`) {
		t.Errorf("expected empty arrays rather than null:\n%s", buf.String())
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("ParseFormat(\"\") = %q, %v", f, err)
	}
	if f, err := ParseFormat("JSON"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(JSON) = %q, %v", f, err)
	}
	if _, err := ParseFormat("yaml"); err == nil {
		t.Error("ParseFormat(yaml) error = nil")
	}
}

func TestWriteGenerationText(t *testing.T) {
	batch := codegen.BatchResult{
		Results: []codegen.Result{
			{
				Tool: "createItemTool", OutputPath: "tools/create_item_tool.go", Success: true, DryRun: true,
				Artifacts: []codegen.ArtifactResult{{Artifact: codegen.ArtifactTool}, {Artifact: codegen.ArtifactUnitTest}},
				Warnings:  []codegen.Warning{{Artifact: codegen.ArtifactTool, Line: 12, Message: `import "strings" is not used`}},
			},
			{Tool: "brokenTool", Err: errors.New("render failed")},
		},
		Failures: []codegen.Failure{{Tool: "brokenTool", Err: errors.New("render failed")}},
		Skipped:  []string{"offTool"},
	}
	var buf bytes.Buffer
	if err := WriteGenerationText(&buf, batch); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"would write tools/create_item_tool.go (2 files)",
		`WARNING: tool:12: import "strings" is not used`,
		"FAILED brokenTool: render failed",
		"skipped offTool (disabled)",
		"Generated 1 tool, 1 failed, 1 skipped",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteDriftText(t *testing.T) {
	var buf bytes.Buffer
	entries := []codegen.DriftEntry{
		{Tool: "a", Artifact: codegen.ArtifactTool, Path: "tools/a.go", Status: codegen.DriftInSync},
		{Tool: "b", Artifact: codegen.ArtifactTool, Path: "tools/b.go", Status: codegen.DriftDiffers},
		{Tool: "c", Status: codegen.DriftError, Error: "template failed"},
	}
	if err := WriteDriftText(&buf, entries); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Contains(out, "tools/a.go") {
		t.Errorf("in-sync file listed:\n%s", out)
	}
	for _, want := range []string{"DIFFERS tools/b.go (b tool)", "ERROR c: template failed", "2 of 3 generated files drifted"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := WriteDriftText(&buf, entries[:1]); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "All 1 generated file in sync.\n" {
		t.Errorf("in-sync output = %q", buf.String())
	}
}

func TestWriteCoverageText(t *testing.T) {
	cov := consolidate.Coverage{
		Methods:   3,
		Tools:     3,
		Uncovered: []string{"deleteItem"},
		Dangling:  []string{"ghostTool"},
		Disabled:  []string{"offTool"},
	}
	var buf bytes.Buffer
	if err := WriteCoverageText(&buf, cov); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"1 method has zero tool coverage (2 of 3 covered)",
		"Methods without tools:\n  deleteItem",
		"Tools bound to unknown methods:\n  ghostTool",
		"Disabled tools:\n  offTool",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Inline tools") {
		t.Errorf("empty section printed:\n%s", out)
	}
}

func sampleOutcome() consolidate.Outcome {
	r := sampleReport()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return consolidate.Outcome{
		RunID:    "6f1c2a9e-0000-4000-8000-000000000001",
		Command:  "generate",
		Mode:     consolidate.ModeStrict,
		Report:   &r,
		Coverage: consolidate.Coverage{Methods: 4, Uncovered: []string{"deleteItem"}},
		Blocked:  true,
		Drift: []codegen.DriftEntry{
			{Tool: "a", Status: codegen.DriftInSync},
			{Tool: "b", Status: codegen.DriftMissing},
		},
		ExitCode:   consolidate.ExitValidation,
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
	}
}

func TestWriteOutcome(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteOutcome(&buf, sampleOutcome(), FormatText); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"2 errors, 1 warning", "Generation blocked", "1 of 2 generated files drifted"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}

	buf.Reset()
	if err := WriteOutcome(&buf, sampleOutcome(), FormatJSON); err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got["exit_code"].(float64) != 1 || got["blocked"] != true || got["duration_ms"].(float64) != 1500 {
		t.Errorf("unexpected outcome JSON: %v", got)
	}
	if _, ok := got["validation"].(map[string]any)["findings"].([]any); !ok {
		t.Errorf("validation findings missing: %v", got["validation"])
	}
}

func TestWriteRuns(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	run := ledger.Run{
		ID:         "0123456789abcdef",
		Command:    "generate",
		Mode:       "warn",
		DryRun:     true,
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Second),
		Errors:     1,
		Generated:  2,
		Sources:    []string{"defs/methods.yaml"},
		Artifacts: []ledger.Artifact{
			{Tool: "createItemTool", Kind: "tool", Path: "tools/create_item_tool.go", SHA256: strings.Repeat("ab", 32), Status: ledger.StatusPlanned},
		},
	}

	var buf bytes.Buffer
	if err := WriteRunsText(&buf, []ledger.Run{run}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "01234567") || !strings.Contains(buf.String(), "generate (dry-run)") {
		t.Errorf("runs table:\n%s", buf.String())
	}

	buf.Reset()
	if err := WriteRunText(&buf, run); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Run 0123456789abcdef", "duration: 2s", "1 error, 0 warnings", "tools/create_item_tool.go", "abababababab"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("run output missing %q:\n%s", want, buf.String())
		}
	}
}

func TestWriteTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toolforge.prom")
	if err := WriteTextfile(path, sampleOutcome()); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{
		`toolforge_last_run_exit_code{command="generate",mode="strict"} 1`,
		`toolforge_validation_findings{command="generate",mode="strict",severity="error"} 2`,
		`toolforge_method_coverage_ratio{command="generate",mode="strict"} 0.75`,
		`toolforge_drift_artifacts{command="generate",mode="strict",status="missing"} 1`,
		`toolforge_drift_artifacts{command="generate",mode="strict",status="differs"} 0`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("textfile missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "toolforge_generation_tools{") {
		t.Errorf("generation metrics written without a generation run:\n%s", out)
	}
}
