package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// newTestRoot creates a fresh cobra root command wired to all subcommands.
// Each test gets an isolated command tree to avoid shared state.
func newTestRoot(t *testing.T) *cobra.Command {
	t.Helper()
	// Keep ~/.toolforge/config.toml and the default ledger out of tests.
	t.Setenv("HOME", t.TempDir())
	return NewRootCmd()
}

// executeCommand runs a cobra command with the given args and captures stdout/stderr.
func executeCommand(root *cobra.Command, args ...string) (stdout, stderr string, err error) {
	var outBuf, errBuf bytes.Buffer
	root.SetOut(&outBuf)
	root.SetErr(&errBuf)
	root.SetArgs(args)
	err = root.Execute()
	return outBuf.String(), errBuf.String(), err
}

// writeTestFile creates a file with the given content in dir and returns its path.
func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %T: %v", err, err)
	}
	return exitErr.Code
}

const methodsYAML = `
methods:
  createItem:
    description: Create an item.
    params:
      - name: title
        type: string
        required: true
        max_length: 255
      - name: owner
        type: email
        required: true
  listItems:
    params:
      - name: limit
        type: integer
        ge: 1
        le: 100
  archiveItem:
    params:
      - name: id
        type: uuid
        required: true
`

const validToolsYAML = `
tools:
  - name: createItemTool
    method: createItem
    tags: [write]
    params:
      - name: title
        type: string
        required: true
        max_length: 100
      - name: owner
        type: email
        required: true
  - name: listItemsTool
    method: listItems
    params:
      - name: limit
        type: integer
        ge: 1
        le: 10
`

const invalidToolsYAML = `
tools:
  - name: createItemTool
    method: createItem
    params:
      - name: title
        type: string
        required: true
  - name: listItemsTool
    method: listItems
    params:
      - name: limit
        type: integer
        ge: 1
        le: 10
`

// sourceArgs writes the methods file and tools file into a temp dir.
func sourceArgs(t *testing.T, tools string) (dir string, args []string) {
	t.Helper()
	dir = t.TempDir()
	methods := writeTestFile(t, dir, "methods.yaml", methodsYAML)
	toolsPath := writeTestFile(t, dir, "tools.yaml", tools)
	return dir, []string{"--source", methods, "--source", toolsPath}
}

// --- Validate command tests ---

func TestValidate_Valid(t *testing.T) {
	_, src := sourceArgs(t, validToolsYAML)
	stdout, _, err := executeCommand(newTestRoot(t), append([]string{"validate"}, src...)...)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !strings.Contains(stdout, "Valid!") {
		t.Errorf("expected 'Valid!' in output, got: %q", stdout)
	}
	if !strings.Contains(stdout, "1 method has zero tool coverage") {
		t.Errorf("expected coverage line for archiveItem, got: %q", stdout)
	}
}

func TestValidate_StrictFailsOnErrors(t *testing.T) {
	_, src := sourceArgs(t, invalidToolsYAML)
	stdout, _, err := executeCommand(newTestRoot(t), append([]string{"validate"}, src...)...)
	if err == nil {
		t.Fatal("expected error for invalid tools")
	}
	if code := exitCode(t, err); code != exitValidation {
		t.Errorf("expected exit code %d, got %d", exitValidation, code)
	}
	if !strings.Contains(stdout, "ERROR [missing-required]") || !strings.Contains(stdout, "(at owner)") {
		t.Errorf("expected missing owner finding, got: %q", stdout)
	}
	if !strings.Contains(stdout, "1 error, ") {
		t.Errorf("expected summary line, got: %q", stdout)
	}
}

func TestValidate_WarnModeNeverFails(t *testing.T) {
	_, src := sourceArgs(t, invalidToolsYAML)
	args := append([]string{"validate", "--mode", "warn"}, src...)
	stdout, _, err := executeCommand(newTestRoot(t), args...)
	if err != nil {
		t.Fatalf("warn mode should exit 0, got: %v", err)
	}
	if !strings.Contains(stdout, "missing-required") {
		t.Errorf("warn mode should still print findings, got: %q", stdout)
	}
}

func TestValidate_JSONFormat(t *testing.T) {
	_, src := sourceArgs(t, invalidToolsYAML)
	args := append([]string{"validate", "--format", "json", "--mode", "warn"}, src...)
	stdout, _, err := executeCommand(newTestRoot(t), args...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got struct {
		ExitCode   int `json:"exit_code"`
		Validation struct {
			Findings [][]string `json:"findings"`
		} `json:"validation"`
	}
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("expected valid JSON, got error: %v\nOutput: %s", err, stdout)
	}
	if len(got.Validation.Findings) == 0 {
		t.Fatal("expected findings in JSON output")
	}
	first := got.Validation.Findings[0]
	if first[0] != "error" || first[1] != "createItemTool" || first[3] != "owner" || first[4] != "missing-required" {
		t.Errorf("unexpected first tuple %v", first)
	}
}

func TestValidate_FileNotFound(t *testing.T) {
	_, _, err := executeCommand(newTestRoot(t), "validate", "--source", filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing source")
	}
	if code := exitCode(t, err); code != exitFileNotFound {
		t.Errorf("expected exit code %d, got %d", exitFileNotFound, code)
	}
}

func TestValidate_MalformedSource(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "tools.yaml", "tools: [unterminated")
	_, _, err := executeCommand(newTestRoot(t), "validate", "--source", path)
	if err == nil {
		t.Fatal("expected error for malformed source")
	}
	if code := exitCode(t, err); code != exitInputParse {
		t.Errorf("expected exit code %d, got %d", exitInputParse, code)
	}
}

func TestValidate_BadMode(t *testing.T) {
	_, src := sourceArgs(t, validToolsYAML)
	args := append([]string{"validate", "--mode", "lenient"}, src...)
	_, _, err := executeCommand(newTestRoot(t), args...)
	if code := exitCode(t, err); code != exitInputParse {
		t.Errorf("expected exit code %d, got %d", exitInputParse, code)
	}
}

func TestValidate_ConfigFile(t *testing.T) {
	dir, _ := sourceArgs(t, invalidToolsYAML)
	cfgPath := writeTestFile(t, dir, "toolforge.toml", `
sources = ["methods.yaml", "tools.yaml"]

[validation]
mode = "warn"
`)
	stdout, _, err := executeCommand(newTestRoot(t), "validate", "--config", cfgPath)
	if err != nil {
		t.Fatalf("warn mode from config should exit 0, got: %v", err)
	}
	if !strings.Contains(stdout, "missing-required") {
		t.Errorf("expected findings from config sources, got: %q", stdout)
	}
}

// --- Generate and drift command tests ---

func TestGenerate_WritesFilesAndDriftIsClean(t *testing.T) {
	_, src := sourceArgs(t, validToolsYAML)
	outDir := filepath.Join(t.TempDir(), "gen")

	args := append([]string{"generate", "--output-dir", outDir, "--artifact", "tool,unit_test"}, src...)
	stdout, _, err := executeCommand(newTestRoot(t), args...)
	if err != nil {
		t.Fatalf("generate failed: %v\n%s", err, stdout)
	}
	if !strings.Contains(stdout, "Generated 2 tools, 0 failed") {
		t.Errorf("unexpected generate output: %q", stdout)
	}
	for _, name := range []string{"create_item_tool.go", "create_item_tool_test.go", "list_items_tool.go", "list_items_tool_test.go"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}

	args = append([]string{"drift", "--output-dir", outDir, "--artifact", "tool,unit_test"}, src...)
	stdout, _, err = executeCommand(newTestRoot(t), args...)
	if err != nil {
		t.Fatalf("drift after generate should be clean, got: %v\n%s", err, stdout)
	}
	if !strings.Contains(stdout, "All 4 generated files in sync.") {
		t.Errorf("unexpected drift output: %q", stdout)
	}
}

func TestGenerate_DryRunWritesNothing(t *testing.T) {
	_, src := sourceArgs(t, validToolsYAML)
	outDir := filepath.Join(t.TempDir(), "gen")

	args := append([]string{"generate", "--dry-run", "--output-dir", outDir}, src...)
	stdout, _, err := executeCommand(newTestRoot(t), args...)
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	if !strings.Contains(stdout, "would write") {
		t.Errorf("expected dry-run wording, got: %q", stdout)
	}
	if _, err := os.Stat(outDir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("dry run created %s", outDir)
	}
}

func TestGenerate_StrictBlocksOnValidationErrors(t *testing.T) {
	_, src := sourceArgs(t, invalidToolsYAML)
	outDir := filepath.Join(t.TempDir(), "gen")

	args := append([]string{"generate", "--output-dir", outDir}, src...)
	stdout, _, err := executeCommand(newTestRoot(t), args...)
	if code := exitCode(t, err); code != exitValidation {
		t.Errorf("expected exit code %d, got %d", exitValidation, code)
	}
	if !strings.Contains(stdout, "Generation blocked") {
		t.Errorf("expected blocked notice, got: %q", stdout)
	}
	if _, err := os.Stat(outDir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("blocked generation created %s", outDir)
	}
}

func TestDrift_MissingFilesFailInStrictMode(t *testing.T) {
	_, src := sourceArgs(t, validToolsYAML)
	outDir := filepath.Join(t.TempDir(), "gen")

	args := append([]string{"drift", "--output-dir", outDir, "--artifact", "tool"}, src...)
	stdout, _, err := executeCommand(newTestRoot(t), args...)
	if code := exitCode(t, err); code != exitValidation {
		t.Errorf("expected exit code %d, got %d", exitValidation, code)
	}
	if !strings.Contains(stdout, "MISSING") || !strings.Contains(stdout, "2 of 2 generated files drifted") {
		t.Errorf("unexpected drift output: %q", stdout)
	}

	args = append([]string{"drift", "--mode", "warn", "--output-dir", outDir, "--artifact", "tool"}, src...)
	if _, _, err := executeCommand(newTestRoot(t), args...); err != nil {
		t.Errorf("drift in warn mode should exit 0, got: %v", err)
	}
}

func TestGenerate_UnknownArtifact(t *testing.T) {
	_, src := sourceArgs(t, validToolsYAML)
	args := append([]string{"generate", "--artifact", "docs"}, src...)
	_, _, err := executeCommand(newTestRoot(t), args...)
	if code := exitCode(t, err); code != exitInputParse {
		t.Errorf("expected exit code %d, got %d", exitInputParse, code)
	}
}

// --- Listing, coverage and history tests ---

func TestToolsListAndInspect(t *testing.T) {
	_, src := sourceArgs(t, validToolsYAML)

	stdout, _, err := executeCommand(newTestRoot(t), append([]string{"tools", "list"}, src...)...)
	if err != nil {
		t.Fatalf("tools list error = %v", err)
	}
	if !strings.Contains(stdout, "NAME") || !strings.Contains(stdout, "createItemTool") || !strings.Contains(stdout, "bound") {
		t.Errorf("unexpected tools list output: %q", stdout)
	}

	stdout, _, err = executeCommand(newTestRoot(t), append([]string{"tools", "list", "--tag", "write"}, src...)...)
	if err != nil {
		t.Fatalf("tools list --tag error = %v", err)
	}
	if strings.Contains(stdout, "listItemsTool") {
		t.Errorf("tag filter leaked listItemsTool: %q", stdout)
	}

	stdout, _, err = executeCommand(newTestRoot(t), append([]string{"tools", "inspect", "listItemsTool", "--format", "json"}, src...)...)
	if err != nil {
		t.Fatalf("tools inspect error = %v", err)
	}
	var view map[string]any
	if err := json.Unmarshal([]byte(stdout), &view); err != nil {
		t.Fatalf("inspect output is not JSON: %v\n%s", err, stdout)
	}
	if view["kind"] != "tool" || view["status"] != "bound" {
		t.Errorf("unexpected inspect view: %v", view)
	}

	_, _, err = executeCommand(newTestRoot(t), append([]string{"tools", "inspect", "nope"}, src...)...)
	if code := exitCode(t, err); code != exitValidation {
		t.Errorf("expected exit code %d for unknown tool, got %d", exitValidation, code)
	}
}

func TestMethodsListAndInspect(t *testing.T) {
	_, src := sourceArgs(t, validToolsYAML)

	stdout, _, err := executeCommand(newTestRoot(t), append([]string{"methods", "list"}, src...)...)
	if err != nil {
		t.Fatalf("methods list error = %v", err)
	}
	if !strings.Contains(stdout, "archiveItem") || !strings.Contains(stdout, "createItemTool") {
		t.Errorf("unexpected methods list output: %q", stdout)
	}

	stdout, _, err = executeCommand(newTestRoot(t), append([]string{"methods", "inspect", "createItem"}, src...)...)
	if err != nil {
		t.Fatalf("methods inspect error = %v", err)
	}
	for _, want := range []string{"kind: method", "- createItemTool", "name: owner"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("inspect YAML missing %q:\n%s", want, stdout)
		}
	}
}

func TestCoverage(t *testing.T) {
	_, src := sourceArgs(t, validToolsYAML)

	stdout, _, err := executeCommand(newTestRoot(t), append([]string{"coverage"}, src...)...)
	if err != nil {
		t.Fatalf("coverage error = %v", err)
	}
	if !strings.Contains(stdout, "1 method has zero tool coverage (2 of 3 covered)") || !strings.Contains(stdout, "archiveItem") {
		t.Errorf("unexpected coverage output: %q", stdout)
	}

	_, _, err = executeCommand(newTestRoot(t), append([]string{"coverage", "--fail-uncovered"}, src...)...)
	if code := exitCode(t, err); code != exitValidation {
		t.Errorf("expected exit code %d, got %d", exitValidation, code)
	}
}

func TestHistoryRecordsRuns(t *testing.T) {
	_, src := sourceArgs(t, invalidToolsYAML)
	ledgerPath := filepath.Join(t.TempDir(), "ledger.db")

	args := append([]string{"validate", "--mode", "warn", "--ledger-path", ledgerPath}, src...)
	if _, _, err := executeCommand(newTestRoot(t), args...); err != nil {
		t.Fatalf("validate error = %v", err)
	}

	stdout, _, err := executeCommand(newTestRoot(t), "history", "--ledger-path", ledgerPath, "--format", "json")
	if err != nil {
		t.Fatalf("history error = %v", err)
	}
	var runs []struct {
		ID       string `json:"id"`
		Command  string `json:"command"`
		Mode     string `json:"mode"`
		Errors   int    `json:"errors"`
		ExitCode int    `json:"exit_code"`
	}
	if err := json.Unmarshal([]byte(stdout), &runs); err != nil {
		t.Fatalf("history output is not JSON: %v\n%s", err, stdout)
	}
	if len(runs) != 1 || runs[0].Command != "validate" || runs[0].Mode != "warn" || runs[0].Errors != 1 || runs[0].ExitCode != 0 {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	stdout, _, err = executeCommand(newTestRoot(t), "history", runs[0].ID, "--ledger-path", ledgerPath)
	if err != nil {
		t.Fatalf("history <id> error = %v", err)
	}
	if !strings.Contains(stdout, "Run "+runs[0].ID) {
		t.Errorf("unexpected run output: %q", stdout)
	}
}

func TestMetricsTextfile(t *testing.T) {
	_, src := sourceArgs(t, validToolsYAML)
	prom := filepath.Join(t.TempDir(), "toolforge.prom")

	args := append([]string{"validate", "--metrics-textfile", prom}, src...)
	if _, _, err := executeCommand(newTestRoot(t), args...); err != nil {
		t.Fatalf("validate error = %v", err)
	}
	data, err := os.ReadFile(prom)
	if err != nil {
		t.Fatalf("metrics textfile not written: %v", err)
	}
	if !strings.Contains(string(data), `toolforge_last_run_exit_code{command="validate",mode="strict"} 0`) {
		t.Errorf("unexpected textfile:\n%s", data)
	}
}

func TestWatchOnce(t *testing.T) {
	_, src := sourceArgs(t, invalidToolsYAML)

	stdout, _, err := executeCommand(newTestRoot(t), append([]string{"watch", "--once"}, src...)...)
	if code := exitCode(t, err); code != exitValidation {
		t.Errorf("expected exit code %d, got %d", exitValidation, code)
	}
	if !strings.Contains(stdout, "2 tools checked: 1 error") {
		t.Errorf("unexpected watch output: %q", stdout)
	}

	_, _, err = executeCommand(newTestRoot(t), append([]string{"watch", "--once", "--schedule", "TZ=UTC 0 * * * *"}, src...)...)
	if code := exitCode(t, err); code != exitInputParse {
		t.Errorf("expected exit code %d for a zoned schedule, got %d", exitInputParse, code)
	}
}
