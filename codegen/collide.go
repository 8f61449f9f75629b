package codegen

import (
	"fmt"
	"slices"

	"github.com/petal-labs/toolforge/inventory"
)

// packageIdents lists the package-level identifiers the built-in templates
// declare for a tool across the given artifacts.
func packageIdents(m ToolModel, artifacts []Artifact) []string {
	g := m.GoName
	var out []string
	for _, a := range artifacts {
		switch a {
		case ArtifactTool:
			out = append(out, g, g+"Name", g+"RequiresSession", g+"SessionScopes", g+"AuditEvents", g+"BusinessRules", g+"Params")
			if !m.Inline {
				out = append(out, g+"Method")
			}
			for _, p := range m.Patterns {
				out = append(out, p.Var)
			}
		case ArtifactUnitTest:
			out = append(out, "valid"+g+"Params", "Test"+g+"ParamsValidate", "Test"+g+"ArgsOmitReserved", "Test"+g+"Invokes")
		case ArtifactIntegrationTest:
			out = append(out, "Test"+g+"ArgumentsRoundTrip")
		case ArtifactInterfaceTest:
			out = append(out, "Test"+g+"ParamsInterface")
		}
	}
	return out
}

// checkCollisions is the batch half of the first gate. Tools in one output
// package must write distinct files and declare distinct identifiers; every
// tool involved in a clash gets a ConfigValidationError naming the others.
// Tools whose model cannot be built are left to fail in render.
func (g *Generator) checkCollisions(tools []inventory.ToolDefinition) map[string]*ConfigValidationError {
	files := make(map[string][]string)
	idents := make(map[string][]string)
	for _, t := range tools {
		for _, a := range g.cfg.Artifacts {
			file := a.FileName(t.Name)
			files[file] = append(files[file], t.Name)
		}
		model, err := buildModel(t, g.cfg.Package, g.cfg.Reserved)
		if err != nil {
			continue
		}
		seen := make(map[string]struct{})
		for _, id := range packageIdents(model, g.cfg.Artifacts) {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			idents[id] = append(idents[id], t.Name)
		}
	}

	issues := make(map[string][]FieldIssue)
	// reported keeps one issue per pair of tools; a file clash implies
	// identifier clashes that add nothing.
	reported := make(map[[2]string]bool)
	report := func(owners []string, reason func(other string) string) {
		for _, tool := range owners {
			for _, other := range owners {
				if other == tool || reported[[2]string{tool, other}] {
					continue
				}
				reported[[2]string{tool, other}] = true
				issues[tool] = append(issues[tool], FieldIssue{Field: "name", Reason: reason(other)})
			}
		}
	}

	for _, file := range sortedKeys(files) {
		if owners := files[file]; len(owners) > 1 {
			report(owners, func(other string) string {
				return fmt.Sprintf("output file %s is also written by tool %q", file, other)
			})
		}
	}
	for _, id := range sortedKeys(idents) {
		if owners := idents[id]; len(owners) > 1 {
			report(owners, func(other string) string {
				return fmt.Sprintf("generated identifier %s is also declared by tool %q", id, other)
			})
		}
	}

	if len(issues) == 0 {
		return nil
	}
	out := make(map[string]*ConfigValidationError, len(issues))
	for tool, fields := range issues {
		out[tool] = &ConfigValidationError{Tool: tool, Fields: fields}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
