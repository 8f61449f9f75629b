package codegen

import (
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"path"
	"slices"
	"strconv"
)

// Warning is an advisory finding of the static-analysis pass.
type Warning struct {
	Artifact Artifact `json:"artifact"`
	Line     int      `json:"line,omitempty"`
	Message  string   `json:"message"`
}

func (w Warning) String() string {
	if w.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", w.Artifact, w.Line, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.Artifact, w.Message)
}

// checkSource parses rendered source with the Go parser, runs the advisory
// analysis and returns gofmt-formatted output.
func checkSource(filename string, src []byte, artifact Artifact) ([]byte, []Warning, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		return nil, nil, err
	}
	warnings := analyze(fset, file, artifact)
	formatted, err := format.Source(src)
	if err != nil {
		return nil, nil, err
	}
	return formatted, warnings, nil
}

// analyze reports imports the file never references and function
// parameters a body never reads.
func analyze(fset *token.FileSet, file *ast.File, artifact Artifact) []Warning {
	var warnings []Warning

	used := make(map[string]struct{})
	ast.Inspect(file, func(n ast.Node) bool {
		if sel, ok := n.(*ast.SelectorExpr); ok {
			if id, ok := sel.X.(*ast.Ident); ok {
				used[id.Name] = struct{}{}
			}
		}
		return true
	})
	for _, imp := range file.Imports {
		importPath, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		name := path.Base(importPath)
		if imp.Name != nil {
			name = imp.Name.Name
		}
		if name == "_" || name == "." {
			continue
		}
		if _, ok := used[name]; !ok {
			warnings = append(warnings, Warning{
				Artifact: artifact,
				Line:     fset.Position(imp.Pos()).Line,
				Message:  fmt.Sprintf("import %q is not used", importPath),
			})
		}
	}

	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}
		referenced := make(map[string]struct{})
		ast.Inspect(fn.Body, func(n ast.Node) bool {
			if id, ok := n.(*ast.Ident); ok {
				referenced[id.Name] = struct{}{}
			}
			return true
		})
		for _, field := range fn.Type.Params.List {
			for _, name := range field.Names {
				if name.Name == "_" {
					continue
				}
				if _, ok := referenced[name.Name]; !ok {
					warnings = append(warnings, Warning{
						Artifact: artifact,
						Line:     fset.Position(name.Pos()).Line,
						Message:  fmt.Sprintf("parameter %q of %s is never used", name.Name, fn.Name.Name),
					})
				}
			}
		}
	}

	slices.SortStableFunc(warnings, func(a, b Warning) int { return a.Line - b.Line })
	return warnings
}
