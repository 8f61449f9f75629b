package codegen

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"text/template"
)

//go:embed templates/*.tmpl
var builtinTemplates embed.FS

// Artifact is a kind of generated file.
type Artifact string

const (
	ArtifactTool            Artifact = "tool"
	ArtifactUnitTest        Artifact = "unit_test"
	ArtifactIntegrationTest Artifact = "integration_test"
	ArtifactInterfaceTest   Artifact = "interface_test"
)

// AllArtifacts lists every artifact kind in generation order.
var AllArtifacts = []Artifact{ArtifactTool, ArtifactUnitTest, ArtifactIntegrationTest, ArtifactInterfaceTest}

// ParseArtifact validates an artifact name.
func ParseArtifact(s string) (Artifact, error) {
	for _, a := range AllArtifacts {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("codegen: unknown artifact %q", s)
}

func (a Artifact) templateName() string {
	if a == ArtifactTool {
		return "tool.go.tmpl"
	}
	return string(a) + ".go.tmpl"
}

// FileName returns the output file name for a tool.
func (a Artifact) FileName(tool string) string {
	stem := SnakeName(tool)
	switch a {
	case ArtifactUnitTest:
		return stem + "_test.go"
	case ArtifactIntegrationTest:
		return stem + "_integration_test.go"
	case ArtifactInterfaceTest:
		return stem + "_interface_test.go"
	}
	return stem + ".go"
}

// Templates holds one parsed template per artifact.
type Templates struct {
	byArtifact map[Artifact]*template.Template
}

// LoadTemplates parses the built-in templates, replacing any that have a
// same-named file in dir. An empty dir selects the built-ins only.
func LoadTemplates(dir string) (*Templates, error) {
	t := &Templates{byArtifact: make(map[Artifact]*template.Template, len(AllArtifacts))}
	for _, a := range AllArtifacts {
		name := a.templateName()
		src, err := fs.ReadFile(builtinTemplates, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("codegen: built-in template %s: %w", name, err)
		}
		if dir != "" {
			override, err := os.ReadFile(filepath.Join(dir, name)) // #nosec G304 -- templates dir from config
			switch {
			case err == nil:
				src = override
			case !errors.Is(err, fs.ErrNotExist):
				return nil, fmt.Errorf("codegen: template %s: %w", name, err)
			}
		}
		tmpl, err := template.New(name).Option("missingkey=error").Parse(string(src))
		if err != nil {
			return nil, fmt.Errorf("codegen: template %s: %w", name, err)
		}
		t.byArtifact[a] = tmpl
	}
	return t, nil
}

// render executes the artifact template. The model is passed as a map so
// that a reference to an unknown key fails instead of rendering "<no value>".
func (t *Templates) render(a Artifact, m ToolModel) ([]byte, error) {
	tmpl, ok := t.byArtifact[a]
	if !ok {
		return nil, fmt.Errorf("no template for artifact %q", a)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, modelData(m)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func modelData(m ToolModel) map[string]any {
	return map[string]any{
		"Package":      m.Package,
		"Name":         m.Name,
		"GoName":       m.GoName,
		"Description":  m.Description,
		"Method":       m.Method,
		"Inline":       m.Inline,
		"Params":       m.Params,
		"Patterns":     m.Patterns,
		"Imports":      m.Imports,
		"Policy":       m.Policy,
		"Reserved":     m.Reserved,
		"SampleOK":     m.SampleOK,
		"SampleReason": m.SampleReason,
	}
}
