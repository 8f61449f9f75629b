// Package codegen turns tool definitions into Go wrapper source and test
// scaffolding. Every artifact passes configuration checks, template
// rendering, the Go parser and an advisory analysis before it is written
// atomically.
package codegen

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/petal-labs/toolforge/inventory"
	"github.com/petal-labs/toolforge/mapping"
)

// Mode selects whether Generate writes files.
type Mode string

const (
	ModeNormal Mode = "normal"
	ModeDryRun Mode = "dry_run"
)

const defaultPackage = "tools"

// Config configures a Generator.
type Config struct {
	OutputDir string
	// Package is the Go package of the generated files. Defaults to "tools".
	Package string
	// Artifacts to generate. Defaults to AllArtifacts. The integration test
	// artifact reuses helpers from the unit test and pulls it in.
	Artifacts []Artifact
	// Reserved control parameters; nil selects mapping.DefaultReserved.
	Reserved []string
	// TemplatesDir holds optional template overrides.
	TemplatesDir string
	// AuditEvents is the declared audit-event catalog. When nil, audit-event
	// references are not checked.
	AuditEvents []string
	// Parallelism bounds GenerateAll. Defaults to 1.
	Parallelism int
	KeepBackups bool
	// BackupDir holds backups; defaults to the target's directory.
	BackupDir string
	Logger    *slog.Logger
}

// ArtifactResult describes one generated file.
type ArtifactResult struct {
	Artifact   Artifact  `json:"artifact"`
	Path       string    `json:"path"`
	SHA256     string    `json:"sha256"`
	BackupPath string    `json:"backup_path,omitempty"`
	Warnings   []Warning `json:"warnings,omitempty"`
}

// Result is the outcome of generating one tool.
type Result struct {
	Tool string `json:"tool"`
	// OutputPath is the path of the tool artifact, or of the first artifact
	// when the tool artifact was not requested.
	OutputPath string           `json:"output_path"`
	Success    bool             `json:"success"`
	Warnings   []Warning        `json:"warnings,omitempty"`
	BackupPath string           `json:"backup_path,omitempty"`
	DryRun     bool             `json:"dry_run"`
	Artifacts  []ArtifactResult `json:"artifacts"`
	Err        error            `json:"-"`
}

// Failure pairs a tool with the error that stopped its generation.
type Failure struct {
	Tool string `json:"tool"`
	Err  error  `json:"-"`
}

// BatchResult aggregates a GenerateAll run. Partial success is normal.
type BatchResult struct {
	Results  []Result  `json:"results"`
	Failures []Failure `json:"-"`
	Skipped  []string  `json:"skipped,omitempty"`
}

// Succeeded counts successful tools.
func (b BatchResult) Succeeded() int {
	n := 0
	for _, r := range b.Results {
		if r.Success {
			n++
		}
	}
	return n
}

// Generator renders and writes tool artifacts.
type Generator struct {
	cfg       Config
	templates *Templates
	writer    *fileWriter
	logger    *slog.Logger
}

// New returns a generator for cfg.
func New(cfg Config) (*Generator, error) {
	if strings.TrimSpace(cfg.OutputDir) == "" {
		return nil, errors.New("codegen: output directory is required")
	}
	if cfg.Package == "" {
		cfg.Package = defaultPackage
	}
	if problem := identifierProblem(cfg.Package); problem != "" || cfg.Package != strings.ToLower(cfg.Package) {
		return nil, fmt.Errorf("codegen: invalid package name %q", cfg.Package)
	}
	if len(cfg.Artifacts) == 0 {
		cfg.Artifacts = AllArtifacts
	}
	cfg.Artifacts = normalizeArtifacts(cfg.Artifacts)
	if cfg.Reserved == nil {
		cfg.Reserved = mapping.DefaultReserved
	}
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	templates, err := LoadTemplates(cfg.TemplatesDir)
	if err != nil {
		return nil, err
	}
	return &Generator{
		cfg:       cfg,
		templates: templates,
		writer:    newFileWriter(cfg.BackupDir, cfg.KeepBackups),
		logger:    cfg.Logger,
	}, nil
}

func normalizeArtifacts(in []Artifact) []Artifact {
	set := slices.Clone(in)
	if slices.Contains(set, ArtifactIntegrationTest) && !slices.Contains(set, ArtifactUnitTest) {
		set = append(set, ArtifactUnitTest)
	}
	out := make([]Artifact, 0, len(set))
	for _, a := range AllArtifacts {
		if slices.Contains(set, a) {
			out = append(out, a)
		}
	}
	return out
}

// Artifacts returns the artifact kinds this generator produces.
func (g *Generator) Artifacts() []Artifact { return slices.Clone(g.cfg.Artifacts) }

// Path returns the output path of an artifact for a tool.
func (g *Generator) Path(tool string, a Artifact) string {
	return filepath.Join(g.cfg.OutputDir, a.FileName(tool))
}

type renderedFile struct {
	artifact Artifact
	path     string
	data     []byte
	warnings []Warning
}

// Generate produces every configured artifact for one tool. Each gate must
// pass before the next runs; in dry-run mode nothing is written.
func (g *Generator) Generate(ctx context.Context, tool inventory.ToolDefinition, mode Mode) (Result, error) {
	res := Result{Tool: tool.Name, DryRun: mode == ModeDryRun}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res, err
	}

	files, err := g.render(tool)
	if err != nil {
		res.Err = err
		return res, err
	}

	paths := make([]*pendingFile, 0, len(files))
	for _, f := range files {
		res.Warnings = append(res.Warnings, f.warnings...)
		sum := sha256.Sum256(f.data)
		res.Artifacts = append(res.Artifacts, ArtifactResult{
			Artifact: f.artifact,
			Path:     f.path,
			SHA256:   hex.EncodeToString(sum[:]),
			Warnings: f.warnings,
		})
		paths = append(paths, &pendingFile{path: f.path, data: f.data})
	}
	res.OutputPath = res.Artifacts[0].Path

	if mode == ModeDryRun {
		res.Success = true
		g.logger.Debug("dry-run generation", "tool", tool.Name, "artifacts", len(files), "warnings", len(res.Warnings))
		return res, nil
	}

	backups, err := g.writer.write(paths)
	if err != nil {
		var we *WriteError
		if errors.As(err, &we) {
			we.Tool = tool.Name
		}
		res.Err = err
		return res, err
	}
	for i := range res.Artifacts {
		res.Artifacts[i].BackupPath = backups[res.Artifacts[i].Path]
	}
	res.BackupPath = res.Artifacts[0].BackupPath
	res.Success = true
	g.logger.Info("generated tool", "tool", tool.Name, "path", res.OutputPath, "artifacts", len(files), "warnings", len(res.Warnings))
	return res, nil
}

// render runs gates 1 to 4 for every artifact of a tool.
func (g *Generator) render(tool inventory.ToolDefinition) ([]renderedFile, error) {
	if err := g.checkConfig(tool); err != nil {
		return nil, err
	}
	model, err := buildModel(tool, g.cfg.Package, g.cfg.Reserved)
	if err != nil {
		return nil, &ConfigValidationError{Tool: tool.Name, Fields: []FieldIssue{{Field: "params", Reason: err.Error()}}}
	}

	files := make([]renderedFile, 0, len(g.cfg.Artifacts))
	for _, a := range g.cfg.Artifacts {
		src, err := g.templates.render(a, model)
		if err != nil {
			return nil, &RenderError{Tool: tool.Name, Artifact: a, Err: err}
		}
		path := g.Path(tool.Name, a)
		formatted, warnings, err := checkSource(filepath.Base(path), src, a)
		if err != nil {
			return nil, &GeneratedSyntaxError{Tool: tool.Name, Artifact: a, Source: string(src), Err: err}
		}
		files = append(files, renderedFile{artifact: a, path: path, data: formatted, warnings: warnings})
	}
	return files, nil
}

// checkConfig is the first gate: names must produce distinct, legal Go
// identifiers and audit events must resolve.
func (g *Generator) checkConfig(tool inventory.ToolDefinition) error {
	var issues []FieldIssue
	if problem := identifierProblem(tool.Name); problem != "" {
		issues = append(issues, FieldIssue{Field: "name", Reason: problem})
	}

	seen := make(map[string]string, len(tool.Params))
	for _, p := range tool.Params {
		field := "params." + p.Name
		if problem := identifierProblem(p.Name); problem != "" {
			issues = append(issues, FieldIssue{Field: field, Reason: problem})
			continue
		}
		ident := GoName(p.Name)
		if prev, dup := seen[ident]; dup {
			issues = append(issues, FieldIssue{Field: field, Reason: fmt.Sprintf("collides with %q as Go field %s", prev, ident)})
			continue
		}
		if slices.Contains(generatedMembers, ident) {
			issues = append(issues, FieldIssue{Field: field, Reason: fmt.Sprintf("Go field %s collides with a generated method", ident)})
			continue
		}
		seen[ident] = p.Name
	}

	if g.cfg.AuditEvents != nil {
		for _, ev := range tool.Policy.AuditEvents {
			if !slices.Contains(g.cfg.AuditEvents, ev) {
				issues = append(issues, FieldIssue{Field: "policy.audit_events." + ev, Reason: "audit event is not declared"})
			}
		}
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Tool: tool.Name, Fields: issues}
	}
	return nil
}

// GenerateAll generates each enabled tool independently. A failing tool is
// recorded and the batch moves on. Tools that would share an output file or
// a generated identifier fail before anything is rendered.
func (g *Generator) GenerateAll(ctx context.Context, tools []inventory.ToolDefinition, mode Mode) BatchResult {
	var batch BatchResult
	work := make([]inventory.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		if !t.IsEnabled() {
			batch.Skipped = append(batch.Skipped, t.Name)
			continue
		}
		work = append(work, t)
	}

	conflicts := g.checkCollisions(work)
	results := make([]Result, len(work))
	sem := make(chan struct{}, g.cfg.Parallelism)
	var wg sync.WaitGroup
	for i, t := range work {
		if cerr, ok := conflicts[t.Name]; ok {
			g.logger.Warn("tool generation failed", "tool", t.Name, "error", cerr)
			results[i] = Result{Tool: t.Name, DryRun: mode == ModeDryRun, Err: cerr}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = Result{Tool: t.Name, DryRun: mode == ModeDryRun, Err: ctx.Err()}
				return
			}
			res, err := g.Generate(ctx, t, mode)
			if err != nil {
				g.logger.Warn("tool generation failed", "tool", t.Name, "error", err)
			}
			results[i] = res
		}()
	}
	wg.Wait()

	slices.SortFunc(results, func(a, b Result) int { return cmp.Compare(a.Tool, b.Tool) })
	batch.Results = results
	for _, r := range results {
		if r.Err != nil {
			batch.Failures = append(batch.Failures, Failure{Tool: r.Tool, Err: r.Err})
		}
	}
	slices.Sort(batch.Skipped)
	return batch
}
