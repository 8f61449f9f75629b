package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/petal-labs/toolforge/constraint"
	"github.com/petal-labs/toolforge/inventory"
)

// SourceInline is recorded as the Source of definitions registered from code.
const SourceInline = "inline"

// Options tune a load pass.
type Options struct {
	Logger *slog.Logger
	// Inline methods and tools form the lowest layer; file definitions with
	// the same name replace them.
	Inline      []inventory.MethodDefinition
	InlineTools []inventory.ToolDefinition
	// Now stamps the sealed catalog. Defaults to time.Now.
	Now func() time.Time
}

// Document is the decoded content of one inventory source.
type Document struct {
	Methods     MethodSection `json:"methods,omitempty"`
	Tools       ToolSection   `json:"tools,omitempty"`
	AuditEvents []string      `json:"audit_events,omitempty"`
}

// Load reads every source in order and returns a sealed catalog. Sources may
// be files or directories; a directory contributes its inventory files in
// lexical order. Later definitions replace earlier ones with the same name.
func Load(ctx context.Context, sources []string, opts Options) (*inventory.Catalog, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	files, err := ExpandSources(sources)
	if err != nil {
		return nil, err
	}

	b := newBuilder(logger)
	for _, m := range opts.Inline {
		m.Source = SourceInline
		if err := b.addMethod(m); err != nil {
			return nil, err
		}
	}
	for _, t := range opts.InlineTools {
		t.Source = SourceInline
		if err := b.addTool(t); err != nil {
			return nil, err
		}
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := b.addDocument(path, doc); err != nil {
			return nil, err
		}
	}

	cat, err := b.catalog()
	if err != nil {
		return nil, err
	}
	cat.Seal(files, now().UTC())
	logger.Debug("inventory loaded",
		"sources", len(files),
		"methods", cat.Methods.Len(),
		"tools", cat.Tools.Len(),
	)
	return cat, nil
}

// ExpandSources resolves directories into their inventory files. Missing
// paths produce an ErrUnreadable LoadError wrapping fs.ErrNotExist.
func ExpandSources(sources []string) ([]string, error) {
	var files []string
	for _, src := range sources {
		info, err := os.Stat(src)
		if err != nil {
			return nil, &LoadError{Source: src, Kind: ErrUnreadable, Err: err}
		}
		if !info.IsDir() {
			files = append(files, src)
			continue
		}
		entries, err := os.ReadDir(src)
		if err != nil {
			return nil, &LoadError{Source: src, Kind: ErrUnreadable, Err: err}
		}
		var names []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if _, ok := DetectFormat(e.Name()); ok {
				names = append(names, e.Name())
			}
		}
		slices.Sort(names)
		for _, name := range names {
			files = append(files, filepath.Join(src, name))
		}
	}
	return files, nil
}

// ReadFile reads and decodes one inventory file.
func ReadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path from caller
	if err != nil {
		return nil, &LoadError{Source: path, Kind: ErrUnreadable, Err: err}
	}
	format, ok := DetectFormat(path)
	if !ok {
		return nil, &LoadError{Source: path, Kind: ErrMalformed, Err: fmt.Errorf("unsupported file extension %q", filepath.Ext(path))}
	}
	doc, err := Parse(data, format)
	if err != nil {
		kind := ErrMalformed
		var dup *duplicateKeyError
		if errors.As(err, &dup) {
			kind = ErrDuplicate
		}
		return nil, &LoadError{Source: path, Kind: kind, Err: err}
	}
	return doc, nil
}

// Parse decodes inventory content. Unknown fields are rejected.
func Parse(data []byte, format Format) (*Document, error) {
	jsonData, raw, err := toJSON(data, format)
	if err != nil {
		return nil, err
	}
	if !hasKey(raw, "methods") && !hasKey(raw, "tools") && !hasKey(raw, "audit_events") {
		return nil, fmt.Errorf("document declares none of methods, tools, audit_events")
	}

	dec := json.NewDecoder(bytes.NewReader(jsonData))
	dec.DisallowUnknownFields()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding inventory: %w", err)
	}
	return &doc, nil
}

type builder struct {
	logger  *slog.Logger
	methods map[string]inventory.MethodDefinition
	tools   map[string]inventory.ToolDefinition
	events  []string
}

func newBuilder(logger *slog.Logger) *builder {
	return &builder{
		logger:  logger,
		methods: make(map[string]inventory.MethodDefinition),
		tools:   make(map[string]inventory.ToolDefinition),
	}
}

func (b *builder) addDocument(path string, doc *Document) error {
	seen := make(map[string]struct{}, len(doc.Methods))
	for _, m := range doc.Methods {
		if _, dup := seen[m.Name]; dup {
			return &LoadError{Source: path, Kind: ErrDuplicate, DefinitionKind: inventory.KindMethod, Name: m.Name,
				Err: fmt.Errorf("method declared more than once")}
		}
		seen[m.Name] = struct{}{}
		m.Source = path
		if err := b.addMethod(m); err != nil {
			return err
		}
	}

	seen = make(map[string]struct{}, len(doc.Tools))
	for _, t := range doc.Tools {
		if _, dup := seen[t.Name]; dup {
			return &LoadError{Source: path, Kind: ErrDuplicate, DefinitionKind: inventory.KindTool, Name: t.Name,
				Err: fmt.Errorf("tool declared more than once")}
		}
		seen[t.Name] = struct{}{}
		t.Source = path
		if err := b.addTool(t); err != nil {
			return err
		}
	}

	b.events = append(b.events, doc.AuditEvents...)
	return nil
}

func (b *builder) addMethod(m inventory.MethodDefinition) error {
	if err := inventory.CheckMethod(m); err != nil {
		return &LoadError{Source: m.Source, Kind: ErrInvalid, DefinitionKind: inventory.KindMethod, Name: m.Name, Err: err}
	}
	if _, err := constraint.ExtractMethod(m); err != nil {
		return &LoadError{Source: m.Source, Kind: ErrInvalid, DefinitionKind: inventory.KindMethod, Name: m.Name, Err: err}
	}
	if prev, ok := b.methods[m.Name]; ok {
		b.logger.Info("method definition overridden", "method", m.Name, "source", m.Source, "previous_source", prev.Source)
	}
	b.methods[m.Name] = m
	return nil
}

func (b *builder) addTool(t inventory.ToolDefinition) error {
	if err := inventory.CheckTool(t); err != nil {
		return &LoadError{Source: t.Source, Kind: ErrInvalid, DefinitionKind: inventory.KindTool, Name: t.Name, Err: err}
	}
	if _, err := constraint.ExtractTool(t); err != nil {
		return &LoadError{Source: t.Source, Kind: ErrInvalid, DefinitionKind: inventory.KindTool, Name: t.Name, Err: err}
	}
	if prev, ok := b.tools[t.Name]; ok {
		b.logger.Info("tool definition overridden", "tool", t.Name, "source", t.Source, "previous_source", prev.Source)
	}
	b.tools[t.Name] = t
	return nil
}

func (b *builder) catalog() (*inventory.Catalog, error) {
	cat := inventory.NewCatalog()
	for _, m := range b.methods {
		if err := cat.Methods.Register(m); err != nil {
			return nil, fmt.Errorf("loader: %w", err)
		}
	}
	for _, t := range b.tools {
		if err := cat.Tools.Register(t); err != nil {
			return nil, fmt.Errorf("loader: %w", err)
		}
	}
	cat.AddAuditEvents(b.events...)
	return cat, nil
}
