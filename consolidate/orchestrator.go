// Package consolidate runs the load, validate and generate pipeline under
// a strictness mode and turns the result into an exit code.
package consolidate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/petal-labs/toolforge/codegen"
	"github.com/petal-labs/toolforge/inventory"
	"github.com/petal-labs/toolforge/ledger"
	"github.com/petal-labs/toolforge/loader"
	"github.com/petal-labs/toolforge/mapping"
)

// Options configures an Orchestrator.
type Options struct {
	Mode       Mode
	Validation mapping.Options
	// Load carries inline definitions and the loader logger.
	Load loader.Options
	// Generation configures the code generator. Nil disables generation
	// and drift checks.
	Generation *codegen.Config
	Recorder   Recorder
	Observer   Observer
	Logger     *slog.Logger
	Now        func() time.Time
}

// Request selects what one run does.
type Request struct {
	// Command names the run in the ledger, e.g. "validate" or "generate".
	Command  string
	Sources  []string
	Generate bool
	DryRun   bool
	Drift    bool
	// Tools restricts generation and drift to the named tools.
	Tools []string
}

// Outcome is everything a run produced.
type Outcome struct {
	RunID      string               `json:"run_id"`
	Command    string               `json:"command"`
	Mode       Mode                 `json:"mode"`
	Catalog    *inventory.Catalog   `json:"-"`
	Report     *mapping.Report      `json:"report,omitempty"`
	Coverage   Coverage             `json:"coverage"`
	Generation *codegen.BatchResult `json:"generation,omitempty"`
	Drift      []codegen.DriftEntry `json:"drift,omitempty"`
	// Blocked is set when strict mode stopped generation.
	Blocked    bool                 `json:"blocked,omitempty"`
	ExitCode   int                  `json:"exit_code"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
}

// Drifted returns the drift entries that need regeneration.
func (o Outcome) Drifted() []codegen.DriftEntry {
	var out []codegen.DriftEntry
	for _, e := range o.Drift {
		if e.Drifted() {
			out = append(out, e)
		}
	}
	return out
}

// Orchestrator coordinates one consolidation run.
type Orchestrator struct {
	opts      Options
	validator *mapping.Validator
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time
}

// New returns an orchestrator. An empty mode is strict.
func New(opts Options) *Orchestrator {
	if opts.Mode == "" {
		opts.Mode = ModeStrict
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Load.Logger == nil {
		opts.Load.Logger = opts.Logger
	}
	if opts.Validation.Logger == nil {
		opts.Validation.Logger = opts.Logger
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &Orchestrator{
		opts:      opts,
		validator: mapping.NewValidator(opts.Validation),
		observer:  observer,
		logger:    opts.Logger,
		now:       opts.Now,
	}
}

// Mode returns the strictness mode.
func (o *Orchestrator) Mode() Mode { return o.opts.Mode }

// Run loads the sources, validates tools against methods, and generates or
// checks drift when asked. Findings never produce an error; only
// structural problems do, and the outcome's ExitCode is set either way.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Outcome, error) {
	out := Outcome{
		RunID:     uuid.NewString(),
		Command:   req.Command,
		Mode:      o.opts.Mode,
		StartedAt: o.now().UTC(),
	}
	if out.Command == "" {
		out.Command = "validate"
	}

	err := o.run(ctx, req, &out)
	if err != nil {
		out.ExitCode = ExitCodeFor(err)
	}
	out.FinishedAt = o.now().UTC()

	o.observer.ObserveRun(ctx, out.Command, out.ExitCode, out.FinishedAt.Sub(out.StartedAt))
	o.record(ctx, req, out)
	return out, err
}

func (o *Orchestrator) run(ctx context.Context, req Request, out *Outcome) error {
	cat, err := o.Load(ctx, req.Sources)
	if err != nil {
		return err
	}
	out.Catalog = cat
	out.Coverage = ComputeCoverage(cat)

	if o.opts.Mode != ModeDisabled {
		report, err := o.Validate(ctx, cat)
		if err != nil {
			return err
		}
		out.Report = &report
		if report.HasErrors() && o.opts.Mode == ModeStrict {
			out.ExitCode = ExitValidation
		}
	}

	if !req.Generate && !req.Drift {
		return nil
	}
	if o.opts.Generation == nil {
		return errors.New("consolidate: generation is not configured")
	}
	tools, err := selectTools(cat, req.Tools)
	if err != nil {
		return err
	}
	gen, err := o.generator(cat)
	if err != nil {
		return err
	}

	if req.Generate {
		if out.ExitCode == ExitValidation {
			out.Blocked = true
			o.logger.Warn("generation blocked by validation errors", "errors", out.Report.Summary.Errors)
		} else {
			mode := codegen.ModeNormal
			if req.DryRun {
				mode = codegen.ModeDryRun
			}
			batch := o.generate(ctx, gen, tools, mode)
			out.Generation = &batch
			if len(batch.Failures) > 0 {
				out.ExitCode = max(out.ExitCode, ExitRuntime)
			}
		}
	}

	if req.Drift {
		entries, err := o.drift(ctx, gen, tools)
		if err != nil {
			return err
		}
		out.Drift = entries
		if len(out.Drifted()) > 0 && o.opts.Mode == ModeStrict {
			out.ExitCode = max(out.ExitCode, ExitValidation)
		}
	}
	return nil
}

// Load reads and layers the inventory sources into a sealed catalog.
func (o *Orchestrator) Load(ctx context.Context, sources []string) (*inventory.Catalog, error) {
	ctx, end := o.observer.StartStage(ctx, "load")
	cat, err := loader.Load(ctx, sources, o.opts.Load)
	end(err)
	if err != nil {
		return nil, err
	}
	o.logger.Debug("catalog loaded", "methods", cat.Methods.Len(), "tools", cat.Tools.Len(), "sources", len(cat.Sources()))
	return cat, nil
}

// Validate runs the mapping validator stage.
func (o *Orchestrator) Validate(ctx context.Context, cat *inventory.Catalog) (mapping.Report, error) {
	ctx, end := o.observer.StartStage(ctx, "validate")
	report, err := o.validator.Validate(ctx, cat)
	end(err)
	if err != nil {
		return mapping.Report{}, err
	}
	o.observer.ObserveValidation(ctx, string(o.opts.Mode), report)
	o.logger.Info("validation finished",
		"mode", o.opts.Mode,
		"tools_checked", report.Summary.ToolsChecked,
		"errors", report.Summary.Errors,
		"warnings", report.Summary.Warnings,
	)
	return report, nil
}

func (o *Orchestrator) generate(ctx context.Context, gen *codegen.Generator, tools []inventory.ToolDefinition, mode codegen.Mode) codegen.BatchResult {
	ctx, end := o.observer.StartStage(ctx, "generate")
	started := time.Now()
	batch := gen.GenerateAll(ctx, tools, mode)
	var err error
	if len(batch.Failures) > 0 {
		err = fmt.Errorf("%d of %d tools failed", len(batch.Failures), len(batch.Results))
	}
	end(err)
	o.observer.ObserveGeneration(ctx, batch, time.Since(started))
	return batch
}

func (o *Orchestrator) drift(ctx context.Context, gen *codegen.Generator, tools []inventory.ToolDefinition) ([]codegen.DriftEntry, error) {
	ctx, end := o.observer.StartStage(ctx, "drift")
	entries, err := gen.Drift(ctx, tools)
	end(err)
	if err != nil {
		return nil, err
	}
	o.observer.ObserveDrift(ctx, entries)
	return entries, nil
}

// generator builds a generator whose audit-event check follows the
// catalog unless the configuration pins the events.
func (o *Orchestrator) generator(cat *inventory.Catalog) (*codegen.Generator, error) {
	cfg := *o.opts.Generation
	if cfg.AuditEvents == nil {
		if events := cat.AuditEvents(); len(events) > 0 {
			cfg.AuditEvents = events
		}
	}
	if cfg.Reserved == nil {
		cfg.Reserved = o.opts.Validation.Reserved
	}
	if cfg.Logger == nil {
		cfg.Logger = o.logger
	}
	return codegen.New(cfg)
}

func selectTools(cat *inventory.Catalog, names []string) ([]inventory.ToolDefinition, error) {
	if len(names) == 0 {
		return cat.Tools.All(), nil
	}
	tools := make([]inventory.ToolDefinition, 0, len(names))
	for _, name := range slices.Compact(slices.Sorted(slices.Values(names))) {
		t, err := cat.Tools.Get(name)
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	return tools, nil
}

func (o *Orchestrator) record(ctx context.Context, req Request, out Outcome) {
	if o.opts.Recorder == nil {
		return
	}
	run := ledger.Run{
		ID:         out.RunID,
		Command:    out.Command,
		Mode:       string(out.Mode),
		DryRun:     req.DryRun,
		StartedAt:  out.StartedAt,
		FinishedAt: out.FinishedAt,
		ExitCode:   out.ExitCode,
		Sources:    req.Sources,
	}
	if out.Catalog != nil {
		run.Sources = out.Catalog.Sources()
	}
	if out.Report != nil {
		run.Errors = out.Report.Summary.Errors
		run.Warnings = out.Report.Summary.Warnings
	}
	if out.Generation != nil {
		run.Generated = out.Generation.Succeeded()
		run.Failed = len(out.Generation.Failures)
		for _, r := range out.Generation.Results {
			run.Artifacts = append(run.Artifacts, generationArtifacts(r)...)
		}
	}
	for _, e := range out.Drift {
		status := ledger.StatusInSync
		if e.Drifted() {
			status = ledger.StatusDrifted
		}
		run.Artifacts = append(run.Artifacts, ledger.Artifact{
			Tool: e.Tool, Kind: string(e.Artifact), Path: e.Path, Status: status, Error: e.Error,
		})
	}
	if _, err := o.opts.Recorder.Record(context.WithoutCancel(ctx), run); err != nil {
		o.logger.Warn("failed to record run", "run_id", run.ID, "error", err)
	}
}

func generationArtifacts(r codegen.Result) []ledger.Artifact {
	if r.Err != nil {
		return []ledger.Artifact{{Tool: r.Tool, Kind: string(codegen.ArtifactTool), Path: r.OutputPath, Status: ledger.StatusFailed, Error: r.Err.Error()}}
	}
	status := ledger.StatusWritten
	if r.DryRun {
		status = ledger.StatusPlanned
	}
	out := make([]ledger.Artifact, 0, len(r.Artifacts))
	for _, a := range r.Artifacts {
		out = append(out, ledger.Artifact{Tool: r.Tool, Kind: string(a.Artifact), Path: a.Path, SHA256: a.SHA256, Status: status})
	}
	return out
}
