package otel

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/toolforge/codegen"
	"github.com/petal-labs/toolforge/mapping"
)

// PipelineObserver records validation, generation and drift outcomes as
// OpenTelemetry metrics and wraps each pipeline stage in a span.
type PipelineObserver struct {
	tracer trace.Tracer

	runs          metric.Int64Counter
	runDuration   metric.Float64Histogram
	stageDuration metric.Float64Histogram
	findings      metric.Int64Counter
	toolsChecked  metric.Int64Counter
	generated     metric.Int64Counter
	genDuration   metric.Float64Histogram
	warnings      metric.Int64Counter
	drift         metric.Int64Counter
}

// NewPipelineObserver creates the pipeline instruments on meter. tracer may
// be nil, in which case no spans are started.
func NewPipelineObserver(meter metric.Meter, tracer trace.Tracer) (*PipelineObserver, error) {
	o := &PipelineObserver{tracer: tracer}
	var err error

	if o.runs, err = meter.Int64Counter("toolforge.runs",
		metric.WithDescription("Number of pipeline runs by command and exit code"),
	); err != nil {
		return nil, err
	}
	if o.runDuration, err = meter.Float64Histogram("toolforge.run.duration",
		metric.WithDescription("Duration of a pipeline run in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if o.stageDuration, err = meter.Float64Histogram("toolforge.stage.duration",
		metric.WithDescription("Duration of a pipeline stage in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if o.findings, err = meter.Int64Counter("toolforge.validation.findings",
		metric.WithDescription("Number of mapping findings by severity and kind"),
	); err != nil {
		return nil, err
	}
	if o.toolsChecked, err = meter.Int64Counter("toolforge.validation.tools",
		metric.WithDescription("Number of tools checked against their methods"),
	); err != nil {
		return nil, err
	}
	if o.generated, err = meter.Int64Counter("toolforge.generation.tools",
		metric.WithDescription("Number of tools processed by the generator by outcome"),
	); err != nil {
		return nil, err
	}
	if o.genDuration, err = meter.Float64Histogram("toolforge.generation.duration",
		metric.WithDescription("Duration of a generation batch in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if o.warnings, err = meter.Int64Counter("toolforge.generation.warnings",
		metric.WithDescription("Number of advisory analysis warnings in generated code"),
	); err != nil {
		return nil, err
	}
	if o.drift, err = meter.Int64Counter("toolforge.drift.artifacts",
		metric.WithDescription("Number of artifacts compared for drift by status"),
	); err != nil {
		return nil, err
	}
	return o, nil
}

// StartStage starts a span for one pipeline stage. The returned func ends
// it and records the stage duration.
func (o *PipelineObserver) StartStage(ctx context.Context, stage string) (context.Context, func(error)) {
	if o == nil {
		return ctx, func(error) {}
	}
	started := time.Now()
	var span trace.Span
	if o.tracer != nil {
		ctx, span = o.tracer.Start(ctx, "toolforge."+stage,
			trace.WithAttributes(attribute.String("toolforge.stage", stage)))
	}
	return ctx, func(err error) {
		o.stageDuration.Record(ctx, time.Since(started).Seconds(),
			metric.WithAttributes(attribute.String("stage", stage), attribute.Bool("success", err == nil)))
		if span == nil {
			return
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// ObserveValidation records the findings of one validation pass.
func (o *PipelineObserver) ObserveValidation(ctx context.Context, mode string, report mapping.Report) {
	if o == nil {
		return
	}
	o.toolsChecked.Add(ctx, int64(report.Summary.ToolsChecked), metric.WithAttributes(attribute.String("mode", mode)))
	for _, f := range report.Findings {
		o.findings.Add(ctx, 1, metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("severity", string(f.Severity)),
			attribute.String("kind", string(f.Kind)),
		))
	}
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.SetAttributes(
			attribute.Int("toolforge.errors", report.Summary.Errors),
			attribute.Int("toolforge.warnings", report.Summary.Warnings),
		)
	}
}

// ObserveGeneration records the outcome of a generation batch.
func (o *PipelineObserver) ObserveGeneration(ctx context.Context, batch codegen.BatchResult, elapsed time.Duration) {
	if o == nil {
		return
	}
	dryRun := false
	for _, r := range batch.Results {
		dryRun = dryRun || r.DryRun
		outcome := "success"
		if !r.Success {
			outcome = "failure"
		}
		o.generated.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome), attribute.Bool("dry_run", r.DryRun)))
		if len(r.Warnings) > 0 {
			o.warnings.Add(ctx, int64(len(r.Warnings)), metric.WithAttributes(attribute.String("tool", r.Tool)))
		}
	}
	if n := len(batch.Skipped); n > 0 {
		o.generated.Add(ctx, int64(n), metric.WithAttributes(attribute.String("outcome", "skipped"), attribute.Bool("dry_run", dryRun)))
	}
	o.genDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.Bool("dry_run", dryRun)))
}

// ObserveDrift records one drift comparison.
func (o *PipelineObserver) ObserveDrift(ctx context.Context, entries []codegen.DriftEntry) {
	if o == nil {
		return
	}
	for _, e := range entries {
		o.drift.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(e.Status))))
	}
}

// ObserveRun records a finished command.
func (o *PipelineObserver) ObserveRun(ctx context.Context, command string, exitCode int, elapsed time.Duration) {
	if o == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("exit_code", strconv.Itoa(exitCode)),
	)
	o.runs.Add(ctx, 1, attrs)
	o.runDuration.Record(ctx, elapsed.Seconds(), attrs)
}
