package consolidate

import (
	"context"
	"time"

	"github.com/petal-labs/toolforge/codegen"
	"github.com/petal-labs/toolforge/ledger"
	"github.com/petal-labs/toolforge/mapping"
)

// Observer receives pipeline signals for tracing and metrics.
type Observer interface {
	StartStage(ctx context.Context, stage string) (context.Context, func(error))
	ObserveValidation(ctx context.Context, mode string, report mapping.Report)
	ObserveGeneration(ctx context.Context, batch codegen.BatchResult, elapsed time.Duration)
	ObserveDrift(ctx context.Context, entries []codegen.DriftEntry)
	ObserveRun(ctx context.Context, command string, exitCode int, elapsed time.Duration)
}

// Recorder stores run history.
type Recorder interface {
	Record(ctx context.Context, run ledger.Run) (ledger.Run, error)
}

type nopObserver struct{}

func (nopObserver) StartStage(ctx context.Context, _ string) (context.Context, func(error)) {
	return ctx, func(error) {}
}
func (nopObserver) ObserveValidation(context.Context, string, mapping.Report) {}
func (nopObserver) ObserveGeneration(context.Context, codegen.BatchResult, time.Duration) {}
func (nopObserver) ObserveDrift(context.Context, []codegen.DriftEntry) {}
func (nopObserver) ObserveRun(context.Context, string, int, time.Duration) {}
