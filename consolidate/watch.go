package consolidate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/petal-labs/toolforge/inventory"
	"github.com/petal-labs/toolforge/mapping"
)

var standardCronParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow,
)

// ParseSchedule parses a five-field UTC cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	clean := strings.TrimSpace(expr)
	if clean == "" {
		return nil, errors.New("cron expression is required")
	}
	upper := strings.ToUpper(clean)
	if strings.Contains(upper, "CRON_TZ=") || strings.Contains(upper, "TZ=") {
		return nil, errors.New("cron expression must be UTC-only (timezone prefixes are not allowed)")
	}
	schedule, err := standardCronParser.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

// Check is the result of one scheduled re-validation.
type Check struct {
	At      time.Time
	Report  *mapping.Report
	Swapped bool
	Err     error
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	Orchestrator *Orchestrator
	// Holder receives each successfully loaded catalog.
	Holder   *inventory.Holder
	Sources  []string
	Schedule string
	// OnCheck is called after every pass.
	OnCheck func(Check)
	Now     func() time.Time
	Logger  *slog.Logger
}

// Watcher reloads and re-validates the inventories on a cron schedule. A
// pass that fails to load keeps the previous catalog in the holder.
type Watcher struct {
	orch     *Orchestrator
	holder   *inventory.Holder
	sources  []string
	schedule cron.Schedule
	onCheck  func(Check)
	now      func() time.Time
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWatcher validates the configuration and schedule.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Orchestrator == nil {
		return nil, errors.New("consolidate: watcher orchestrator is nil")
	}
	if cfg.Holder == nil {
		return nil, errors.New("consolidate: watcher holder is nil")
	}
	schedule, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("consolidate: %w", err)
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Logger == nil {
		cfg.Logger = cfg.Orchestrator.logger
	}
	return &Watcher{
		orch:     cfg.Orchestrator,
		holder:   cfg.Holder,
		sources:  cfg.Sources,
		schedule: schedule,
		onCheck:  cfg.OnCheck,
		now:      cfg.Now,
		logger:   cfg.Logger,
	}, nil
}

// Next returns the next scheduled pass after t.
func (w *Watcher) Next(t time.Time) time.Time { return w.schedule.Next(t.UTC()) }

// Start runs one pass immediately and then one per schedule tick until
// Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if w == nil {
		return errors.New("consolidate: watcher is nil")
	}
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done
	w.mu.Unlock()

	go func() {
		defer close(done)
		w.RunOnce(loopCtx)
		for {
			next := w.Next(w.now())
			timer := time.NewTimer(max(next.Sub(w.now()), 0))
			select {
			case <-loopCtx.Done():
				timer.Stop()
				return
			case <-timer.C:
				w.RunOnce(loopCtx)
			}
		}
	}()
	return nil
}

// Stop stops the loop and waits for an in-flight pass.
func (w *Watcher) Stop(ctx context.Context) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs a single load and validate pass. Overlapping passes are
// skipped.
func (w *Watcher) RunOnce(ctx context.Context) Check {
	check := Check{At: w.now().UTC()}

	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		check.Err = errors.New("consolidate: previous check still running")
		w.logger.Warn("skipping overlapping check")
		return check
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	cat, err := w.orch.Load(ctx, w.sources)
	if err != nil {
		check.Err = err
		w.logger.Error("scheduled reload failed; keeping previous catalog", "error", err)
		w.notify(check)
		return check
	}
	if w.orch.Mode() != ModeDisabled {
		report, err := w.orch.Validate(ctx, cat)
		if err != nil {
			check.Err = err
			w.logger.Error("scheduled validation failed; keeping previous catalog", "error", err)
			w.notify(check)
			return check
		}
		check.Report = &report
	}

	w.holder.Swap(cat)
	check.Swapped = true
	w.logger.Info("catalog reloaded", "methods", cat.Methods.Len(), "tools", cat.Tools.Len())
	w.notify(check)
	return check
}

func (w *Watcher) notify(c Check) {
	if w.onCheck != nil {
		w.onCheck(c)
	}
}
