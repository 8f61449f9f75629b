package cli

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"

	"github.com/petal-labs/toolforge/codegen"
	"github.com/petal-labs/toolforge/config"
	"github.com/petal-labs/toolforge/consolidate"
	"github.com/petal-labs/toolforge/ledger"
	forgeotel "github.com/petal-labs/toolforge/otel"
	"github.com/petal-labs/toolforge/report"
)

// Version is reported as the service version of exported spans. main sets
// it from ldflags.
var Version = "dev"

// AddPersistentFlags registers the flags every subcommand reads through
// openSession.
func AddPersistentFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "Path to toolforge.toml (default: ./toolforge.toml, then ~/.toolforge/config.toml)")
	flags.StringArrayP("source", "s", nil, "Inventory file or directory (repeatable; replaces configured sources)")
	flags.String("mode", "", "Strictness: strict | warn | disabled")
	flags.String("log-level", "", "Log level: debug | info | warn | error")
	flags.String("log-format", "", "Log format: text | json")
	flags.Bool("verbose", false, "Enable verbose/debug logging")
	flags.Bool("quiet", false, "Suppress all output except errors")
	flags.Bool("ledger", false, "Record this run in the run ledger")
	flags.String("ledger-path", "", "Path to the run ledger database (default: ~/.toolforge/ledger.db)")
	flags.String("metrics-textfile", "", "Write run metrics to a Prometheus textfile")
	flags.String("otel-exporter", "", "Trace exporter: none | stdout | otlp")
}

// session carries everything a command needs after configuration has been
// resolved.
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	observer *forgeotel.PipelineObserver
	store    *ledger.Store
	shutdown func(context.Context) error
}

// openSession loads configuration, applies flag overrides and sets up
// logging, tracing and (when enabled) the run ledger.
func openSession(cmd *cobra.Command) (*session, error) {
	explicit, _ := cmd.Flags().GetString("config")
	paths, err := config.Discover(explicit)
	if err != nil {
		return nil, exitError(exitFileNotFound, "%v", err)
	}
	cfg, err := config.LoadFromFiles(paths...)
	if err != nil {
		return nil, exitError(exitInputParse, "loading config: %v", err)
	}
	if err := applyFlagOverrides(cmd, cfg); err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, shutdown: func(context.Context) error { return nil }}
	s.logger = newLogger(cmd.ErrOrStderr(), cfg.Logging)

	tracing := cfg.TracingConfig(Version)
	tracing.Writer = cmd.ErrOrStderr()
	shutdown, err := forgeotel.Setup(cmd.Context(), tracing)
	if err != nil {
		return nil, exitError(exitRuntime, "setting up tracing: %v", err)
	}
	s.shutdown = shutdown

	s.observer, err = forgeotel.NewPipelineObserver(otelapi.Meter(forgeotel.InstrumentationName), forgeotel.Tracer())
	if err != nil {
		_ = shutdown(context.Background())
		return nil, exitError(exitRuntime, "creating pipeline observer: %v", err)
	}

	if cfg.Ledger.Enabled {
		if s.store, err = openLedger(cfg); err != nil {
			_ = shutdown(context.Background())
			return nil, err
		}
	}
	return s, nil
}

func openLedger(cfg *config.Config) (*ledger.Store, error) {
	lc, err := cfg.LedgerConfig()
	if err != nil {
		return nil, exitError(exitRuntime, "%v", err)
	}
	store, err := ledger.Open(lc)
	if err != nil {
		return nil, exitError(exitRuntime, "opening run ledger: %v", err)
	}
	return store, nil
}

// Close flushes spans and closes the ledger.
func (s *session) Close() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("closing run ledger", "error", err)
		}
	}
	if err := s.shutdown(context.Background()); err != nil {
		s.logger.Warn("flushing traces", "error", err)
	}
}

// orchestrator builds an orchestrator for the session. withGeneration adds
// the code generator configuration.
func (s *session) orchestrator(withGeneration bool) (*consolidate.Orchestrator, error) {
	vopts, err := s.cfg.ValidationOptions()
	if err != nil {
		return nil, exitError(exitInputParse, "%v", err)
	}
	opts := consolidate.Options{
		Mode:       s.cfg.Mode(),
		Validation: vopts,
		Observer:   s.observer,
		Logger:     s.logger,
	}
	if s.store != nil {
		opts.Recorder = s.store
	}
	if withGeneration {
		gcfg, err := s.cfg.GeneratorConfig()
		if err != nil {
			return nil, exitError(exitInputParse, "%v", err)
		}
		opts.Generation = &gcfg
	}
	return consolidate.New(opts), nil
}

// finish writes the metrics textfile and turns the outcome into the
// command's error.
func (s *session) finish(out consolidate.Outcome, runErr error) error {
	if path := s.cfg.Metrics.Textfile; path != "" && out.RunID != "" {
		if err := report.WriteTextfile(path, out); err != nil {
			s.logger.Warn("writing metrics textfile", "path", path, "error", err)
		}
	}
	return outcomeError(out, runErr)
}

func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if sources, _ := flags.GetStringArray("source"); len(sources) > 0 {
		cfg.Sources = sources
	}
	if v, _ := flags.GetString("mode"); v != "" {
		if _, err := consolidate.ParseMode(v); err != nil {
			return exitError(exitInputParse, "%v", err)
		}
		cfg.Validation.Mode = v
	}
	if v, _ := flags.GetString("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v, _ := flags.GetString("log-format"); v != "" {
		cfg.Logging.Format = v
	}
	if verbose, _ := flags.GetBool("verbose"); verbose {
		cfg.Logging.Level = "debug"
	}
	if quiet, _ := flags.GetBool("quiet"); quiet {
		cfg.Logging.Level = "error"
	}
	if enabled, _ := flags.GetBool("ledger"); enabled {
		cfg.Ledger.Enabled = true
	}
	if v, _ := flags.GetString("ledger-path"); v != "" {
		cfg.Ledger.Path = v
		cfg.Ledger.Enabled = true
	}
	if v, _ := flags.GetString("metrics-textfile"); v != "" {
		cfg.Metrics.Textfile = v
	}
	if v, _ := flags.GetString("otel-exporter"); v != "" {
		cfg.Telemetry.Exporter = v
		cfg.Telemetry.Enabled = v != string(forgeotel.ExporterNone)
	}

	// Generation flags only exist on generate and drift.
	if flags.Lookup("output-dir") != nil {
		if v, _ := flags.GetString("output-dir"); v != "" {
			cfg.Generation.OutputDir = v
		}
		if v, _ := flags.GetString("package"); v != "" {
			cfg.Generation.Package = v
		}
		if artifacts, _ := flags.GetStringSlice("artifact"); len(artifacts) > 0 {
			for _, a := range artifacts {
				if _, err := codegen.ParseArtifact(a); err != nil {
					return exitError(exitInputParse, "%v", err)
				}
			}
			cfg.Generation.Artifacts = artifacts
		}
	}
	if flags.Lookup("include-unchecked") != nil {
		if v, _ := flags.GetBool("include-unchecked"); v {
			cfg.Validation.IncludeUnchecked = true
		}
	}
	if err := cfg.Validate(); err != nil {
		return exitError(exitInputParse, "%v", err)
	}
	return nil
}

// newLogger creates a structured logger on w. Reports go to stdout, so logs
// stay on stderr.
func newLogger(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func formatFlag(cmd *cobra.Command) (report.Format, error) {
	v, _ := cmd.Flags().GetString("format")
	f, err := report.ParseFormat(v)
	if err != nil {
		return "", exitError(exitInputParse, "%v", err)
	}
	return f, nil
}

func encodeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
