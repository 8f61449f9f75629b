// Package config loads toolforge.toml with priority defaults -> files ->
// TOOLFORGE_* environment -> command-line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/petal-labs/toolforge/codegen"
	"github.com/petal-labs/toolforge/consolidate"
	"github.com/petal-labs/toolforge/ledger"
	"github.com/petal-labs/toolforge/mapping"
	"github.com/petal-labs/toolforge/otel"
)

// FileName is the project configuration file looked up in the working
// directory.
const FileName = "toolforge.toml"

// Config represents the toolforge configuration.
type Config struct {
	// Sources are inventory files or directories.
	Sources    []string         `toml:"sources"`
	Validation ValidationConfig `toml:"validation"`
	Generation GenerationConfig `toml:"generation"`
	Ledger     LedgerConfig     `toml:"ledger"`
	Logging    LoggingConfig    `toml:"logging"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Watch      WatchConfig      `toml:"watch"`
}

// ValidationConfig configures the mapping validator and strictness.
type ValidationConfig struct {
	Mode             string   `toml:"mode"`
	Reserved         []string `toml:"reserved"`
	IncludeUnchecked bool     `toml:"include_unchecked"`
	// Severity overrides the default severity per finding kind.
	Severity map[string]string `toml:"severity"`
}

// GenerationConfig configures the code generator.
type GenerationConfig struct {
	OutputDir    string   `toml:"output_dir"`
	Package      string   `toml:"package"`
	Artifacts    []string `toml:"artifacts"`
	TemplatesDir string   `toml:"templates_dir"`
	Parallelism  int      `toml:"parallelism"`
	KeepBackups  bool     `toml:"keep_backups"`
	BackupDir    string   `toml:"backup_dir"`
}

// LedgerConfig configures run history.
type LedgerConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
	Retain  int    `toml:"retain"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// TelemetryConfig contains tracing settings.
type TelemetryConfig struct {
	Enabled     bool    `toml:"enabled"`
	Exporter    string  `toml:"exporter"`
	Endpoint    string  `toml:"endpoint"`
	Insecure    bool    `toml:"insecure"`
	SampleRate  float64 `toml:"sample_rate"`
	ServiceName string  `toml:"service_name"`
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `toml:"textfile"`
}

// WatchConfig configures scheduled re-validation.
type WatchConfig struct {
	Schedule string `toml:"schedule"`
}

// Discover returns the configuration files to load: explicit when given,
// otherwise ./toolforge.toml and then ~/.toolforge/config.toml, whichever
// exists first. An explicit file must exist.
func Discover(explicit string) ([]string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return nil, fmt.Errorf("config file %s: %w", explicit, err)
		}
		return []string{explicit}, nil
	}
	candidates := []string{FileName}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".toolforge", "config.toml"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return []string{c}, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file %s: %w", c, err)
		}
	}
	return nil, nil
}

// LoadFromFiles loads configuration with priority defaults -> file1 ->
// file2 -> ... -> env. Later files override earlier files. Relative paths
// in a file resolve against that file's directory.
func LoadFromFiles(paths ...string) (*Config, error) {
	cfg := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		var layer Config
		if err := decode(data, &layer); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
		resolvePaths(cfg, &layer, filepath.Dir(path))
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, v *Config) error {
	return toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(v)
}

// resolvePaths rewrites the relative paths layer set so they point from
// dir.
func resolvePaths(cfg, layer *Config, dir string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	if len(layer.Sources) > 0 {
		cfg.Sources = make([]string, len(layer.Sources))
		for i, s := range layer.Sources {
			cfg.Sources[i] = resolve(s)
		}
	}
	if layer.Generation.OutputDir != "" {
		cfg.Generation.OutputDir = resolve(layer.Generation.OutputDir)
	}
	if layer.Generation.TemplatesDir != "" {
		cfg.Generation.TemplatesDir = resolve(layer.Generation.TemplatesDir)
	}
	if layer.Generation.BackupDir != "" {
		cfg.Generation.BackupDir = resolve(layer.Generation.BackupDir)
	}
	if layer.Ledger.Path != "" {
		cfg.Ledger.Path = resolve(layer.Ledger.Path)
	}
	if layer.Metrics.Textfile != "" {
		cfg.Metrics.Textfile = resolve(layer.Metrics.Textfile)
	}
}

// applyEnvOverrides applies TOOLFORGE_* environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TOOLFORGE_SOURCES"); v != "" {
		cfg.Sources = filepath.SplitList(v)
	}
	if v := os.Getenv("TOOLFORGE_MODE"); v != "" {
		cfg.Validation.Mode = v
	}
	if v := os.Getenv("TOOLFORGE_OUTPUT_DIR"); v != "" {
		cfg.Generation.OutputDir = v
	}
	if v := os.Getenv("TOOLFORGE_PACKAGE"); v != "" {
		cfg.Generation.Package = v
	}
	if v := os.Getenv("TOOLFORGE_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Generation.Parallelism = n
		}
	}
	if v := os.Getenv("TOOLFORGE_LEDGER_PATH"); v != "" {
		cfg.Ledger.Path = v
		cfg.Ledger.Enabled = true
	}
	if v := os.Getenv("TOOLFORGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TOOLFORGE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("TOOLFORGE_OTEL_EXPORTER"); v != "" {
		cfg.Telemetry.Exporter = v
		cfg.Telemetry.Enabled = v != string(otel.ExporterNone)
	}
	if v := os.Getenv("TOOLFORGE_OTEL_ENDPOINT"); v != "" {
		cfg.Telemetry.Endpoint = v
	}
	if v := os.Getenv("TOOLFORGE_METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.Textfile = v
	}
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	var problems []string
	if _, err := consolidate.ParseMode(c.Validation.Mode); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := mapping.ParsePolicy(c.Validation.Severity); err != nil {
		problems = append(problems, err.Error())
	}
	for _, a := range c.Generation.Artifacts {
		if _, err := codegen.ParseArtifact(a); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if c.Generation.Parallelism < 0 {
		problems = append(problems, "generation.parallelism must not be negative")
	}
	if c.Ledger.Retain < 0 {
		problems = append(problems, "ledger.retain must not be negative")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("unknown logging.level %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("unknown logging.format %q", c.Logging.Format))
	}
	switch otel.Exporter(c.Telemetry.Exporter) {
	case otel.ExporterNone, otel.ExporterStdout, otel.ExporterOTLP:
	default:
		problems = append(problems, fmt.Sprintf("unknown telemetry.exporter %q", c.Telemetry.Exporter))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		problems = append(problems, "telemetry.sample_rate must be within [0, 1]")
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Mode returns the parsed strictness mode.
func (c *Config) Mode() consolidate.Mode {
	mode, _ := consolidate.ParseMode(c.Validation.Mode)
	return mode
}

// ValidationOptions builds mapping options.
func (c *Config) ValidationOptions() (mapping.Options, error) {
	policy, err := mapping.ParsePolicy(c.Validation.Severity)
	if err != nil {
		return mapping.Options{}, err
	}
	return mapping.Options{
		Reserved:         c.Validation.Reserved,
		IncludeUnchecked: c.Validation.IncludeUnchecked,
		Severity:         policy,
	}, nil
}

// GeneratorConfig builds the code generator configuration.
func (c *Config) GeneratorConfig() (codegen.Config, error) {
	artifacts := make([]codegen.Artifact, 0, len(c.Generation.Artifacts))
	for _, name := range c.Generation.Artifacts {
		a, err := codegen.ParseArtifact(name)
		if err != nil {
			return codegen.Config{}, err
		}
		artifacts = append(artifacts, a)
	}
	return codegen.Config{
		OutputDir:    c.Generation.OutputDir,
		Package:      c.Generation.Package,
		Artifacts:    artifacts,
		Reserved:     c.Validation.Reserved,
		TemplatesDir: c.Generation.TemplatesDir,
		Parallelism:  c.Generation.Parallelism,
		KeepBackups:  c.Generation.KeepBackups,
		BackupDir:    c.Generation.BackupDir,
	}, nil
}

// LedgerConfig returns the ledger settings, filling the default path.
func (c *Config) LedgerConfig() (ledger.Config, error) {
	path := c.Ledger.Path
	if path == "" {
		p, err := ledger.DefaultPath()
		if err != nil {
			return ledger.Config{}, err
		}
		path = p
	}
	return ledger.Config{DSN: path, Retain: c.Ledger.Retain}, nil
}

// TracingConfig builds the OpenTelemetry setup configuration.
func (c *Config) TracingConfig(version string) otel.Config {
	return otel.Config{
		Enabled:        c.Telemetry.Enabled,
		Exporter:       otel.Exporter(c.Telemetry.Exporter),
		ServiceName:    c.Telemetry.ServiceName,
		ServiceVersion: version,
		Endpoint:       c.Telemetry.Endpoint,
		Insecure:       c.Telemetry.Insecure,
		SampleRate:     c.Telemetry.SampleRate,
	}
}
