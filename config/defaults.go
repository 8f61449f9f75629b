package config

import "github.com/petal-labs/toolforge/otel"

// NewDefaultConfig returns a Config with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Sources: []string{"definitions"},
		Validation: ValidationConfig{
			Mode: "strict",
		},
		Generation: GenerationConfig{
			OutputDir: "tools",
			Package:   "tools",
			Artifacts: []string{"tool", "unit_test", "integration_test", "interface_test"},
		},
		Ledger: LedgerConfig{
			Retain: 200,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			Exporter:    string(otel.ExporterNone),
			ServiceName: "toolforge",
			SampleRate:  1,
		},
		Watch: WatchConfig{
			Schedule: "*/5 * * * *",
		},
	}
}
