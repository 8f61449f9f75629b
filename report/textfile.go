package report

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/petal-labs/toolforge/codegen"
	"github.com/petal-labs/toolforge/consolidate"
)

// Gatherer builds a registry describing the last run, suitable for the
// node_exporter textfile collector.
func Gatherer(out consolidate.Outcome) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"command": out.Command, "mode": string(out.Mode)}

	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "toolforge_last_run_timestamp_seconds",
		Help:        "Unix time the last toolforge run finished.",
		ConstLabels: labels,
	})
	exitCode := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "toolforge_last_run_exit_code",
		Help:        "Exit code of the last toolforge run.",
		ConstLabels: labels,
	})
	findings := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "toolforge_validation_findings",
		Help:        "Findings reported by the last validation pass.",
		ConstLabels: labels,
	}, []string{"severity"})
	toolsChecked := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "toolforge_validation_tools_checked",
		Help:        "Tools compared against their methods in the last pass.",
		ConstLabels: labels,
	})
	coverage := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "toolforge_method_coverage_ratio",
		Help:        "Share of methods exposed by at least one enabled tool.",
		ConstLabels: labels,
	})
	uncovered := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "toolforge_methods_uncovered",
		Help:        "Methods without any enabled tool.",
		ConstLabels: labels,
	})
	generated := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "toolforge_generation_tools",
		Help:        "Tools by generation result in the last run.",
		ConstLabels: labels,
	}, []string{"result"})
	drift := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "toolforge_drift_artifacts",
		Help:        "Generated artifacts by drift status in the last run.",
		ConstLabels: labels,
	}, []string{"status"})

	for _, c := range []prometheus.Collector{lastRun, exitCode, findings, toolsChecked, coverage, uncovered, generated, drift} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("report: register metric: %w", err)
		}
	}

	lastRun.Set(float64(out.FinishedAt.Unix()))
	exitCode.Set(float64(out.ExitCode))
	coverage.Set(out.Coverage.Ratio())
	uncovered.Set(float64(len(out.Coverage.Uncovered)))
	if out.Report != nil {
		findings.WithLabelValues("error").Set(float64(out.Report.Summary.Errors))
		findings.WithLabelValues("warning").Set(float64(out.Report.Summary.Warnings))
		toolsChecked.Set(float64(out.Report.Summary.ToolsChecked))
	}
	if out.Generation != nil {
		generated.WithLabelValues("success").Set(float64(out.Generation.Succeeded()))
		generated.WithLabelValues("failure").Set(float64(len(out.Generation.Failures)))
		generated.WithLabelValues("skipped").Set(float64(len(out.Generation.Skipped)))
	}
	if out.Drift != nil {
		for _, status := range []codegen.DriftStatus{codegen.DriftInSync, codegen.DriftDiffers, codegen.DriftMissing, codegen.DriftError} {
			drift.WithLabelValues(string(status)).Set(0)
		}
		for _, e := range out.Drift {
			drift.WithLabelValues(string(e.Status)).Inc()
		}
	}
	return reg, nil
}

// WriteTextfile writes the run metrics to path atomically.
func WriteTextfile(path string, out consolidate.Outcome) error {
	reg, err := Gatherer(out)
	if err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("report: write metrics textfile: %w", err)
	}
	return nil
}
