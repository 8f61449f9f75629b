package codegen

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/petal-labs/toolforge/inventory"
)

// DriftStatus compares a file on disk with what the generator would write.
type DriftStatus string

const (
	DriftInSync  DriftStatus = "in-sync"
	DriftDiffers DriftStatus = "differs"
	DriftMissing DriftStatus = "missing"
	// DriftError means the artifact could not be rendered.
	DriftError DriftStatus = "error"
)

// DriftEntry is the drift state of one artifact.
type DriftEntry struct {
	Tool     string      `json:"tool"`
	Artifact Artifact    `json:"artifact,omitempty"`
	Path     string      `json:"path,omitempty"`
	Status   DriftStatus `json:"status"`
	Error    string      `json:"error,omitempty"`
}

// Drifted reports whether the entry needs regeneration.
func (e DriftEntry) Drifted() bool { return e.Status != DriftInSync }

// Drift renders every enabled tool in memory and compares the result with
// the checked-in files. It never writes. Colliding tools are reported as
// DriftError entries.
func (g *Generator) Drift(ctx context.Context, tools []inventory.ToolDefinition) ([]DriftEntry, error) {
	enabled := make([]inventory.ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		if tool.IsEnabled() {
			enabled = append(enabled, tool)
		}
	}
	conflicts := g.checkCollisions(enabled)

	var entries []DriftEntry
	for _, tool := range enabled {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if cerr, ok := conflicts[tool.Name]; ok {
			entries = append(entries, DriftEntry{Tool: tool.Name, Status: DriftError, Error: cerr.Error()})
			continue
		}
		files, err := g.render(tool)
		if err != nil {
			entries = append(entries, DriftEntry{Tool: tool.Name, Status: DriftError, Error: err.Error()})
			continue
		}
		for _, f := range files {
			entry := DriftEntry{Tool: tool.Name, Artifact: f.artifact, Path: f.path}
			onDisk, err := os.ReadFile(f.path)
			switch {
			case errors.Is(err, fs.ErrNotExist):
				entry.Status = DriftMissing
			case err != nil:
				return nil, err
			case bytes.Equal(onDisk, f.data):
				entry.Status = DriftInSync
			default:
				entry.Status = DriftDiffers
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}
