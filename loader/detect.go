// Package loader reads method and tool inventories from YAML, JSON and TOML
// sources and builds a sealed inventory.Catalog from them.
package loader

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format identifies the syntax of an inventory source.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// DetectFormat picks the parse format from the file extension.
func DetectFormat(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".json":
		return FormatJSON, true
	case ".toml":
		return FormatTOML, true
	}
	return "", false
}

// toJSON converts a source in any supported format to JSON bytes:
// source -> map[string]any -> JSON bytes -> typed struct.
func toJSON(data []byte, format Format) ([]byte, map[string]any, error) {
	var raw map[string]any
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, nil, fmt.Errorf("parsing TOML: %w", classifyParseError(err))
		}
	default:
		// JSON is a subset of YAML, so one decoder serves both. yaml.v3
		// rejects duplicate mapping keys.
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, nil, fmt.Errorf("parsing %s: %w", strings.ToUpper(string(format)), classifyParseError(err))
		}
	}
	if raw == nil {
		return nil, nil, fmt.Errorf("empty document")
	}
	out, err := json.Marshal(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("converting to JSON: %w", err)
	}
	return out, raw, nil
}

func hasKey(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}
