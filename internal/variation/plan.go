package variation

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// PlanEntry is one axis in a YAML plan file.
type PlanEntry struct {
	Key    string   `yaml:"key"`
	Values []string `yaml:"values"`
}

// ParsePlanYAML parses a YAML list of {key, values} entries.
func ParsePlanYAML(data []byte) ([]Axis, error) {
	var entries []PlanEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse plan yaml: %w", err)
	}
	axes := make([]Axis, 0, len(entries))
	for i, e := range entries {
		axis, err := NewAxis(e.Key, e.Values)
		if err != nil {
			return nil, fmt.Errorf("plan entry %d: %w", i+1, err)
		}
		axes = append(axes, axis)
	}
	return axes, nil
}

// LoadFile reads variations from disk. .yaml/.yml files are parsed as a
// plan, anything else as variation text.
func LoadFile(path string) ([]Axis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file %s: %w", path, err)
	}

	var axes []Axis
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		axes, err = ParsePlanYAML(data)
	default:
		axes, err = Parse(string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse plan file %s: %w", path, err)
	}
	return axes, nil
}
