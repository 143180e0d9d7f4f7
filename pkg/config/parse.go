package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseConfigYAML parses a Config from YAML bytes on top of DefaultConfig
// and validates it. This is used for APIs where config is provided as
// payload (not via filesystem).
func ParseConfigYAML(data []byte) (*Config, error) {
	cfg, err := decodeConfigYAML(data)
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ParseConfigYAMLString parses a Config from a YAML string and validates it.
func ParseConfigYAMLString(yamlText string) (*Config, error) {
	return ParseConfigYAML([]byte(yamlText))
}

// ParseTuningYAML parses a tuning section on its own, as submitted to the
// daemon, on top of the tuning defaults.
func ParseTuningYAML(data []byte) (*TuningConfig, error) {
	tuning := DefaultConfig().Tuning
	if err := yaml.Unmarshal(data, &tuning); err != nil {
		return nil, fmt.Errorf("failed to parse tuning yaml: %w", err)
	}
	if err := validateTuning(&tuning); err != nil {
		return nil, fmt.Errorf("invalid tuning: %w", err)
	}
	return &tuning, nil
}

func decodeConfigYAML(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config yaml: %w", err)
	}
	return cfg, nil
}
