package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/profile"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/variation"
)

// Environment variables overriding file values
const (
	EnvBackendURL = "AUTOTUNE_BACKEND_URL"
	EnvAPIKey     = "AUTOTUNE_API_KEY"
)

// LoadConfig loads and parses a configuration file. Environment overrides
// are applied before validation.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := decodeConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	ApplyEnv(cfg, os.LookupEnv)
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides backend values from the environment.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvBackendURL); ok && strings.TrimSpace(v) != "" {
		cfg.Backend.URL = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvAPIKey); ok {
		cfg.Backend.APIKey = strings.TrimSpace(v)
	}
}

// Validate checks a configuration assembled outside the loaders.
func Validate(cfg *Config) error {
	return validateConfig(cfg)
}

// validateConfig performs validation on the configuration
func validateConfig(cfg *Config) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return fmt.Errorf("invalid log_format: %s (must be text or json)", cfg.LogFormat)
	}

	if err := validateBackend(&cfg.Backend); err != nil {
		return fmt.Errorf("backend validation failed: %w", err)
	}
	if err := validateTuning(&cfg.Tuning); err != nil {
		return fmt.Errorf("tuning validation failed: %w", err)
	}
	return nil
}

// validateBackend validates the backend section
func validateBackend(b *BackendConfig) error {
	switch b.Transport {
	case "http":
		u, err := url.Parse(b.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("url must be an absolute http(s) URL, got %q", b.URL)
		}
	case "grpc":
		if strings.TrimSpace(b.GRPCAddr) == "" {
			return fmt.Errorf("grpc_addr is required for the grpc transport")
		}
	default:
		return fmt.Errorf("invalid transport: %s (must be http or grpc)", b.Transport)
	}

	timeout, err := b.GetTimeout()
	if err != nil {
		return fmt.Errorf("invalid timeout %s: %w", b.Timeout, err)
	}
	if timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", b.Timeout)
	}
	return nil
}

// validateTuning validates the tuning section
func validateTuning(t *TuningConfig) error {
	if t.TopN < 0 {
		return fmt.Errorf("top_n cannot be negative, got %d", t.TopN)
	}
	if t.BaseProfile.Samples < profile.MinSamples || t.BaseProfile.Samples > profile.MaxSamples {
		return fmt.Errorf("base_profile samples must be between %d and %d, got %d",
			profile.MinSamples, profile.MaxSamples, t.BaseProfile.Samples)
	}
	if _, err := t.BaseProfile.Form(); err != nil {
		return fmt.Errorf("base_profile: %w", err)
	}
	for i, h := range t.History {
		if strings.TrimSpace(h.Role) == "" && strings.TrimSpace(h.Content) != "" {
			return fmt.Errorf("history entry %d: role is required", i)
		}
	}
	if t.PlanFile != "" && strings.TrimSpace(t.Variations) != "" {
		return fmt.Errorf("set either variations or plan_file, not both")
	}
	if t.PlanFile == "" {
		if _, err := variation.Parse(t.Variations); err != nil {
			return fmt.Errorf("variations: %w", err)
		}
	}
	return nil
}
