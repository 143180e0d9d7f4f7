package config

import (
	"fmt"
	"time"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/backend"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/improvement"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/profile"
	"github.com/GoSim-25-26J-441/profile-autotune/internal/variation"
)

// Config represents the tuner configuration
type Config struct {
	LogLevel  string        `yaml:"log_level"`
	LogFormat string        `yaml:"log_format"`
	Backend   BackendConfig `yaml:"backend"`
	Tuning    TuningConfig  `yaml:"tuning"`
	Output    OutputConfig  `yaml:"output"`
	Server    ServerConfig  `yaml:"server"`
}

// BackendConfig describes how to reach the inference backend
type BackendConfig struct {
	Transport string `yaml:"transport"` // http or grpc
	URL       string `yaml:"url"`
	GRPCAddr  string `yaml:"grpc_addr"`
	APIKey    string `yaml:"api_key"`
	Timeout   string `yaml:"timeout"` // e.g., "5m"
}

// TuningConfig describes the experiment
type TuningConfig struct {
	Prompt       string        `yaml:"prompt"`
	ExtraPrompts []string      `yaml:"extra_prompts"`
	History      []HistoryTurn `yaml:"history"`
	BaseProfile  ProfileConfig `yaml:"base_profile"`
	Variations   string        `yaml:"variations"`
	PlanFile     string        `yaml:"plan_file"`
	TopN         int           `yaml:"top_n"`
}

// HistoryTurn is one prior conversation message
type HistoryTurn struct {
	Role    string `yaml:"role"`
	Content string `yaml:"content"`
}

// ProfileConfig is the base profile every candidate derives from
type ProfileConfig struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Samples     int               `yaml:"samples"`
	Speculative bool              `yaml:"speculative"`
	Options     map[string]string `yaml:"options"`
	Settings    map[string]string `yaml:"settings"`
}

// OutputConfig lists optional export files
type OutputConfig struct {
	CSV  string `yaml:"csv"`
	JSON string `yaml:"json"`
}

// ServerConfig configures the tuning daemon
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	// GRPCAddr, when set, re-exports the configured backend over gRPC.
	GRPCAddr string `yaml:"grpc_addr"`
}

// DefaultConfig returns the configuration used when a file omits a value
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Backend: BackendConfig{
			Transport: "http",
			URL:       "http://127.0.0.1:8000",
			Timeout:   "5m",
		},
		Tuning: TuningConfig{
			BaseProfile: ProfileConfig{
				Name:    "baseline",
				Samples: 2,
			},
			TopN: 5,
		},
		Server: ServerConfig{
			HTTPAddr: ":8090",
		},
	}
}

// GetTimeout parses the timeout string to time.Duration
func (b *BackendConfig) GetTimeout() (time.Duration, error) {
	return time.ParseDuration(b.Timeout)
}

// BaseForm converts the base profile into a form, resolving every key.
func (c *Config) BaseForm() (profile.Form, error) {
	return c.Tuning.BaseProfile.Form()
}

// Form converts the profile into a form. Option keys must be sampling
// options and setting keys backend settings.
func (p ProfileConfig) Form() (profile.Form, error) {
	form := profile.NewForm(p.Name)
	form.Description = p.Description
	form.Samples = p.Samples
	if form.Samples < profile.MinSamples {
		form.Samples = profile.MinSamples
	}
	if form.Samples > profile.MaxSamples {
		form.Samples = profile.MaxSamples
	}
	form.Speculative = p.Speculative

	for key, value := range p.Options {
		field, err := profile.ParseField(key)
		if err != nil {
			return profile.Form{}, fmt.Errorf("options: %w", err)
		}
		if field.Namespace() != profile.NamespaceOption {
			return profile.Form{}, fmt.Errorf("options: %s is a %s, not a sampling option", field, field.Namespace())
		}
		form.Options[field] = value
	}
	for key, value := range p.Settings {
		field, err := profile.ParseField(key)
		if err != nil {
			return profile.Form{}, fmt.Errorf("settings: %w", err)
		}
		if field.Namespace() != profile.NamespaceSetting {
			return profile.Form{}, fmt.Errorf("settings: %s is a %s, not a backend setting", field, field.Namespace())
		}
		form.Settings[field] = value
	}
	return form, nil
}

// Axes compiles the variation matrix from the plan file or inline text.
func (c *Config) Axes() ([]variation.Axis, error) {
	return c.Tuning.Axes()
}

// Axes compiles the variation matrix from the plan file or inline text.
func (t TuningConfig) Axes() ([]variation.Axis, error) {
	if t.PlanFile != "" {
		return variation.LoadFile(t.PlanFile)
	}
	return variation.Parse(t.Variations)
}

// HistoryEntries converts the history turns for benchmark requests.
func (t TuningConfig) HistoryEntries() []backend.HistoryEntry {
	out := make([]backend.HistoryEntry, 0, len(t.History))
	for _, h := range t.History {
		out = append(out, backend.HistoryEntry{Role: h.Role, Content: h.Content})
	}
	return out
}

// Plan assembles the optimizer plan for this tuning section.
func (t TuningConfig) Plan() (improvement.Plan, error) {
	base, err := t.BaseProfile.Form()
	if err != nil {
		return improvement.Plan{}, fmt.Errorf("base_profile: %w", err)
	}
	axes, err := t.Axes()
	if err != nil {
		return improvement.Plan{}, fmt.Errorf("variations: %w", err)
	}
	return improvement.Plan{
		Base:         base,
		Axes:         axes,
		Prompt:       t.Prompt,
		ExtraPrompts: t.ExtraPrompts,
	}, nil
}
