package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/GoSim-25-26J-441/profile-autotune/internal/profile"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv(EnvBackendURL, "")
	t.Setenv(EnvAPIKey, "")

	cfg, err := LoadConfig("../../config/autotune.yaml")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected log_level 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.Backend.URL != "http://127.0.0.1:8000" {
		t.Errorf("Unexpected backend url %s", cfg.Backend.URL)
	}
	if len(cfg.Tuning.ExtraPrompts) != 1 || len(cfg.Tuning.History) != 1 {
		t.Errorf("Expected one extra prompt and one history turn")
	}

	form, err := cfg.BaseForm()
	if err != nil {
		t.Fatalf("BaseForm failed: %v", err)
	}
	if form.Name != "baseline" || form.Samples != 2 {
		t.Errorf("Unexpected base form %+v", form)
	}
	if form.Settings[profile.FieldGPULayers] != "32" {
		t.Errorf("Expected 32 GPU layers, got %q", form.Settings[profile.FieldGPULayers])
	}

	axes, err := cfg.Axes()
	if err != nil {
		t.Fatalf("Axes failed: %v", err)
	}
	if len(axes) != 4 {
		t.Fatalf("Expected 4 axes, got %d", len(axes))
	}
	if axes[3].Key != profile.FieldSpeculative {
		t.Errorf("Expected speculative last, got %s", axes[3].Key)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv(EnvBackendURL, "https://llm.internal:9443")
	t.Setenv(EnvAPIKey, " key-123 ")

	cfg, err := LoadConfig("../../config/autotune.yaml")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Backend.URL != "https://llm.internal:9443" || cfg.Backend.APIKey != "key-123" {
		t.Fatalf("Environment overrides not applied: %+v", cfg.Backend)
	}
}

func TestLoadConfigPlanFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "tuning:\n  prompt: hi\n  plan_file: ../../config/plan.yaml\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	axes, err := cfg.Axes()
	if err != nil {
		t.Fatalf("Axes failed: %v", err)
	}
	if len(axes) != 3 || axes[1].Key != profile.FieldContextTokens {
		t.Fatalf("Unexpected plan axes %+v", axes)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("does-not-exist.yaml"); err == nil {
		t.Fatalf("Expected error for missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	ApplyEnv(cfg, func(key string) (string, bool) {
		if key == EnvBackendURL {
			return "   ", true
		}
		return "", false
	})
	if cfg.Backend.URL != "http://127.0.0.1:8000" {
		t.Fatalf("blank override must be ignored, got %s", cfg.Backend.URL)
	}
}

func TestTuningPlan(t *testing.T) {
	cfg, err := ParseConfigYAMLString(`
tuning:
  prompt: " first "
  extra_prompts: ["second", "first"]
  history:
    - role: system
      content: be brief
  base_profile:
    name: base
    options:
      temperature: 0.7
  variations: |
    temperature=0.6,0.8
`)
	if err != nil {
		t.Fatalf("ParseConfigYAMLString failed: %v", err)
	}

	plan, err := cfg.Tuning.Plan()
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if got := plan.Prompts(); len(got) != 2 || got[0] != "first" {
		t.Fatalf("unexpected prompts %v", got)
	}
	if len(plan.Axes) != 1 || plan.Base.Options[profile.FieldTemperature] != "0.7" {
		t.Fatalf("unexpected plan %+v", plan)
	}

	history := cfg.Tuning.HistoryEntries()
	if len(history) != 1 || history[0].Role != "system" || history[0].Content != "be brief" {
		t.Fatalf("unexpected history %+v", history)
	}
}
