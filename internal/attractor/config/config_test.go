package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	path := writeTemp(t, "run.yaml", "workdir: /tmp/run\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxBudgetUSD != 200.0 {
		t.Fatalf("MaxBudgetUSD = %v, want 200.0", cfg.MaxBudgetUSD)
	}
	if cfg.MaxSteps != 200 {
		t.Fatalf("MaxSteps = %v, want 200", cfg.MaxSteps)
	}
	if cfg.EventBufferSize != 256 {
		t.Fatalf("EventBufferSize = %v, want 256", cfg.EventBufferSize)
	}
}

func TestLoadJSONStrictRejectsUnknownFields(t *testing.T) {
	path := writeTemp(t, "run.json", `{"workdir": "/tmp", "bogus_field": 1}`)
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected an error for an unknown field")
	}
}

func TestLoadYAMLStrictRejectsUnknownFields(t *testing.T) {
	path := writeTemp(t, "run.yaml", "workdir: /tmp\nbogus_field: 1\n")
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected an error for an unknown field")
	}
}

func TestLoadRequiresWorkdir(t *testing.T) {
	path := writeTemp(t, "run.yaml", "max_steps: 10\n")
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected an error for missing workdir")
	}
}

func TestRetryBackoffDefaults(t *testing.T) {
	var r RetryBackoffConfig
	if r.BaseDuration().String() != "500ms" {
		t.Fatalf("BaseDuration = %v, want 500ms", r.BaseDuration())
	}
	if r.MaxDuration().String() != "30s" {
		t.Fatalf("MaxDuration = %v, want 30s", r.MaxDuration())
	}
}

func TestExplicitMaxBudgetUSDOverridesDefault(t *testing.T) {
	path := writeTemp(t, "run.yaml", "workdir: /tmp/run\nmax_budget_usd: 5.0\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxBudgetUSD != 5.0 {
		t.Fatalf("MaxBudgetUSD = %v, want 5.0", cfg.MaxBudgetUSD)
	}
}
