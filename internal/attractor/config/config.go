// Package config loads the engine's run configuration: strict-decode from
// YAML or JSON (unknown fields rejected), followed by a defaults pass and
// validation.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineConfig is the run configuration the engine pre-seeds into the
// context (workdir, dry_run, max_budget_usd, max_steps), plus the ambient
// fields a real deployment needs (logs root, event buffer size, retry
// backoff).
type EngineConfig struct {
	Workdir      string  `json:"workdir" yaml:"workdir"`
	DryRun       bool    `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
	MaxBudgetUSD float64 `json:"max_budget_usd,omitempty" yaml:"max_budget_usd,omitempty"`
	MaxSteps     int     `json:"max_steps,omitempty" yaml:"max_steps,omitempty"`

	LogsRoot        string `json:"logs_root,omitempty" yaml:"logs_root,omitempty"`
	EventBufferSize int    `json:"event_buffer_size,omitempty" yaml:"event_buffer_size,omitempty"`

	RetryBackoff RetryBackoffConfig `json:"retry_backoff,omitempty" yaml:"retry_backoff,omitempty"`
}

// RetryBackoffConfig overrides the exponential backoff policy, expressed
// as millisecond values so zero stays distinguishable from unset.
type RetryBackoffConfig struct {
	BaseMS *int `json:"base_ms,omitempty" yaml:"base_ms,omitempty"`
	MaxMS  *int `json:"max_ms,omitempty" yaml:"max_ms,omitempty"`
}

// BaseDuration returns the configured base delay, defaulting to 500ms
// when unset.
func (r RetryBackoffConfig) BaseDuration() time.Duration {
	if r.BaseMS == nil {
		return 500 * time.Millisecond
	}
	return time.Duration(*r.BaseMS) * time.Millisecond
}

// MaxDuration returns the configured max delay, defaulting to 30s when
// unset.
func (r RetryBackoffConfig) MaxDuration() time.Duration {
	if r.MaxMS == nil {
		return 30 * time.Second
	}
	return time.Duration(*r.MaxMS) * time.Millisecond
}

// Load reads path, strict-decoding as YAML unless its extension is
// ".json", then applies defaults.
func Load(path string) (*EngineConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg EngineConfig
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := decodeJSONStrict(raw, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode json: %w", err)
		}
	default:
		if err := decodeYAMLStrict(raw, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeJSONStrict(b []byte, cfg *EngineConfig) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return fmt.Errorf("json: multiple top-level values are not allowed")
		}
		return err
	}
	return nil
}

func decodeYAMLStrict(b []byte, cfg *EngineConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return fmt.Errorf("yaml: multiple documents are not allowed")
		}
		return err
	}
	return nil
}

// applyDefaults fills the standard defaults: max_budget_usd=200.0,
// max_steps=200, logs root, event buffer size.
func applyDefaults(cfg *EngineConfig) {
	if cfg.MaxBudgetUSD == 0 {
		cfg.MaxBudgetUSD = 200.0
	}
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = 200
	}
	if strings.TrimSpace(cfg.LogsRoot) == "" {
		cfg.LogsRoot = "./attractor-logs"
	}
	if cfg.EventBufferSize == 0 {
		cfg.EventBufferSize = 256
	}
}

func validate(cfg *EngineConfig) error {
	if strings.TrimSpace(cfg.Workdir) == "" {
		return fmt.Errorf("config: workdir is required")
	}
	if cfg.MaxBudgetUSD < 0 {
		return fmt.Errorf("config: max_budget_usd must be >= 0")
	}
	if cfg.MaxSteps < 0 {
		return fmt.Errorf("config: max_steps must be >= 0")
	}
	if cfg.RetryBackoff.BaseMS != nil && *cfg.RetryBackoff.BaseMS < 0 {
		return fmt.Errorf("config: retry_backoff.base_ms must be >= 0")
	}
	if cfg.RetryBackoff.MaxMS != nil && *cfg.RetryBackoff.MaxMS < 0 {
		return fmt.Errorf("config: retry_backoff.max_ms must be >= 0")
	}
	return nil
}
