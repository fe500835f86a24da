package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a configuration from the given YAML file path.
// After parsing, defaults are applied to unset values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches standard locations and loads the first config found,
// falling back to pure defaults when none exists. Search order:
// ./wunderunner.yaml, ~/.wunderunner/config.yaml
func LoadDefault() (*Config, error) {
	candidates := []string{"wunderunner.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".wunderunner", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	cfg := &Config{}
	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults fills in unset values.
func applyDefaults(cfg *Config) {
	if cfg.Workflow.MaxAttempts <= 0 {
		cfg.Workflow.MaxAttempts = 3
	}
	if cfg.Workflow.SummaryThreshold <= 0 {
		cfg.Workflow.SummaryThreshold = 10
	}
}
