package config

import "time"

// Config is the top-level configuration structure parsed from YAML.
type Config struct {
	Workflow Workflow `yaml:"workflow"`
	Docker   Docker   `yaml:"docker"`
	DBPath   string   `yaml:"db_path"`
}

// Workflow holds the retry and memory tuning knobs.
type Workflow struct {
	MaxAttempts      int `yaml:"max_attempts"`
	SummaryThreshold int `yaml:"summary_threshold"`
}

// Docker holds subprocess and health-polling timings as duration strings.
type Docker struct {
	BuildTimeout  string `yaml:"build_timeout"`
	HealthTimeout string `yaml:"health_timeout"`
	PollInterval  string `yaml:"poll_interval"`
}

// HealthTimeout returns the parsed health-check budget.
func (c *Config) HealthTimeout() time.Duration {
	return parseDuration(c.Docker.HealthTimeout, 2*time.Minute)
}

// PollInterval returns the parsed health poll interval.
func (c *Config) PollInterval() time.Duration {
	return parseDuration(c.Docker.PollInterval, 2*time.Second)
}

// BuildTimeout returns the parsed docker build budget.
func (c *Config) BuildTimeout() time.Duration {
	return parseDuration(c.Docker.BuildTimeout, 15*time.Minute)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
