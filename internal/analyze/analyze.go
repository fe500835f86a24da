package analyze

import (
	"context"
	"fmt"
)

// SecretRequirement names a secret the project needs at build or run time.
type SecretRequirement struct {
	Name    string `json:"name"`
	Service string `json:"service,omitempty"`
}

// Service describes one service of a multi-service project.
type Service struct {
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
	Port  int    `json:"port,omitempty"`
}

// Analysis is the combined result of analyzing a project: detected stack,
// commands, exposed ports, required secrets, and companion services.
type Analysis struct {
	ProjectPath  string              `json:"project_path"`
	Language     string              `json:"language"`
	Framework    string              `json:"framework,omitempty"`
	BuildCommand string              `json:"build_command,omitempty"`
	StartCommand string              `json:"start_command,omitempty"`
	Dependencies []string            `json:"dependencies,omitempty"`
	HTTPPorts    []int               `json:"http_ports,omitempty"`
	Secrets      []SecretRequirement `json:"secrets,omitempty"`
	Services     []Service           `json:"services,omitempty"`
}

// MultiService reports whether the project needs a compose file.
func (a *Analysis) MultiService() bool {
	return len(a.Services) > 0
}

// SecretNames returns the names of all required secrets.
func (a *Analysis) SecretNames() []string {
	names := make([]string, 0, len(a.Secrets))
	for _, s := range a.Secrets {
		names = append(names, s.Name)
	}
	return names
}

// Analyzer produces an Analysis for a project.
type Analyzer interface {
	Analyze(ctx context.Context, projectPath string, rebuild bool) (*Analysis, error)
}

// merge folds a partial analysis into the accumulated one. Scalar fields are
// first-writer-wins across sub-tasks; list fields are appended with
// duplicates dropped.
func merge(dst, src *Analysis) {
	if dst.Language == "" {
		dst.Language = src.Language
	}
	if dst.Framework == "" {
		dst.Framework = src.Framework
	}
	if dst.BuildCommand == "" {
		dst.BuildCommand = src.BuildCommand
	}
	if dst.StartCommand == "" {
		dst.StartCommand = src.StartCommand
	}
	dst.Dependencies = appendUnique(dst.Dependencies, src.Dependencies)
	for _, p := range src.HTTPPorts {
		if !containsInt(dst.HTTPPorts, p) {
			dst.HTTPPorts = append(dst.HTTPPorts, p)
		}
	}
	for _, sec := range src.Secrets {
		if !containsSecret(dst.Secrets, sec.Name) {
			dst.Secrets = append(dst.Secrets, sec)
		}
	}
	for _, svc := range src.Services {
		if !containsService(dst.Services, svc.Name) {
			dst.Services = append(dst.Services, svc)
		}
	}
}

func appendUnique(dst, src []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, s := range dst {
		seen[s] = true
	}
	for _, s := range src {
		if !seen[s] {
			dst = append(dst, s)
			seen[s] = true
		}
	}
	return dst
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsSecret(list []SecretRequirement, name string) bool {
	for _, s := range list {
		if s.Name == name {
			return true
		}
	}
	return false
}

func containsService(list []Service, name string) bool {
	for _, s := range list {
		if s.Name == name {
			return true
		}
	}
	return false
}

// Validate checks that an analysis is usable by the generation phases.
func (a *Analysis) Validate() error {
	if a.Language == "" {
		return fmt.Errorf("analysis detected no language for %s", a.ProjectPath)
	}
	return nil
}
