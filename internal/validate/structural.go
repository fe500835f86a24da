package validate

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var placeholderRe = regexp.MustCompile(`\{\{[^}]*\}\}`)

// CheckDockerfile runs the tier-1 structural checks over a Dockerfile.
// It is deterministic and makes no external calls. A non-empty result means
// the artifact is rejected before semantic grading.
func CheckDockerfile(content string, requiredSecrets []string) []string {
	var issues []string

	if strings.TrimSpace(content) == "" {
		return []string{"Dockerfile is empty"}
	}

	if m := placeholderRe.FindString(content); m != "" {
		issues = append(issues, fmt.Sprintf("Unresolved template placeholder: %s", m))
	}

	var instructions []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		instructions = append(instructions, trimmed)
	}

	if len(instructions) > 0 {
		first := strings.ToUpper(firstWord(instructions[0]))
		if first != "FROM" && first != "ARG" {
			issues = append(issues, fmt.Sprintf("First instruction must be FROM or ARG, got %s", first))
		}
	}

	hasWorkdir := false
	for _, inst := range instructions {
		if strings.ToUpper(firstWord(inst)) == "WORKDIR" {
			hasWorkdir = true
			break
		}
	}
	if !hasWorkdir {
		issues = append(issues, "Missing WORKDIR instruction")
	}

	for _, secret := range requiredSecrets {
		if !hasArgDeclaration(instructions, secret) {
			issues = append(issues, fmt.Sprintf("Missing ARG declaration for secret: %s", secret))
		}
		if !hasEnvReference(instructions, secret) {
			issues = append(issues, fmt.Sprintf("Missing ENV declaration for secret: %s", secret))
		}
	}

	return issues
}

// CheckCompose runs the tier-1 structural checks over a compose file.
func CheckCompose(content string) []string {
	if strings.TrimSpace(content) == "" {
		return []string{"Compose file is empty"}
	}

	if m := placeholderRe.FindString(content); m != "" {
		return []string{fmt.Sprintf("Unresolved template placeholder: %s", m)}
	}

	var doc struct {
		Services map[string]interface{} `yaml:"services"`
	}
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return []string{fmt.Sprintf("Compose file is not valid YAML: %v", err)}
	}
	if len(doc.Services) == 0 {
		return []string{"Compose file defines no services"}
	}
	return nil
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// hasArgDeclaration reports whether an ARG instruction declares the name.
func hasArgDeclaration(instructions []string, name string) bool {
	for _, inst := range instructions {
		if strings.ToUpper(firstWord(inst)) != "ARG" {
			continue
		}
		rest := strings.TrimSpace(inst[len(firstWord(inst)):])
		argName := rest
		if idx := strings.IndexAny(rest, "= \t"); idx >= 0 {
			argName = rest[:idx]
		}
		if argName == name {
			return true
		}
	}
	return false
}

// hasEnvReference reports whether an ENV instruction sets the name from the
// matching build argument ($NAME or ${NAME}).
func hasEnvReference(instructions []string, name string) bool {
	for _, inst := range instructions {
		if strings.ToUpper(firstWord(inst)) != "ENV" {
			continue
		}
		rest := inst[len(firstWord(inst)):]
		if !containsAssignment(rest, name) {
			continue
		}
		if strings.Contains(rest, "$"+name) || strings.Contains(rest, "${"+name+"}") {
			return true
		}
	}
	return false
}

// containsAssignment reports whether the ENV body assigns the given name,
// in either "ENV KEY=value" or legacy "ENV KEY value" form.
func containsAssignment(body, name string) bool {
	for _, field := range strings.Fields(body) {
		if field == name || strings.HasPrefix(field, name+"=") {
			return true
		}
	}
	return false
}
