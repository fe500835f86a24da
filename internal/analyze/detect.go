package analyze

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultSubTasks returns the built-in analysis sub-tasks: stack detection,
// port discovery, secret scanning, and companion-service detection.
func DefaultSubTasks() []SubTask {
	return []SubTask{
		{Name: "stack", Run: detectStack},
		{Name: "ports", Run: detectPorts},
		{Name: "secrets", Run: detectSecrets},
		{Name: "services", Run: detectServices},
	}
}

type packageJSON struct {
	Scripts         map[string]string `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

func readPackageJSON(projectPath string) (*packageJSON, bool) {
	data, err := os.ReadFile(filepath.Join(projectPath, "package.json"))
	if err != nil {
		return nil, false
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, false
	}
	return &pkg, true
}

func detectStack(ctx context.Context, projectPath string) (*Analysis, error) {
	exists := func(name string) bool {
		_, err := os.Stat(filepath.Join(projectPath, name))
		return err == nil
	}

	if pkg, ok := readPackageJSON(projectPath); ok {
		a := &Analysis{Language: "javascript"}
		for dep := range pkg.Dependencies {
			a.Dependencies = append(a.Dependencies, dep)
		}
		switch {
		case pkg.Dependencies["next"] != "":
			a.Framework = "nextjs"
		case pkg.Dependencies["express"] != "":
			a.Framework = "express"
		case pkg.Dependencies["fastify"] != "":
			a.Framework = "fastify"
		}
		if _, ok := pkg.Scripts["build"]; ok {
			a.BuildCommand = "npm run build"
		}
		if _, ok := pkg.Scripts["start"]; ok {
			a.StartCommand = "npm start"
		}
		return a, nil
	}
	if exists("go.mod") {
		return &Analysis{Language: "go", BuildCommand: "go build ./...", StartCommand: "./app"}, nil
	}
	if exists("requirements.txt") || exists("pyproject.toml") {
		return &Analysis{Language: "python"}, nil
	}
	if exists("Gemfile") {
		return &Analysis{Language: "ruby"}, nil
	}
	if exists("Cargo.toml") {
		return &Analysis{Language: "rust", BuildCommand: "cargo build --release"}, nil
	}
	if exists("pom.xml") || exists("build.gradle") {
		return &Analysis{Language: "java"}, nil
	}
	return &Analysis{}, nil
}

func detectPorts(ctx context.Context, projectPath string) (*Analysis, error) {
	a := &Analysis{}
	for _, name := range []string{".env", ".env.example", ".env.sample"} {
		for key, value := range readEnvFile(filepath.Join(projectPath, name)) {
			if key == "PORT" || strings.HasSuffix(key, "_PORT") {
				if port, err := strconv.Atoi(value); err == nil && port > 0 {
					a.HTTPPorts = append(a.HTTPPorts, port)
				}
			}
		}
	}
	return a, nil
}

// secretKeySuffixes mark env keys that hold credentials rather than config.
var secretKeySuffixes = []string{"_KEY", "_SECRET", "_TOKEN", "_PASSWORD", "_URL"}

func detectSecrets(ctx context.Context, projectPath string) (*Analysis, error) {
	a := &Analysis{}
	for _, name := range []string{".env.example", ".env.sample"} {
		for key := range readEnvFile(filepath.Join(projectPath, name)) {
			for _, suffix := range secretKeySuffixes {
				if strings.HasSuffix(key, suffix) {
					a.Secrets = append(a.Secrets, SecretRequirement{Name: key})
					break
				}
			}
		}
	}
	return a, nil
}

// serviceImages maps well-known dependency names to companion services.
var serviceImages = map[string]Service{
	"pg":       {Name: "postgres", Image: "postgres:16-alpine", Port: 5432},
	"psycopg2": {Name: "postgres", Image: "postgres:16-alpine", Port: 5432},
	"redis":    {Name: "redis", Image: "redis:7-alpine", Port: 6379},
	"ioredis":  {Name: "redis", Image: "redis:7-alpine", Port: 6379},
	"mongodb":  {Name: "mongo", Image: "mongo:7", Port: 27017},
	"mongoose": {Name: "mongo", Image: "mongo:7", Port: 27017},
	"mysql2":   {Name: "mysql", Image: "mysql:8", Port: 3306},
}

func detectServices(ctx context.Context, projectPath string) (*Analysis, error) {
	a := &Analysis{}
	if pkg, ok := readPackageJSON(projectPath); ok {
		for dep := range pkg.Dependencies {
			if svc, ok := serviceImages[dep]; ok && !containsService(a.Services, svc.Name) {
				a.Services = append(a.Services, svc)
			}
		}
	}
	if data, err := os.ReadFile(filepath.Join(projectPath, "requirements.txt")); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			dep := strings.ToLower(strings.TrimSpace(strings.SplitN(line, "=", 2)[0]))
			if svc, ok := serviceImages[dep]; ok && !containsService(a.Services, svc.Name) {
				a.Services = append(a.Services, svc)
			}
		}
	}
	return a, nil
}

// readEnvFile parses KEY=VALUE lines, skipping comments and blanks.
func readEnvFile(path string) map[string]string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	vars := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		if key != "" {
			vars[key] = value
		}
	}
	return vars
}
