package docker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// CommandRunner abstracts subprocess execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, dir string, name string, args ...string) (stdout string, stderr string, exitCode int, err error)
}

// ExecRunner implements CommandRunner by shelling out.
type ExecRunner struct{}

func (e *ExecRunner) Run(ctx context.Context, dir string, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return stdoutBuf.String(), stderrBuf.String(), -1, fmt.Errorf("exec %s: %w", name, err)
		}
	}
	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// Client wraps the docker CLI: build, run, compose up/down, inspect, and
// the bounded health polling loop.
type Client struct {
	cmd          CommandRunner
	pollInterval time.Duration
	buildTimeout time.Duration
	probe        HTTPProber
}

// NewClient creates a Client with default timings.
func NewClient(cmd CommandRunner) *Client {
	return &Client{
		cmd:          cmd,
		pollInterval: 2 * time.Second,
		buildTimeout: 15 * time.Minute,
		probe:        &defaultProber{},
	}
}

// SetPollInterval overrides the health poll interval (for testing).
func (c *Client) SetPollInterval(d time.Duration) {
	c.pollInterval = d
}

// SetBuildTimeout overrides the docker build budget.
func (c *Client) SetBuildTimeout(d time.Duration) {
	c.buildTimeout = d
}

// SetProber overrides the HTTP prober (for testing).
func (c *Client) SetProber(p HTTPProber) {
	c.probe = p
}

// Build runs docker build in path with the given build args. The combined
// output is always returned so callers can persist it on failure.
func (c *Client) Build(ctx context.Context, path string, buildArgs map[string]string) (imageID string, output string, err error) {
	buildCtx, cancel := context.WithTimeout(ctx, c.buildTimeout)
	defer cancel()

	args := []string{"build", "-q", "-f", "Dockerfile"}
	for k, v := range buildArgs {
		args = append(args, "--build-arg", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, ".")

	stdout, stderr, code, err := c.cmd.Run(buildCtx, path, "docker", args...)
	output = stdout + stderr
	if err != nil {
		return "", output, err
	}
	if code != 0 {
		return "", output, fmt.Errorf("docker build exited with code %d: %s", code, tail(stderr, 20))
	}
	return strings.TrimSpace(stdout), output, nil
}

// composeFileNames are the file names docker compose picks up by default.
var composeFileNames = []string{"compose.yaml", "compose.yml", "docker-compose.yml", "docker-compose.yaml"}

func hasComposeFile(path string) bool {
	for _, name := range composeFileNames {
		if _, err := os.Stat(filepath.Join(path, name)); err == nil {
			return true
		}
	}
	return false
}

// Start brings the project's containers up and returns their IDs. With a
// compose file present the project is started through docker compose;
// otherwise the built image is run directly with the given HTTP ports
// published.
func (c *Client) Start(ctx context.Context, path string, imageID string, httpPorts []int) (containerIDs []string, output string, err error) {
	if hasComposeFile(path) {
		return c.startCompose(ctx, path)
	}
	return c.startImage(ctx, path, imageID, httpPorts)
}

func (c *Client) startCompose(ctx context.Context, path string) (containerIDs []string, output string, err error) {
	stdout, stderr, code, err := c.cmd.Run(ctx, path, "docker", "compose", "up", "-d")
	output = stdout + stderr
	if err != nil {
		return nil, output, err
	}
	if code != 0 {
		return nil, output, fmt.Errorf("docker compose up exited with code %d: %s", code, tail(stderr, 20))
	}

	psOut, psErr, code, err := c.cmd.Run(ctx, path, "docker", "compose", "ps", "-q")
	output += psOut + psErr
	if err != nil {
		return nil, output, err
	}
	if code != 0 {
		return nil, output, fmt.Errorf("docker compose ps exited with code %d", code)
	}

	for _, line := range strings.Split(strings.TrimSpace(psOut), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			containerIDs = append(containerIDs, line)
		}
	}
	if len(containerIDs) == 0 {
		return nil, output, fmt.Errorf("no containers running after compose up")
	}
	return containerIDs, output, nil
}

func (c *Client) startImage(ctx context.Context, path string, imageID string, httpPorts []int) ([]string, string, error) {
	if imageID == "" {
		return nil, "", fmt.Errorf("no compose file in %s and no built image to run", path)
	}

	args := []string{"run", "-d"}
	for _, p := range httpPorts {
		args = append(args, "-p", fmt.Sprintf("%d:%d", p, p))
	}
	args = append(args, imageID)

	stdout, stderr, code, err := c.cmd.Run(ctx, path, "docker", args...)
	output := stdout + stderr
	if err != nil {
		return nil, output, err
	}
	if code != 0 {
		return nil, output, fmt.Errorf("docker run exited with code %d: %s", code, tail(stderr, 20))
	}
	id := strings.TrimSpace(stdout)
	if id == "" {
		return nil, output, fmt.Errorf("docker run reported no container ID")
	}
	return []string{id}, output, nil
}

// Stop tears the project's containers down, through compose when a compose
// file exists and by removing the started containers otherwise.
func (c *Client) Stop(ctx context.Context, path string, containerIDs []string) error {
	if hasComposeFile(path) {
		_, stderr, code, err := c.cmd.Run(ctx, path, "docker", "compose", "down")
		if err != nil {
			return err
		}
		if code != 0 {
			return fmt.Errorf("docker compose down exited with code %d: %s", code, tail(stderr, 10))
		}
		return nil
	}

	if len(containerIDs) == 0 {
		return nil
	}
	args := append([]string{"rm", "-f"}, containerIDs...)
	_, stderr, code, err := c.cmd.Run(ctx, path, "docker", args...)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("docker rm exited with code %d: %s", code, tail(stderr, 10))
	}
	return nil
}

// inspectStatus returns the container state string ("running", "exited", ...).
func (c *Client) inspectStatus(ctx context.Context, id string) (string, error) {
	stdout, stderr, code, err := c.cmd.Run(ctx, "", "docker", "inspect", "-f", "{{.State.Status}}", id)
	if err != nil {
		return "", err
	}
	if code != 0 {
		return "", fmt.Errorf("docker inspect %s exited with code %d: %s", id, code, tail(stderr, 5))
	}
	return strings.TrimSpace(stdout), nil
}

// tail returns the last n lines of s.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) <= n {
		return strings.TrimSpace(s)
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
