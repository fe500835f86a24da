package docker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// call captures one subprocess invocation for assertion.
type call struct {
	dir  string
	name string
	args []string
}

// response is one canned subprocess result.
type response struct {
	stdout string
	stderr string
	code   int
	err    error
}

// scriptRunner replays canned responses keyed by the leading args.
type scriptRunner struct {
	calls     []call
	responses map[string]response
}

func (s *scriptRunner) Run(ctx context.Context, dir, name string, args ...string) (string, string, int, error) {
	s.calls = append(s.calls, call{dir: dir, name: name, args: args})
	for key, resp := range s.responses {
		if strings.HasPrefix(strings.Join(args, " "), key) {
			return resp.stdout, resp.stderr, resp.code, resp.err
		}
	}
	return "", "", 0, nil
}

func TestBuildAssemblesArgs(t *testing.T) {
	runner := &scriptRunner{responses: map[string]response{
		"build": {stdout: "sha256:abc123\n"},
	}}
	c := NewClient(runner)

	imageID, _, err := c.Build(context.Background(), "/proj", map[string]string{"API_KEY": "s3cret"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if imageID != "sha256:abc123" {
		t.Errorf("imageID = %q", imageID)
	}

	if len(runner.calls) != 1 {
		t.Fatalf("calls = %d", len(runner.calls))
	}
	got := runner.calls[0]
	if got.dir != "/proj" || got.name != "docker" {
		t.Errorf("invoked %s in %s", got.name, got.dir)
	}
	joined := strings.Join(got.args, " ")
	for _, want := range []string{"build -q -f Dockerfile", "--build-arg API_KEY=s3cret"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
	if got.args[len(got.args)-1] != "." {
		t.Errorf("args end with %q, want build context", got.args[len(got.args)-1])
	}
}

func TestBuildFailureReturnsOutput(t *testing.T) {
	runner := &scriptRunner{responses: map[string]response{
		"build": {stderr: "Step 5/7 : RUN npm ci\nnpm ERR! missing script\n", code: 1},
	}}
	c := NewClient(runner)

	_, output, err := c.Build(context.Background(), "/proj", nil)
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if !strings.Contains(output, "npm ERR!") {
		t.Errorf("output = %q, want captured stderr", output)
	}
}

// composeProject creates a project directory containing a compose file.
func composeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "compose.yaml"), []byte("services: {}\n"), 0o644); err != nil {
		t.Fatalf("write compose.yaml: %v", err)
	}
	return dir
}

func TestStartWithComposeCollectsContainerIDs(t *testing.T) {
	runner := &scriptRunner{responses: map[string]response{
		"compose up": {stdout: "Started\n"},
		"compose ps": {stdout: "abc123\ndef456\n"},
	}}
	c := NewClient(runner)

	ids, _, err := c.Start(context.Background(), composeProject(t), "sha256:abc", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(ids) != 2 || ids[0] != "abc123" || ids[1] != "def456" {
		t.Errorf("ids = %v", ids)
	}
}

func TestStartWithComposeNoContainersIsError(t *testing.T) {
	runner := &scriptRunner{responses: map[string]response{
		"compose ps": {stdout: "\n"},
	}}
	c := NewClient(runner)

	if _, _, err := c.Start(context.Background(), composeProject(t), "", nil); err == nil {
		t.Error("expected error when compose ps returns no containers")
	}
}

func TestStartWithoutComposeRunsImage(t *testing.T) {
	runner := &scriptRunner{responses: map[string]response{
		"run": {stdout: "deadbeef1234\n"},
	}}
	c := NewClient(runner)

	ids, _, err := c.Start(context.Background(), t.TempDir(), "sha256:abc123", []int{3000, 8080})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(ids) != 1 || ids[0] != "deadbeef1234" {
		t.Errorf("ids = %v", ids)
	}

	if len(runner.calls) != 1 {
		t.Fatalf("calls = %d, want a single docker run", len(runner.calls))
	}
	args := runner.calls[0].args
	joined := strings.Join(args, " ")
	for _, want := range []string{"run -d", "-p 3000:3000", "-p 8080:8080"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
	if args[len(args)-1] != "sha256:abc123" {
		t.Errorf("args end with %q, want the image ID", args[len(args)-1])
	}
}

func TestStartWithoutComposeNeedsImage(t *testing.T) {
	runner := &scriptRunner{}
	c := NewClient(runner)

	if _, _, err := c.Start(context.Background(), t.TempDir(), "", nil); err == nil {
		t.Error("expected error without compose file or image")
	}
	if len(runner.calls) != 0 {
		t.Errorf("calls = %d, want no subprocess without an image", len(runner.calls))
	}
}

func TestStopRemovesRunContainers(t *testing.T) {
	runner := &scriptRunner{}
	c := NewClient(runner)

	if err := c.Stop(context.Background(), t.TempDir(), []string{"c1", "c2"}); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("calls = %d", len(runner.calls))
	}
	if joined := strings.Join(runner.calls[0].args, " "); joined != "rm -f c1 c2" {
		t.Errorf("args = %q", joined)
	}
}

func TestStopWithComposeUsesComposeDown(t *testing.T) {
	runner := &scriptRunner{}
	c := NewClient(runner)

	if err := c.Stop(context.Background(), composeProject(t), nil); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("calls = %d", len(runner.calls))
	}
	if joined := strings.Join(runner.calls[0].args, " "); joined != "compose down" {
		t.Errorf("args = %q", joined)
	}
}

func TestTail(t *testing.T) {
	long := "a\nb\nc\nd\ne"
	if got := tail(long, 2); got != "d\ne" {
		t.Errorf("tail = %q", got)
	}
	if got := tail("only", 5); got != "only" {
		t.Errorf("tail short = %q", got)
	}
}
