package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wunderlabs-dev/wunderunner/internal/analyze"
	"github.com/wunderlabs-dev/wunderunner/internal/config"
	"github.com/wunderlabs-dev/wunderunner/internal/history"
	"github.com/wunderlabs-dev/wunderunner/internal/learning"
	"github.com/wunderlabs-dev/wunderunner/internal/memory"
	"github.com/wunderlabs-dev/wunderunner/internal/regression"
	"github.com/wunderlabs-dev/wunderunner/internal/store"
	"github.com/wunderlabs-dev/wunderunner/internal/validate"
)

type mockAnalyzer struct {
	calls  int
	result *analyze.Analysis
	err    error
}

func (m *mockAnalyzer) Analyze(ctx context.Context, projectPath string, rebuild bool) (*analyze.Analysis, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockGenerator struct {
	calls    int
	requests []GenerateRequest
	artifact string
}

func (m *mockGenerator) Generate(ctx context.Context, req GenerateRequest) (*Generation, error) {
	m.calls++
	m.requests = append(m.requests, req)
	return &Generation{Artifact: m.artifact, Confidence: 8, Reasoning: "generated"}, nil
}

type mockFixer struct {
	calls   int
	results []*FixResult
}

func (m *mockFixer) Fix(ctx context.Context, req FixRequest) (*FixResult, error) {
	m.calls++
	if len(m.results) > 0 {
		r := m.results[0]
		m.results = m.results[1:]
		return r, nil
	}
	return &FixResult{Fixed: true, Changes: []string{"Dockerfile"}, Explanation: "pinned base image", Dockerfile: "FROM node:20-alpine\nWORKDIR /app\n"}, nil
}

type scriptedGrader struct {
	calls   int
	results []*validate.Result
}

func (m *scriptedGrader) Grade(ctx context.Context, artifact string, analysis *analyze.Analysis, learnings []learning.Learning) (*validate.Result, error) {
	m.calls++
	if len(m.results) > 0 {
		r := m.results[0]
		m.results = m.results[1:]
		return r, nil
	}
	return &validate.Result{Grade: 95}, nil
}

type mockComparator struct {
	calls  int
	report *regression.Report
}

func (m *mockComparator) Check(ctx context.Context, artifact string, fixes []regression.Fix, originalConfidence int) (*regression.Report, error) {
	m.calls++
	if m.report != nil {
		return m.report, nil
	}
	return &regression.Report{}, nil
}

type runtimeResult struct {
	err    error
	output string
}

type mockRuntime struct {
	buildCalls    int
	buildArgs     []map[string]string
	buildResults  []runtimeResult
	startCalls    int
	startImages   []string
	startPorts    [][]int
	startResults  []runtimeResult
	stopCalls     int
	healthCalls   int
	healthResults []error
}

func take(results *[]runtimeResult) runtimeResult {
	if len(*results) == 0 {
		return runtimeResult{}
	}
	r := (*results)[0]
	*results = (*results)[1:]
	return r
}

func (m *mockRuntime) Build(ctx context.Context, path string, buildArgs map[string]string) (string, string, error) {
	m.buildCalls++
	m.buildArgs = append(m.buildArgs, buildArgs)
	r := take(&m.buildResults)
	if r.err != nil {
		return "", r.output, r.err
	}
	return "sha256:img", r.output, nil
}

func (m *mockRuntime) Start(ctx context.Context, path, imageID string, httpPorts []int) ([]string, string, error) {
	m.startCalls++
	m.startImages = append(m.startImages, imageID)
	m.startPorts = append(m.startPorts, httpPorts)
	r := take(&m.startResults)
	if r.err != nil {
		return nil, r.output, r.err
	}
	return []string{"c1"}, r.output, nil
}

func (m *mockRuntime) Stop(ctx context.Context, path string, containerIDs []string) error {
	m.stopCalls++
	return nil
}

func (m *mockRuntime) Healthcheck(ctx context.Context, ids []string, ports []int, timeout time.Duration) error {
	m.healthCalls++
	if len(m.healthResults) > 0 {
		err := m.healthResults[0]
		m.healthResults = m.healthResults[1:]
		return err
	}
	return nil
}

type mockHuman struct {
	secrets    map[string]string
	hints      []string
	hintCalls  int
	secretReqs []string
}

func (m *mockHuman) Secret(ctx context.Context, name, service string) (string, error) {
	m.secretReqs = append(m.secretReqs, name)
	return m.secrets[name], nil
}

func (m *mockHuman) Hint(ctx context.Context, learnings []learning.Learning) (string, bool, error) {
	m.hintCalls++
	if len(m.hints) == 0 {
		return "", false, nil
	}
	h := m.hints[0]
	m.hints = m.hints[1:]
	return h, true, nil
}

type nopEvents struct{}

func (nopEvents) LogWorkflowEvent(runID, project, event, phase string, attempt int, detail string) error {
	return nil
}
func (nopEvents) LogValidation(runID, project string, attempt, grade int, valid bool, issues []string) error {
	return nil
}

type stubSummarizer struct{}

func (stubSummarizer) Summarize(ctx context.Context, entries []memory.ContextEntry, prior string) (string, error) {
	return "summary", nil
}

const testDockerfile = "FROM node:20-alpine\nWORKDIR /app\nCOPY . .\nCMD [\"npm\", \"start\"]\n"

type harness struct {
	engine     *Engine
	analyzer   *mockAnalyzer
	dockerfile *mockGenerator
	services   *mockGenerator
	fixer      *mockFixer
	grader     *scriptedGrader
	comparator *mockComparator
	runtime    *mockRuntime
	human      *mockHuman
	histories  *history.Store
	project    string
}

func newHarness(t *testing.T, analysis *analyze.Analysis) *harness {
	t.Helper()
	project := t.TempDir()
	analysis.ProjectPath = project

	files := store.NewStore(project)
	contexts := memory.NewStore(files, stubSummarizer{}, 0)
	histories := history.NewStore(files)

	h := &harness{
		analyzer:   &mockAnalyzer{result: analysis},
		dockerfile: &mockGenerator{artifact: testDockerfile},
		services:   &mockGenerator{artifact: "services:\n  web:\n    build: .\n"},
		fixer:      &mockFixer{},
		grader:     &scriptedGrader{},
		comparator: &mockComparator{},
		runtime:    &mockRuntime{},
		human:      &mockHuman{secrets: map[string]string{}},
		histories:  histories,
		project:    project,
	}
	h.engine = NewEngine(
		h.analyzer,
		h.dockerfile,
		h.services,
		h.fixer,
		validate.NewValidator(h.grader),
		regression.NewGuard(h.comparator, contexts),
		h.runtime,
		h.human,
		histories,
		contexts,
		files,
		nopEvents{},
		&config.Config{Workflow: config.Workflow{MaxAttempts: 3, SummaryThreshold: 10}},
	)
	return h
}

func TestRunHappyPath(t *testing.T) {
	h := newHarness(t, &analyze.Analysis{
		Language:  "javascript",
		HTTPPorts: []int{3000},
		Secrets:   []analyze.SecretRequirement{{Name: "API_KEY"}},
	})
	h.human.secrets["API_KEY"] = "s3cret"

	if err := h.engine.Run(context.Background(), h.project, false); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if h.dockerfile.calls != 1 || h.fixer.calls != 0 {
		t.Errorf("generator calls = %d, fixer calls = %d", h.dockerfile.calls, h.fixer.calls)
	}
	if h.runtime.buildCalls != 1 || h.runtime.startCalls != 1 || h.runtime.healthCalls != 1 {
		t.Errorf("runtime calls = build %d, start %d, health %d",
			h.runtime.buildCalls, h.runtime.startCalls, h.runtime.healthCalls)
	}
	if got := h.runtime.buildArgs[0]["API_KEY"]; got != "s3cret" {
		t.Errorf("build arg API_KEY = %q", got)
	}

	// The single-service path hands the built image and ports to the runtime
	// and never writes a compose file.
	if got := h.runtime.startImages[0]; got != "sha256:img" {
		t.Errorf("start image = %q", got)
	}
	if ports := h.runtime.startPorts[0]; len(ports) != 1 || ports[0] != 3000 {
		t.Errorf("start ports = %v", ports)
	}
	if _, err := os.Stat(filepath.Join(h.project, "compose.yaml")); !os.IsNotExist(err) {
		t.Errorf("compose.yaml unexpectedly present (err = %v)", err)
	}

	data, err := os.ReadFile(filepath.Join(h.project, "Dockerfile"))
	if err != nil {
		t.Fatalf("Dockerfile not written: %v", err)
	}
	if string(data) != testDockerfile {
		t.Errorf("written Dockerfile = %q", data)
	}
}

func TestRunMultiServiceGeneratesCompose(t *testing.T) {
	h := newHarness(t, &analyze.Analysis{
		Language: "javascript",
		Services: []analyze.Service{{Name: "postgres", Image: "postgres:16-alpine"}},
	})

	if err := h.engine.Run(context.Background(), h.project, false); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.services.calls != 1 {
		t.Errorf("services generator calls = %d, want 1", h.services.calls)
	}
	if _, err := os.Stat(filepath.Join(h.project, "compose.yaml")); err != nil {
		t.Errorf("compose.yaml not written: %v", err)
	}
}

func TestAnalyzeFailureIsFatal(t *testing.T) {
	h := newHarness(t, &analyze.Analysis{Language: "go"})
	h.analyzer.err = errors.New("no project files")

	err := h.engine.Run(context.Background(), h.project, false)
	if err == nil {
		t.Fatal("expected fatal error")
	}
	if h.analyzer.calls != 1 {
		t.Errorf("analyzer calls = %d, want exactly 1", h.analyzer.calls)
	}
	if h.dockerfile.calls != 0 || h.runtime.buildCalls != 0 {
		t.Error("workflow continued past failed analysis")
	}
}

func TestValidationFailureRegenerates(t *testing.T) {
	h := newHarness(t, &analyze.Analysis{Language: "javascript"})
	h.grader.results = []*validate.Result{
		{Grade: 45, Issues: []string{"no layer caching"}},
		{Grade: 95},
	}

	if err := h.engine.Run(context.Background(), h.project, false); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.dockerfile.calls != 2 {
		t.Errorf("generator calls = %d, want full regeneration", h.dockerfile.calls)
	}
	if h.fixer.calls != 0 {
		t.Errorf("fixer calls = %d, want 0 for validation failures", h.fixer.calls)
	}
}

func TestBuildFailureUsesSurgicalFix(t *testing.T) {
	h := newHarness(t, &analyze.Analysis{Language: "javascript"})
	h.runtime.buildResults = []runtimeResult{
		{err: errors.New("npm ci failed"), output: "npm ERR! lockfile mismatch"},
		{},
	}

	if err := h.engine.Run(context.Background(), h.project, false); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.fixer.calls != 1 {
		t.Errorf("fixer calls = %d, want 1", h.fixer.calls)
	}
	if h.dockerfile.calls != 1 {
		t.Errorf("generator calls = %d, want no regeneration for runtime failures", h.dockerfile.calls)
	}

	// The build failure output is captured for later inspection.
	files := store.NewStore(h.project)
	log, err := files.GetAttemptLog(1)
	if err != nil {
		t.Fatalf("attempt log: %v", err)
	}
	if log != "npm ERR! lockfile mismatch" {
		t.Errorf("attempt log = %q", log)
	}

	// A successful build after a fix records the fix as a hard constraint.
	hist, err := h.histories.Load()
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	if len(hist.Constraints) != 1 {
		t.Fatalf("constraints = %+v, want 1", hist.Constraints)
	}
	c := hist.Constraints[0]
	if c.Rule != "pinned base image" || c.Status != history.StatusHard || c.SuccessCount != 0 {
		t.Errorf("constraint = %+v", c)
	}
	if len(hist.Attempts) != 1 || !hist.Attempts[0].Success {
		t.Errorf("attempts = %+v, want one confirmed attempt", hist.Attempts)
	}
}

func TestMaxAttemptsEscalatesToHint(t *testing.T) {
	h := newHarness(t, &analyze.Analysis{Language: "javascript"})
	h.grader.results = []*validate.Result{
		{Grade: 40}, {Grade: 41}, {Grade: 42}, // exhaust MaxAttempts=3
		{Grade: 95}, // after the hint
	}
	h.human.hints = []string{"the app needs node 20, not 18"}

	if err := h.engine.Run(context.Background(), h.project, false); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.human.hintCalls != 1 {
		t.Errorf("hint calls = %d, want 1", h.human.hintCalls)
	}

	// The hint flows into every subsequent generation request.
	last := h.dockerfile.requests[len(h.dockerfile.requests)-1]
	if len(last.Hints) != 1 || last.Hints[0] != "the app needs node 20, not 18" {
		t.Errorf("Hints = %v", last.Hints)
	}
}

func TestHintResetsRetryCounter(t *testing.T) {
	h := newHarness(t, &analyze.Analysis{Language: "javascript"})
	// Three failures exhaust attempts, then after the hint two more failures
	// must be tolerated before success without asking again.
	h.grader.results = []*validate.Result{
		{Grade: 10}, {Grade: 10}, {Grade: 10},
		{Grade: 10}, {Grade: 10}, {Grade: 95},
	}
	h.human.hints = []string{"use alpine"}

	if err := h.engine.Run(context.Background(), h.project, false); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.human.hintCalls != 1 {
		t.Errorf("hint calls = %d, want counter reset after first hint", h.human.hintCalls)
	}
}

func TestHintDeclinedCancelsRun(t *testing.T) {
	h := newHarness(t, &analyze.Analysis{Language: "javascript"})
	h.grader.results = []*validate.Result{{Grade: 10}, {Grade: 10}, {Grade: 10}}
	// No hints queued: the human declines.

	err := h.engine.Run(context.Background(), h.project, false)
	if !errors.Is(err, learning.ErrHintDeclined) {
		t.Fatalf("err = %v, want ErrHintDeclined", err)
	}

	generatorCalls := h.dockerfile.calls
	if h.runtime.buildCalls != 0 {
		t.Errorf("build calls = %d after decline", h.runtime.buildCalls)
	}
	if generatorCalls != 3 {
		t.Errorf("generator calls = %d, want none after decline", generatorCalls)
	}

	// Accumulated learnings survive the cancelled run.
	var learnings []learning.Learning
	if _, err := store.ReadJSON(store.NewStore(h.project).LearningsPath(), &learnings); err != nil {
		t.Fatalf("read learnings: %v", err)
	}
	if len(learnings) != 3 {
		t.Errorf("persisted learnings = %d, want 3", len(learnings))
	}
}

func TestHealthcheckFailureStopsContainersBeforeRetry(t *testing.T) {
	h := newHarness(t, &analyze.Analysis{Language: "javascript", HTTPPorts: []int{3000}})
	h.runtime.healthResults = []error{errors.New("container exited"), nil}

	if err := h.engine.Run(context.Background(), h.project, false); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.runtime.stopCalls != 1 {
		t.Errorf("stop calls = %d, want teardown after failed health check", h.runtime.stopCalls)
	}
	if h.runtime.startCalls != 2 {
		t.Errorf("start calls = %d, want restart after fix", h.runtime.startCalls)
	}
}

func TestComposeOnlyFixSkipsRevalidation(t *testing.T) {
	h := newHarness(t, &analyze.Analysis{
		Language: "javascript",
		Services: []analyze.Service{{Name: "redis", Image: "redis:7-alpine"}},
	})
	h.runtime.startResults = []runtimeResult{
		{err: errors.New("port conflict"), output: "bind: address already in use"},
		{},
	}
	h.fixer.results = []*FixResult{{
		Fixed:       true,
		Changes:     []string{"compose.yaml"},
		Explanation: "remapped host port",
		Compose:     "services:\n  web:\n    ports:\n      - \"3001:3000\"\n",
	}}

	if err := h.engine.Run(context.Background(), h.project, false); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.grader.calls != 1 {
		t.Errorf("grader calls = %d, want no re-validation for compose-only fix", h.grader.calls)
	}
	if h.services.calls != 1 {
		t.Errorf("services generator calls = %d, want fixed compose preserved", h.services.calls)
	}
	if h.runtime.buildCalls != 2 {
		t.Errorf("build calls = %d, want rebuild after fix", h.runtime.buildCalls)
	}

	data, err := os.ReadFile(filepath.Join(h.project, "compose.yaml"))
	if err != nil {
		t.Fatalf("compose.yaml: %v", err)
	}
	if string(data) != "services:\n  web:\n    ports:\n      - \"3001:3000\"\n" {
		t.Errorf("compose.yaml = %q, want fixed contents", data)
	}
}

func TestMixedFixKeepsComposeThroughServices(t *testing.T) {
	h := newHarness(t, &analyze.Analysis{
		Language: "javascript",
		Services: []analyze.Service{{Name: "redis", Image: "redis:7-alpine"}},
	})
	h.runtime.buildResults = []runtimeResult{
		{err: errors.New("copy failed")},
		{},
	}
	fixedCompose := "services:\n  web:\n    build: .\n  redis:\n    image: redis:7-alpine\n"
	h.fixer.results = []*FixResult{{
		Fixed:       true,
		Changes:     []string{"Dockerfile", "compose.yaml"},
		Explanation: "copy package files before install",
		Dockerfile:  testDockerfile,
		Compose:     fixedCompose,
	}}

	if err := h.engine.Run(context.Background(), h.project, false); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.services.calls != 1 {
		t.Errorf("services generator calls = %d, want skip after compose-touching fix", h.services.calls)
	}

	data, err := os.ReadFile(filepath.Join(h.project, "compose.yaml"))
	if err != nil {
		t.Fatalf("compose.yaml: %v", err)
	}
	if string(data) != fixedCompose {
		t.Errorf("compose.yaml = %q", data)
	}
}

func TestRegressionGuardLowersConfidence(t *testing.T) {
	h := newHarness(t, &analyze.Analysis{Language: "javascript"})

	// Seed a confirmed constraint so the guard has fixes to check.
	_, err := h.histories.Update(func(fh *history.FixHistory) {
		fh.Constraints = append(fh.Constraints, history.Constraint{
			ID: "c1", Rule: "pin node:20-alpine", Reason: "latest tag broke", Status: history.StatusHard,
		})
	})
	if err != nil {
		t.Fatalf("seed history: %v", err)
	}
	h.comparator.report = &regression.Report{
		HasRegression:      true,
		Violations:         []string{"base image unpinned again"},
		AdjustedConfidence: 6,
	}

	if err := h.engine.Run(context.Background(), h.project, false); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.comparator.calls != 1 {
		t.Errorf("comparator calls = %d, want 1", h.comparator.calls)
	}

	// The seeded constraint surfaces as a hard rule in the generation request.
	req := h.dockerfile.requests[0]
	if len(req.HardRules) != 1 || req.HardRules[0] != "pin node:20-alpine" {
		t.Errorf("HardRules = %v", req.HardRules)
	}
}

func TestViolatedConstraintResetsOnReoccurrence(t *testing.T) {
	h := newHarness(t, &analyze.Analysis{Language: "javascript"})

	// A previously confirmed fix for this exact failure exists, softened by
	// repeated successes.
	_, err := h.histories.Update(func(fh *history.FixHistory) {
		fh.Attempts = append(fh.Attempts, history.FixAttempt{
			Attempt: 1, Phase: "build", ErrorKind: "BuildError",
			ErrorMessage: "npm ci failed", Success: true,
		})
		fh.Constraints = append(fh.Constraints, history.Constraint{
			ID: "c1", Rule: "copy lockfile first", Reason: "npm ci needs it",
			Status: history.StatusSoft, SuccessCount: 4,
		})
	})
	if err != nil {
		t.Fatalf("seed history: %v", err)
	}

	h.runtime.buildResults = []runtimeResult{
		{err: errors.New("npm ci failed")},
		{},
	}
	h.fixer.results = []*FixResult{{
		Fixed:       true,
		Changes:     []string{"Dockerfile"},
		Explanation: "copy lockfile first",
		Dockerfile:  testDockerfile,
	}}

	if err := h.engine.Run(context.Background(), h.project, false); err != nil {
		t.Fatalf("Run: %v", err)
	}

	hist, err := h.histories.Load()
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	var c *history.Constraint
	for i := range hist.Constraints {
		if hist.Constraints[i].Rule == "copy lockfile first" {
			c = &hist.Constraints[i]
		}
	}
	if c == nil {
		t.Fatalf("constraint missing: %+v", hist.Constraints)
	}
	if c.Status != history.StatusHard || c.SuccessCount != 0 {
		t.Errorf("reoccurred constraint = %+v, want hard reset", *c)
	}
}
