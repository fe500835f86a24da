package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/wunderlabs-dev/wunderunner/internal/analyze"
	"github.com/wunderlabs-dev/wunderunner/internal/config"
	"github.com/wunderlabs-dev/wunderunner/internal/history"
	"github.com/wunderlabs-dev/wunderunner/internal/learning"
	"github.com/wunderlabs-dev/wunderunner/internal/memory"
	"github.com/wunderlabs-dev/wunderunner/internal/regression"
	"github.com/wunderlabs-dev/wunderunner/internal/store"
	"github.com/wunderlabs-dev/wunderunner/internal/validate"
)

// Engine drives the attempt loop: analysis, artifact generation, validation,
// build, start, and health check, with failure-classified repair in between.
type Engine struct {
	analyzer   analyze.Analyzer
	dockerfile Generator
	services   Generator
	fixer      Fixer
	validator  *validate.Validator
	guard      *regression.Guard
	runtime    Runtime
	human      HumanPrompt
	histories  *history.Store
	contexts   *memory.Store
	files      *store.Store
	events     EventLog
	cfg        *config.Config
	progress   io.Writer
}

// NewEngine creates an Engine from its collaborators.
func NewEngine(
	analyzer analyze.Analyzer,
	dockerfileGen Generator,
	servicesGen Generator,
	fixer Fixer,
	validator *validate.Validator,
	guard *regression.Guard,
	runtime Runtime,
	human HumanPrompt,
	histories *history.Store,
	contexts *memory.Store,
	files *store.Store,
	events EventLog,
	cfg *config.Config,
) *Engine {
	return &Engine{
		analyzer:   analyzer,
		dockerfile: dockerfileGen,
		services:   servicesGen,
		fixer:      fixer,
		validator:  validator,
		guard:      guard,
		runtime:    runtime,
		human:      human,
		histories:  histories,
		contexts:   contexts,
		files:      files,
		events:     events,
		cfg:        cfg,
	}
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (e *Engine) SetProgress(w io.Writer) {
	e.progress = w
}

// logf prints a progress line if a progress writer is configured.
func (e *Engine) logf(format string, args ...interface{}) {
	if e.progress != nil {
		fmt.Fprintf(e.progress, "  → "+format+"\n", args...)
	}
}

// Run executes the workflow for one project until success, human decline,
// or an unrecoverable setup error. Accumulated learnings are persisted to
// the project cache even on a fatal abort.
func (e *Engine) Run(ctx context.Context, projectPath string, rebuild bool) error {
	state := &RunState{
		RunID:       uuid.NewString(),
		ProjectPath: projectPath,
		Rebuild:     rebuild,
		Secrets:     make(map[string]string),
	}
	defer e.saveLearnings(state)

	node := NodeAnalyze
	for {
		e.logEvent(state, "node_enter", node.String(), "")

		next, fail, err := e.step(ctx, node, state)
		if err != nil {
			if errors.Is(err, learning.ErrHintDeclined) {
				e.logEvent(state, "cancelled", node.String(), "hint declined")
			} else {
				e.logEvent(state, "fatal", node.String(), err.Error())
			}
			return err
		}
		if fail != nil {
			e.logf("%s failed: %s", fail.Phase, fail.Message)
			state.recordFailure(*fail)
			e.logEvent(state, "phase_failed", string(fail.Phase), fail.Message)
			node = NodeRetryOrHint
			continue
		}
		if next == NodeSuccess {
			e.logEvent(state, "completed", "", "")
			e.logf("deployment is up and healthy")
			return nil
		}
		node = next
	}
}

// step runs one node against the state. It returns the next node, or a
// learning when the node's phase failed, or a fatal error.
func (e *Engine) step(ctx context.Context, node Node, state *RunState) (Node, *learning.Learning, error) {
	switch node {
	case NodeAnalyze:
		return e.runAnalyze(ctx, state)
	case NodeCollectSecrets:
		return e.runCollectSecrets(ctx, state)
	case NodeDockerfile:
		return e.runDockerfile(ctx, state)
	case NodeValidate:
		return e.runValidate(ctx, state)
	case NodeServices:
		return e.runServices(ctx, state)
	case NodeBuild:
		return e.runBuild(ctx, state)
	case NodeStart:
		return e.runStart(ctx, state)
	case NodeHealthcheck:
		return e.runHealthcheck(ctx, state)
	case NodeRetryOrHint:
		return e.runRetryOrHint(state)
	case NodeImproveDockerfile:
		return e.runImproveDockerfile(ctx, state)
	case NodeHumanHint:
		return e.runHumanHint(ctx, state)
	}
	return 0, nil, fmt.Errorf("no transition defined for node %s", node)
}

// runAnalyze runs exactly once per workflow execution; no retry path
// re-enters it. An analysis failure is an unrecoverable setup error: without
// an analysis no generation node can run.
func (e *Engine) runAnalyze(ctx context.Context, state *RunState) (Node, *learning.Learning, error) {
	e.logf("analyzing project %s", state.ProjectPath)
	a, err := e.analyzer.Analyze(ctx, state.ProjectPath, state.Rebuild)
	if err != nil {
		return 0, nil, learning.NewAnalyzeError(err)
	}
	state.Analysis = a
	e.logf("detected %s project (%d service(s), %d secret(s))", a.Language, len(a.Services), len(a.Secrets))

	if len(a.Secrets) > 0 {
		return NodeCollectSecrets, nil, nil
	}
	return NodeDockerfile, nil, nil
}

func (e *Engine) runCollectSecrets(ctx context.Context, state *RunState) (Node, *learning.Learning, error) {
	for _, sec := range state.Analysis.Secrets {
		if _, ok := state.Secrets[sec.Name]; ok {
			continue
		}
		value, err := e.human.Secret(ctx, sec.Name, sec.Service)
		if err != nil {
			return 0, nil, fmt.Errorf("collect secret %s: %w", sec.Name, err)
		}
		state.Secrets[sec.Name] = value
	}
	return NodeDockerfile, nil, nil
}

func (e *Engine) runDockerfile(ctx context.Context, state *RunState) (Node, *learning.Learning, error) {
	hist, err := e.histories.Load()
	if err != nil {
		return 0, nil, fmt.Errorf("load fix history: %w", err)
	}

	req, err := e.generateRequest(state, hist, state.Dockerfile)
	if err != nil {
		return 0, nil, err
	}

	e.logf("generating Dockerfile (attempt %d)", state.Attempt+1)
	gen, err := e.dockerfile.Generate(ctx, req)
	if err != nil {
		return 0, e.learningFrom(learning.NewDockerfileError(err)), nil
	}

	confidence := gen.Confidence
	reasoning := gen.Reasoning
	if len(hist.Constraints) > 0 {
		fixes := regression.FixesFromConstraints(hist.Constraints)
		confidence, reasoning, err = e.guard.Inspect(ctx, gen.Artifact, gen.Confidence, gen.Reasoning, fixes)
		if err != nil {
			return 0, e.learningFrom(learning.NewDockerfileError(err)), nil
		}
		if confidence < gen.Confidence {
			e.logf("regression guard lowered confidence %d → %d", gen.Confidence, confidence)
			e.logEvent(state, "regression_detected", string(learning.PhaseDockerfile), fmt.Sprintf("confidence=%d", confidence))
		}
	}

	state.Dockerfile = gen.Artifact
	state.LastConfidence = confidence
	state.Messages = gen.Messages

	e.addContextEntry(ctx, memory.EntryDockerfile, "", "", reasoning)
	return NodeValidate, nil, nil
}

func (e *Engine) runValidate(ctx context.Context, state *RunState) (Node, *learning.Learning, error) {
	e.logf("validating Dockerfile")
	result, err := e.validator.Validate(ctx, validate.Request{
		Dockerfile:      state.Dockerfile,
		Compose:         state.Compose,
		Analysis:        state.Analysis,
		Learnings:       state.Learnings,
		RequiredSecrets: state.Analysis.SecretNames(),
	})
	if err != nil {
		return 0, e.learningFrom(learning.NewValidationError(err)), nil
	}

	state.LastGrade = result.Grade
	_ = e.events.LogValidation(state.RunID, state.ProjectPath, state.Attempt, result.Grade, result.Valid, result.Issues)

	if result.Valid {
		e.logf("validation passed (grade %d)", result.Grade)
		return NodeServices, nil, nil
	}

	e.logf("validation failed (grade %d)", result.Grade)
	e.addContextEntry(ctx, memory.EntryValidation, strings.Join(result.Issues, "; "), "", result.Feedback)
	return 0, &learning.Learning{
		Phase:     learning.PhaseValidation,
		ErrorKind: "ValidationFailed",
		Message:   fmt.Sprintf("grade %d below %d", result.Grade, validate.PassGrade),
		Context:   strings.Join(result.Issues, "; "),
	}, nil
}

func (e *Engine) runServices(ctx context.Context, state *RunState) (Node, *learning.Learning, error) {
	if state.SkipServices {
		// One-shot: a fix just touched the compose file; regenerating it
		// here would silently discard that fix.
		state.SkipServices = false
		return NodeBuild, nil, nil
	}
	if !state.Analysis.MultiService() {
		return NodeBuild, nil, nil
	}

	hist, err := e.histories.Load()
	if err != nil {
		return 0, nil, fmt.Errorf("load fix history: %w", err)
	}
	req, err := e.generateRequest(state, hist, state.Compose)
	if err != nil {
		return 0, nil, err
	}

	e.logf("generating compose file for %d services", len(state.Analysis.Services))
	gen, err := e.services.Generate(ctx, req)
	if err != nil {
		return 0, e.learningFrom(learning.NewServicesError(err)), nil
	}
	state.Compose = gen.Artifact
	return NodeBuild, nil, nil
}

func (e *Engine) runBuild(ctx context.Context, state *RunState) (Node, *learning.Learning, error) {
	state.Attempt++
	if err := e.writeArtifacts(state); err != nil {
		return 0, nil, err
	}

	e.logf("building image (attempt %d)", state.Attempt)
	imageID, output, err := e.runtime.Build(ctx, state.ProjectPath, state.Secrets)
	if err != nil {
		e.saveFailureLog(state, output)
		return 0, e.learningFrom(learning.NewBuildError(err)), nil
	}
	state.ImageID = imageID
	e.logf("built image %s", imageID)

	if err := e.confirmBuildSuccess(ctx, state); err != nil {
		return 0, nil, err
	}
	return NodeStart, nil, nil
}

func (e *Engine) runStart(ctx context.Context, state *RunState) (Node, *learning.Learning, error) {
	e.logf("starting containers")
	ids, output, err := e.runtime.Start(ctx, state.ProjectPath, state.ImageID, state.Analysis.HTTPPorts)
	if err != nil {
		e.saveFailureLog(state, output)
		return 0, e.learningFrom(learning.NewStartError(err)), nil
	}
	state.ContainerIDs = ids
	e.logf("%d container(s) started", len(ids))
	return NodeHealthcheck, nil, nil
}

func (e *Engine) runHealthcheck(ctx context.Context, state *RunState) (Node, *learning.Learning, error) {
	e.logf("health-checking %d container(s)", len(state.ContainerIDs))
	err := e.runtime.Healthcheck(ctx, state.ContainerIDs, state.Analysis.HTTPPorts, e.cfg.HealthTimeout())
	if err != nil {
		e.saveFailureLog(state, err.Error())
		e.addContextEntry(ctx, memory.EntryHealthcheck, err.Error(), "", "health check failed")
		// Tear the unhealthy containers down so a retried start does not
		// collide with them.
		if stopErr := e.runtime.Stop(ctx, state.ProjectPath, state.ContainerIDs); stopErr != nil {
			e.logf("warning: stop containers: %v", stopErr)
		}
		state.ContainerIDs = nil
		return 0, e.learningFrom(learning.NewHealthcheckError(err)), nil
	}
	return NodeSuccess, nil, nil
}

// runRetryOrHint classifies the last failure and picks the repair path:
// surgical fix for runtime phases, full regeneration for generation and
// validation phases, and human escalation once attempts are exhausted.
func (e *Engine) runRetryOrHint(state *RunState) (Node, *learning.Learning, error) {
	if state.lastLearning == nil {
		return 0, nil, fmt.Errorf("retry requested with no recorded failure")
	}

	state.Retries++
	if state.Retries >= e.cfg.Workflow.MaxAttempts {
		e.logf("max attempts (%d) reached, asking for a hint", e.cfg.Workflow.MaxAttempts)
		return NodeHumanHint, nil, nil
	}

	if state.lastLearning.Phase.Runtime() {
		return NodeImproveDockerfile, nil, nil
	}
	return NodeDockerfile, nil, nil
}

func (e *Engine) runImproveDockerfile(ctx context.Context, state *RunState) (Node, *learning.Learning, error) {
	l := *state.lastLearning
	e.logf("attempting surgical fix for %s failure", l.Phase)

	result, err := e.fixer.Fix(ctx, FixRequest{
		Learning:    l,
		Analysis:    state.Analysis,
		Dockerfile:  state.Dockerfile,
		Compose:     state.Compose,
		ProjectPath: state.ProjectPath,
	})
	if err != nil {
		return 0, &learning.Learning{Phase: l.Phase, ErrorKind: "FixError", Message: err.Error()}, nil
	}

	hist, err := e.histories.Update(func(h *history.FixHistory) {
		h.RecordAttempt(history.FixAttempt{
			Attempt:      state.Attempt,
			Phase:        string(l.Phase),
			ErrorKind:    l.ErrorKind,
			ErrorMessage: l.Message,
			Diagnosis:    result.Explanation,
			Success:      false,
		})
	})
	if err != nil {
		return 0, nil, fmt.Errorf("record fix attempt: %w", err)
	}

	if !result.Fixed {
		return 0, &learning.Learning{
			Phase:     l.Phase,
			ErrorKind: "FixFailed",
			Message:   "fixer could not repair the failure",
			Context:   result.Explanation,
		}, nil
	}

	state.pendingFix = &pendingFix{
		rule:     result.Explanation,
		reason:   "fixes " + l.String(),
		attempt:  state.Attempt,
		violated: hist.SeenSuccessfulFix(l.ErrorKind, l.Message),
	}

	if result.Dockerfile != "" {
		state.Dockerfile = result.Dockerfile
	}
	if result.Compose != "" {
		state.Compose = result.Compose
	}

	e.addContextEntry(ctx, entryTypeFor(l.Phase), l.Message, result.Explanation, result.Explanation)

	if composeOnly(result.Changes) {
		// The fix only touched the compose file: go straight to Build so an
		// unrelated fresh Dockerfile cannot discard it.
		e.logf("compose-only fix, skipping re-validation")
		return NodeBuild, nil, nil
	}
	if touchesCompose(result.Changes) {
		state.SkipServices = true
	}
	return NodeValidate, nil, nil
}

func (e *Engine) runHumanHint(ctx context.Context, state *RunState) (Node, *learning.Learning, error) {
	hint, ok, err := e.human.Hint(ctx, state.Learnings)
	if err != nil {
		return 0, nil, fmt.Errorf("request hint: %w", err)
	}
	if !ok {
		return 0, nil, learning.ErrHintDeclined
	}

	state.Retries = 0
	state.Hints = append(state.Hints, hint)
	e.logEvent(state, "hint_received", "", hint)
	return NodeDockerfile, nil, nil
}

// --- Helpers ---

// generateRequest assembles the shared generation request: constraints from
// the fix history, project memory, learnings, hints, and the conversation.
func (e *Engine) generateRequest(state *RunState, hist *history.FixHistory, existing string) (GenerateRequest, error) {
	pc, err := e.contexts.Load()
	if err != nil {
		return GenerateRequest{}, fmt.Errorf("load project context: %w", err)
	}

	return GenerateRequest{
		Analysis:  state.Analysis,
		Learnings: state.Learnings,
		Hints:     state.Hints,
		HardRules: renderRules(hist.HardConstraints()),
		SoftRules: renderRules(hist.SoftConstraints()),
		Existing:  existing,
		Memory:    renderMemory(pc),
		Messages:  state.Messages,
	}, nil
}

// confirmBuildSuccess promotes existing constraints and reconciles any
// pending fix now proven by a successful build.
func (e *Engine) confirmBuildSuccess(ctx context.Context, state *RunState) error {
	pending := state.pendingFix
	state.pendingFix = nil

	_, err := e.histories.Update(func(h *history.FixHistory) {
		h.Promote()
		if pending == nil {
			return
		}
		if n := len(h.Attempts); n > 0 {
			h.Attempts[n-1].Success = true
		}
		c := history.Derive(uuid.NewString(), pending.attempt, pending.rule, pending.reason)
		h.Reconcile(c, pending.violated)
	})
	if err != nil {
		return fmt.Errorf("update fix history: %w", err)
	}

	if pending != nil {
		e.addContextEntry(ctx, memory.EntryBuild, "", pending.rule, "build succeeded after fix")
		e.logEvent(state, "constraint_recorded", string(learning.PhaseBuild), pending.rule)
	}
	return nil
}

// writeArtifacts persists the current artifacts into the project directory.
func (e *Engine) writeArtifacts(state *RunState) error {
	path := filepath.Join(state.ProjectPath, "Dockerfile")
	if err := store.WriteAtomic(path, []byte(state.Dockerfile)); err != nil {
		return fmt.Errorf("write Dockerfile: %w", err)
	}
	if state.Compose != "" {
		path := filepath.Join(state.ProjectPath, "compose.yaml")
		if err := store.WriteAtomic(path, []byte(state.Compose)); err != nil {
			return fmt.Errorf("write compose file: %w", err)
		}
	}
	return nil
}

// saveFailureLog captures subprocess output for the current attempt.
func (e *Engine) saveFailureLog(state *RunState, output string) {
	if output == "" {
		return
	}
	if err := e.files.SaveAttemptLog(state.Attempt, output); err != nil {
		e.logf("warning: save attempt log: %v", err)
	}
}

// saveLearnings persists accumulated learnings so a fatal abort loses nothing.
func (e *Engine) saveLearnings(state *RunState) {
	if len(state.Learnings) == 0 {
		return
	}
	if err := store.WriteJSON(e.files.LearningsPath(), state.Learnings); err != nil {
		e.logf("warning: save learnings: %v", err)
	}
}

func (e *Engine) addContextEntry(ctx context.Context, t memory.EntryType, errText, fix, explanation string) {
	if _, err := e.contexts.AddEntry(ctx, memory.NewEntry(t, errText, fix, explanation)); err != nil {
		e.logf("warning: record context entry: %v", err)
	}
}

func (e *Engine) logEvent(state *RunState, event string, phase string, detail string) {
	if err := e.events.LogWorkflowEvent(state.RunID, state.ProjectPath, event, phase, state.Attempt, detail); err != nil {
		e.logf("warning: log event %q: %v", event, err)
	}
}

// learningFrom converts a phase error into its learning record.
func (e *Engine) learningFrom(pe *learning.PhaseError) *learning.Learning {
	l := pe.Learning()
	return &l
}

func renderRules(constraints []history.Constraint) []string {
	rules := make([]string, 0, len(constraints))
	for _, c := range constraints {
		rules = append(rules, c.Rule)
	}
	return rules
}

func renderMemory(pc *memory.ProjectContext) string {
	var b strings.Builder
	if pc.Summary != "" {
		b.WriteString(pc.Summary)
		b.WriteString("\n")
	}
	for _, entry := range pc.Entries {
		b.WriteString("- ")
		b.WriteString(string(entry.Type))
		b.WriteString(": ")
		b.WriteString(entry.Explanation)
		b.WriteString("\n")
	}
	return b.String()
}

func entryTypeFor(p learning.Phase) memory.EntryType {
	switch p {
	case learning.PhaseHealthcheck:
		return memory.EntryHealthcheck
	case learning.PhaseValidation:
		return memory.EntryValidation
	case learning.PhaseDockerfile, learning.PhaseServices:
		return memory.EntryDockerfile
	}
	return memory.EntryBuild
}

func composeOnly(changes []string) bool {
	if len(changes) == 0 {
		return false
	}
	for _, c := range changes {
		if !isComposePath(c) {
			return false
		}
	}
	return true
}

func touchesCompose(changes []string) bool {
	for _, c := range changes {
		if isComposePath(c) {
			return true
		}
	}
	return false
}

func isComposePath(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	return strings.Contains(base, "compose")
}
