package learning

import (
	"fmt"
	"strings"
)

// Phase identifies the pipeline stage where a failure occurred.
type Phase string

const (
	PhaseAnalyze     Phase = "ANALYZE"
	PhaseDockerfile  Phase = "DOCKERFILE"
	PhaseValidation  Phase = "VALIDATION"
	PhaseServices    Phase = "SERVICES"
	PhaseBuild       Phase = "BUILD"
	PhaseStart       Phase = "START"
	PhaseHealthcheck Phase = "HEALTHCHECK"
)

// Runtime reports whether the phase is a runtime phase (build/start/healthcheck)
// as opposed to a generation or validation phase. Runtime failures are repaired
// with a surgical fix; generation failures trigger full regeneration.
func (p Phase) Runtime() bool {
	switch p {
	case PhaseBuild, PhaseStart, PhaseHealthcheck:
		return true
	}
	return false
}

// Learning is an immutable record of one failure: the phase it occurred in,
// an error kind, a human-readable message, and optional diagnostic context.
// Learnings are appended to the run state and never mutated or removed.
type Learning struct {
	Phase     Phase  `json:"phase"`
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
	Context   string `json:"context,omitempty"`
}

// String renders the learning as a single prompt-ready line.
func (l Learning) String() string {
	s := fmt.Sprintf("[%s] %s: %s", l.Phase, l.ErrorKind, l.Message)
	if l.Context != "" {
		s += " (" + l.Context + ")"
	}
	return s
}

// Format renders a list of learnings as a bulleted block for prompts
// and human-hint display.
func Format(learnings []Learning) string {
	if len(learnings) == 0 {
		return ""
	}
	var b strings.Builder
	for _, l := range learnings {
		b.WriteString("- ")
		b.WriteString(l.String())
		b.WriteString("\n")
	}
	return b.String()
}
