package workflow

import (
	"github.com/wunderlabs-dev/wunderunner/internal/analyze"
	"github.com/wunderlabs-dev/wunderunner/internal/learning"
)

// RunState is the single-owner state threaded through the state machine.
// Exactly one node mutates it at a time; it is never shared across
// concurrent workflow executions.
type RunState struct {
	RunID       string
	ProjectPath string
	Rebuild     bool

	Analysis *analyze.Analysis
	Secrets  map[string]string

	Learnings []learning.Learning
	Hints     []string

	// Retries counts consecutive phase failures since the last human hint.
	Retries int
	// Attempt counts every repair cycle for log file naming; it never resets.
	Attempt int

	Dockerfile string
	Compose    string

	// ImageID is the image of the last successful build; Start runs it
	// directly for projects without a compose file.
	ImageID string

	LastGrade      int
	LastConfidence int

	// Messages is the running generator conversation for stateful refinement.
	Messages []Message

	// SkipServices is a one-shot flag: a fix touched the compose file, so the
	// next pass must not regenerate it.
	SkipServices bool

	ContainerIDs []string

	// lastLearning is the failure RetryOrHint is currently routing on.
	lastLearning *learning.Learning

	// pendingFix is a constraint candidate awaiting build confirmation.
	pendingFix *pendingFix
}

type pendingFix struct {
	rule     string
	reason   string
	attempt  int
	violated bool
}

// recordFailure appends a learning and marks it as the one being routed.
func (s *RunState) recordFailure(l learning.Learning) {
	s.Learnings = append(s.Learnings, l)
	s.lastLearning = &l
}
