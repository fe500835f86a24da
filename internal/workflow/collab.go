package workflow

import (
	"context"
	"time"

	"github.com/wunderlabs-dev/wunderunner/internal/analyze"
	"github.com/wunderlabs-dev/wunderunner/internal/learning"
)

// Message is one turn of the stateful generation conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest carries everything a generator needs for one artifact:
// the analysis, the accumulated failure learnings and human hints, hard and
// soft constraint rules, the previous artifact (if any), and the running
// conversation for stateful refinement.
type GenerateRequest struct {
	Analysis  *analyze.Analysis
	Learnings []learning.Learning
	Hints     []string
	HardRules []string
	SoftRules []string
	Existing  string
	Memory    string
	Messages  []Message
}

// Generation is a generator's output.
type Generation struct {
	Artifact   string
	Confidence int // 0-10 self-reported
	Reasoning  string
	Messages   []Message
}

// Generator produces a deployment artifact (Dockerfile or compose file).
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Generation, error)
}

// FixRequest asks the fixer for a surgical repair of a runtime failure.
type FixRequest struct {
	Learning    learning.Learning
	Analysis    *analyze.Analysis
	Dockerfile  string
	Compose     string
	ProjectPath string
}

// FixResult reports what the fixer changed. Changes lists the artifact paths
// that were touched; Dockerfile and Compose carry the updated contents for
// the artifacts that changed (empty = unchanged).
type FixResult struct {
	Fixed       bool
	Changes     []string
	Explanation string
	Dockerfile  string
	Compose     string
}

// Fixer applies surgical fixes instead of full regeneration.
type Fixer interface {
	Fix(ctx context.Context, req FixRequest) (*FixResult, error)
}

// HumanPrompt is the interactive collaborator: secret collection and the
// escalation hint. Hint returns ok=false when the human explicitly declines,
// which cancels the run.
type HumanPrompt interface {
	Secret(ctx context.Context, name string, service string) (string, error)
	Hint(ctx context.Context, learnings []learning.Learning) (hint string, ok bool, err error)
}

// Runtime is the container runtime boundary: build, start, stop, and the
// bounded two-phase health check. Start runs the built image directly when
// the project has no compose file, so it needs the image ID and the HTTP
// ports to publish.
type Runtime interface {
	Build(ctx context.Context, path string, buildArgs map[string]string) (imageID string, output string, err error)
	Start(ctx context.Context, path string, imageID string, httpPorts []int) (containerIDs []string, output string, err error)
	Stop(ctx context.Context, path string, containerIDs []string) error
	Healthcheck(ctx context.Context, containerIDs []string, httpPorts []int, timeout time.Duration) error
}

// EventLog is the subset of the event database the engine needs.
type EventLog interface {
	LogWorkflowEvent(runID string, project string, event string, phase string, attempt int, detail string) error
	LogValidation(runID string, project string, attempt int, grade int, valid bool, issues []string) error
}
