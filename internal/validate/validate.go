package validate

import (
	"context"
	"fmt"

	"github.com/wunderlabs-dev/wunderunner/internal/analyze"
	"github.com/wunderlabs-dev/wunderunner/internal/learning"
)

// PassGrade is the semantic grade at or above which an artifact is valid.
const PassGrade = 80

// Result is the outcome of validating an artifact. Grade runs 0-110; scores
// above 100 are extra credit for demonstrably fixing a previously supplied
// error. Valid is always recomputed as Grade >= PassGrade, regardless of
// what the semantic grader reported.
type Result struct {
	Valid           bool           `json:"valid"`
	Grade           int            `json:"grade"`
	Categories      map[string]int `json:"categories,omitempty"`
	Feedback        string         `json:"feedback,omitempty"`
	Issues          []string       `json:"issues,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
}

// Grader is the external semantic scorer. It is only consulted after the
// structural tier passes.
type Grader interface {
	Grade(ctx context.Context, artifact string, analysis *analyze.Analysis, learnings []learning.Learning) (*Result, error)
}

// Validator is the two-tier gate: cheap structural checks, then semantic
// grading. Structural failure short-circuits with grade 0.
type Validator struct {
	grader Grader
}

// NewValidator creates a Validator delegating semantic grading to grader.
func NewValidator(grader Grader) *Validator {
	return &Validator{grader: grader}
}

// Request carries everything the validator needs for one artifact.
type Request struct {
	Dockerfile      string
	Compose         string
	Analysis        *analyze.Analysis
	Learnings       []learning.Learning
	RequiredSecrets []string
}

// Validate runs both tiers. The returned error is reserved for unexpected
// grader failures; a failing grade is a non-error Result with Valid=false.
func (v *Validator) Validate(ctx context.Context, req Request) (*Result, error) {
	issues := CheckDockerfile(req.Dockerfile, req.RequiredSecrets)
	if req.Compose != "" {
		issues = append(issues, CheckCompose(req.Compose)...)
	}
	if len(issues) > 0 {
		return &Result{Valid: false, Grade: 0, Issues: issues}, nil
	}

	result, err := v.grader.Grade(ctx, req.Dockerfile, req.Analysis, req.Learnings)
	if err != nil {
		return nil, fmt.Errorf("semantic grading: %w", err)
	}

	// The grader's own valid flag is untrusted.
	result.Valid = result.Grade >= PassGrade
	if !result.Valid && len(result.Issues) == 0 {
		result.Issues = append(result.Issues, result.Recommendations...)
	}
	return result, nil
}
