package genai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wunderlabs-dev/wunderunner/internal/analyze"
	"github.com/wunderlabs-dev/wunderunner/internal/learning"
	"github.com/wunderlabs-dev/wunderunner/internal/validate"
)

const graderSystem = `You grade Dockerfiles for correctness, security, and fitness for the analyzed project.
Grade 0-100, plus up to 10 extra credit when the artifact demonstrably fixes a previously supplied error.
Reply with a JSON object:
{"grade": <0-110>, "categories": {"<name>": <score>, ...}, "feedback": "<text>",
 "issues": ["<issue>", ...], "recommendations": ["<recommendation>", ...]}`

// Grader is the semantic tier of the validator, backed by the chat API.
type Grader struct {
	client *Client
}

// NewGrader returns the semantic grader.
func NewGrader(client *Client) *Grader {
	return &Grader{client: client}
}

type gradeReply struct {
	Grade           int            `json:"grade"`
	Categories      map[string]int `json:"categories"`
	Feedback        string         `json:"feedback"`
	Issues          []string       `json:"issues"`
	Recommendations []string       `json:"recommendations"`
}

// Grade implements validate.Grader.
func (g *Grader) Grade(ctx context.Context, artifact string, analysis *analyze.Analysis, learnings []learning.Learning) (*validate.Result, error) {
	analysisJSON, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal analysis: %w", err)
	}

	prompt := "Project analysis:\n" + string(analysisJSON) + "\n\nDockerfile to grade:\n" + artifact + "\n"
	if len(learnings) > 0 {
		prompt += "\nPreviously supplied errors:\n" + learning.Format(learnings)
	}

	var parsed gradeReply
	if err := g.client.chatJSON(ctx, graderSystem, prompt, &parsed); err != nil {
		return nil, err
	}
	if parsed.Grade < 0 {
		parsed.Grade = 0
	}
	if parsed.Grade > 110 {
		parsed.Grade = 110
	}

	return &validate.Result{
		Grade:           parsed.Grade,
		Categories:      parsed.Categories,
		Feedback:        parsed.Feedback,
		Issues:          parsed.Issues,
		Recommendations: parsed.Recommendations,
	}, nil
}
