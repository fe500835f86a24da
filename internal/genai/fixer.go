package genai

import (
	"context"
	"fmt"

	"github.com/wunderlabs-dev/wunderunner/internal/workflow"
)

const fixerSystem = `You repair container deployment artifacts with the smallest possible change.
Reply with a JSON object:
{"fixed": <bool>, "changes": ["<path>", ...], "explanation": "<rule describing the fix>",
 "dockerfile": "<full updated dockerfile or empty if unchanged>",
 "compose": "<full updated compose file or empty if unchanged>"}.
Only change what the failure requires.`

// Fixer applies surgical fixes through the chat API.
type Fixer struct {
	client *Client
}

// NewFixer returns the surgical fixer.
func NewFixer(client *Client) *Fixer {
	return &Fixer{client: client}
}

type fixReply struct {
	Fixed       bool     `json:"fixed"`
	Changes     []string `json:"changes"`
	Explanation string   `json:"explanation"`
	Dockerfile  string   `json:"dockerfile"`
	Compose     string   `json:"compose"`
}

// Fix implements workflow.Fixer.
func (f *Fixer) Fix(ctx context.Context, req workflow.FixRequest) (*workflow.FixResult, error) {
	prompt := fmt.Sprintf(
		"A %s phase failure occurred.\nError kind: %s\nError: %s\n",
		req.Learning.Phase, req.Learning.ErrorKind, req.Learning.Message,
	)
	if req.Learning.Context != "" {
		prompt += "Diagnostic context: " + req.Learning.Context + "\n"
	}
	prompt += "\nCurrent Dockerfile:\n" + req.Dockerfile + "\n"
	if req.Compose != "" {
		prompt += "\nCurrent compose file:\n" + req.Compose + "\n"
	}

	var parsed fixReply
	if err := f.client.chatJSON(ctx, fixerSystem, prompt, &parsed); err != nil {
		return nil, err
	}

	return &workflow.FixResult{
		Fixed:       parsed.Fixed,
		Changes:     parsed.Changes,
		Explanation: parsed.Explanation,
		Dockerfile:  parsed.Dockerfile,
		Compose:     parsed.Compose,
	}, nil
}
