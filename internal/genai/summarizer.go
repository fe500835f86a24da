package genai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/wunderlabs-dev/wunderunner/internal/memory"
)

const summarizerSystem = `You compact a project's deployment history into a short memory.
Keep every rule, fix, and recurring failure; drop narrative detail. Reply with plain text.`

// Summarizer compacts project context entries through the chat API.
type Summarizer struct {
	client *Client
}

// NewSummarizer returns the context summarizer.
func NewSummarizer(client *Client) *Summarizer {
	return &Summarizer{client: client}
}

// Summarize implements memory.Summarizer.
func (s *Summarizer) Summarize(ctx context.Context, entries []memory.ContextEntry, priorSummary string) (string, error) {
	var b strings.Builder
	if priorSummary != "" {
		b.WriteString("Existing summary:\n")
		b.WriteString(priorSummary)
		b.WriteString("\n\n")
	}
	b.WriteString("New events (most recent first):\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "- [%s] %s", e.Type, e.Explanation)
		if e.Error != "" {
			fmt.Fprintf(&b, " (error: %s)", e.Error)
		}
		if e.Fix != "" {
			fmt.Fprintf(&b, " (fix: %s)", e.Fix)
		}
		b.WriteString("\n")
	}

	reply, err := s.client.chat(ctx, summarizerSystem, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: b.String()},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}
