package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/wunderlabs-dev/wunderunner/internal/learning"
	"github.com/wunderlabs-dev/wunderunner/internal/workflow"
)

const dockerfileSystem = `You generate production-quality Dockerfiles.
Reply with a JSON object: {"artifact": "<dockerfile>", "confidence": <0-10>, "reasoning": "<why>"}.
Hard rules are non-negotiable. Soft rules are stable preferences that may yield to new requirements.`

const composeSystem = `You generate Docker Compose files for multi-service projects.
Reply with a JSON object: {"artifact": "<compose yaml>", "confidence": <0-10>, "reasoning": "<why>"}.
Hard rules are non-negotiable. Soft rules are stable preferences that may yield to new requirements.`

// Generator generates one artifact kind through the chat API, threading the
// conversation so repeated attempts refine rather than restart.
type Generator struct {
	client *Client
	system string
}

// NewDockerfileGenerator returns the Dockerfile generator.
func NewDockerfileGenerator(client *Client) *Generator {
	return &Generator{client: client, system: dockerfileSystem}
}

// NewComposeGenerator returns the compose-file generator.
func NewComposeGenerator(client *Client) *Generator {
	return &Generator{client: client, system: composeSystem}
}

type generationReply struct {
	Artifact   string `json:"artifact"`
	Confidence int    `json:"confidence"`
	Reasoning  string `json:"reasoning"`
}

// Generate implements workflow.Generator.
func (g *Generator) Generate(ctx context.Context, req workflow.GenerateRequest) (*workflow.Generation, error) {
	prompt, err := renderGeneratePrompt(req)
	if err != nil {
		return nil, err
	}

	conversation := toAPIMessages(req.Messages)
	conversation = append(conversation, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser, Content: prompt,
	})

	reply, err := g.client.chat(ctx, g.system, conversation)
	if err != nil {
		return nil, err
	}

	var parsed generationReply
	if err := decodeJSON(reply, &parsed); err != nil {
		return nil, err
	}
	if strings.TrimSpace(parsed.Artifact) == "" {
		return nil, fmt.Errorf("generator returned an empty artifact")
	}
	if parsed.Confidence < 0 {
		parsed.Confidence = 0
	}
	if parsed.Confidence > 10 {
		parsed.Confidence = 10
	}

	messages := append(req.Messages,
		workflow.Message{Role: openai.ChatMessageRoleUser, Content: prompt},
		workflow.Message{Role: openai.ChatMessageRoleAssistant, Content: reply},
	)

	return &workflow.Generation{
		Artifact:   parsed.Artifact,
		Confidence: parsed.Confidence,
		Reasoning:  parsed.Reasoning,
		Messages:   messages,
	}, nil
}

func renderGeneratePrompt(req workflow.GenerateRequest) (string, error) {
	analysisJSON, err := json.MarshalIndent(req.Analysis, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal analysis: %w", err)
	}

	var b strings.Builder
	b.WriteString("Project analysis:\n")
	b.Write(analysisJSON)
	b.WriteString("\n")

	writeList(&b, "Hard rules (must be honored)", req.HardRules)
	writeList(&b, "Soft rules (preferences)", req.SoftRules)
	writeList(&b, "Hints from the user", req.Hints)

	if len(req.Learnings) > 0 {
		b.WriteString("\nPast failures to avoid:\n")
		b.WriteString(learning.Format(req.Learnings))
	}
	if req.Memory != "" {
		b.WriteString("\nProject memory:\n")
		b.WriteString(req.Memory)
	}
	if req.Existing != "" {
		b.WriteString("\nPrevious artifact to improve on:\n")
		b.WriteString(req.Existing)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n")
	b.WriteString(heading)
	b.WriteString(":\n")
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
}

func toAPIMessages(messages []workflow.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
