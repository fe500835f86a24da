package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Client wraps an OpenAI-compatible chat API for all generation-class
// collaborators: artifact generation, fixing, grading, regression
// comparison, and context summarization.
type Client struct {
	api   *openai.Client
	model string
}

// NewClient builds a Client from the environment. OPENAI_API_KEY is
// required; OPENAI_BASE_URL points at any compatible endpoint and
// WUNDERUNNER_MODEL overrides the default model.
func NewClient() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	cfg := openai.DefaultConfig(apiKey)
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		cfg.BaseURL = base
	}

	model := os.Getenv("WUNDERUNNER_MODEL")
	if model == "" {
		model = openai.GPT4oMini
	}

	return &Client{api: openai.NewClientWithConfig(cfg), model: model}, nil
}

// chat sends a system prompt plus conversation and returns the reply text.
func (c *Client) chat(ctx context.Context, system string, messages []openai.ChatCompletionMessage) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: append(
			[]openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: system}},
			messages...,
		),
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// chatJSON sends a single user prompt and unmarshals the JSON reply into v.
func (c *Client) chatJSON(ctx context.Context, system string, prompt string, v interface{}) error {
	reply, err := c.chat(ctx, system, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	})
	if err != nil {
		return err
	}
	return decodeJSON(reply, v)
}

// decodeJSON extracts the first JSON object from a model reply, tolerating
// markdown code fences and surrounding prose.
func decodeJSON(reply string, v interface{}) error {
	s := strings.TrimSpace(reply)
	if start := strings.Index(s, "{"); start >= 0 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("decode model reply: %w", err)
	}
	return nil
}
