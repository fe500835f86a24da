package genai

import (
	"strings"
	"testing"

	"github.com/wunderlabs-dev/wunderunner/internal/analyze"
	"github.com/wunderlabs-dev/wunderunner/internal/learning"
	"github.com/wunderlabs-dev/wunderunner/internal/workflow"
)

func TestDecodeJSON(t *testing.T) {
	type reply struct {
		Artifact   string `json:"artifact"`
		Confidence int    `json:"confidence"`
	}

	tests := []struct {
		name    string
		input   string
		want    reply
		wantErr bool
	}{
		{
			name:  "bare object",
			input: `{"artifact": "FROM node", "confidence": 8}`,
			want:  reply{Artifact: "FROM node", Confidence: 8},
		},
		{
			name:  "fenced in markdown",
			input: "```json\n{\"artifact\": \"FROM node\", \"confidence\": 7}\n```",
			want:  reply{Artifact: "FROM node", Confidence: 7},
		},
		{
			name:  "surrounded by prose",
			input: "Here is the result:\n\n{\"artifact\": \"FROM go\", \"confidence\": 9}\n\nLet me know if it works.",
			want:  reply{Artifact: "FROM go", Confidence: 9},
		},
		{
			name:    "no JSON at all",
			input:   "I cannot produce a Dockerfile for this project.",
			wantErr: true,
		},
		{
			name:    "truncated object",
			input:   `{"artifact": "FROM node"`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got reply
			err := decodeJSON(tt.input, &got)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeJSON: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRenderGeneratePromptSections(t *testing.T) {
	prompt, err := renderGeneratePrompt(workflow.GenerateRequest{
		Analysis: &analyze.Analysis{Language: "javascript", Framework: "express"},
		HardRules: []string{
			"Pin the base image to node:20-alpine",
		},
		SoftRules: []string{"Prefer npm ci over npm install"},
		Hints:     []string{"the healthcheck endpoint is /healthz"},
		Learnings: []learning.Learning{
			{Phase: learning.PhaseBuild, ErrorKind: "BuildError", Message: "npm ci failed"},
		},
		Memory:   "- build: lockfile must be copied before install\n",
		Existing: "FROM node:18\n",
	})
	if err != nil {
		t.Fatalf("renderGeneratePrompt: %v", err)
	}

	for _, want := range []string{
		`"language": "javascript"`,
		"Hard rules (must be honored)",
		"Pin the base image to node:20-alpine",
		"Soft rules (preferences)",
		"Hints from the user",
		"/healthz",
		"Past failures to avoid",
		"npm ci failed",
		"Project memory",
		"Previous artifact to improve on",
		"FROM node:18",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestRenderGeneratePromptOmitsEmptySections(t *testing.T) {
	prompt, err := renderGeneratePrompt(workflow.GenerateRequest{
		Analysis: &analyze.Analysis{Language: "go"},
	})
	if err != nil {
		t.Fatalf("renderGeneratePrompt: %v", err)
	}
	for _, absent := range []string{"Hard rules", "Hints", "Past failures", "Previous artifact"} {
		if strings.Contains(prompt, absent) {
			t.Errorf("prompt contains %q for empty input", absent)
		}
	}
}
