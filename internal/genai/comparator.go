package genai

import (
	"context"
	"fmt"

	"github.com/wunderlabs-dev/wunderunner/internal/regression"
)

const comparatorSystem = `You check whether a newly generated artifact silently undoes previously confirmed fixes.
Reply with a JSON object:
{"has_regression": <bool>, "violations": ["<undone fix>", ...], "adjusted_confidence": <0-10>}.
With no regression, adjusted_confidence must equal the original confidence.`

// Comparator is the regression comparator, backed by the chat API.
type Comparator struct {
	client *Client
}

// NewComparator returns the regression comparator.
func NewComparator(client *Client) *Comparator {
	return &Comparator{client: client}
}

// Check implements regression.Comparator.
func (c *Comparator) Check(ctx context.Context, artifact string, fixes []regression.Fix, originalConfidence int) (*regression.Report, error) {
	prompt := fmt.Sprintf("Original confidence: %d\n\nHistorical fixes that must still hold:\n", originalConfidence)
	for _, f := range fixes {
		prompt += fmt.Sprintf("- %s (%s)\n", f.Rule, f.Explanation)
	}
	prompt += "\nNew artifact:\n" + artifact + "\n"

	var report regression.Report
	if err := c.client.chatJSON(ctx, comparatorSystem, prompt, &report); err != nil {
		return nil, err
	}
	return &report, nil
}
