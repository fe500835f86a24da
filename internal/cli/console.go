package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/wunderlabs-dev/wunderunner/internal/learning"
)

// ConsolePrompt implements the interactive human collaborator over a
// terminal: secret collection and the escalation hint.
type ConsolePrompt struct {
	in  *bufio.Reader
	out io.Writer
}

// NewConsolePrompt creates a ConsolePrompt reading from in, writing to out.
func NewConsolePrompt(in io.Reader, out io.Writer) *ConsolePrompt {
	return &ConsolePrompt{in: bufio.NewReader(in), out: out}
}

// Secret asks for one secret value.
func (p *ConsolePrompt) Secret(ctx context.Context, name string, service string) (string, error) {
	if service != "" {
		fmt.Fprintf(p.out, "Enter value for %s (service %s): ", name, service)
	} else {
		fmt.Fprintf(p.out, "Enter value for %s: ", name)
	}
	line, err := p.in.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read secret %s: %w", name, err)
	}
	return strings.TrimSpace(line), nil
}

// Hint presents the accumulated failures and asks for a steer. An empty
// line is an explicit decline.
func (p *ConsolePrompt) Hint(ctx context.Context, learnings []learning.Learning) (string, bool, error) {
	fmt.Fprintf(p.out, "\nAutomatic repair is stuck. Failures so far:\n%s", learning.Format(learnings))
	fmt.Fprint(p.out, "Provide a hint to keep going, or press enter to give up: ")

	line, err := p.in.ReadString('\n')
	if err != nil {
		return "", false, fmt.Errorf("read hint: %w", err)
	}
	hint := strings.TrimSpace(line)
	if hint == "" {
		return "", false, nil
	}
	return hint, true, nil
}
