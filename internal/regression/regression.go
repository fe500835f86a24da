package regression

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/wunderlabs-dev/wunderunner/internal/history"
	"github.com/wunderlabs-dev/wunderunner/internal/memory"
)

// MaxRegressedConfidence caps the confidence of any artifact that undoes a
// previously confirmed fix.
const MaxRegressedConfidence = 3

// Fix is one historical fix the guard checks for: the rule a prior repair
// established and why.
type Fix struct {
	Rule        string `json:"rule"`
	Explanation string `json:"explanation"`
}

// FixesFromConstraints converts active constraints into guard fixes.
func FixesFromConstraints(constraints []history.Constraint) []Fix {
	fixes := make([]Fix, 0, len(constraints))
	for _, c := range constraints {
		fixes = append(fixes, Fix{Rule: c.Rule, Explanation: c.Reason})
	}
	return fixes
}

// Report is the comparator's verdict on a freshly generated artifact.
type Report struct {
	HasRegression      bool     `json:"has_regression"`
	Violations         []string `json:"violations,omitempty"`
	AdjustedConfidence int      `json:"adjusted_confidence"`
}

// Comparator is the external collaborator that decides whether any
// historical fix is absent from the new artifact.
type Comparator interface {
	Check(ctx context.Context, artifact string, fixes []Fix, originalConfidence int) (*Report, error)
}

// Guard compares new artifacts against recorded fixes and penalizes
// confidence when any fix has been silently undone.
type Guard struct {
	comparator Comparator
	contexts   *memory.Store
	progress   io.Writer
}

// NewGuard creates a Guard. The context store records a persisted violation
// count on every detection.
func NewGuard(comparator Comparator, contexts *memory.Store) *Guard {
	return &Guard{comparator: comparator, contexts: contexts}
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (g *Guard) SetProgress(w io.Writer) {
	g.progress = w
}

func (g *Guard) logf(format string, args ...interface{}) {
	if g.progress != nil {
		fmt.Fprintf(g.progress, "  → "+format+"\n", args...)
	}
}

// Inspect checks the artifact against the historical fixes and returns the
// possibly adjusted confidence and annotated reasoning. With no fixes on
// record the inputs pass through untouched and no comparator call is made.
func (g *Guard) Inspect(ctx context.Context, artifact string, confidence int, reasoning string, fixes []Fix) (int, string, error) {
	if len(fixes) == 0 {
		return confidence, reasoning, nil
	}

	report, err := g.comparator.Check(ctx, artifact, fixes, confidence)
	if err != nil {
		return confidence, reasoning, fmt.Errorf("regression check: %w", err)
	}
	if !report.HasRegression {
		return confidence, reasoning, nil
	}

	adjusted := report.AdjustedConfidence
	if adjusted > MaxRegressedConfidence {
		adjusted = MaxRegressedConfidence
	}

	var b strings.Builder
	b.WriteString(reasoning)
	b.WriteString("\n\nRegression detected: the new artifact undoes previous fixes:\n")
	for _, v := range report.Violations {
		b.WriteString("- ")
		b.WriteString(v)
		b.WriteString("\n")
	}

	// A detected regression stands even when the violation counter cannot
	// be persisted.
	if err := g.contexts.BumpViolations(); err != nil {
		g.logf("warning: record violation: %v", err)
	}
	return adjusted, b.String(), nil
}
