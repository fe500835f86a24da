package memory

import (
	"time"
)

// EntryType classifies a context entry.
type EntryType string

const (
	EntryDockerfile  EntryType = "dockerfile"
	EntryBuild       EntryType = "build"
	EntryValidation  EntryType = "validation"
	EntryHealthcheck EntryType = "healthcheck"
)

// SummaryThreshold is the number of entries accumulated since the last
// summary before the context is compacted.
const SummaryThreshold = 10

// ContextEntry records one generation, validation, or repair event.
type ContextEntry struct {
	Type        EntryType `json:"type"`
	Error       string    `json:"error,omitempty"`
	Fix         string    `json:"fix,omitempty"`
	Explanation string    `json:"explanation"`
	CreatedAt   string    `json:"created_at"`
}

// NewEntry creates a timestamped context entry.
func NewEntry(t EntryType, errText, fix, explanation string) ContextEntry {
	return ContextEntry{
		Type:        t,
		Error:       errText,
		Fix:         fix,
		Explanation: explanation,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
}

// ProjectContext is the self-summarizing memory of past events for one
// project. Entries are most-recent-first. When EntriesSinceSummary reaches
// SummaryThreshold all entries are collapsed into Summary and cleared;
// ViolationCount persists across compactions.
type ProjectContext struct {
	Entries             []ContextEntry `json:"entries"`
	ViolationCount      int            `json:"violation_count"`
	Summary             string         `json:"summary,omitempty"`
	EntriesSinceSummary int            `json:"entries_since_summary"`
}

// ShouldSummarize reports whether a context with the given counter is due
// for compaction.
func ShouldSummarize(entriesSinceSummary, threshold int) bool {
	return entriesSinceSummary >= threshold
}

// Add inserts an entry at the front and bumps the summary counter.
func (c *ProjectContext) Add(e ContextEntry) {
	c.Entries = append([]ContextEntry{e}, c.Entries...)
	c.EntriesSinceSummary++
}

// Compact replaces all entries with the given summary and resets the
// counter. The violation count is untouched.
func (c *ProjectContext) Compact(summary string) {
	c.Summary = summary
	c.Entries = nil
	c.EntriesSinceSummary = 0
}
