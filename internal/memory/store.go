package memory

import (
	"context"
	"fmt"

	"github.com/wunderlabs-dev/wunderunner/internal/store"
)

// Summarizer collapses accumulated entries (plus any prior summary) into a
// compact summary string.
type Summarizer interface {
	Summarize(ctx context.Context, entries []ContextEntry, priorSummary string) (string, error)
}

// Store persists self-summarizing project context in the cache directory.
type Store struct {
	files      *store.Store
	summarizer Summarizer
	threshold  int
}

// NewStore creates a context store. A zero threshold uses SummaryThreshold.
func NewStore(files *store.Store, summarizer Summarizer, threshold int) *Store {
	if threshold <= 0 {
		threshold = SummaryThreshold
	}
	return &Store{files: files, summarizer: summarizer, threshold: threshold}
}

// Load reads the project context, returning an empty one if none exists.
func (s *Store) Load() (*ProjectContext, error) {
	var pc ProjectContext
	if _, err := store.ReadJSON(s.files.ContextPath(), &pc); err != nil {
		return nil, err
	}
	return &pc, nil
}

// Save writes the project context back to disk.
func (s *Store) Save(pc *ProjectContext) error {
	return store.WriteJSON(s.files.ContextPath(), pc)
}

// AddEntry inserts an entry at the front of the context and compacts the
// context via the summarizer once the threshold is reached.
func (s *Store) AddEntry(ctx context.Context, e ContextEntry) (*ProjectContext, error) {
	pc, err := s.Load()
	if err != nil {
		return nil, err
	}
	pc.Add(e)

	if ShouldSummarize(pc.EntriesSinceSummary, s.threshold) {
		summary, err := s.summarizer.Summarize(ctx, pc.Entries, pc.Summary)
		if err != nil {
			return nil, fmt.Errorf("summarize context: %w", err)
		}
		pc.Compact(summary)
	}

	if err := s.Save(pc); err != nil {
		return nil, err
	}
	return pc, nil
}

// BumpViolations increments the persisted regression violation counter.
func (s *Store) BumpViolations() error {
	pc, err := s.Load()
	if err != nil {
		return err
	}
	pc.ViolationCount++
	return s.Save(pc)
}
