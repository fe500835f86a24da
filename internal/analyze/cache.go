package analyze

import (
	"context"

	"github.com/wunderlabs-dev/wunderunner/internal/store"
)

// CachedAnalyzer wraps an Analyzer with a per-project JSON cache. A rebuild
// request bypasses the cache and overwrites it with the fresh result.
type CachedAnalyzer struct {
	inner Analyzer
	files *store.Store
}

// NewCachedAnalyzer creates a caching wrapper over inner.
func NewCachedAnalyzer(inner Analyzer, files *store.Store) *CachedAnalyzer {
	return &CachedAnalyzer{inner: inner, files: files}
}

// Analyze returns the cached analysis unless rebuild is set or no cache
// exists; fresh results are persisted before being returned.
func (c *CachedAnalyzer) Analyze(ctx context.Context, projectPath string, rebuild bool) (*Analysis, error) {
	if !rebuild {
		var cached Analysis
		found, err := store.ReadJSON(c.files.AnalysisPath(), &cached)
		if err != nil {
			return nil, err
		}
		if found {
			return &cached, nil
		}
	}

	fresh, err := c.inner.Analyze(ctx, projectPath, rebuild)
	if err != nil {
		return nil, err
	}
	if err := store.WriteJSON(c.files.AnalysisPath(), fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}
