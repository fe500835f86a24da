package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// CacheDirName is the hidden per-project cache directory.
const CacheDirName = ".wunderunner"

// Store manages the per-project cache directory: cached analysis, project
// context, fix history, and per-attempt build/run logs.
type Store struct {
	projectPath string
}

// NewStore creates a Store for the given project path.
func NewStore(projectPath string) *Store {
	return &Store{projectPath: projectPath}
}

// ProjectPath returns the project root the store is keyed by.
func (s *Store) ProjectPath() string {
	return s.projectPath
}

// Dir returns the cache directory path, creating it if needed.
func (s *Store) Dir() (string, error) {
	dir := filepath.Join(s.projectPath, CacheDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return dir, nil
}

// AnalysisPath returns the path of the cached analysis JSON.
func (s *Store) AnalysisPath() string {
	return filepath.Join(s.projectPath, CacheDirName, "analysis.json")
}

// ContextPath returns the path of the project context JSON.
func (s *Store) ContextPath() string {
	return filepath.Join(s.projectPath, CacheDirName, "context.json")
}

// FixHistoryPath returns the path of the fix history JSON.
func (s *Store) FixHistoryPath() string {
	return filepath.Join(s.projectPath, CacheDirName, "fix_history.json")
}

// LearningsPath returns the path of the persisted learnings JSON.
func (s *Store) LearningsPath() string {
	return filepath.Join(s.projectPath, CacheDirName, "learnings.json")
}

// AttemptLogPath returns the log file path for a given attempt number.
func (s *Store) AttemptLogPath(attempt int) string {
	return filepath.Join(s.projectPath, CacheDirName, "logs", fmt.Sprintf("attempt-%d.log", attempt))
}

// SaveAttemptLog writes captured subprocess output for a failed attempt.
func (s *Store) SaveAttemptLog(attempt int, output string) error {
	return WriteAtomic(s.AttemptLogPath(attempt), []byte(output))
}

// GetAttemptLog reads the captured output for a given attempt.
func (s *Store) GetAttemptLog(attempt int) (string, error) {
	data, err := os.ReadFile(s.AttemptLogPath(attempt))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
