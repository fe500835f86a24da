package history

import (
	"github.com/wunderlabs-dev/wunderunner/internal/store"
)

// Store persists fix history in the project cache directory.
type Store struct {
	files *store.Store
}

// NewStore creates a Store backed by the given project cache.
func NewStore(files *store.Store) *Store {
	return &Store{files: files}
}

// Load reads the fix history, returning an empty history if none exists yet.
func (s *Store) Load() (*FixHistory, error) {
	var h FixHistory
	found, err := store.ReadJSON(s.files.FixHistoryPath(), &h)
	if err != nil {
		return nil, err
	}
	if !found {
		return NewFixHistory(s.files.ProjectPath()), nil
	}
	return &h, nil
}

// Save writes the fix history back to disk.
func (s *Store) Save(h *FixHistory) error {
	return store.WriteJSON(s.files.FixHistoryPath(), h)
}

// Update performs a read-modify-write of the fix history.
func (s *Store) Update(fn func(*FixHistory)) (*FixHistory, error) {
	h, err := s.Load()
	if err != nil {
		return nil, err
	}
	fn(h)
	if err := s.Save(h); err != nil {
		return nil, err
	}
	return h, nil
}
