// memory based implementation for testing purposes
package memory

import (
	"context"
	"sync"

	"github.com/cyp0633/calrecur/event"
	"github.com/cyp0633/calrecur/storage"
)

// Store implements storage.Storage and storage.Incremental using in-memory maps
type Store struct {
	mu    sync.RWMutex
	defs  map[string]event.Definition
	order []string // insertion order, so LoadAll is stable

	// failWith, when set, is returned by every write. Tests use it to
	// simulate an unavailable backend.
	failWith error
}

// New creates a new in-memory storage
func New(defs ...event.Definition) *Store {
	s := &Store{defs: make(map[string]event.Definition)}
	for _, d := range defs {
		s.put(d)
	}
	return s
}

// FailWrites makes subsequent writes return err; nil restores normal behavior.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

func (s *Store) put(d event.Definition) {
	if _, exists := s.defs[d.ID]; !exists {
		s.order = append(s.order, d.ID)
	}
	s.defs[d.ID] = d.Clone()
}

func (s *Store) LoadAll(_ context.Context) ([]event.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]event.Definition, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.defs[id].Clone())
	}
	return out, nil
}

func (s *Store) SaveAll(_ context.Context, defs []event.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return s.unavailable()
	}

	s.defs = make(map[string]event.Definition, len(defs))
	s.order = s.order[:0]
	for _, d := range defs {
		s.put(d)
	}
	return nil
}

func (s *Store) Upsert(_ context.Context, defs ...event.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return s.unavailable()
	}
	for _, d := range defs {
		if d.ID == "" {
			return &storage.Error{
				Type:    storage.ErrInvalidInput,
				Message: "definition has no id",
			}
		}
	}
	for _, d := range defs {
		s.put(d)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return s.unavailable()
	}

	removed := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := s.defs[id]; ok {
			delete(s.defs, id)
			removed[id] = true
		}
	}
	if len(removed) == 0 {
		return nil
	}

	kept := s.order[:0]
	for _, id := range s.order {
		if !removed[id] {
			kept = append(kept, id)
		}
	}
	s.order = kept
	return nil
}

// Get returns one stored definition.
func (s *Store) Get(_ context.Context, id string) (*event.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.defs[id]
	if !ok {
		return nil, &storage.Error{
			Type:    storage.ErrNotFound,
			Message: "definition not found",
		}
	}
	cp := d.Clone()
	return &cp, nil
}

// Len returns the number of stored definitions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.defs)
}

func (s *Store) unavailable() error {
	return &storage.Error{
		Type:    storage.ErrUnavailable,
		Message: "memory store rejected write",
		Err:     s.failWith,
	}
}
