package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/cyp0633/calrecur/event"
)

// Error types
type ErrorType string

const (
	ErrNotFound      ErrorType = "not_found"
	ErrAlreadyExists ErrorType = "already_exists"
	ErrInvalidInput  ErrorType = "invalid_input"
	ErrUnavailable   ErrorType = "unavailable"
)

// Error represents a storage-related error
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsType reports whether err is a storage *Error of the given type.
func IsType(err error, t ErrorType) bool {
	var se *Error
	return errors.As(err, &se) && se.Type == t
}

// Storage is the persistence collaborator of a calendar. The calendar owns
// the authoritative in-memory collection and uses Storage only to load it
// once and to flush it after mutations.
type Storage interface {
	// LoadAll returns every stored definition in a stable order.
	LoadAll(ctx context.Context) ([]event.Definition, error)
	// SaveAll replaces the stored collection with defs.
	SaveAll(ctx context.Context, defs []event.Definition) error
}

// Incremental is implemented by backends that can apply a mutation without
// rewriting the whole collection.
type Incremental interface {
	// Upsert creates or replaces the given definitions, keyed by ID.
	Upsert(ctx context.Context, defs ...event.Definition) error
	// Delete removes the definitions with the given IDs. Missing IDs are ignored.
	Delete(ctx context.Context, ids ...string) error
}

// Changeset describes one committed mutation of a collection.
type Changeset struct {
	Upserted []event.Definition
	Deleted  []string
}

// IsEmpty reports whether the changeset carries no writes.
func (c Changeset) IsEmpty() bool {
	return len(c.Upserted) == 0 && len(c.Deleted) == 0
}

// Apply writes a changeset to s, incrementally when s supports it and as a
// full snapshot save otherwise.
func Apply(ctx context.Context, s Storage, change Changeset, snapshot []event.Definition) error {
	if change.IsEmpty() {
		return nil
	}
	inc, ok := s.(Incremental)
	if !ok {
		return s.SaveAll(ctx, snapshot)
	}
	if len(change.Upserted) > 0 {
		if err := inc.Upsert(ctx, change.Upserted...); err != nil {
			return err
		}
	}
	if len(change.Deleted) > 0 {
		if err := inc.Delete(ctx, change.Deleted...); err != nil {
			return err
		}
	}
	return nil
}
