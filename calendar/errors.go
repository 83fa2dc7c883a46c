package calendar

import (
	"errors"
	"fmt"
)

// ErrorKind classifies calendar errors.
type ErrorKind string

const (
	KindDefinitionNotFound ErrorKind = "definition_not_found"
	KindInvalidRange       ErrorKind = "invalid_range"
	KindInvalidDefinition  ErrorKind = "invalid_definition"
	KindPersistence        ErrorKind = "persistence_failure"
)

// Error is returned by every Calendar operation that fails.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrDefinitionNotFound)
// holds whatever the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrDefinitionNotFound = &Error{Kind: KindDefinitionNotFound, Message: "definition not found"}
	ErrInvalidRange       = &Error{Kind: KindInvalidRange, Message: "invalid range"}
	ErrInvalidDefinition  = &Error{Kind: KindInvalidDefinition, Message: "invalid definition"}
	// ErrPersistence means the mutation is applied in memory but could not
	// be written to storage. Flush retries.
	ErrPersistence = &Error{Kind: KindPersistence, Message: "persistence failure"}
)

// IsPersistenceFailure reports whether err only signals an unsaved mutation.
func IsPersistenceFailure(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// KindOf returns the kind of a calendar error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func notFound(id string) error {
	return &Error{Kind: KindDefinitionNotFound, Message: fmt.Sprintf("definition %q not found", id)}
}

func invalidRange(format string, args ...any) error {
	return &Error{Kind: KindInvalidRange, Message: fmt.Sprintf(format, args...)}
}

func invalidDefinition(err error) error {
	return &Error{Kind: KindInvalidDefinition, Message: "definition rejected", Err: err}
}
